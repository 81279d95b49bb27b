package pipeline

import (
	"fmt"

	"github.com/graymonk/taobao-reconciliation-new/internal/aggregator"
	"github.com/graymonk/taobao-reconciliation-new/internal/filter"
	"github.com/graymonk/taobao-reconciliation-new/internal/matcher"
	"github.com/graymonk/taobao-reconciliation-new/internal/parsers"
	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"
)

// DefaultBatchSize is the number of records processed between cancellation checks
const DefaultBatchSize = 1000

// Config holds configuration for a report run
type Config struct {
	Filter      *filter.Config          `json:"filter"`
	Matching    *matcher.MatchingConfig `json:"matching"`
	Aggregation *aggregator.Config      `json:"aggregation"`
	Input       *parsers.Config         `json:"input"`

	// OrderAliases and ProductAliases override the default field names
	OrderAliases   resolver.AliasTable `json:"-"`
	ProductAliases resolver.AliasTable `json:"-"`

	// Processing options
	BatchSize          int `json:"batch_size"`
	MaxConcurrentFiles int `json:"max_concurrent_files"`
}

// DefaultConfig returns a default configuration for the report pipeline
func DefaultConfig() *Config {
	return &Config{
		Filter:             filter.DefaultConfig(),
		Matching:           matcher.DefaultMatchingConfig(),
		Aggregation:        aggregator.DefaultConfig(),
		Input:              parsers.DefaultConfig(),
		OrderAliases:       resolver.DefaultOrderAliases(),
		ProductAliases:     resolver.DefaultProductAliases(),
		BatchSize:          DefaultBatchSize,
		MaxConcurrentFiles: parsers.DefaultMaxConcurrentFiles,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}

	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles)
	}

	if c.Filter == nil || c.Matching == nil || c.Aggregation == nil || c.Input == nil {
		return fmt.Errorf("filter, matching, aggregation and input configuration are required")
	}

	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if err := c.Aggregation.Validate(); err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}

	for name, table := range map[string]resolver.AliasTable{"order": c.OrderAliases, "product": c.ProductAliases} {
		if table == nil {
			continue
		}
		if err := table.Validate(); err != nil {
			return fmt.Errorf("%s aliases: %w", name, err)
		}
	}

	return nil
}

// orderAliases returns the order alias table, falling back to the defaults
func (c *Config) orderAliases() resolver.AliasTable {
	if c.OrderAliases != nil {
		return c.OrderAliases
	}
	return resolver.DefaultOrderAliases()
}

func (c *Config) productAliases() resolver.AliasTable {
	if c.ProductAliases != nil {
		return c.ProductAliases
	}
	return resolver.DefaultProductAliases()
}
