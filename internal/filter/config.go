package filter

import (
	"fmt"
	"strings"

	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"
)

// Default rule values for Taobao exports
const (
	DefaultRequiredStatus = "交易成功"
	DefaultRefundStatus   = "退款成功"
	DefaultRemarksMarker  = "(收)"
)

// PriceRange bounds the order price, inclusive on both ends
type PriceRange struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// DateRange bounds the order creation date. Either side may be empty.
type DateRange struct {
	Start string `json:"start" mapstructure:"start"`
	End   string `json:"end" mapstructure:"end"`
}

// Config holds the filter rules. The status, refund and remarks rules are
// always active; PriceRange, DateRange and ExcludeKeywords are optional.
type Config struct {
	RequiredStatus  string              `json:"required_status"`
	RefundStatus    string              `json:"refund_status"`
	RemarksMarkers  []string            `json:"remarks_markers"`
	ExcludeKeywords string              `json:"exclude_keywords,omitempty"`
	PriceRange      *PriceRange         `json:"price_range,omitempty"`
	DateRange       *DateRange          `json:"date_range,omitempty"`
	Aliases         resolver.AliasTable `json:"-"`
}

// DefaultConfig returns the standard Taobao rule set
func DefaultConfig() *Config {
	return &Config{
		RequiredStatus: DefaultRequiredStatus,
		RefundStatus:   DefaultRefundStatus,
		RemarksMarkers: []string{DefaultRemarksMarker},
		Aliases:        resolver.DefaultOrderAliases(),
	}
}

// Validate validates the filter configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RequiredStatus) == "" {
		return fmt.Errorf("required order status cannot be empty")
	}

	if c.PriceRange != nil {
		if c.PriceRange.Min < 0 {
			return fmt.Errorf("price range minimum cannot be negative, got %g", c.PriceRange.Min)
		}
		if c.PriceRange.Min > c.PriceRange.Max {
			return fmt.Errorf("price range minimum %g exceeds maximum %g", c.PriceRange.Min, c.PriceRange.Max)
		}
	}

	if c.Aliases != nil {
		if err := c.Aliases.Validate(); err != nil {
			return fmt.Errorf("invalid order aliases: %w", err)
		}
	}

	return nil
}

// Keywords splits ExcludeKeywords on ASCII and full-width commas and returns
// the lowercased, non-empty entries.
func (c *Config) Keywords() []string {
	fields := strings.FieldsFunc(c.ExcludeKeywords, func(r rune) bool {
		return r == ',' || r == '，'
	})

	var keywords []string
	for _, f := range fields {
		if kw := strings.ToLower(strings.TrimSpace(f)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}
