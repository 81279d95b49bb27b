// Package matcher links filtered orders to cost catalog products.
//
// Products are indexed once per run by code and by normalized name. Each
// order is then looked up according to the configured strategy:
//   - code:   external code only
//   - name:   exact normalized name, then a bounded fuzzy scan
//   - hybrid: code, then exact normalized name (no fuzzy scan)
//
// The fuzzy scan walks catalog names in insertion order and accepts the
// first name whose similarity reaches the threshold, so results are
// deterministic for a given catalog.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.Strategy = matcher.StrategyName
//
//	engine := matcher.NewMatchingEngine(config)
//	engine.LoadProducts(products)
//
//	result, err := engine.Match(ctx, orders)
package matcher

import (
	"fmt"
)

// Strategy selects how orders are looked up in the product index
type Strategy string

const (
	// StrategyCode matches by external code only
	StrategyCode Strategy = "code"

	// StrategyName matches by exact name and falls back to fuzzy matching
	StrategyName Strategy = "name"

	// StrategyHybrid tries code, then exact name. It never runs the
	// fuzzy scan.
	StrategyHybrid Strategy = "hybrid"
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	return string(s)
}

// IsValid checks if the strategy is one of the known strategies
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyCode, StrategyName, StrategyHybrid:
		return true
	default:
		return false
	}
}

// ParseStrategy converts a configuration value into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	strategy := Strategy(s)
	if !strategy.IsValid() {
		return "", fmt.Errorf("unknown matching strategy %q (expected code, name or hybrid)", s)
	}
	return strategy, nil
}

// Threshold limits for fuzzy name matching, in percent
const (
	MinFuzzyThreshold = 50
	MaxFuzzyThreshold = 100
)

// MatchingConfig holds configuration parameters for cost matching.
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): hybrid lookup, suitable for most exports
//   - StrictMatchingConfig(): code only, for catalogs with reliable codes
//   - RelaxedMatchingConfig(): name lookup with a low fuzzy threshold
type MatchingConfig struct {
	// Strategy selects the lookup order
	Strategy Strategy `json:"strategy" mapstructure:"strategy"`

	// FuzzyThreshold is the minimum similarity percentage (50 to 100)
	// for a fuzzy name match
	FuzzyThreshold float64 `json:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`

	// MaxFuzzyComparisons caps the similarity computations per order
	MaxFuzzyComparisons int `json:"max_fuzzy_comparisons" mapstructure:"max_fuzzy_comparisons"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Strategy:            StrategyHybrid,
		FuzzyThreshold:      80,
		MaxFuzzyComparisons: 1000,
	}
}

// StrictMatchingConfig returns a configuration for strict matching
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Strategy:            StrategyCode,
		FuzzyThreshold:      100,
		MaxFuzzyComparisons: 1000,
	}
}

// RelaxedMatchingConfig returns a configuration for relaxed matching
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Strategy:            StrategyName,
		FuzzyThreshold:      60,
		MaxFuzzyComparisons: 1000,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if !mc.Strategy.IsValid() {
		return fmt.Errorf("unknown matching strategy %q", mc.Strategy)
	}

	if mc.FuzzyThreshold < MinFuzzyThreshold || mc.FuzzyThreshold > MaxFuzzyThreshold {
		return fmt.Errorf("fuzzy threshold must be between %d and %d: %g", MinFuzzyThreshold, MaxFuzzyThreshold, mc.FuzzyThreshold)
	}

	if mc.MaxFuzzyComparisons <= 0 {
		return fmt.Errorf("max fuzzy comparisons must be positive: %d", mc.MaxFuzzyComparisons)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// usesCode reports whether the strategy looks up external codes
func (mc *MatchingConfig) usesCode() bool {
	return mc.Strategy == StrategyCode || mc.Strategy == StrategyHybrid
}

// usesName reports whether the strategy looks up product names
func (mc *MatchingConfig) usesName() bool {
	return mc.Strategy == StrategyName || mc.Strategy == StrategyHybrid
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Strategy: %s, FuzzyThreshold: %.1f%%, MaxFuzzyComparisons: %d}",
		mc.Strategy, mc.FuzzyThreshold, mc.MaxFuzzyComparisons)
}
