// Package resolver looks up logical fields in loosely typed records.
//
// Source exports name the same column differently depending on the shop
// backend, the export template and its age. Each logical field therefore has
// an ordered alias list; the first alias holding a present value wins, so
// the list order encodes which header is preferred over legacy ones.
//
// A value is present when it is not nil and, for strings, not blank. Numeric
// zero is present: an order with quantity 0 must not fall back to the
// default quantity.
//
// Numeric resolution strips currency symbols, thousands separators and
// whitespace before parsing and returns the caller's default when the field
// is absent or does not parse. It never returns NaN or an infinity.
//
// Example usage:
//
//	price := resolver.Amount(order, aliases.Get(resolver.FieldSellingPrice), decimal.Zero)
//	name := resolver.String(order, aliases.Get(resolver.FieldProductName), "")
package resolver

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Options mirrors the generic resolve contract: Numeric switches on numeric
// coercion and Default is returned when nothing usable is found.
type Options struct {
	Numeric bool
	Default any
}

// Resolve returns the first present value among aliases together with the
// alias that held it.
func Resolve(record models.Record, aliases []string) (any, string, bool) {
	for _, alias := range aliases {
		v, ok := record[alias]
		if !ok || !isPresent(v) {
			continue
		}
		return v, alias, true
	}
	return nil, "", false
}

// Value resolves aliases according to opts. Numeric results are float64;
// text results are the raw value.
func Value(record models.Record, aliases []string, opts Options) any {
	if opts.Numeric {
		def := 0.0
		if opts.Default != nil {
			def = cast.ToFloat64(opts.Default)
		}
		return Number(record, aliases, def)
	}

	v, _, ok := Resolve(record, aliases)
	if !ok {
		return opts.Default
	}
	return v
}

// String resolves aliases to trimmed text, or def when absent
func String(record models.Record, aliases []string, def string) string {
	v, _, ok := Resolve(record, aliases)
	if !ok {
		return def
	}
	return toText(v)
}

// Number resolves aliases to a float64, or def when absent or unparseable
func Number(record models.Record, aliases []string, def float64) float64 {
	v, _, ok := Resolve(record, aliases)
	if !ok {
		return def
	}
	d, ok := ParseAmount(v)
	if !ok {
		return def
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) {
		return def
	}
	return f
}

// Amount resolves aliases to a decimal, or def when absent or unparseable
func Amount(record models.Record, aliases []string, def decimal.Decimal) decimal.Decimal {
	d, ok := LookupAmount(record, aliases)
	if !ok {
		return def
	}
	return d
}

// LookupAmount resolves aliases to a decimal and reports whether a
// parseable value was found.
func LookupAmount(record models.Record, aliases []string) (decimal.Decimal, bool) {
	v, _, ok := Resolve(record, aliases)
	if !ok {
		return decimal.Zero, false
	}
	return ParseAmount(v)
}

// ParseAmount converts a raw cell value to a decimal. Strings are cleaned of
// ¥, ￥, $, ASCII and full-width commas and whitespace first.
func ParseAmount(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	}

	s := cleanNumeric(toText(v))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func cleanNumeric(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '¥', '￥', '$', ',', '，':
			return -1
		}
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isPresent(v any) bool {
	switch s := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(s) != ""
	case fmt.Stringer:
		return strings.TrimSpace(s.String()) != ""
	default:
		return true
	}
}

func toText(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}

// HasField reports whether any record carries a present value for aliases.
// The matcher uses it for column diagnostics.
func HasField(records []models.Record, aliases []string) bool {
	for _, r := range records {
		if _, _, ok := Resolve(r, aliases); ok {
			return true
		}
	}
	return false
}
