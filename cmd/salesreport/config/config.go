// Package config turns viper settings into the configurations of the
// pipeline, the reporter and the logger.
package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/graymonk/taobao-reconciliation-new/internal/aggregator"
	"github.com/graymonk/taobao-reconciliation-new/internal/filter"
	"github.com/graymonk/taobao-reconciliation-new/internal/matcher"
	"github.com/graymonk/taobao-reconciliation-new/internal/parsers"
	"github.com/graymonk/taobao-reconciliation-new/internal/pipeline"
	"github.com/graymonk/taobao-reconciliation-new/internal/reporter"
	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Configuration keys
const (
	KeyFilterStatus   = "filter.required_status"
	KeyFilterRefund   = "filter.refund_status"
	KeyFilterMarkers  = "filter.remarks_markers"
	KeyFilterKeywords = "filter.exclude_keywords"
	KeyFilterMinPrice = "filter.min_price"
	KeyFilterMaxPrice = "filter.max_price"
	KeyFilterStart    = "filter.start_date"
	KeyFilterEnd      = "filter.end_date"

	KeyMatchStrategy    = "matching.strategy"
	KeyMatchThreshold   = "matching.fuzzy_threshold"
	KeyMatchComparisons = "matching.max_fuzzy_comparisons"

	KeyAggTopN         = "aggregation.top_n"
	KeyAggNameMaxRunes = "aggregation.name_max_runes"
	KeyAggHighRatio    = "aggregation.high_margin_ratio"
	KeyAggMidRatio     = "aggregation.mid_margin_ratio"
	KeyAggListLimit    = "aggregation.order_list_limit"

	KeyBatchSize          = "pipeline.batch_size"
	KeyMaxConcurrentFiles = "pipeline.max_concurrent_files"

	KeyInputEncoding  = "input.encoding"
	KeyInputSheet     = "input.sheet"
	KeyInputDelimiter = "input.delimiter"
	KeyInputMaxField  = "input.max_field_runes"

	KeyOutputFormat    = "output.format"
	KeyOutputFile      = "output.file"
	KeyOutputSections  = "output.sections"
	KeyOutputMaxRows   = "output.max_console_rows"
	KeyOutputDelimiter = "output.csv_delimiter"
	KeyOutputWarnings  = "output.include_warnings"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"

	KeyOrderAliases   = "aliases.orders"
	KeyProductAliases = "aliases.products"
)

// SetDefaults registers the default value of every setting
func SetDefaults(v *viper.Viper) {
	f := filter.DefaultConfig()
	v.SetDefault(KeyFilterStatus, f.RequiredStatus)
	v.SetDefault(KeyFilterRefund, f.RefundStatus)
	v.SetDefault(KeyFilterMarkers, f.RemarksMarkers)
	v.SetDefault(KeyFilterKeywords, "")

	m := matcher.DefaultMatchingConfig()
	v.SetDefault(KeyMatchStrategy, string(m.Strategy))
	v.SetDefault(KeyMatchThreshold, m.FuzzyThreshold)
	v.SetDefault(KeyMatchComparisons, m.MaxFuzzyComparisons)

	a := aggregator.DefaultConfig()
	v.SetDefault(KeyAggTopN, a.TopN)
	v.SetDefault(KeyAggNameMaxRunes, a.NameMaxRunes)
	v.SetDefault(KeyAggHighRatio, a.HighMarginRatio)
	v.SetDefault(KeyAggMidRatio, a.MidMarginRatio)
	v.SetDefault(KeyAggListLimit, a.OrderListLimit)

	v.SetDefault(KeyBatchSize, pipeline.DefaultBatchSize)
	v.SetDefault(KeyMaxConcurrentFiles, parsers.DefaultMaxConcurrentFiles)

	in := parsers.DefaultConfig()
	v.SetDefault(KeyInputEncoding, in.Encoding)
	v.SetDefault(KeyInputSheet, in.Sheet)
	v.SetDefault(KeyInputDelimiter, string(in.Delimiter))
	v.SetDefault(KeyInputMaxField, in.MaxFieldRunes)

	r := reporter.DefaultReportConfig()
	v.SetDefault(KeyOutputFormat, string(r.Format))
	v.SetDefault(KeyOutputFile, "")
	v.SetDefault(KeyOutputSections, []string{})
	v.SetDefault(KeyOutputMaxRows, r.MaxConsoleRows)
	v.SetDefault(KeyOutputDelimiter, string(r.CSVDelimiter))
	v.SetDefault(KeyOutputWarnings, r.IncludeWarnings)

	l := logger.DefaultConfig()
	v.SetDefault(KeyLogLevel, string(l.Level))
	v.SetDefault(KeyLogFormat, string(l.Format))
	v.SetDefault(KeyLogFile, "")
}

// CreateFilterConfig creates the order filter configuration
func CreateFilterConfig(v *viper.Viper) (*filter.Config, error) {
	config := filter.DefaultConfig()
	config.RequiredStatus = v.GetString(KeyFilterStatus)
	config.RefundStatus = v.GetString(KeyFilterRefund)
	config.ExcludeKeywords = v.GetString(KeyFilterKeywords)

	markers, err := stringList(v.Get(KeyFilterMarkers))
	if err != nil {
		return nil, settingError(KeyFilterMarkers, v.Get(KeyFilterMarkers), err)
	}
	config.RemarksMarkers = markers

	if v.IsSet(KeyFilterMinPrice) || v.IsSet(KeyFilterMaxPrice) {
		config.PriceRange = &filter.PriceRange{
			Min: v.GetFloat64(KeyFilterMinPrice),
			Max: v.GetFloat64(KeyFilterMaxPrice),
		}
		if !v.IsSet(KeyFilterMaxPrice) {
			config.PriceRange.Max = maxPrice
		}
	}

	start, end := v.GetString(KeyFilterStart), v.GetString(KeyFilterEnd)
	if start != "" || end != "" {
		config.DateRange = &filter.DateRange{Start: start, End: end}
	}

	if err := config.Validate(); err != nil {
		return nil, settingError("filter", nil, err)
	}
	return config, nil
}

// maxPrice stands in for an open upper price bound
const maxPrice = 1e15

// CreateMatchingConfig creates the cost matcher configuration
func CreateMatchingConfig(v *viper.Viper) (*matcher.MatchingConfig, error) {
	strategy, err := matcher.ParseStrategy(strings.ToLower(v.GetString(KeyMatchStrategy)))
	if err != nil {
		return nil, settingError(KeyMatchStrategy, v.GetString(KeyMatchStrategy), err).
			WithSuggestion("use one of: code, name, hybrid")
	}

	config := &matcher.MatchingConfig{
		Strategy:            strategy,
		FuzzyThreshold:      v.GetFloat64(KeyMatchThreshold),
		MaxFuzzyComparisons: v.GetInt(KeyMatchComparisons),
	}
	if err := config.Validate(); err != nil {
		return nil, settingError("matching", config.String(), err)
	}
	return config, nil
}

// CreateAggregationConfig creates the aggregator configuration
func CreateAggregationConfig(v *viper.Viper) (*aggregator.Config, error) {
	config := &aggregator.Config{
		TopN:            v.GetInt(KeyAggTopN),
		NameMaxRunes:    v.GetInt(KeyAggNameMaxRunes),
		HighMarginRatio: v.GetFloat64(KeyAggHighRatio),
		MidMarginRatio:  v.GetFloat64(KeyAggMidRatio),
		OrderListLimit:  v.GetInt(KeyAggListLimit),
	}
	if err := config.Validate(); err != nil {
		return nil, settingError("aggregation", nil, err)
	}
	return config, nil
}

// CreateInputConfig creates the file loading configuration
func CreateInputConfig(v *viper.Viper) (*parsers.Config, error) {
	delimiter, err := singleRune(v.GetString(KeyInputDelimiter))
	if err != nil {
		return nil, settingError(KeyInputDelimiter, v.GetString(KeyInputDelimiter), err)
	}

	config := parsers.DefaultConfig()
	config.Encoding = v.GetString(KeyInputEncoding)
	config.Sheet = v.GetString(KeyInputSheet)
	config.Delimiter = delimiter
	config.MaxFieldRunes = v.GetInt(KeyInputMaxField)

	if err := config.Validate(); err != nil {
		return nil, settingError("input", config.Encoding, err).
			WithSuggestion("use encoding auto, utf-8, gbk or gb18030")
	}
	return config, nil
}

// CreateAliases returns defaults with the per-field overrides found under
// key. Each override replaces the whole alias list of its field.
func CreateAliases(v *viper.Viper, key string, defaults resolver.AliasTable) (resolver.AliasTable, error) {
	raw := v.GetStringMap(key)
	if len(raw) == 0 {
		return defaults, nil
	}

	overrides := make(map[string][]string, len(raw))
	for field, value := range raw {
		aliases, err := stringList(value)
		if err != nil {
			return nil, settingError(key+"."+field, value, err)
		}
		overrides[field] = aliases
	}

	table, err := defaults.Merge(overrides)
	if err != nil {
		return nil, settingError(key, raw, err).
			WithSuggestion("run 'salesreport aliases' to list the known fields")
	}
	return table, nil
}

// CreatePipelineConfig assembles the full pipeline configuration
func CreatePipelineConfig(v *viper.Viper) (*pipeline.Config, error) {
	var err error
	config := pipeline.DefaultConfig()

	if config.Filter, err = CreateFilterConfig(v); err != nil {
		return nil, err
	}
	if config.Matching, err = CreateMatchingConfig(v); err != nil {
		return nil, err
	}
	if config.Aggregation, err = CreateAggregationConfig(v); err != nil {
		return nil, err
	}
	if config.Input, err = CreateInputConfig(v); err != nil {
		return nil, err
	}
	if config.OrderAliases, err = CreateAliases(v, KeyOrderAliases, resolver.DefaultOrderAliases()); err != nil {
		return nil, err
	}
	if config.ProductAliases, err = CreateAliases(v, KeyProductAliases, resolver.DefaultProductAliases()); err != nil {
		return nil, err
	}

	config.BatchSize = v.GetInt(KeyBatchSize)
	config.MaxConcurrentFiles = v.GetInt(KeyMaxConcurrentFiles)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates the reporter configuration
func CreateReportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	format, err := reporter.ParseFormat(v.GetString(KeyOutputFormat))
	if err != nil {
		return nil, settingError(KeyOutputFormat, v.GetString(KeyOutputFormat), err).
			WithSuggestion("use one of: console, json, csv, xlsx")
	}

	names, err := stringList(v.Get(KeyOutputSections))
	if err != nil {
		return nil, settingError(KeyOutputSections, v.Get(KeyOutputSections), err)
	}
	sections, err := reporter.ParseSections(names)
	if err != nil {
		return nil, settingError(KeyOutputSections, names, err).
			WithSuggestion("use any of: summary, details, products, risks, filter")
	}

	delimiter, err := singleRune(v.GetString(KeyOutputDelimiter))
	if err != nil {
		return nil, settingError(KeyOutputDelimiter, v.GetString(KeyOutputDelimiter), err)
	}

	config := &reporter.ReportConfig{
		Format:          format,
		Sections:        sections,
		MaxConsoleRows:  v.GetInt(KeyOutputMaxRows),
		CSVDelimiter:    delimiter,
		IncludeWarnings: v.GetBool(KeyOutputWarnings),
	}
	if err := config.Validate(); err != nil {
		return nil, settingError("output", nil, err)
	}
	return config, nil
}

// CreateLoggerConfig creates the logger configuration. Logs go to stderr so
// reports written to stdout stay clean.
func CreateLoggerConfig(v *viper.Viper, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	config.Level = logger.Level(strings.ToLower(v.GetString(KeyLogLevel)))
	if verbose {
		config = logger.DebugConfig()
	}
	config.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))
	if file := v.GetString(KeyLogFile); file != "" {
		config.Output = logger.FileOutput
		config.File = file
	}

	if err := config.Validate(); err != nil {
		return nil, settingError("log", nil, err).
			WithSuggestion("use log level debug, info, warn or error and format text or json")
	}
	return config, nil
}

// stringList accepts a list or a comma separated string. Full-width
// commas separate entries too.
func stringList(value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '，' })
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	list, err := cast.ToStringSliceE(value)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// singleRune parses a delimiter setting. "\t" and "tab" select a tab.
func singleRune(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func settingError(setting string, value interface{}, err error) *apperrors.AppError {
	return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, setting, value, err)
}
