package config

import (
	"reflect"
	"strings"
	"testing"

	"github.com/graymonk/taobao-reconciliation-new/internal/aggregator"
	"github.com/graymonk/taobao-reconciliation-new/internal/filter"
	"github.com/graymonk/taobao-reconciliation-new/internal/matcher"
	"github.com/graymonk/taobao-reconciliation-new/internal/parsers"
	"github.com/graymonk/taobao-reconciliation-new/internal/reporter"
	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"

	"github.com/spf13/viper"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
			t.Fatalf("ReadConfig failed: %v", err)
		}
	}
	return v
}

func requireInvalidConfig(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected an invalid config error, got nil")
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("Expected an AppError, got %T", err)
	}
	if appErr.Code != apperrors.CodeInvalidConfig {
		t.Errorf("Expected code %s, got %s", apperrors.CodeInvalidConfig, appErr.Code)
	}
}

func TestDefaultsMatchPackageDefaults(t *testing.T) {
	v := newViper(t, "")

	config, err := CreatePipelineConfig(v)
	if err != nil {
		t.Fatalf("CreatePipelineConfig failed: %v", err)
	}

	f := filter.DefaultConfig()
	if config.Filter.RequiredStatus != f.RequiredStatus || config.Filter.RefundStatus != f.RefundStatus {
		t.Errorf("Expected default statuses, got %q and %q", config.Filter.RequiredStatus, config.Filter.RefundStatus)
	}
	if !reflect.DeepEqual(config.Filter.RemarksMarkers, f.RemarksMarkers) {
		t.Errorf("Expected markers %v, got %v", f.RemarksMarkers, config.Filter.RemarksMarkers)
	}
	if config.Filter.PriceRange != nil || config.Filter.DateRange != nil {
		t.Error("Expected no price or date range by default")
	}

	if !reflect.DeepEqual(config.Matching, matcher.DefaultMatchingConfig()) {
		t.Errorf("Expected default matching config, got %+v", config.Matching)
	}
	if !reflect.DeepEqual(config.Aggregation, aggregator.DefaultConfig()) {
		t.Errorf("Expected default aggregation config, got %+v", config.Aggregation)
	}
	if config.Aggregation.OrderListLimit != 30 {
		t.Errorf("Expected order list limit 30, got %d", config.Aggregation.OrderListLimit)
	}

	in := parsers.DefaultConfig()
	if config.Input.Encoding != in.Encoding || config.Input.Delimiter != in.Delimiter || config.Input.MaxFieldRunes != in.MaxFieldRunes {
		t.Errorf("Expected default input config, got %+v", config.Input)
	}

	if !reflect.DeepEqual(config.OrderAliases, resolver.DefaultOrderAliases()) {
		t.Error("Expected default order aliases")
	}
	if !reflect.DeepEqual(config.ProductAliases, resolver.DefaultProductAliases()) {
		t.Error("Expected default product aliases")
	}
	if config.BatchSize != 1000 {
		t.Errorf("Expected batch size 1000, got %d", config.BatchSize)
	}

	report, err := CreateReportConfig(v)
	if err != nil {
		t.Fatalf("CreateReportConfig failed: %v", err)
	}
	if !reflect.DeepEqual(report, reporter.DefaultReportConfig()) {
		t.Errorf("Expected default report config, got %+v", report)
	}
}

func TestCreateFilterConfig(t *testing.T) {
	v := newViper(t, `
filter:
  remarks_markers: "(收)，(代)"
  exclude_keywords: 测试,刷单
  min_price: 10
  start_date: "2024-03-01"
  end_date: "2024-03-31"
`)

	config, err := CreateFilterConfig(v)
	if err != nil {
		t.Fatalf("CreateFilterConfig failed: %v", err)
	}

	if expected := []string{"(收)", "(代)"}; !reflect.DeepEqual(config.RemarksMarkers, expected) {
		t.Errorf("Expected markers %v, got %v", expected, config.RemarksMarkers)
	}
	if expected := []string{"测试", "刷单"}; !reflect.DeepEqual(config.Keywords(), expected) {
		t.Errorf("Expected keywords %v, got %v", expected, config.Keywords())
	}
	if config.PriceRange == nil {
		t.Fatal("Expected a price range")
	}
	if config.PriceRange.Min != 10 || config.PriceRange.Max != maxPrice {
		t.Errorf("Expected price range [10, %v], got %+v", maxPrice, config.PriceRange)
	}
	if config.DateRange == nil {
		t.Fatal("Expected a date range")
	}
	if config.DateRange.Start != "2024-03-01" || config.DateRange.End != "2024-03-31" {
		t.Errorf("Unexpected date range %+v", config.DateRange)
	}
}

func TestCreateFilterConfigInvalidPriceRange(t *testing.T) {
	v := newViper(t, "")
	v.Set(KeyFilterMinPrice, 50)
	v.Set(KeyFilterMaxPrice, 10)

	_, err := CreateFilterConfig(v)
	requireInvalidConfig(t, err)
}

func TestCreateMatchingConfig(t *testing.T) {
	tests := []struct {
		name        string
		strategy    string
		threshold   float64
		expected    matcher.Strategy
		expectError bool
	}{
		{name: "hybrid", strategy: "hybrid", threshold: 80, expected: matcher.StrategyHybrid},
		{name: "upper case name", strategy: "NAME", threshold: 60, expected: matcher.StrategyName},
		{name: "unknown strategy", strategy: "sound", threshold: 80, expectError: true},
		{name: "threshold too low", strategy: "name", threshold: 40, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t, "")
			v.Set(KeyMatchStrategy, tt.strategy)
			v.Set(KeyMatchThreshold, tt.threshold)

			config, err := CreateMatchingConfig(v)
			if tt.expectError {
				requireInvalidConfig(t, err)
				return
			}
			if err != nil {
				t.Fatalf("CreateMatchingConfig failed: %v", err)
			}
			if config.Strategy != tt.expected {
				t.Errorf("Expected strategy %s, got %s", tt.expected, config.Strategy)
			}
			if config.FuzzyThreshold != tt.threshold {
				t.Errorf("Expected threshold %v, got %v", tt.threshold, config.FuzzyThreshold)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SALESREPORT_MATCHING_STRATEGY", "code")
	t.Setenv("SALESREPORT_PIPELINE_BATCH_SIZE", "50")

	v := newViper(t, "")
	v.SetEnvPrefix("SALESREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config, err := CreatePipelineConfig(v)
	if err != nil {
		t.Fatalf("CreatePipelineConfig failed: %v", err)
	}
	if config.Matching.Strategy != matcher.StrategyCode {
		t.Errorf("Expected code strategy, got %s", config.Matching.Strategy)
	}
	if config.BatchSize != 50 {
		t.Errorf("Expected batch size 50, got %d", config.BatchSize)
	}
}

func TestCreateAliases(t *testing.T) {
	v := newViper(t, `
aliases:
  orders:
    selling_price: [实收款, 商家实收金额]
  products:
    cost: 采购价, 成本价
`)

	orders, err := CreateAliases(v, KeyOrderAliases, resolver.DefaultOrderAliases())
	if err != nil {
		t.Fatalf("CreateAliases failed: %v", err)
	}
	if expected := []string{"实收款", "商家实收金额"}; !reflect.DeepEqual(orders.Get(resolver.FieldSellingPrice), expected) {
		t.Errorf("Expected %v, got %v", expected, orders.Get(resolver.FieldSellingPrice))
	}
	if expected := resolver.DefaultOrderAliases().Get(resolver.FieldOrderID); !reflect.DeepEqual(orders.Get(resolver.FieldOrderID), expected) {
		t.Errorf("Expected untouched order id aliases %v, got %v", expected, orders.Get(resolver.FieldOrderID))
	}

	products, err := CreateAliases(v, KeyProductAliases, resolver.DefaultProductAliases())
	if err != nil {
		t.Fatalf("CreateAliases failed: %v", err)
	}
	if expected := []string{"采购价", "成本价"}; !reflect.DeepEqual(products.Get(resolver.FieldCost), expected) {
		t.Errorf("Expected %v, got %v", expected, products.Get(resolver.FieldCost))
	}
}

func TestCreateAliasesRejectsUnknownField(t *testing.T) {
	v := newViper(t, `
aliases:
  orders:
    colour: [颜色]
`)

	_, err := CreateAliases(v, KeyOrderAliases, resolver.DefaultOrderAliases())
	requireInvalidConfig(t, err)
}

func TestCreateInputConfig(t *testing.T) {
	v := newViper(t, "")
	v.Set(KeyInputEncoding, "gbk")
	v.Set(KeyInputDelimiter, "tab")
	v.Set(KeyInputSheet, "订单")

	config, err := CreateInputConfig(v)
	if err != nil {
		t.Fatalf("CreateInputConfig failed: %v", err)
	}
	if config.Encoding != "gbk" || config.Delimiter != '\t' || config.Sheet != "订单" {
		t.Errorf("Unexpected input config %+v", config)
	}

	v.Set(KeyInputEncoding, "klingon")
	_, err = CreateInputConfig(v)
	requireInvalidConfig(t, err)

	v.Set(KeyInputEncoding, "auto")
	v.Set(KeyInputDelimiter, ";;")
	_, err = CreateInputConfig(v)
	requireInvalidConfig(t, err)
}

func TestCreateReportConfig(t *testing.T) {
	v := newViper(t, "")
	v.Set(KeyOutputFormat, "XLSX")
	v.Set(KeyOutputSections, "summary,risks")
	v.Set(KeyOutputDelimiter, ";")

	config, err := CreateReportConfig(v)
	if err != nil {
		t.Fatalf("CreateReportConfig failed: %v", err)
	}
	if config.Format != reporter.FormatXLSX {
		t.Errorf("Expected xlsx format, got %s", config.Format)
	}
	if expected := []reporter.Section{reporter.SectionSummary, reporter.SectionRisks}; !reflect.DeepEqual(config.Sections, expected) {
		t.Errorf("Expected sections %v, got %v", expected, config.Sections)
	}
	if config.CSVDelimiter != ';' {
		t.Errorf("Expected ';' delimiter, got %q", config.CSVDelimiter)
	}

	v.Set(KeyOutputFormat, "pdf")
	_, err = CreateReportConfig(v)
	requireInvalidConfig(t, err)

	v.Set(KeyOutputFormat, "csv")
	v.Set(KeyOutputSections, []string{"charts"})
	_, err = CreateReportConfig(v)
	requireInvalidConfig(t, err)
}

func TestCreateAggregationListLimit(t *testing.T) {
	v := newViper(t, "")
	v.Set(KeyAggListLimit, 5)

	config, err := CreatePipelineConfig(v)
	if err != nil {
		t.Fatalf("CreatePipelineConfig failed: %v", err)
	}
	if config.Aggregation.OrderListLimit != 5 {
		t.Errorf("Expected order list limit 5, got %d", config.Aggregation.OrderListLimit)
	}

	v.Set(KeyAggListLimit, 0)
	_, err = CreatePipelineConfig(v)
	requireInvalidConfig(t, err)
}

func TestCreateLoggerConfig(t *testing.T) {
	v := newViper(t, "")

	config, err := CreateLoggerConfig(v, false)
	if err != nil {
		t.Fatalf("CreateLoggerConfig failed: %v", err)
	}
	if config.Level != logger.InfoLevel || config.Output != logger.StderrOutput {
		t.Errorf("Expected info level on stderr, got %+v", config)
	}
	if config.CallerInfo {
		t.Error("Expected no caller info without verbose")
	}

	config, err = CreateLoggerConfig(v, true)
	if err != nil {
		t.Fatalf("CreateLoggerConfig failed: %v", err)
	}
	if config.Level != logger.DebugLevel {
		t.Errorf("Expected debug level, got %s", config.Level)
	}
	if !config.CallerInfo {
		t.Error("Expected caller info when verbose")
	}

	v.Set(KeyLogLevel, "loud")
	_, err = CreateLoggerConfig(v, false)
	requireInvalidConfig(t, err)
}

func TestStringList(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected []string
	}{
		{"nil", nil, nil},
		{"comma string", "a, b,,c", []string{"a", "b", "c"}},
		{"full-width commas", "甲，乙", []string{"甲", "乙"}},
		{"string slice", []string{" a ", ""}, []string{"a"}},
		{"interface slice", []interface{}{"x", "y"}, []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stringList(tt.value)
			if err != nil {
				t.Fatalf("stringList failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}
