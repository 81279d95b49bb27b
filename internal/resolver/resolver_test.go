package resolver

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"

	"github.com/shopspring/decimal"
)

func TestResolveFirstPresentAliasWins(t *testing.T) {
	record := models.Record{
		"商家实收金额": "",
		"买家应付货款": "  ",
		"成交价格":   "120",
		"price":  "99",
	}

	v, key, ok := Resolve(record, DefaultOrderAliases().Get(FieldSellingPrice))
	if !ok {
		t.Fatal("Expected a value to resolve")
	}
	if key != "成交价格" {
		t.Errorf("Expected alias 成交价格, got %s", key)
	}
	if v != "120" {
		t.Errorf("Expected value 120, got %v", v)
	}
}

func TestResolveNumericZeroIsPresent(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"int zero", 0},
		{"float zero", 0.0},
		{"string zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := models.Record{"买家购买数量": tt.value, "数量": 5}
			got := Number(record, DefaultOrderAliases().Get(FieldQuantity), 1)
			if got != 0 {
				t.Errorf("Expected explicit zero to win, got %v", got)
			}
		})
	}
}

func TestResolveAbsentValues(t *testing.T) {
	record := models.Record{"订单状态": nil, "status": ""}

	if _, _, ok := Resolve(record, DefaultOrderAliases().Get(FieldOrderStatus)); ok {
		t.Error("Expected nil and empty string to count as absent")
	}
	if got := String(record, DefaultOrderAliases().Get(FieldOrderStatus), "none"); got != "none" {
		t.Errorf("Expected default, got %q", got)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
		ok    bool
	}{
		{"plain", "12.50", "12.5", true},
		{"yuan sign", "¥1,234.00", "1234", true},
		{"full-width yuan", "￥ 88", "88", true},
		{"dollar", "$ 5", "5", true},
		{"full-width comma", "1，000", "1000", true},
		{"inner whitespace", " 1 000 ", "1000", true},
		{"negative", "-3.2", "-3.2", true},
		{"float", 25.5, "25.5", true},
		{"int", 7, "7", true},
		{"json number", json.Number("42"), "42", true},
		{"decimal", decimal.RequireFromString("1.25"), "1.25", true},
		{"garbage", "abc", "0", false},
		{"trailing text", "12元", "0", false},
		{"nan string", "NaN", "0", false},
		{"nan float", math.NaN(), "0", false},
		{"inf float", math.Inf(1), "0", false},
		{"empty", "", "0", false},
		{"nil", nil, "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAmount(tt.input)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNumberFallsBackToDefault(t *testing.T) {
	record := models.Record{"商家实收金额": "n/a"}

	if got := Number(record, DefaultOrderAliases().Get(FieldSellingPrice), 0); got != 0 {
		t.Errorf("Expected default 0 for unparseable value, got %v", got)
	}
	if got := Number(models.Record{}, DefaultOrderAliases().Get(FieldQuantity), 1); got != 1 {
		t.Errorf("Expected default 1 for missing quantity, got %v", got)
	}
}

func TestNumberRejectsOverflow(t *testing.T) {
	aliases := DefaultOrderAliases().Get(FieldSellingPrice)

	tests := []struct {
		value    string
		expected float64
	}{
		{"1e400", 7},
		{"-1e400", 7},
		{"1e3", 1000},
	}

	for _, tt := range tests {
		got := Number(models.Record{"商家实收金额": tt.value}, aliases, 7)
		if math.IsInf(got, 0) || got != tt.expected {
			t.Errorf("Number(%q): expected %v, got %v", tt.value, tt.expected, got)
		}
	}
}

func TestValueOptions(t *testing.T) {
	record := models.Record{"成本价": "¥25", "供应商": "杭州工厂"}
	aliases := DefaultProductAliases()

	if got := Value(record, aliases.Get(FieldCost), Options{Numeric: true, Default: 0}); got != 25.0 {
		t.Errorf("Expected 25, got %v", got)
	}
	if got := Value(record, aliases.Get(FieldSupplier), Options{Default: DefaultSupplier}); got != "杭州工厂" {
		t.Errorf("Expected supplier, got %v", got)
	}
	if got := Value(models.Record{}, aliases.Get(FieldSupplier), Options{Default: DefaultSupplier}); got != DefaultSupplier {
		t.Errorf("Expected default supplier, got %v", got)
	}
}

func TestStringRendersNumbers(t *testing.T) {
	record := models.Record{"外部系统编号": 10086}
	if got := String(record, DefaultOrderAliases().Get(FieldExternalCode), ""); got != "10086" {
		t.Errorf("Expected 10086, got %q", got)
	}
}

func TestAliasTableMerge(t *testing.T) {
	base := DefaultOrderAliases()

	merged, err := base.Merge(map[string][]string{"selling_price": {" 实收 ", "", "price"}})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	got := merged.Get(FieldSellingPrice)
	if len(got) != 2 || got[0] != "实收" || got[1] != "price" {
		t.Errorf("Expected cleaned override, got %v", got)
	}
	if base.Get(FieldSellingPrice)[0] != "商家实收金额" {
		t.Error("Expected base table to stay unchanged")
	}

	if _, err := base.Merge(map[string][]string{"colour": {"颜色"}}); err == nil {
		t.Error("Expected error for unknown field")
	}
	if _, err := base.Merge(map[string][]string{"quantity": {" "}}); err == nil {
		t.Error("Expected error for empty alias list")
	}
}

func TestAliasTablesValidate(t *testing.T) {
	if err := DefaultOrderAliases().Validate(); err != nil {
		t.Errorf("Expected default order aliases to validate: %v", err)
	}
	if err := DefaultProductAliases().Validate(); err != nil {
		t.Errorf("Expected default product aliases to validate: %v", err)
	}
	if err := (AliasTable{FieldCode: {""}}).Validate(); err == nil {
		t.Error("Expected validation error for blank alias list")
	}
}

func TestHasField(t *testing.T) {
	records := []models.Record{{"a": ""}, {"商品编码": "X1"}}
	if !HasField(records, DefaultProductAliases().Get(FieldCode)) {
		t.Error("Expected code field to be found")
	}
	if HasField(records, DefaultProductAliases().Get(FieldCost)) {
		t.Error("Did not expect cost field")
	}
}
