package filter

import (
	"testing"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"

	"github.com/shopspring/decimal"
)

func order(fields map[string]any) models.Record {
	r := models.Record{
		"订单号":    "T1",
		"订单状态":   "交易成功",
		"退款状态":   "",
		"联系方式备注": "",
		"买家应付货款": "100",
		"创建时间":   "2024-03-15 10:20:00",
		"备注":     "",
	}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

func newFilter(t *testing.T, config *Config) *Filter {
	t.Helper()
	f, err := New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return f
}

func TestSuccessfulOrderIsKept(t *testing.T) {
	f := newFilter(t, nil)

	got := f.Evaluate(order(nil))

	if !got.Kept {
		t.Fatalf("Expected order to be kept, got category %q reason %q", got.Category, got.Reason)
	}
	if got.Category != CategoryNone {
		t.Errorf("Expected no category, got %q", got.Category)
	}
}

func TestRefundedOrderIsExcluded(t *testing.T) {
	f := newFilter(t, nil)

	got := f.Evaluate(order(map[string]any{"退款状态": "退款成功"}))

	if got.Kept {
		t.Fatal("Expected refunded order to be excluded")
	}
	if got.Category != CategoryRefund {
		t.Errorf("Expected category refund, got %q", got.Category)
	}
}

func TestRuleOrderDecidesCategory(t *testing.T) {
	config := DefaultConfig()
	config.ExcludeKeywords = "刷单"
	config.PriceRange = &PriceRange{Min: 10, Max: 50}
	f := newFilter(t, config)

	tests := []struct {
		name   string
		fields map[string]any
		want   Category
	}{
		{
			name:   "status beats everything",
			fields: map[string]any{"订单状态": "等待买家付款", "退款状态": "退款成功", "备注": "刷单"},
			want:   CategoryStatus,
		},
		{
			name:   "missing status",
			fields: map[string]any{"订单状态": nil},
			want:   CategoryStatus,
		},
		{
			name:   "refund beats remarks",
			fields: map[string]any{"退款状态": "退款成功", "联系方式备注": "张三(收)"},
			want:   CategoryRefund,
		},
		{
			name:   "remarks beats price",
			fields: map[string]any{"联系方式备注": "李四(收)"},
			want:   CategoryRemarks,
		},
		{
			name:   "price beats keyword",
			fields: map[string]any{"买家应付货款": "100", "备注": "刷单"},
			want:   CategoryPrice,
		},
		{
			name:   "keyword",
			fields: map[string]any{"买家应付货款": "20", "备注": "疑似刷单"},
			want:   CategoryKeyword,
		},
		{
			name:   "kept",
			fields: map[string]any{"买家应付货款": "20"},
			want:   CategoryNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Evaluate(order(tt.fields))
			if got.Category != tt.want {
				t.Errorf("Expected category %q, got %q (%s)", tt.want, got.Category, got.Reason)
			}
			if got.Kept != (tt.want == CategoryNone) {
				t.Errorf("Expected kept=%v, got %v", tt.want == CategoryNone, got.Kept)
			}
		})
	}
}

func TestPriceRuleSkipsUnparseablePrice(t *testing.T) {
	config := DefaultConfig()
	config.PriceRange = &PriceRange{Min: 10, Max: 50}
	f := newFilter(t, config)

	got := f.Evaluate(order(map[string]any{"买家应付货款": "待定"}))
	if !got.Kept {
		t.Errorf("Expected order with unparseable price to be kept, got %q", got.Category)
	}

	got = f.Evaluate(order(map[string]any{"买家应付货款": "¥1,000"}))
	if got.Category != CategoryPrice {
		t.Errorf("Expected price exclusion for ¥1,000, got %q", got.Category)
	}
}

func TestDateRange(t *testing.T) {
	config := DefaultConfig()
	config.DateRange = &DateRange{Start: "2024-03-01", End: "2024-03-15"}
	f := newFilter(t, config)

	tests := []struct {
		created any
		kept    bool
	}{
		{"2024-02-29 23:59:59", false},
		{"2024-03-01 00:00:00", true},
		{"2024-03-15 23:59:59", true},
		{"2024-03-16 00:00:00", false},
		{"", false},
	}

	for _, tt := range tests {
		got := f.Evaluate(order(map[string]any{"创建时间": tt.created}))
		if got.Kept != tt.kept {
			t.Errorf("created %v: expected kept=%v, got %v (%s)", tt.created, tt.kept, got.Kept, got.Reason)
		}
	}
}

func TestMissingDate(t *testing.T) {
	tests := []struct {
		name  string
		dates *DateRange
		kept  bool
	}{
		{"start bound excludes", &DateRange{Start: "2024-03-01", End: "2024-03-15"}, false},
		{"end bound alone keeps", &DateRange{End: "2024-03-15"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.DateRange = tt.dates
			f := newFilter(t, config)

			got := f.Evaluate(order(map[string]any{"创建时间": ""}))
			if got.Kept != tt.kept {
				t.Fatalf("Expected kept=%v, got %v (%s)", tt.kept, got.Kept, got.Reason)
			}
			if !tt.kept && got.Category != CategoryDate {
				t.Errorf("Expected date exclusion, got %q", got.Category)
			}
		})
	}
}

func TestInvalidDateBoundIsIgnored(t *testing.T) {
	config := DefaultConfig()
	config.DateRange = &DateRange{Start: "last tuesday", End: "2024-03-15"}
	f := newFilter(t, config)

	if len(f.Warnings()) != 1 {
		t.Fatalf("Expected one warning, got %v", f.Warnings())
	}

	got := f.Evaluate(order(map[string]any{"创建时间": "2000-01-01"}))
	if !got.Kept {
		t.Errorf("Expected invalid start bound to be ignored, got %q", got.Category)
	}
	got = f.Evaluate(order(map[string]any{"创建时间": "2024-04-01"}))
	if got.Category != CategoryDate {
		t.Errorf("Expected valid end bound to apply, got %q", got.Category)
	}
}

func TestKeywordsAreCaseInsensitiveAndSkipEmptyEntries(t *testing.T) {
	config := DefaultConfig()
	config.ExcludeKeywords = " TEST ,，,样品"
	f := newFilter(t, config)

	if kws := config.Keywords(); len(kws) != 2 {
		t.Fatalf("Expected 2 keywords, got %v", kws)
	}

	if got := f.Evaluate(order(map[string]any{"备注": "this is a Test order"})); got.Category != CategoryKeyword {
		t.Errorf("Expected keyword exclusion, got %q", got.Category)
	}
	if got := f.Evaluate(order(map[string]any{"备注": "正常发货"})); !got.Kept {
		t.Errorf("Expected order to be kept, got %q", got.Category)
	}
}

func TestApplyStatistics(t *testing.T) {
	f := newFilter(t, nil)
	orders := []models.Record{
		order(map[string]any{"买家应付货款": "100"}),
		order(map[string]any{"买家应付货款": "50.5"}),
		order(map[string]any{"买家应付货款": "30", "退款状态": "退款成功"}),
		order(map[string]any{"买家应付货款": "20", "订单状态": "交易关闭"}),
		order(map[string]any{"买家应付货款": "oops"}),
	}

	result := f.Apply(orders)

	if len(result.Orders) != 5 {
		t.Fatalf("Expected 5 annotated orders, got %d", len(result.Orders))
	}
	if result.Stats.Kept != 3 || len(result.Kept) != 3 {
		t.Errorf("Expected 3 kept orders, got %d (%d records)", result.Stats.Kept, len(result.Kept))
	}
	if result.Stats.Excluded != 2 {
		t.Errorf("Expected 2 excluded orders, got %d", result.Stats.Excluded)
	}
	if result.Stats.ByCategory[CategoryRefund] != 1 || result.Stats.ByCategory[CategoryStatus] != 1 {
		t.Errorf("Unexpected category counts: %v", result.Stats.ByCategory)
	}
	if result.Stats.ByCategory[CategoryKeyword] != 0 {
		t.Errorf("Expected zero keyword exclusions, got %d", result.Stats.ByCategory[CategoryKeyword])
	}
	if !result.Stats.TotalAmount.Equal(decimal.RequireFromString("200.5")) {
		t.Errorf("Expected total amount 200.5, got %s", result.Stats.TotalAmount)
	}
	if !result.Stats.KeptAmount.Equal(decimal.RequireFromString("150.5")) {
		t.Errorf("Expected kept amount 150.5, got %s", result.Stats.KeptAmount)
	}
	if result.Stats.AverageKeptPrice.StringFixed(2) != "50.17" {
		t.Errorf("Expected average kept price 50.17, got %s", result.Stats.AverageKeptPrice.StringFixed(2))
	}
}

func TestApplyDoesNotMutateOrders(t *testing.T) {
	f := newFilter(t, nil)
	o := order(map[string]any{"自定义列": "x"})
	before := len(o)

	result := f.Apply([]models.Record{o})

	if len(o) != before {
		t.Errorf("Expected order to keep %d fields, got %d", before, len(o))
	}
	if result.Kept[0]["自定义列"] != "x" {
		t.Error("Expected unknown field to survive filtering")
	}
}

func TestApplyEmpty(t *testing.T) {
	f := newFilter(t, nil)

	result := f.Apply(nil)

	if result.Stats.Total != 0 || !result.Stats.AverageKeptPrice.IsZero() {
		t.Errorf("Expected zeroed stats, got %+v", result.Stats)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"empty status", func(c *Config) { c.RequiredStatus = " " }, true},
		{"inverted price range", func(c *Config) { c.PriceRange = &PriceRange{Min: 10, Max: 5} }, true},
		{"negative price", func(c *Config) { c.PriceRange = &PriceRange{Min: -1, Max: 5} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
