package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func createTestCatalog() []models.Record {
	return []models.Record{
		{"商品编码": "SKU001", "商品名称": "白色衬衫", "成本价": "25"},
		{"商品编码": "SKU002", "商品名称": "蓝色T恤", "成本价": "30"},
		{"商品编码": "SKU003", "商品名称": "黑色长裤", "成本价": "45.5"},
	}
}

func createTestOrder(id, status, refund, code, name, price, quantity string) models.Record {
	return models.Record{
		"订单号":    id,
		"订单状态":   status,
		"退款状态":   refund,
		"外部系统编号": code,
		"商品名称":   name,
		"商家实收金额": price,
		"买家购买数量": quantity,
	}
}

func createScenarioOrders() []models.Record {
	return []models.Record{
		createTestOrder("T1", "交易成功", "", "SKU001", "白色衬衫", "100", "2"),
		createTestOrder("T2", "交易成功", "", "", "蓝色T恤", "60", "1"),
		createTestOrder("T3", "交易关闭", "", "SKU001", "白色衬衫", "100", "1"),
		createTestOrder("T4", "交易成功", "退款成功", "SKU002", "蓝色T恤", "60", "1"),
		createTestOrder("T5", "交易成功", "", "SKU999", "未知", "40", "1"),
	}
}

// createGeneratedOrders builds n orders mixing kept, excluded, matched and unmatched rows
func createGeneratedOrders(n int) []models.Record {
	orders := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		status, refund := "交易成功", ""
		switch i % 7 {
		case 0:
			status = "等待买家付款"
		case 1:
			refund = "退款成功"
		}
		code := fmt.Sprintf("SKU%03d", i%5)
		orders = append(orders, createTestOrder(
			fmt.Sprintf("T%04d", i), status, refund, code, "",
			fmt.Sprintf("%d.%02d", 20+i%90, i%100), fmt.Sprint(1+i%3),
		))
	}
	return orders
}

func newTestService(t *testing.T, modify func(*Config)) *Service {
	t.Helper()
	config := DefaultConfig()
	if modify != nil {
		modify(config)
	}
	service, err := NewService(config)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return service
}

func TestRunScenario(t *testing.T) {
	service := newTestService(t, nil)

	result, err := service.Run(context.Background(), createScenarioOrders(), createTestCatalog())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := uuid.Parse(result.RunID); err != nil {
		t.Errorf("Expected a UUID run ID, got %q", result.RunID)
	}

	if result.Filter.Stats.Total != 5 || result.Filter.Stats.Kept != 3 {
		t.Errorf("Expected 3 of 5 orders kept, got %d of %d", result.Filter.Stats.Kept, result.Filter.Stats.Total)
	}

	stats := result.Match.Stats
	if stats.Matched != 2 || stats.Unmatched != 1 {
		t.Errorf("Expected 2 matched and 1 unmatched, got %d/%d", stats.Matched, stats.Unmatched)
	}

	totals := result.Report.Totals
	if !totals.TotalRevenue.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected revenue 200, got %s", totals.TotalRevenue)
	}
	if !totals.TotalCost.Equal(decimal.NewFromInt(80)) {
		t.Errorf("Expected cost 80, got %s", totals.TotalCost)
	}
	if !totals.TotalProfit.Equal(decimal.NewFromInt(120)) {
		t.Errorf("Expected profit 120, got %s", totals.TotalProfit)
	}

	ids := []string{}
	for _, e := range result.Match.Orders {
		ids = append(ids, e.OrderID)
	}
	if fmt.Sprint(ids) != "[T1 T2 T5]" {
		t.Errorf("Expected kept orders in input order, got %v", ids)
	}

	for _, step := range []string{StepFilter, StepMatch, StepAggregate} {
		if _, ok := result.StageDurations[step]; !ok {
			t.Errorf("Expected duration for stage %s", step)
		}
	}
	if result.Duplicates == nil {
		t.Error("Expected duplicate detection result")
	}
	if result.FinishedAt.Before(result.StartedAt) {
		t.Error("Expected finish time after start time")
	}
}

func TestRunBatchSizeIndependence(t *testing.T) {
	orders := createGeneratedOrders(137)
	catalog := []models.Record{
		{"商品编码": "SKU001", "商品名称": "A", "成本价": "10"},
		{"商品编码": "SKU002", "商品名称": "B", "成本价": "12.5"},
		{"商品编码": "SKU003", "商品名称": "C", "成本价": "8"},
	}

	var baseline *Result
	for _, batchSize := range []int{1, 7, 64, 1000} {
		service := newTestService(t, func(c *Config) { c.BatchSize = batchSize })

		result, err := service.Run(context.Background(), orders, catalog)
		if err != nil {
			t.Fatalf("Run with batch size %d failed: %v", batchSize, err)
		}

		if baseline == nil {
			baseline = result
			continue
		}

		got, want := result.Report.Totals, baseline.Report.Totals
		if got.OrderCount != want.OrderCount || got.MatchedCount != want.MatchedCount ||
			!got.TotalRevenue.Equal(want.TotalRevenue) || !got.TotalProfit.Equal(want.TotalProfit) {
			t.Errorf("Batch size %d changed totals: %+v vs %+v", batchSize, got, want)
		}
		if result.Filter.Stats.Kept != baseline.Filter.Stats.Kept {
			t.Errorf("Batch size %d changed kept count", batchSize)
		}
		for i, e := range result.Match.Orders {
			b := baseline.Match.Orders[i]
			if e.OrderID != b.OrderID || e.MatchMethod != b.MatchMethod || !e.Profit.Equal(b.Profit) {
				t.Errorf("Batch size %d changed order %d", batchSize, i)
				break
			}
		}
	}
}

func TestRunCancelled(t *testing.T) {
	service := newTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := service.Run(ctx, createScenarioOrders(), createTestCatalog())
	if result != nil {
		t.Error("Expected no result for a cancelled run")
	}

	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.CodeCancelled {
		t.Fatalf("Expected cancellation error, got %v", err)
	}
}

func TestRunEmptyInput(t *testing.T) {
	service := newTestService(t, nil)

	result, err := service.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Report.Totals.OrderCount != 0 || !result.Report.Totals.TotalRevenue.IsZero() {
		t.Errorf("Expected an empty report, got %+v", result.Report.Totals)
	}
	if len(result.Warnings) == 0 {
		t.Error("Expected a warning about the empty catalog")
	}
}

func TestProgressCallbacks(t *testing.T) {
	service := newTestService(t, func(c *Config) { c.BatchSize = 2 })

	var updates []Progress
	service.AddProgressCallback(func(p Progress) {
		updates = append(updates, p)
	})

	if _, err := service.Run(context.Background(), createScenarioOrders(), createTestCatalog()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(updates) == 0 {
		t.Fatal("Expected progress updates")
	}

	var steps []string
	for _, p := range updates {
		if len(steps) == 0 || steps[len(steps)-1] != p.CurrentStep {
			steps = append(steps, p.CurrentStep)
		}
		if p.TotalSteps != 3 {
			t.Errorf("Expected 3 total steps, got %d", p.TotalSteps)
		}
	}
	want := fmt.Sprint([]string{StepFilter, StepMatch, StepAggregate, StepCompleted})
	if fmt.Sprint(steps) != want {
		t.Errorf("Expected steps %s, got %v", want, steps)
	}

	last := updates[len(updates)-1]
	if last.PercentComplete != 100 {
		t.Errorf("Expected 100%% at completion, got %.1f", last.PercentComplete)
	}
}

func TestConcurrentRuns(t *testing.T) {
	service := newTestService(t, nil)
	orders := createGeneratedOrders(60)

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.Run(context.Background(), orders, createTestCatalog())
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Run %d failed: %v", i, errs[i])
		}
		if !results[i].Report.Totals.TotalProfit.Equal(results[0].Report.Totals.TotalProfit) {
			t.Errorf("Run %d produced a different profit", i)
		}
		if i > 0 && results[i].RunID == results[0].RunID {
			t.Error("Expected distinct run IDs")
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestRunFiles(t *testing.T) {
	dir := t.TempDir()
	header := "订单号,订单状态,外部系统编号,商品名称,商家实收金额,买家购买数量\n"
	first := writeFile(t, dir, "orders_1.csv", header+"T1,交易成功,SKU001,白色衬衫,100,2\n")
	second := writeFile(t, dir, "orders_2.csv", header+"T2,交易成功,,蓝色T恤,60,1\nT3,交易关闭,SKU001,白色衬衫,100,1\n")
	products := writeFile(t, dir, "products.csv", "商品编码,商品名称,成本价\nSKU001,白色衬衫,25\nSKU002,蓝色T恤,30\n")

	var steps []string
	service := newTestService(t, nil)
	service.AddProgressCallback(func(p Progress) {
		if len(steps) == 0 || steps[len(steps)-1] != p.CurrentStep {
			steps = append(steps, p.CurrentStep)
		}
	})

	result, err := service.RunFiles(context.Background(), &Request{
		OrderFiles:  []string{first, second},
		ProductFile: products,
	})
	if err != nil {
		t.Fatalf("RunFiles failed: %v", err)
	}

	if len(result.Inputs) != 3 {
		t.Errorf("Expected stats for 3 input files, got %d", len(result.Inputs))
	}
	if result.Filter.Stats.Total != 3 || result.Filter.Stats.Kept != 2 {
		t.Errorf("Expected 2 of 3 orders kept, got %d of %d", result.Filter.Stats.Kept, result.Filter.Stats.Total)
	}
	if result.Match.Orders[0].OrderID != "T1" || result.Match.Orders[1].OrderID != "T2" {
		t.Error("Expected orders concatenated in file order")
	}
	if !result.Report.Totals.TotalProfit.Equal(decimal.NewFromInt(80)) {
		t.Errorf("Expected profit 80, got %s", result.Report.Totals.TotalProfit)
	}
	if steps[0] != StepLoad {
		t.Errorf("Expected load as the first step, got %v", steps)
	}
	if _, ok := result.StageDurations[StepLoad]; !ok {
		t.Error("Expected a load duration")
	}
}

func TestRunFilesErrors(t *testing.T) {
	service := newTestService(t, nil)
	dir := t.TempDir()
	orders := writeFile(t, dir, "orders.csv", "订单号\nT1\n")

	tests := []struct {
		name    string
		request *Request
		code    apperrors.ErrorCode
	}{
		{"no order files", &Request{ProductFile: orders}, apperrors.CodeMissingConfig},
		{"no product file", &Request{OrderFiles: []string{orders}}, apperrors.CodeProductsMissing},
		{"missing product file", &Request{OrderFiles: []string{orders}, ProductFile: filepath.Join(dir, "missing.csv")}, apperrors.CodeFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.RunFiles(context.Background(), tt.request)
			if result != nil {
				t.Error("Expected no result")
			}
			appErr, ok := apperrors.AsAppError(err)
			if !ok || appErr.Code != tt.code {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentFiles = 0 }, true},
		{"missing matching", func(c *Config) { c.Matching = nil }, true},
		{"bad threshold", func(c *Config) { c.Matching.FuzzyThreshold = 10 }, true},
		{"bad aggregation", func(c *Config) { c.Aggregation.TopN = 0 }, true},
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
