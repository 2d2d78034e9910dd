package handler

import (
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/ethan273/limn-systems/internal/fulfillment/testutil"
)

func setupOrderTest(t *testing.T) (*testutil.TestEnv, *repository.Repositories) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	progressSvc := service.NewProgressService(repos.Item, repos.Order, repos.Quote)
	billingSvc := service.NewBillingService(repos.Order, repos.Item, repos.Invoice, repos.Queue, repos.SyncLog)
	billingSvc.SetProgressService(progressSvc)
	productionSvc := service.NewProductionService(repos.Item, repos.Order)
	productionSvc.SetProgressService(progressSvc)

	orderHandler := NewOrderHandler(billingSvc, progressSvc)
	productionHandler := NewProductionHandler(productionSvc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.POST("/orders/bulk-invoice", orderHandler.BulkInvoice)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/:id/progress", orderHandler.GetProgress)
	api.POST("/orders/:id/mark-ready", orderHandler.MarkReady)
	api.POST("/orders/:id/unmark-ready", orderHandler.UnmarkReady)
	api.POST("/orders/:id/queue-invoice", orderHandler.QueueInvoice)
	api.POST("/orders/:id/complete", orderHandler.Complete)
	api.GET("/invoice-queue", orderHandler.ListQueue)
	api.POST("/invoice-queue/:id/process", orderHandler.ProcessQueueEntry)
	api.GET("/invoices", orderHandler.ListInvoices)
	api.GET("/sync-logs", orderHandler.ListSyncLogs)
	api.POST("/production-items/:id/advance", productionHandler.AdvanceStage)

	return &testutil.TestEnv{DB: db, Router: router, T: t}, repos
}

func completeItem(t *testing.T, env *testutil.TestEnv, itemID string) {
	t.Helper()
	if err := env.DB.Model(&entity.ProductionItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{"current_stage": entity.StageCompleted, "progress": 100}).Error; err != nil {
		t.Fatalf("Failed to complete item: %v", err)
	}
}

func TestOrderProgressAggregation(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedTestOrder(t, env.DB, "ord-o-001", "SO-2026-0101", 2000)
	testutil.SeedTestItem(t, env.DB, "item-o-001a", "ord-o-001", entity.StageCutting)
	testutil.SeedTestItem(t, env.DB, "item-o-001b", "ord-o-001", entity.StageCompleted)

	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/orders/ord-o-001/progress", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["total_items"].(float64) != 2 {
		t.Fatalf("expected 2 items, got %v", data["total_items"])
	}
	if data["completed_items"].(float64) != 1 {
		t.Fatalf("expected 1 completed item, got %v", data["completed_items"])
	}
	// (0 + 100) / 2
	if got := data["overall_progress"].(float64); math.Abs(got-50) > 1e-9 {
		t.Fatalf("expected overall progress 50, got %v", got)
	}
}

func TestMarkReadyRequiresAllItemsComplete(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedTestOrder(t, env.DB, "ord-o-002", "SO-2026-0102", 1500)
	testutil.SeedTestItem(t, env.DB, "item-o-002a", "ord-o-002", entity.StageCompleted)
	testutil.SeedTestItem(t, env.DB, "item-o-002b", "ord-o-002", entity.StageFinishing)
	completeItem(t, env, "item-o-002a")

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-002/mark-ready", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 with incomplete item, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if msg := resp["message"].(string); !strings.Contains(msg, "1") {
		t.Fatalf("expected incomplete count in message, got %q", msg)
	}

	completeItem(t, env, "item-o-002b")

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-002/mark-ready", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["financial_stage"] != entity.FinancialStageReadyToInvoice {
		t.Fatalf("expected ready_to_invoice, got %v", data["financial_stage"])
	}
	if data["ready_to_invoice"] != true {
		t.Fatal("expected ready_to_invoice flag set")
	}

	// 重复标记 → 409
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-002/mark-ready", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double mark, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMarkReadyBlockedByQCLock(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedTestOrder(t, env.DB, "ord-o-003", "SO-2026-0103", 600)
	testutil.SeedTestItem(t, env.DB, "item-o-003", "ord-o-003", entity.StageCompleted)
	completeItem(t, env, "item-o-003")
	env.DB.Model(&entity.ProductionItem{}).Where("id = ?", "item-o-003").Update("qc_locked", true)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-003/mark-ready", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 with QC locked item, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUnmarkReadyReturnsToProduction(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	order := testutil.SeedTestOrder(t, env.DB, "ord-o-004", "SO-2026-0104", 700)
	order.FinancialStage = entity.FinancialStageReadyToInvoice
	order.ReadyToInvoice = true
	env.DB.Save(order)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-004/unmark-ready", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["financial_stage"] != entity.FinancialStageInProduction {
		t.Fatalf("expected in_production, got %v", data["financial_stage"])
	}

	// in_production状态不能再取消
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-004/unmark-ready", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestQueueInvoiceIdempotent(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	order := testutil.SeedTestOrder(t, env.DB, "ord-o-005", "SO-2026-0105", 2500)
	order.FinancialStage = entity.FinancialStageReadyToInvoice
	env.DB.Save(order)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-005/queue-invoice", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["priority"].(float64) != float64(entity.QueuePriorityNormal) {
		t.Fatalf("expected priority 3, got %v", data["priority"])
	}
	if data["status"] != entity.QueueStatusPending {
		t.Fatalf("expected pending, got %v", data["status"])
	}

	// 重复入队 → 409，且不新增条目
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-005/queue-invoice", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate queue, got %d: %s", w.Code, w.Body.String())
	}

	var count int64
	env.DB.Model(&entity.InvoiceQueueEntry{}).Where("entity_id = ?", "ord-o-005").Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 queue entry, got %d", count)
	}
}

func TestQueueInvoiceRequiresReadyStage(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedTestOrder(t, env.DB, "ord-o-006", "SO-2026-0106", 400)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-006/queue-invoice", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for in_production order, got %d: %s", w.Code, w.Body.String())
	}
}

// 开票成功但阶段回写失败时订单可能停在ready_to_invoice，
// 再次入队要被已存在的有效发票挡住
func TestQueueInvoiceRejectsExistingActiveInvoice(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	order := testutil.SeedTestOrder(t, env.DB, "ord-o-013", "SO-2026-0113", 2600)
	order.FinancialStage = entity.FinancialStageReadyToInvoice
	order.ReadyToInvoice = true
	env.DB.Save(order)

	if err := env.DB.Create(&entity.Invoice{
		ID:          "inv-o-013",
		InvoiceNo:   "INV-SO-2026-0113-000001",
		OrderID:     "ord-o-013",
		TotalAmount: 2600,
		BalanceDue:  2600,
		Currency:    "USD",
		Status:      entity.InvoiceStatusIssued,
	}).Error; err != nil {
		t.Fatalf("Failed to seed invoice: %v", err)
	}

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-013/queue-invoice", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 with active invoice, got %d: %s", w.Code, w.Body.String())
	}

	var count int64
	env.DB.Model(&entity.InvoiceQueueEntry{}).Where("entity_id = ?", "ord-o-013").Count(&count)
	if count != 0 {
		t.Fatalf("expected no queue entry, got %d", count)
	}
}

func TestProcessQueueEntryCreatesInvoice(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	order := testutil.SeedTestOrder(t, env.DB, "ord-o-007", "SO-2026-0107", 3200)
	order.FinancialStage = entity.FinancialStageReadyToInvoice
	env.DB.Save(order)
	testutil.SeedTestItem(t, env.DB, "item-o-007", "ord-o-007", entity.StageCompleted)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-007/queue-invoice", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	entryID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/invoice-queue/"+entryID+"/process", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	invoiceNo := data["invoice_no"].(string)
	if !strings.HasPrefix(invoiceNo, "INV-SO-2026-0107-") {
		t.Fatalf("unexpected invoice number format: %s", invoiceNo)
	}

	// 队列条目已完成
	var entry entity.InvoiceQueueEntry
	env.DB.First(&entry, "id = ?", entryID)
	if entry.Status != entity.QueueStatusCompleted {
		t.Fatalf("expected completed entry, got %s", entry.Status)
	}

	// 订单进入invoiced，生产项打上开票标记
	var updated entity.Order
	env.DB.First(&updated, "id = ?", "ord-o-007")
	if updated.FinancialStage != entity.FinancialStageInvoiced {
		t.Fatalf("expected invoiced, got %s", updated.FinancialStage)
	}
	var item entity.ProductionItem
	env.DB.First(&item, "id = ?", "item-o-007")
	if !item.Invoiced {
		t.Fatal("expected item invoiced flag set")
	}

	// 重复处理 → 422
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/invoice-queue/"+entryID+"/process", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on re-process, got %d: %s", w.Code, w.Body.String())
	}

	// 同步日志落了一条single_invoice
	var logs []entity.SyncLog
	env.DB.Where("reference_id = ?", "ord-o-007").Find(&logs)
	if len(logs) != 1 || logs[0].SyncType != entity.SyncTypeSingleInvoice {
		t.Fatalf("expected 1 single_invoice sync log, got %d", len(logs))
	}
}

func TestBulkInvoicePartialFailure(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()

	ready1 := testutil.SeedTestOrder(t, env.DB, "ord-o-008a", "SO-2026-0108", 1000)
	ready1.FinancialStage = entity.FinancialStageReadyToInvoice
	env.DB.Save(ready1)
	ready2 := testutil.SeedTestOrder(t, env.DB, "ord-o-008b", "SO-2026-0109", 2000)
	ready2.FinancialStage = entity.FinancialStageReadyToInvoice
	env.DB.Save(ready2)
	testutil.SeedTestOrder(t, env.DB, "ord-o-008c", "SO-2026-0110", 3000) // 仍在in_production

	body := map[string]interface{}{
		"order_ids": []string{"ord-o-008a", "ord-o-008b", "ord-o-008c", "ord-missing"},
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/bulk-invoice", body, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["total_requested"].(float64) != 4 {
		t.Fatalf("expected 4 requested, got %v", data["total_requested"])
	}
	if data["succeeded"].(float64) != 2 {
		t.Fatalf("expected 2 succeeded, got %v", data["succeeded"])
	}
	if data["failed"].(float64) != 2 {
		t.Fatalf("expected 2 failed, got %v", data["failed"])
	}
	if errs := data["validation_errors"].([]interface{}); len(errs) != 2 {
		t.Fatalf("expected 2 validation errors, got %d", len(errs))
	}

	// 成功的订单有发票，失败的没有
	var invCount int64
	env.DB.Model(&entity.Invoice{}).Count(&invCount)
	if invCount != 2 {
		t.Fatalf("expected 2 invoices, got %d", invCount)
	}

	// 部分失败 → 一条warning日志
	var logs []entity.SyncLog
	env.DB.Where("sync_type = ?", entity.SyncTypeBulkInvoice).Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected 1 bulk sync log, got %d", len(logs))
	}
	if logs[0].Status != entity.SyncStatusWarning {
		t.Fatalf("expected warning status, got %s", logs[0].Status)
	}
}

func TestBulkInvoiceAllSuccess(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	order := testutil.SeedTestOrder(t, env.DB, "ord-o-009", "SO-2026-0111", 1800)
	order.FinancialStage = entity.FinancialStageReadyToInvoice
	env.DB.Save(order)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/bulk-invoice",
		map[string]interface{}{"order_ids": []string{"ord-o-009"}}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var logs []entity.SyncLog
	env.DB.Where("sync_type = ?", entity.SyncTypeBulkInvoice).Find(&logs)
	if len(logs) != 1 || logs[0].Status != entity.SyncStatusSuccess {
		t.Fatalf("expected success sync log, got %+v", logs)
	}

	// 已开票订单再次批量开票 → 校验失败不重复开票
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/bulk-invoice",
		map[string]interface{}{"order_ids": []string{"ord-o-009"}}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var invCount int64
	env.DB.Model(&entity.Invoice{}).Where("order_id = ?", "ord-o-009").Count(&invCount)
	if invCount != 1 {
		t.Fatalf("expected 1 invoice after repeat bulk, got %d", invCount)
	}
}

func TestCompleteOrderRequiresInvoiced(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedTestOrder(t, env.DB, "ord-o-010", "SO-2026-0112", 500)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-010/complete", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	env.DB.Model(&entity.Order{}).Where("id = ?", "ord-o-010").
		Update("financial_stage", entity.FinancialStageInvoiced)

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/ord-o-010/complete", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["financial_stage"] != entity.FinancialStageCompleted {
		t.Fatalf("expected completed, got %v", data["financial_stage"])
	}
}
