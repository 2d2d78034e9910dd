package handler

import (
	"net/http"
	"testing"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/ethan273/limn-systems/internal/fulfillment/testutil"
)

func setupFlowTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	progressSvc := service.NewProgressService(repos.Item, repos.Order, repos.Quote)
	productionSvc := service.NewProductionService(repos.Item, repos.Order)
	productionSvc.SetProgressService(progressSvc)
	qcSvc := service.NewQCService(repos.QC, repos.Item)
	qcSvc.SetProgressService(progressSvc)
	billingSvc := service.NewBillingService(repos.Order, repos.Item, repos.Invoice, repos.Queue, repos.SyncLog)
	billingSvc.SetProgressService(progressSvc)
	shippingSvc := service.NewShippingService(db, repos.Quote, repos.QuoteAction, repos.Order)
	shippingSvc.SetBillingService(billingSvc)

	orderHandler := NewOrderHandler(billingSvc, progressSvc)
	productionHandler := NewProductionHandler(productionSvc)
	qcHandler := NewQCHandler(qcSvc)
	shippingHandler := NewShippingHandler(shippingSvc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id/progress", orderHandler.GetProgress)
	api.GET("/orders/:id/summary", orderHandler.GetSummary)
	api.GET("/orders/:id/queue-status", orderHandler.GetQueueStatus)
	api.POST("/orders/:id/mark-ready", orderHandler.MarkReady)
	api.POST("/orders/:id/queue-invoice", orderHandler.QueueInvoice)
	api.POST("/invoice-queue/:id/process", orderHandler.ProcessQueueEntry)
	api.POST("/orders/:id/items", productionHandler.CreateItem)
	api.POST("/production-items/:id/advance", productionHandler.AdvanceStage)
	api.POST("/production-items/:id/inspections", qcHandler.RecordInspection)
	api.POST("/orders/:id/shipping-quotes", shippingHandler.Create)
	api.POST("/shipping-quotes/:id/actions", shippingHandler.PerformAction)
	api.PUT("/shipping-quotes/:id/shipment-status", shippingHandler.UpdateShipmentStatus)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

// 从下单到妥投的完整生命周期
func TestFulfillmentLifecycle(t *testing.T) {
	env := setupFlowTest(t)
	token := testutil.DefaultTestToken()

	// 1. 创建订单和生产项
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders",
		map[string]interface{}{"order_no": "SO-2026-0301", "customer_name": "Atelier Nord", "total_amount": 4200.0}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	orderID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/items",
		map[string]interface{}{"product_name": "Oak Sideboard"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	itemID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	// 2. 提前标记可开票 → 拒绝（生产未完成）
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/mark-ready", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("premature mark-ready: expected 422, got %d: %s", w.Code, w.Body.String())
	}

	// 3. 逐道工序推进到completed（质检工序记录一次合格检验）
	for _, stage := range []string{
		entity.StageAssembly, entity.StageFinishing, entity.StageQualityCheck,
	} {
		w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/production-items/"+itemID+"/advance",
			map[string]interface{}{"new_stage": stage}, token)
		if w.Code != http.StatusOK {
			t.Fatalf("advance to %s: expected 200, got %d: %s", stage, w.Code, w.Body.String())
		}
	}
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/production-items/"+itemID+"/inspections",
		map[string]interface{}{"pass_fail": true, "quality_score": 96.5}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("inspection: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	for _, stage := range []string{entity.StagePackaging, entity.StageCompleted} {
		w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/production-items/"+itemID+"/advance",
			map[string]interface{}{"new_stage": stage}, token)
		if w.Code != http.StatusOK {
			t.Fatalf("advance to %s: expected 200, got %d: %s", stage, w.Code, w.Body.String())
		}
	}

	// 4. 进度聚合到100
	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/orders/"+orderID+"/progress", nil, token)
	progress := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if progress["overall_progress"].(float64) != 100 {
		t.Fatalf("expected overall progress 100, got %v", progress["overall_progress"])
	}

	// 5. 标记可开票并入队开票
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/mark-ready", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("mark-ready: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/queue-invoice", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("queue-invoice: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	entryID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/orders/"+orderID+"/queue-status", nil, token)
	status := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if status["pending_count"].(float64) != 1 {
		t.Fatalf("expected 1 pending entry, got %v", status["pending_count"])
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/invoice-queue/"+entryID+"/process", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("process entry: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var order entity.Order
	env.DB.First(&order, "id = ?", orderID)
	if order.FinancialStage != entity.FinancialStageInvoiced {
		t.Fatalf("expected invoiced, got %s", order.FinancialStage)
	}
	if order.ReadyToInvoice {
		t.Fatal("expected ready flag cleared after invoicing")
	}

	// 6. 运输：报价→批准→预订→发运→妥投
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/shipping-quotes",
		map[string]interface{}{"carrier": "SEKO", "cost": 380.0, "transit_days": 5}, token)
	quoteID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	for _, action := range []string{"approve", "book"} {
		w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/shipping-quotes/"+quoteID+"/actions",
			map[string]interface{}{"action": action}, token)
		if w.Code != http.StatusOK {
			t.Fatalf("action %s: expected 200, got %d: %s", action, w.Code, w.Body.String())
		}
	}
	for _, next := range []string{entity.QuoteStatusShipped, entity.QuoteStatusDelivered} {
		w = testutil.DoRequest(env.Router, http.MethodPut, "/api/v1/shipping-quotes/"+quoteID+"/shipment-status",
			map[string]interface{}{"new_status": next}, token)
		if w.Code != http.StatusOK {
			t.Fatalf("shipment to %s: expected 200, got %d: %s", next, w.Code, w.Body.String())
		}
	}

	// 7. 妥投后财务闭环
	env.DB.First(&order, "id = ?", orderID)
	if order.FinancialStage != entity.FinancialStageCompleted {
		t.Fatalf("expected completed after delivery, got %s", order.FinancialStage)
	}

	// 8. 汇总视图：无在途运单
	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/orders/"+orderID+"/summary", nil, token)
	summary := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if summary["undelivered_quotes"].(float64) != 0 {
		t.Fatalf("expected 0 undelivered quotes, got %v", summary["undelivered_quotes"])
	}
}
