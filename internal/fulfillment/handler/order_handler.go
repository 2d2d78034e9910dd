package handler

import (
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/gin-gonic/gin"
)

// OrderHandler 订单与财务阶段处理器
type OrderHandler struct {
	billingSvc  *service.BillingService
	progressSvc *service.ProgressService
}

func NewOrderHandler(billingSvc *service.BillingService, progressSvc *service.ProgressService) *OrderHandler {
	return &OrderHandler{
		billingSvc:  billingSvc,
		progressSvc: progressSvc,
	}
}

// Create 创建订单
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	order, err := h.billingSvc.CreateOrder(c.Request.Context(), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, order)
}

// List 查询订单列表
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"financial_stage":  c.Query("financial_stage"),
		"customer_id":      c.Query("customer_id"),
		"ready_to_invoice": c.Query("ready_to_invoice"),
	}

	orders, total, err := h.billingSvc.ListOrders(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询订单失败")
		return
	}
	Success(c, ListResponse{
		Items: orders,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: TotalPages(total, pageSize),
		},
	})
}

// Get 获取订单详情
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.billingSvc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, order)
}

// GetProgress 获取订单进度聚合
// GET /api/v1/orders/:id/progress
func (h *OrderHandler) GetProgress(c *gin.Context) {
	progress, err := h.progressSvc.GetOrderProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, progress)
}

// GetSummary 获取订单汇总视图
// GET /api/v1/orders/:id/summary
func (h *OrderHandler) GetSummary(c *gin.Context) {
	summary, err := h.progressSvc.GetOrderSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, summary)
}

// MarkReady 标记订单可开票
// POST /api/v1/orders/:id/mark-ready
func (h *OrderHandler) MarkReady(c *gin.Context) {
	order, err := h.billingSvc.MarkReady(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, order)
}

// UnmarkReady 取消可开票标记
// POST /api/v1/orders/:id/unmark-ready
func (h *OrderHandler) UnmarkReady(c *gin.Context) {
	order, err := h.billingSvc.UnmarkReady(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, order)
}

// QueueInvoice 将订单加入开票队列
// POST /api/v1/orders/:id/queue-invoice
func (h *OrderHandler) QueueInvoice(c *gin.Context) {
	entry, err := h.billingSvc.QueueInvoice(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, entry)
}

// BulkInvoice 批量开票
// POST /api/v1/orders/bulk-invoice
func (h *OrderHandler) BulkInvoice(c *gin.Context) {
	var req service.BulkQueueInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.billingSvc.BulkQueueInvoices(c.Request.Context(), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// Complete 订单财务闭环
// POST /api/v1/orders/:id/complete
func (h *OrderHandler) Complete(c *gin.Context) {
	order, err := h.billingSvc.CompleteOrder(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, order)
}

// GetQueueStatus 查询订单的开票排队状态
// GET /api/v1/orders/:id/queue-status
func (h *OrderHandler) GetQueueStatus(c *gin.Context) {
	status, err := h.billingSvc.GetQueueStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, status)
}

// ListQueue 查询开票队列
// GET /api/v1/invoice-queue
func (h *OrderHandler) ListQueue(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":    c.Query("status"),
		"entity_id": c.Query("entity_id"),
	}

	entries, total, err := h.billingSvc.ListQueue(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询开票队列失败")
		return
	}
	Success(c, ListResponse{
		Items: entries,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: TotalPages(total, pageSize),
		},
	})
}

// ProcessQueueEntry 处理队列条目（worker回调）
// POST /api/v1/invoice-queue/:id/process
func (h *OrderHandler) ProcessQueueEntry(c *gin.Context) {
	result, err := h.billingSvc.CompleteQueueEntry(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// ListInvoices 查询发票列表
// GET /api/v1/invoices
func (h *OrderHandler) ListInvoices(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"order_id":    c.Query("order_id"),
		"customer_id": c.Query("customer_id"),
		"status":      c.Query("status"),
	}

	invoices, total, err := h.billingSvc.ListInvoices(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询发票失败")
		return
	}
	Success(c, ListResponse{
		Items: invoices,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: TotalPages(total, pageSize),
		},
	})
}

// GetInvoice 获取发票详情
// GET /api/v1/invoices/:id
func (h *OrderHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.billingSvc.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, invoice)
}

// ListSyncLogs 查询同步日志
// GET /api/v1/sync-logs
func (h *OrderHandler) ListSyncLogs(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"sync_type":    c.Query("sync_type"),
		"status":       c.Query("status"),
		"reference_id": c.Query("reference_id"),
	}

	logs, total, err := h.billingSvc.ListSyncLogs(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询同步日志失败")
		return
	}
	Success(c, ListResponse{
		Items: logs,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: TotalPages(total, pageSize),
		},
	})
}
