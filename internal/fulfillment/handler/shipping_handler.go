package handler

import (
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/gin-gonic/gin"
)

// ShippingHandler 运输报价处理器
type ShippingHandler struct {
	shippingSvc *service.ShippingService
}

func NewShippingHandler(shippingSvc *service.ShippingService) *ShippingHandler {
	return &ShippingHandler{shippingSvc: shippingSvc}
}

// Create 创建运输报价
// POST /api/v1/orders/:id/shipping-quotes
func (h *ShippingHandler) Create(c *gin.Context) {
	var req service.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	quote, err := h.shippingSvc.CreateQuote(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, quote)
}

// List 查询报价列表
// GET /api/v1/shipping-quotes
func (h *ShippingHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"order_id": c.Query("order_id"),
		"status":   c.Query("status"),
		"carrier":  c.Query("carrier"),
	}

	quotes, total, err := h.shippingSvc.ListQuotes(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询报价失败")
		return
	}
	Success(c, ListResponse{
		Items: quotes,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: TotalPages(total, pageSize),
		},
	})
}

// Get 获取报价详情（含操作日志）
// GET /api/v1/shipping-quotes/:id
func (h *ShippingHandler) Get(c *gin.Context) {
	quote, actions, err := h.shippingSvc.GetQuote(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{
		"quote":   quote,
		"actions": actions,
	})
}

// Submit 补充报价明细
// PUT /api/v1/shipping-quotes/:id/quote
func (h *ShippingHandler) Submit(c *gin.Context) {
	var req service.SubmitQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	quote, err := h.shippingSvc.SubmitQuote(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, quote)
}

// PerformAction 执行报价动作（approve/reject/book/track）
// POST /api/v1/shipping-quotes/:id/actions
func (h *ShippingHandler) PerformAction(c *gin.Context) {
	var req service.QuoteActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	quote, tracking, err := h.shippingSvc.PerformAction(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	if tracking != nil {
		Success(c, gin.H{
			"quote":    quote,
			"tracking": tracking,
		})
		return
	}
	Success(c, quote)
}

// UpdateShipmentStatus 推进物流状态
// PUT /api/v1/shipping-quotes/:id/shipment-status
func (h *ShippingHandler) UpdateShipmentStatus(c *gin.Context) {
	var req service.UpdateShipmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	quote, err := h.shippingSvc.UpdateShipmentStatus(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, quote)
}
