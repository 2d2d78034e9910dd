package handler

import (
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/gin-gonic/gin"
)

// ProductionHandler 生产工序处理器
type ProductionHandler struct {
	productionSvc *service.ProductionService
}

func NewProductionHandler(productionSvc *service.ProductionService) *ProductionHandler {
	return &ProductionHandler{productionSvc: productionSvc}
}

// CreateItem 创建生产项
// POST /api/v1/orders/:id/items
func (h *ProductionHandler) CreateItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	item, err := h.productionSvc.CreateItem(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, item)
}

// ListItems 查询订单下的生产项
// GET /api/v1/orders/:id/items
func (h *ProductionHandler) ListItems(c *gin.Context) {
	items, err := h.productionSvc.ListItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "查询生产项失败")
		return
	}
	Success(c, items)
}

// GetItem 获取生产项详情
// GET /api/v1/production-items/:id
func (h *ProductionHandler) GetItem(c *gin.Context) {
	item, err := h.productionSvc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

// AdvanceStage 推进工序
// POST /api/v1/production-items/:id/advance
func (h *ProductionHandler) AdvanceStage(c *gin.Context) {
	var req service.AdvanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	item, err := h.productionSvc.AdvanceStage(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

// UpdateProgress 更新工序内进度
// PUT /api/v1/production-items/:id/progress
func (h *ProductionHandler) UpdateProgress(c *gin.Context) {
	var req service.UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	item, err := h.productionSvc.UpdateProgress(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}
