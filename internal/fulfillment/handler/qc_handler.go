package handler

import (
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/gin-gonic/gin"
)

// QCHandler 质检处理器
type QCHandler struct {
	qcSvc *service.QCService
}

func NewQCHandler(qcSvc *service.QCService) *QCHandler {
	return &QCHandler{qcSvc: qcSvc}
}

// RecordInspection 记录检验
// POST /api/v1/production-items/:id/inspections
func (h *QCHandler) RecordInspection(c *gin.Context) {
	var req service.RecordInspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	inspection, err := h.qcSvc.RecordInspection(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, inspection)
}

// ListByItem 查询生产项的检验记录
// GET /api/v1/production-items/:id/inspections
func (h *QCHandler) ListByItem(c *gin.Context) {
	inspections, err := h.qcSvc.ListByItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "查询质检记录失败")
		return
	}
	Success(c, inspections)
}

// Get 获取检验详情
// GET /api/v1/inspections/:id
func (h *QCHandler) Get(c *gin.Context) {
	inspection, err := h.qcSvc.GetInspection(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, inspection)
}

// List 查询检验列表
// GET /api/v1/inspections
func (h *QCHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"order_id":        c.Query("order_id"),
		"item_id":         c.Query("item_id"),
		"inspection_type": c.Query("inspection_type"),
	}

	inspections, total, err := h.qcSvc.ListInspections(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询质检记录失败")
		return
	}
	Success(c, ListResponse{
		Items: inspections,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: TotalPages(total, pageSize),
		},
	})
}

// AppendCorrectiveAction 追加纠正措施
// POST /api/v1/inspections/:id/corrective-action
func (h *QCHandler) AppendCorrectiveAction(c *gin.Context) {
	var req service.AppendCorrectiveActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	inspection, err := h.qcSvc.AppendCorrectiveAction(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, inspection)
}

// UploadPhoto 上传质检照片
// POST /api/v1/inspections/:id/photos
func (h *QCHandler) UploadPhoto(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "缺少上传文件")
		return
	}

	src, err := file.Open()
	if err != nil {
		InternalError(c, "读取上传文件失败")
		return
	}
	defer src.Close()

	inspection, err := h.qcSvc.AttachPhoto(c.Request.Context(), c.Param("id"),
		src, file.Filename, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, inspection)
}
