package handler

import (
	"errors"
	"strconv"

	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 履约处理器集合
type Handlers struct {
	Order      *OrderHandler
	Production *ProductionHandler
	QC         *QCHandler
	Shipping   *ShippingHandler
}

// NewHandlers 创建履约处理器集合
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Order:      NewOrderHandler(services.Billing, services.Progress),
		Production: NewProductionHandler(services.Production),
		QC:         NewQCHandler(services.QC),
		Shipping:   NewShippingHandler(services.Shipping),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func Unprocessable(c *gin.Context, message string) {
	Error(c, 42200, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondError 按错误类型映射响应码：
// 前置条件/状态机错误 42200，冲突 40900，未找到 40400，其余 50000。
// 未分类错误只记日志，不把存储层细节透给调用方
func RespondError(c *gin.Context, err error) {
	var guardErr *service.GuardError
	var conflictErr *service.ConflictError
	var transitionErr *service.InvalidTransitionError
	var blockedErr *service.StageBlockedError

	switch {
	case errors.As(err, &guardErr):
		Unprocessable(c, guardErr.Error())
	case errors.As(err, &blockedErr):
		Unprocessable(c, blockedErr.Error())
	case errors.As(err, &transitionErr):
		Unprocessable(c, transitionErr.Error())
	case errors.As(err, &conflictErr):
		Conflict(c, conflictErr.Error())
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "记录不存在")
	default:
		zap.L().Error("请求处理失败",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		InternalError(c, "服务器内部错误")
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// TotalPages 计算总页数
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages
}
