package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/ethan273/limn-systems/internal/fulfillment/service"
	"github.com/gin-gonic/gin"
)

func respondErrorRecorder(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-x/mark-ready", nil)
	RespondError(c, err)
	return w
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"guard", &service.GuardError{Reason: "订单没有生产项"}, http.StatusUnprocessableEntity},
		{"blocked", &service.StageBlockedError{ItemID: "item-x"}, http.StatusUnprocessableEntity},
		{"transition", &service.InvalidTransitionError{Action: "markReady", Current: "invoiced", Required: "in_production"}, http.StatusUnprocessableEntity},
		{"conflict", &service.ConflictError{Reason: "订单已标记为可开票"}, http.StatusConflict},
		{"not found", fmt.Errorf("查询订单失败: %w", repository.ErrNotFound), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := respondErrorRecorder(t, tc.err)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
}

// 未分类错误只记日志，响应里不能出现存储层细节
func TestRespondErrorMasksInternalDetail(t *testing.T) {
	inner := errors.New("pq: deadlock detected (SQLSTATE 40P01)")
	w := respondErrorRecorder(t, fmt.Errorf("更新订单失败: %w", inner))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if strings.Contains(body, "deadlock") || strings.Contains(body, "SQLSTATE") {
		t.Fatalf("expected store detail masked, got %s", body)
	}
	if !strings.Contains(body, "服务器内部错误") {
		t.Fatalf("expected generic message, got %s", body)
	}
}
