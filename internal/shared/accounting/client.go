package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// Client — 外部财务系统API客户端
// 只负责发票创建的出站调用；调用失败不阻塞本地开票，由上层记录SyncLog
// =============================================================================

// Client 财务系统客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建财务系统客户端实例
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// InvoiceLine 发票行项
type InvoiceLine struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// CreateInvoiceRequest 创建发票请求
type CreateInvoiceRequest struct {
	InvoiceNo   string        `json:"invoice_no"`
	OrderNo     string        `json:"order_no"`
	CustomerID  string        `json:"customer_id"`
	TotalAmount float64       `json:"total_amount"`
	Currency    string        `json:"currency"`
	DueDate     string        `json:"due_date,omitempty"` // YYYY-MM-DD
	Lines       []InvoiceLine `json:"lines,omitempty"`
}

// CreateInvoiceResponse 创建发票响应
type CreateInvoiceResponse struct {
	ExternalInvoiceID string `json:"external_invoice_id"`
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateInvoice 在外部财务系统创建发票
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化发票请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/api/v1/invoices", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("创建发票请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("调用财务系统失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取财务系统响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("财务系统返回错误: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("解析财务系统响应失败: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("财务系统返回错误: code=%d message=%s", apiResp.Code, apiResp.Message)
	}

	var result CreateInvoiceResponse
	if err := json.Unmarshal(apiResp.Data, &result); err != nil {
		return nil, fmt.Errorf("解析发票响应失败: %w", err)
	}
	return &result, nil
}
