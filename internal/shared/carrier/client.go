package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// =============================================================================
// Client — 承运商跟踪API客户端
// 查询运单的最新状态和事件列表，track动作只读不改状态
// =============================================================================

// Client 承运商客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建承运商客户端实例
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TrackingEvent 跟踪事件
type TrackingEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
}

// TrackingInfo 跟踪快照
type TrackingInfo struct {
	TrackingNumber string          `json:"tracking_number"`
	Status         string          `json:"status"`
	Location       string          `json:"location"`
	Events         []TrackingEvent `json:"events"`
}

// GetTrackingInfo 查询运单跟踪信息
func (c *Client) GetTrackingInfo(ctx context.Context, trackingNumber string) (*TrackingInfo, error) {
	endpoint := fmt.Sprintf("%s/api/v1/tracking/%s", c.baseURL, url.PathEscape(trackingNumber))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建跟踪请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用承运商接口失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取承运商响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("承运商返回错误: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var info TrackingInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("解析跟踪响应失败: %w", err)
	}
	if info.TrackingNumber == "" {
		info.TrackingNumber = trackingNumber
	}
	return &info, nil
}
