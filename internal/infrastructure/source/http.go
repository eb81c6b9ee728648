package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

// 单个响应体的最大读取长度
const maxBodySize = 10 << 20

const userAgent = "AI-Briefing/1.0 (+https://github.com/wolfitem/ai-briefing)"

// HTTPGetter 所有适配器共用的HTTP客户端，负责状态码分类
type HTTPGetter struct {
	client *http.Client
}

// NewHTTPGetter 创建HTTP客户端，timeout为单次请求的上限
func NewHTTPGetter(timeout time.Duration) *HTTPGetter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGetter{client: &http.Client{Timeout: timeout}}
}

// Get 发送GET请求并读取响应体。
// 网络错误、408/425/429和5xx返回临时错误，其余4xx返回永久错误。
func (g *HTTPGetter) Get(ctx context.Context, url string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.Permanent(fmt.Errorf("创建请求失败: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, model.Transient(fmt.Errorf("请求失败: %w", err))
	}
	defer resp.Body.Close()

	if err := ClassifyStatus(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, model.Transient(fmt.Errorf("读取响应失败: %w", err))
	}
	if len(body) > maxBodySize {
		return nil, model.Permanent(fmt.Errorf("响应超过%dMB", maxBodySize>>20))
	}
	return body, nil
}

// ClassifyStatus 将HTTP状态码转换为错误分类，2xx返回nil
func ClassifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusRequestTimeout, status == http.StatusTooEarly, status == http.StatusTooManyRequests, status >= 500:
		return model.Transient(fmt.Errorf("HTTP状态码: %d", status))
	default:
		return model.Permanent(fmt.Errorf("HTTP状态码: %d", status))
	}
}

// errEmptyTarget 目标为空
var errEmptyTarget = model.Permanent(errors.New("数据源目标为空"))
