package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

const defaultEndpoint = "https://api.deepseek.com/v1/chat/completions"

// 响应体最大读取长度
const maxResponseSize = 2 << 20

// DeepseekClient 实现service.Completer接口，调用OpenAI兼容的chat completions接口。
// 客户端本身不重试，重试和降级由摘要网关负责。
type DeepseekClient struct {
	config   model.SummarizationConfig
	endpoint string
	client   *http.Client
	calls    atomic.Int64
}

// NewDeepseekClient 创建新的Deepseek客户端
func NewDeepseekClient(config model.SummarizationConfig) (*DeepseekClient, error) {
	endpoint := config.APIUrl
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("无效的API端点: %s", endpoint)
	}
	if config.Model == "" {
		config.Model = "deepseek-chat"
	}

	// 设置安全的HTTP客户端配置，整体超时由调用方的context控制
	transport := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &DeepseekClient{
		config:   config,
		endpoint: endpoint,
		client:   &http.Client{Transport: transport},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete 在令牌预算内压缩文本。
// 429返回model.ErrRateLimited，其他非200状态返回*model.ServiceError。
func (c *DeepseekClient) Complete(ctx context.Context, text string, tokenBudget int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: text}},
		MaxTokens:   tokenBudget,
		Temperature: 0.3,
		TopP:        0.7,
	})
	if err != nil {
		return "", model.Permanent(fmt.Errorf("创建请求体失败: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", model.Permanent(fmt.Errorf("创建请求失败: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("User-Agent", "AI-Briefing-Client/1.0")

	start := time.Now()
	c.calls.Add(1)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", model.Transient(fmt.Errorf("发送请求失败: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", model.Transient(fmt.Errorf("读取响应失败: %w", err))
	}

	if err := classifyStatus(resp.StatusCode, data); err != nil {
		logger.Warn("摘要接口返回错误", "status", resp.StatusCode, "duration", time.Since(start), "preview", preview(data))
		return "", err
	}

	var response chatResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return "", model.Permanent(fmt.Errorf("解析响应失败: %w", err))
	}
	if response.Error != nil && response.Error.Message != "" {
		return "", &model.ServiceError{StatusCode: resp.StatusCode, Message: response.Error.Message}
	}
	if len(response.Choices) == 0 {
		return "", model.Permanent(errors.New("响应不包含有效内容"))
	}

	logger.Info("摘要接口调用成功",
		"duration", time.Since(start),
		"prompt_tokens", response.Usage.PromptTokens,
		"completion_tokens", response.Usage.CompletionTokens,
		"total_tokens", response.Usage.TotalTokens)
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// Calls 返回已发出的请求数
func (c *DeepseekClient) Calls() int64 {
	return c.calls.Load()
}

// classifyStatus 将HTTP状态码转换为错误分类
func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", model.ErrRateLimited, preview(body))
	default:
		return &model.ServiceError{StatusCode: status, Message: preview(body)}
	}
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return s
}
