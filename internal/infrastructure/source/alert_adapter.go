package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

// DefaultAlertSearchURL 默认的话题搜索RSS地址
const DefaultAlertSearchURL = "https://news.google.com/rss/search?hl=en-US&gl=US&ceid=US:en"

// AlertAdapter 按话题搜索新闻，target为搜索关键词
type AlertAdapter struct {
	news      *NewsAdapter
	searchURL string
}

// NewAlertAdapter 创建话题提醒适配器，searchURL为空时使用默认地址
func NewAlertAdapter(getter *HTTPGetter, searchURL string) *AlertAdapter {
	if searchURL == "" {
		searchURL = DefaultAlertSearchURL
	}
	return &AlertAdapter{news: NewNewsAdapter(getter), searchURL: searchURL}
}

// Fetch 搜索话题，只返回constraints.Since之后的条目
func (a *AlertAdapter) Fetch(ctx context.Context, target string, constraints model.FetchConstraints) ([]model.RawItem, error) {
	topic := strings.TrimSpace(target)
	if topic == "" {
		return nil, errEmptyTarget
	}

	searchURL, err := a.buildURL(topic)
	if err != nil {
		return nil, err
	}
	return a.news.fetchFeed(ctx, searchURL, constraints)
}

func (a *AlertAdapter) buildURL(topic string) (string, error) {
	u, err := url.Parse(a.searchURL)
	if err != nil {
		return "", model.Permanent(fmt.Errorf("无效的搜索地址: %w", err))
	}
	q := u.Query()
	q.Set("q", topic)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
