package source

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

// 条目正文的最大字符数
const maxBodyRunes = 500

// NewsAdapter 抓取RSS/Atom新闻源，target为订阅地址
type NewsAdapter struct {
	http *HTTPGetter
	now  func() time.Time
}

// NewNewsAdapter 创建新闻源适配器
func NewNewsAdapter(getter *HTTPGetter) *NewsAdapter {
	return &NewsAdapter{http: getter, now: time.Now}
}

// Fetch 抓取并解析订阅源，返回最新的MaxItems条
func (a *NewsAdapter) Fetch(ctx context.Context, target string, constraints model.FetchConstraints) ([]model.RawItem, error) {
	if target == "" {
		return nil, errEmptyTarget
	}
	return a.fetchFeed(ctx, target, constraints)
}

func (a *NewsAdapter) fetchFeed(ctx context.Context, url string, constraints model.FetchConstraints) ([]model.RawItem, error) {
	body, err := a.http.Get(ctx, url, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, model.Permanent(fmt.Errorf("解析Feed失败: %w", err))
	}

	items := feedItems(feed, constraints, a.now())
	logger.Debug("成功获取RSS源", "url", url, "feed_items", len(feed.Items), "items", len(items))
	return items, nil
}

// feedItems 转换订阅条目，过滤Since之前的条目并按时间倒序截取
func feedItems(feed *gofeed.Feed, constraints model.FetchConstraints, now time.Time) []model.RawItem {
	items := make([]model.RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Title == "" {
			continue
		}

		// 没有发布日期时，尝试使用更新日期或当前时间
		published := now
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}
		if !constraints.Since.IsZero() && published.Before(constraints.Since) {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		items = append(items, model.RawItem{
			Title:     StripHTML(item.Title),
			Body:      truncate(StripHTML(content), maxBodyRunes),
			Link:      item.Link,
			Timestamp: published,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	if constraints.MaxItems > 0 && len(items) > constraints.MaxItems {
		items = items[:constraints.MaxItems]
	}
	return items
}
