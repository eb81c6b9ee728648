package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

// DefaultMarketAPIURL 默认的行情接口（Yahoo chart）
const DefaultMarketAPIURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// MarketAdapter 抓取股票、加密货币或外汇报价，target为代码
type MarketAdapter struct {
	http   *HTTPGetter
	apiURL string
}

// NewMarketAdapter 创建行情适配器，apiURL为空时使用默认地址
func NewMarketAdapter(getter *HTTPGetter, apiURL string) *MarketAdapter {
	if apiURL == "" {
		apiURL = DefaultMarketAPIURL
	}
	return &MarketAdapter{http: getter, apiURL: strings.TrimRight(apiURL, "/")}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NormalizeSymbol 规范化行情代码，"EUR/USD"形式的外汇转换为"EURUSD=X"
func NormalizeSymbol(target string) string {
	symbol := strings.ToUpper(strings.TrimSpace(target))
	if base, quote, ok := strings.Cut(symbol, "/"); ok {
		return base + quote + "=X"
	}
	return symbol
}

// Fetch 返回一条报价条目
func (a *MarketAdapter) Fetch(ctx context.Context, target string, _ model.FetchConstraints) ([]model.RawItem, error) {
	symbol := NormalizeSymbol(target)
	if symbol == "" {
		return nil, errEmptyTarget
	}

	endpoint := fmt.Sprintf("%s/%s?range=5d&interval=1d", a.apiURL, url.PathEscape(symbol))
	body, err := a.http.Get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.Permanent(fmt.Errorf("解析行情数据失败: %w", err))
	}
	if resp.Chart.Error != nil {
		return nil, model.Permanent(fmt.Errorf("行情接口错误: %s %s", resp.Chart.Error.Code, resp.Chart.Error.Description))
	}
	if len(resp.Chart.Result) == 0 {
		return nil, model.Permanent(fmt.Errorf("未找到代码%s的行情", symbol))
	}

	meta := resp.Chart.Result[0].Meta
	title := fmt.Sprintf("%s %s %s", symbol, formatPrice(meta.RegularMarketPrice), meta.Currency)
	bodyText := fmt.Sprintf("最新价 %s", formatPrice(meta.RegularMarketPrice))
	if meta.PreviousClose > 0 {
		change := (meta.RegularMarketPrice - meta.PreviousClose) / meta.PreviousClose * 100
		title += fmt.Sprintf(" (%+.2f%%)", change)
		bodyText += fmt.Sprintf("，前收盘 %s，涨跌幅 %+.2f%%", formatPrice(meta.PreviousClose), change)
	}

	stamp := time.Now()
	if meta.RegularMarketTime > 0 {
		stamp = time.Unix(meta.RegularMarketTime, 0)
	}

	return []model.RawItem{{
		Title:     strings.TrimSpace(title),
		Body:      bodyText,
		Link:      "https://finance.yahoo.com/quote/" + url.PathEscape(symbol),
		Timestamp: stamp,
	}}, nil
}

func formatPrice(p float64) string {
	if p < 10 {
		return fmt.Sprintf("%.4f", p)
	}
	return fmt.Sprintf("%.2f", p)
}
