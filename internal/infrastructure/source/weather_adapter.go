package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/domain/service"
)

// DefaultWeatherAPIURL 默认的天气预报接口（open-meteo）
const DefaultWeatherAPIURL = "https://api.open-meteo.com/v1/forecast"

// WeatherAdapter 抓取每日天气预报，target为"纬度,经度"
type WeatherAdapter struct {
	http   *HTTPGetter
	apiURL string
}

// NewWeatherAdapter 创建天气适配器，apiURL为空时使用默认地址
func NewWeatherAdapter(getter *HTTPGetter, apiURL string) *WeatherAdapter {
	if apiURL == "" {
		apiURL = DefaultWeatherAPIURL
	}
	return &WeatherAdapter{http: getter, apiURL: apiURL}
}

type forecastResponse struct {
	Timezone string `json:"timezone"`
	Daily    struct {
		Time        []string   `json:"time"`
		WeatherCode []int      `json:"weathercode"`
		TempMax     []float64  `json:"temperature_2m_max"`
		TempMin     []float64  `json:"temperature_2m_min"`
		PrecipProb  []*float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

// Fetch 返回一条汇总了未来Days天预报的条目
func (a *WeatherAdapter) Fetch(ctx context.Context, target string, constraints model.FetchConstraints) ([]model.RawItem, error) {
	lat, lon, err := service.ParseCoordinates(target)
	if err != nil {
		return nil, model.Permanent(err)
	}
	days := constraints.Days
	if days <= 0 {
		days = 3
	}

	u, err := url.Parse(a.apiURL)
	if err != nil {
		return nil, model.Permanent(fmt.Errorf("无效的天气接口地址: %w", err))
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min,precipitation_probability_max")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(days))
	u.RawQuery = q.Encode()

	body, err := a.http.Get(ctx, u.String(), "application/json")
	if err != nil {
		return nil, err
	}

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.Permanent(fmt.Errorf("解析天气数据失败: %w", err))
	}

	daily := resp.Daily
	n := len(daily.Time)
	if len(daily.TempMax) < n || len(daily.TempMin) < n || len(daily.WeatherCode) < n {
		return nil, model.Permanent(fmt.Errorf("天气数据不完整"))
	}
	if n == 0 {
		return nil, nil
	}
	if n > days {
		n = days
	}

	lines := make([]string, 0, n)
	var first time.Time
	for i := 0; i < n; i++ {
		day, err := time.Parse("2006-01-02", daily.Time[i])
		if err != nil {
			return nil, model.Permanent(fmt.Errorf("无效的日期%q: %w", daily.Time[i], err))
		}
		if i == 0 {
			first = day
		}
		line := fmt.Sprintf("%s %s %.0f~%.0f°C", daily.Time[i], weatherDescription(daily.WeatherCode[i]), daily.TempMin[i], daily.TempMax[i])
		if i < len(daily.PrecipProb) && daily.PrecipProb[i] != nil {
			line += fmt.Sprintf(" 降水概率%.0f%%", *daily.PrecipProb[i])
		}
		lines = append(lines, line)
	}

	return []model.RawItem{{
		Title:     fmt.Sprintf("%s 天气预报 (%s)", daily.Time[0], target),
		Body:      strings.Join(lines, "；"),
		Timestamp: first,
	}}, nil
}

// weatherDescription WMO天气代码转换为中文描述
func weatherDescription(code int) string {
	switch {
	case code == 0:
		return "晴"
	case code <= 2:
		return "多云"
	case code == 3:
		return "阴"
	case code == 45 || code == 48:
		return "雾"
	case code >= 51 && code <= 57:
		return "毛毛雨"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "雨"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "雪"
	case code >= 95:
		return "雷暴"
	default:
		return fmt.Sprintf("天气代码%d", code)
	}
}
