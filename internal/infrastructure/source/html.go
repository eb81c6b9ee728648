package source

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

// StripHTML 去除HTML标签，只保留纯文本
func StripHTML(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger.Warn("解析HTML失败，返回原始内容", "error", err)
		return html
	}

	// 将连续的空白字符替换为单个空格
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// truncate 按字符截断，用于条目正文
func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if maxRunes <= 0 || len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
