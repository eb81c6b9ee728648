package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

// 各类型分区的标题
var sectionTitles = map[model.SourceKind]string{
	model.KindAlert:   "话题提醒",
	model.KindNews:    "新闻",
	model.KindMarket:  "行情",
	model.KindWeather: "天气",
}

// SectionTitle 返回分区标题，未知类型使用类型名
func SectionTitle(kind model.SourceKind) string {
	if title, ok := sectionTitles[kind]; ok {
		return title
	}
	return string(kind)
}

// DigestText 将摘要转换为纯文本，作为摘要服务的输入以及降级时的原文
func DigestText(digest *model.Digest) string {
	if digest == nil {
		return ""
	}

	var b strings.Builder
	for _, section := range digest.Sections {
		fmt.Fprintf(&b, "【%s】\n", SectionTitle(section.Kind))
		for _, item := range section.Items {
			b.WriteString("- ")
			b.WriteString(oneLine(item.Title))
			if body := oneLine(item.Body); body != "" {
				b.WriteString(": ")
				b.WriteString(body)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Markdown 生成交付用的Markdown文档
func Markdown(briefing *model.Briefing) model.Document {
	generated := briefing.FinishedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	date := generated.Format("2006-01-02")

	title := fmt.Sprintf("每日简报 (%s)", date)
	if briefing.Profile != "" {
		title = fmt.Sprintf("每日简报 - %s (%s)", briefing.Profile, date)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	digest := briefing.Digest
	if digest == nil {
		digest = &model.Digest{}
	}
	fmt.Fprintf(&b, "本简报包含%d个数据源的%d条内容", len(digest.ContributingSources), digest.ItemCount())
	if briefing.Degraded {
		b.WriteString("（摘要服务不可用，以下为原始内容）")
	}
	b.WriteString("。\n\n")

	if briefing.Summary != "" {
		b.WriteString("## 摘要\n\n")
		b.WriteString(strings.TrimSpace(briefing.Summary))
		b.WriteString("\n\n")
	}

	for _, section := range digest.Sections {
		fmt.Fprintf(&b, "## %s (%d条)\n\n", SectionTitle(section.Kind), len(section.Items))
		b.WriteString("| 标题 | 内容 | 来源 | 时间 | 链接 |\n")
		b.WriteString("|------|------|------|------|------|\n")
		for _, item := range section.Items {
			link := ""
			if item.Link != "" {
				link = fmt.Sprintf("[链接](%s)", item.Link)
			}
			stamp := ""
			if !item.Timestamp.IsZero() {
				stamp = item.Timestamp.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				cell(item.Title), cell(item.Body), cell(item.SourceID), stamp, link)
		}
		b.WriteString("\n")
	}

	if len(digest.Sections) == 0 {
		b.WriteString("没有新的内容。\n\n")
	}

	if len(digest.FailedSources) > 0 {
		b.WriteString("## 未能获取的数据源\n\n")
		for _, id := range digest.FailedSources {
			if reason := digest.FailureReasons[id]; reason != "" {
				fmt.Fprintf(&b, "- %s: %s\n", id, oneLine(reason))
			} else {
				fmt.Fprintf(&b, "- %s\n", id)
			}
		}
		b.WriteString("\n")
	}

	return model.Document{
		Title:       title,
		Body:        b.String(),
		FileName:    fmt.Sprintf("briefing-%s.md", date),
		GeneratedAt: generated,
	}
}

// cell 处理表格单元格，确保不会破坏表格格式
func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", "\\|")
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
