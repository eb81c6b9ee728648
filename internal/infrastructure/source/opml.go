package source

import (
	"fmt"

	"github.com/gilliek/go-opml/opml"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

// LoadOPML 解析OPML文件，每个带xmlUrl的outline成为一个新闻源，id依次为news-1、news-2……
func LoadOPML(opmlFilePath string, limit int) ([]model.SourceSpec, error) {
	logger.Info("开始解析OPML文件", "file", opmlFilePath)

	doc, err := opml.NewOPMLFromFile(opmlFilePath)
	if err != nil {
		return nil, fmt.Errorf("解析OPML文件失败: %w", err)
	}

	var specs []model.SourceSpec
	for _, outline := range doc.Outlines() {
		specs = appendOutline(specs, outline, limit)
	}

	logger.Info("OPML文件解析完成", "file", opmlFilePath, "sources_count", len(specs))
	return specs, nil
}

// appendOutline 递归提取outline中的订阅源
func appendOutline(specs []model.SourceSpec, outline opml.Outline, limit int) []model.SourceSpec {
	if outline.XMLURL != "" {
		name := outline.Title
		if name == "" {
			name = outline.Text
		}
		specs = append(specs, model.SourceSpec{
			ID:     fmt.Sprintf("news-%d", len(specs)+1),
			Kind:   model.KindNews,
			Target: outline.XMLURL,
			Name:   name,
			Limit:  limit,
		})
	}
	for _, child := range outline.Outlines {
		specs = appendOutline(specs, child, limit)
	}
	return specs
}
