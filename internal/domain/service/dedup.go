package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

// DedupKey 基于标准化标题和数据源类型生成去重键
func DedupKey(kind model.SourceKind, title string) string {
	hasher := sha256.New()
	hasher.Write([]byte(kind))
	hasher.Write([]byte{0})
	hasher.Write([]byte(normalizeTitle(title)))
	return hex.EncodeToString(hasher.Sum(nil))[:32]
}

// normalizeTitle 转小写、去除标点并合并空白
func normalizeTitle(title string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			return ' '
		default:
			return -1
		}
	}, title)
	return strings.Join(strings.Fields(mapped), " ")
}

// NormalizeItem 将适配器返回的原始条目转换为摘要条目
func NormalizeItem(spec model.SourceSpec, raw model.RawItem) model.DigestItem {
	title := strings.TrimSpace(raw.Title)
	return model.DigestItem{
		SourceID:  spec.ID,
		Kind:      spec.Kind,
		Title:     title,
		Body:      strings.TrimSpace(raw.Body),
		Link:      strings.TrimSpace(raw.Link),
		Timestamp: raw.Timestamp,
		DedupKey:  DedupKey(spec.Kind, title),
	}
}
