package service

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

var (
	marketSymbolRegex = regexp.MustCompile(`^[A-Za-z0-9^=.\-]{1,15}(/[A-Za-z]{3})?$`)

	// 禁止访问内部网络
	blacklistHosts = []string{
		"localhost", "127.", "0.0.0.0", "::1",
		"192.168.", "10.", "172.16.", "169.254.",
	}
)

// Validator 提供输入验证功能
type Validator struct {
	// AllowPrivateHosts 允许访问内部网络地址（测试或内网部署时使用）
	AllowPrivateHosts bool
}

// NewValidator 创建新的验证器实例
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSpecs 在运行开始时验证数据源配置。
// ID为空或重复时返回错误；单个数据源的目标不合法时记录在invalid中，不参与调度。
func (v *Validator) ValidateSpecs(specs []model.SourceSpec) (valid []model.SourceSpec, invalid map[string]error, err error) {
	invalid = make(map[string]error)
	seen := make(map[string]struct{}, len(specs))

	for i, spec := range specs {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			return nil, nil, fmt.Errorf("第%d个数据源缺少id", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, nil, fmt.Errorf("数据源id重复: %s", id)
		}
		seen[id] = struct{}{}

		if specErr := v.ValidateSpec(spec); specErr != nil {
			invalid[spec.ID] = model.Permanent(specErr)
			continue
		}
		valid = append(valid, spec)
	}
	return valid, invalid, nil
}

// ValidateSpec 按数据源类型检查目标格式
func (v *Validator) ValidateSpec(spec model.SourceSpec) error {
	if !spec.Kind.Valid() {
		return fmt.Errorf("数据源%s的类型无效: %q", spec.ID, spec.Kind)
	}
	if spec.Limit < 0 {
		return fmt.Errorf("数据源%s的limit不能为负数", spec.ID)
	}
	target := strings.TrimSpace(spec.Target)
	if target == "" {
		return fmt.Errorf("数据源%s缺少target", spec.ID)
	}

	switch spec.Kind {
	case model.KindNews:
		return v.ValidateURL(target)
	case model.KindWeather:
		_, _, err := ParseCoordinates(target)
		return err
	case model.KindMarket:
		if !marketSymbolRegex.MatchString(target) {
			return fmt.Errorf("无效的行情代码: %s", target)
		}
	}
	return nil
}

// ValidateURL 验证RSS源URL合法性
func (v *Validator) ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("URL不能为空")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("无效的URL格式: %s", raw)
	}

	// 限制协议类型
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("只允许HTTP/HTTPS协议: %s", raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("URL缺少主机名: %s", raw)
	}

	if v.AllowPrivateHosts {
		return nil
	}
	for _, banned := range blacklistHosts {
		if host == banned || strings.HasPrefix(host, banned) {
			return fmt.Errorf("禁止访问内部网络地址: %s", host)
		}
	}
	return nil
}

// ValidateFilePath 验证OPML文件路径
func (v *Validator) ValidateFilePath(filePath string) error {
	if strings.TrimSpace(filePath) == "" {
		return errors.New("文件路径不能为空")
	}

	cleanPath := filepath.Clean(filePath)

	// 检查文件扩展名
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".opml") {
		return fmt.Errorf("只允许.OPML文件格式: %s", cleanPath)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("文件访问失败: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("路径指向目录而非文件: %s", cleanPath)
	}

	// 验证文件大小合理性（最大10MB限制）
	if info.Size() > 10*1024*1024 {
		return fmt.Errorf("文件过大(>10MB): %s", cleanPath)
	}
	return nil
}

// ParseCoordinates 解析"纬度,经度"格式的坐标
func ParseCoordinates(target string) (lat, lon float64, err error) {
	parts := strings.Split(target, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("坐标格式应为\"纬度,经度\": %s", target)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("无效的纬度: %s", parts[0])
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("无效的经度: %s", parts[1])
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("坐标超出范围: %s", target)
	}
	return lat, lon, nil
}
