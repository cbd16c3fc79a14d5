package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}
	if g.PredictTimeout.DurationValue() <= 0 {
		return newFieldError("PredictTimeout", "必须大于 0")
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("Upstream: %w", err)
	}
	if err := validateVersionTag(g.CacheVersion); err != nil {
		return fmt.Errorf("CacheVersion: %w", err)
	}
	for _, p := range g.PredictPaths {
		if err := validateAssetPath(p); err != nil {
			return fmt.Errorf("PredictPaths[%s]: %w", p, err)
		}
	}
	if len(g.StaticAssets) == 0 {
		return newFieldError("StaticAssets", "至少需要一个预缓存资源")
	}
	seen := map[string]struct{}{}
	for _, asset := range g.StaticAssets {
		if err := validateAssetPath(asset); err != nil {
			return fmt.Errorf("StaticAssets[%s]: %w", asset, err)
		}
		if _, dup := seen[asset]; dup {
			return newFieldError("StaticAssets", "重复条目: "+asset)
		}
		seen[asset] = struct{}{}
	}
	if g.HistoryLimit < 0 {
		return newFieldError("HistoryLimit", "不能为负数")
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}

func validateAssetPath(raw string) error {
	if raw == "" {
		return errors.New("不能为空")
	}
	if !strings.HasPrefix(raw, "/") {
		return errors.New("必须以 / 开头")
	}
	if strings.Contains(raw, "..") {
		return errors.New("不允许包含 ..")
	}
	return nil
}

// validateVersionTag 保证分区名安全落盘，版本号只允许字母数字与 . - _。
func validateVersionTag(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("不能为空")
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_':
		default:
			return fmt.Errorf("包含非法字符: %q", r)
		}
	}
	return nil
}
