package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "10s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述网关的全部运行参数，所有请求车道共享同一份配置。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	Upstream        string   `mapstructure:"Upstream"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	PredictTimeout  Duration `mapstructure:"PredictTimeout"`
	PredictPaths    []string `mapstructure:"PredictPaths"`
	CacheVersion    string   `mapstructure:"CacheVersion"`
	StaticAssets    []string `mapstructure:"StaticAssets"`
	HistoryDBPath   string   `mapstructure:"HistoryDBPath"`
	HistoryLimit    int      `mapstructure:"HistoryLimit"`
	LocalesPath     string   `mapstructure:"LocalesPath"`
	DefaultLocale   string   `mapstructure:"DefaultLocale"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// StaticPartition 返回当前版本对应的静态资源缓存分区名。
func (g GlobalConfig) StaticPartition() string {
	return "static-" + g.CacheVersion
}

// APIPartition 返回当前版本对应的 API 缓存分区名。该分区目前只建不写，
// 保留给后续的响应缓存，同时让激活阶段的清理白名单保持完整。
func (g GlobalConfig) APIPartition() string {
	return "api-" + g.CacheVersion
}

// CurrentPartitions 返回激活阶段允许保留的分区白名单。
func (g GlobalConfig) CurrentPartitions() []string {
	return []string{g.StaticPartition(), g.APIPartition()}
}

// IsPredictPath 判断路径是否属于分类车道。
func (g GlobalConfig) IsPredictPath(path string) bool {
	for _, p := range g.PredictPaths {
		if p == path {
			return true
		}
	}
	return false
}
