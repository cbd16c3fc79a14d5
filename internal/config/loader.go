package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	// 历史库默认落在缓存目录下，分区枚举只认子目录，文件互不干扰。
	if strings.TrimSpace(cfg.Global.HistoryDBPath) == "" {
		cfg.Global.HistoryDBPath = filepath.Join(absStorage, "history.db")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("Upstream", "http://127.0.0.1:5000")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("PredictTimeout", "10s")
	v.SetDefault("PredictPaths", defaultPredictPaths())
	v.SetDefault("CacheVersion", "v3")
	v.SetDefault("StaticAssets", defaultStaticAssets())
	v.SetDefault("HistoryDBPath", "")
	v.SetDefault("HistoryLimit", 50)
	v.SetDefault("LocalesPath", "")
	v.SetDefault("DefaultLocale", "en")
}

// defaultPredictPaths 对应上游 Flask 服务暴露的两个分类端点。
func defaultPredictPaths() []string {
	return []string{"/predict", "/predict_all"}
}

// defaultStaticAssets 是安装阶段预缓存的页面资源清单，与上游站点保持一致。
func defaultStaticAssets() []string {
	return []string{
		"/",
		"/static/style.css",
		"/static/script.js",
		"/static/js/i18n.js",
		"/static/css/i18n.css",
		"/static/manifest.json",
		"/static/locales/en.json",
	}
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.PredictTimeout.DurationValue() == 0 {
		g.PredictTimeout = Duration(10 * time.Second)
	}
	if len(g.PredictPaths) == 0 {
		g.PredictPaths = defaultPredictPaths()
	}
	if strings.TrimSpace(g.CacheVersion) == "" {
		g.CacheVersion = "v3"
	}
	if len(g.StaticAssets) == 0 {
		g.StaticAssets = defaultStaticAssets()
	}
	if g.HistoryLimit == 0 {
		g.HistoryLimit = 50
	}
	if strings.TrimSpace(g.DefaultLocale) == "" {
		g.DefaultLocale = "en"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
