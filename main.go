package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fact-gate/fact-gate/internal/cache"
	"github.com/fact-gate/fact-gate/internal/config"
	"github.com/fact-gate/fact-gate/internal/extract"
	"github.com/fact-gate/fact-gate/internal/gateway"
	"github.com/fact-gate/fact-gate/internal/history"
	"github.com/fact-gate/fact-gate/internal/i18n"
	"github.com/fact-gate/fact-gate/internal/lifecycle"
	"github.com/fact-gate/fact-gate/internal/logging"
	"github.com/fact-gate/fact-gate/internal/server"
	"github.com/fact-gate/fact-gate/internal/server/routes"
	"github.com/fact-gate/fact-gate/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// extractTimeout 限制正文抽取对外部站点的等待时间，独立于上游分类超时。
const extractTimeout = 15 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["upstream"] = cfg.Global.Upstream
		fields["static_assets"] = len(cfg.Global.StaticAssets)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	upstream, err := url.Parse(cfg.Global.Upstream)
	if err != nil {
		fmt.Fprintf(stdErr, "解析上游地址失败: %v\n", err)
		return 1
	}

	// 启动遵循"配置 → 缓存 → 预缓存安装 → 分区清理 → Fiber server"顺序：
	// 安装失败意味着本版本不可用，进程直接退出而不是带病上线。
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	httpClient := server.NewUpstreamClient(cfg)

	installer := lifecycle.NewInstaller(httpClient, store, logger, upstream)
	if err := installer.Install(context.Background(),
		cfg.Global.StaticPartition(), cfg.Global.APIPartition(), cfg.Global.StaticAssets); err != nil {
		fmt.Fprintf(stdErr, "预缓存安装失败: %v\n", err)
		return 1
	}

	if err := lifecycle.Activate(context.Background(), store, logger, cfg.Global.CurrentPartitions()); err != nil {
		fmt.Fprintf(stdErr, "分区清理失败: %v\n", err)
		return 1
	}

	hist, err := history.Open(cfg.Global.HistoryDBPath, cfg.Global.HistoryLimit)
	if err != nil {
		fmt.Fprintf(stdErr, "打开历史库失败: %v\n", err)
		return 1
	}
	defer hist.Close()

	locales, err := i18n.Load(cfg.Global.LocalesPath, cfg.Global.DefaultLocale)
	if err != nil {
		fmt.Fprintf(stdErr, "加载语言包失败: %v\n", err)
		return 1
	}

	gw, err := gateway.New(gateway.Options{
		Client:          httpClient,
		Logger:          logger,
		Store:           store,
		History:         hist,
		Locales:         locales,
		Upstream:        upstream,
		StaticPartition: cfg.Global.StaticPartition(),
		PredictPaths:    cfg.Global.PredictPaths,
		PredictTimeout:  cfg.Global.PredictTimeout.DurationValue(),
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建网关失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["upstream"] = cfg.Global.Upstream
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_version"] = cfg.Global.CacheVersion
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, gw, store, hist, locales, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("fact-gate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 FACT_GATE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("FACT_GATE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, gw *gateway.Gateway, store cache.Store, hist *history.Store, locales *i18n.Bundle, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Gateway:    gw,
		ListenPort: port,
	})
	if err != nil {
		return err
	}

	routes.Register(app, routes.Options{
		Logger:         logger,
		Store:          store,
		History:        hist,
		Locales:        locales,
		Sync:           lifecycle.NopSyncHook{},
		Notifier:       lifecycle.NewLogNotifier(logger),
		Extractor:      extract.New(&http.Client{Timeout: extractTimeout}, logger),
		KeepPartitions: cfg.Global.CurrentPartitions(),
	})

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
