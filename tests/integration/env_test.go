package integration

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/fact-gate/fact-gate/internal/cache"
	"github.com/fact-gate/fact-gate/internal/config"
	"github.com/fact-gate/fact-gate/internal/gateway"
	"github.com/fact-gate/fact-gate/internal/history"
	"github.com/fact-gate/fact-gate/internal/i18n"
	"github.com/fact-gate/fact-gate/internal/lifecycle"
	"github.com/fact-gate/fact-gate/internal/server"
	"github.com/fact-gate/fact-gate/internal/server/routes"
)

// testEnv 按生产启动顺序搭建完整服务：配置 → 缓存 → 安装 → 清理 → 路由。
type testEnv struct {
	app     *fiber.App
	cfg     *config.Config
	store   cache.Store
	history *history.Store
	client  *http.Client
	logger  *logrus.Logger
}

func newTestEnv(t *testing.T, upstreamURL string, mutate func(*config.GlobalConfig)) *testEnv {
	t.Helper()

	global := config.GlobalConfig{
		ListenPort:      8080,
		LogLevel:        "info",
		StoragePath:     t.TempDir(),
		Upstream:        upstreamURL,
		UpstreamTimeout: config.Duration(5 * time.Second),
		PredictTimeout:  config.Duration(2 * time.Second),
		PredictPaths:    []string{"/predict", "/predict_all"},
		CacheVersion:    "v3",
		StaticAssets:    []string{"/", "/static/style.css"},
		HistoryDBPath:   filepath.Join(t.TempDir(), "history.db"),
		HistoryLimit:    10,
		DefaultLocale:   "en",
	}
	if mutate != nil {
		mutate(&global)
	}
	cfg := &config.Config{Global: global}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}

	client := server.NewUpstreamClient(cfg)

	target, err := url.Parse(cfg.Global.Upstream)
	if err != nil {
		t.Fatalf("upstream url error: %v", err)
	}

	hist, err := history.Open(cfg.Global.HistoryDBPath, cfg.Global.HistoryLimit)
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	locales, err := i18n.Load("", cfg.Global.DefaultLocale)
	if err != nil {
		t.Fatalf("locales error: %v", err)
	}

	gw, err := gateway.New(gateway.Options{
		Client:          client,
		Logger:          logger,
		Store:           store,
		History:         hist,
		Locales:         locales,
		Upstream:        target,
		StaticPartition: cfg.Global.StaticPartition(),
		PredictPaths:    cfg.Global.PredictPaths,
		PredictTimeout:  cfg.Global.PredictTimeout.DurationValue(),
	})
	if err != nil {
		t.Fatalf("gateway error: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Gateway:    gw,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	routes.Register(app, routes.Options{
		Logger:         logger,
		Store:          store,
		History:        hist,
		Locales:        locales,
		Sync:           lifecycle.NopSyncHook{},
		Notifier:       lifecycle.NewLogNotifier(logger),
		KeepPartitions: cfg.Global.CurrentPartitions(),
	})

	return &testEnv{
		app:     app,
		cfg:     cfg,
		store:   store,
		history: hist,
		client:  client,
		logger:  logger,
	}
}

// install 执行预缓存安装 + 分区清理，模拟进程启动时的生命周期。
func (env *testEnv) install(t *testing.T) {
	t.Helper()

	if err := installOnly(env); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if err := lifecycle.Activate(context.Background(), env.store, env.logger, env.cfg.Global.CurrentPartitions()); err != nil {
		t.Fatalf("activate error: %v", err)
	}
}

// installOnly 只跑安装阶段，留给需要断言失败路径的测试使用。
func installOnly(env *testEnv) error {
	target, err := url.Parse(env.cfg.Global.Upstream)
	if err != nil {
		return err
	}

	installer := lifecycle.NewInstaller(env.client, env.store, env.logger, target)
	return installer.Install(context.Background(),
		env.cfg.Global.StaticPartition(), env.cfg.Global.APIPartition(), env.cfg.Global.StaticAssets)
}
