package routes

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/fact-gate/fact-gate/internal/cache"
	"github.com/fact-gate/fact-gate/internal/extract"
	"github.com/fact-gate/fact-gate/internal/history"
	"github.com/fact-gate/fact-gate/internal/i18n"
	"github.com/fact-gate/fact-gate/internal/lifecycle"
	"github.com/fact-gate/fact-gate/internal/version"
)

// Options 汇总诊断与控制面路由依赖的所有组件，缺失的部分对应路由不注册。
type Options struct {
	Logger    *logrus.Logger
	Store     cache.Store
	History   *history.Store
	Locales   *i18n.Bundle
	Sync      lifecycle.SyncHook
	Notifier  lifecycle.Notifier
	Extractor *extract.Extractor

	// KeepPartitions 是当前允许保留的分区名单，控制面触发清理时沿用。
	KeepPartitions []string
}

// Register 在 /-/ 控制面下注册全部诊断与控制路由。
func Register(app *fiber.App, opts Options) {
	if app == nil || opts.Logger == nil {
		return
	}
	registerStatusRoute(app, opts)
	registerHistoryRoutes(app, opts)
	registerLocaleRoute(app, opts)
	registerControlRoute(app, opts)
	registerNotifyRoute(app, opts)
	registerExtractRoute(app, opts)
}

// registerStatusRoute 暴露 /-/status，供 SRE 查询版本与缓存分区。
func registerStatusRoute(app *fiber.App, opts Options) {
	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"version":         version.Full(),
			"keep_partitions": opts.KeepPartitions,
		}
		if opts.Store != nil {
			partitions, err := opts.Store.Partitions(c.Context())
			if err != nil {
				opts.Logger.WithError(err).Warn("枚举缓存分区失败")
			} else {
				payload["partitions"] = partitions
			}
		}
		if opts.Locales != nil {
			payload["languages"] = opts.Locales.Languages()
		}
		return c.JSON(payload)
	})
}

func registerHistoryRoutes(app *fiber.App, opts Options) {
	if opts.History == nil {
		return
	}

	app.Get("/-/history", func(c fiber.Ctx) error {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_limit"})
			}
			limit = parsed
		}

		records, err := opts.History.Recent(c.Context(), limit)
		if err != nil {
			opts.Logger.WithError(err).Warn("读取历史失败")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history_unavailable"})
		}
		return c.JSON(fiber.Map{"records": records})
	})

	app.Delete("/-/history", func(c fiber.Ctx) error {
		if err := opts.History.Clear(c.Context()); err != nil {
			opts.Logger.WithError(err).Warn("清空历史失败")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history_unavailable"})
		}
		return c.JSON(fiber.Map{"cleared": true})
	})
}

func registerLocaleRoute(app *fiber.App, opts Options) {
	if opts.Locales == nil {
		return
	}

	app.Get("/-/locales", func(c fiber.Ctx) error {
		languages := opts.Locales.Languages()
		payload := make([]fiber.Map, 0, len(languages))
		for _, lang := range languages {
			payload = append(payload, fiber.Map{
				"lang": lang,
				"rtl":  opts.Locales.IsRTL(lang),
			})
		}
		return c.JSON(fiber.Map{
			"default":   opts.Locales.DefaultLang(),
			"languages": payload,
		})
	})
}

// controlMessage 是控制面消息。SKIP_WAITING 立即重跑分区清理，
// SYNC 触发后台同步扩展点。
type controlMessage struct {
	Type string `json:"type"`
	Tag  string `json:"tag"`
}

func registerControlRoute(app *fiber.App, opts Options) {
	app.Post("/-/control", func(c fiber.Ctx) error {
		var msg controlMessage
		if err := c.Bind().Body(&msg); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}

		switch strings.ToUpper(strings.TrimSpace(msg.Type)) {
		case "SKIP_WAITING":
			if opts.Store == nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store_unavailable"})
			}
			if err := lifecycle.Activate(c.Context(), opts.Store, opts.Logger, opts.KeepPartitions); err != nil {
				opts.Logger.WithError(err).Warn("分区清理失败")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "activate_failed"})
			}
			return c.JSON(fiber.Map{"applied": "skip_waiting"})

		case "SYNC":
			hook := opts.Sync
			if hook == nil {
				hook = lifecycle.NopSyncHook{}
			}
			if err := hook.Sync(c.Context(), msg.Tag); err != nil {
				opts.Logger.WithError(err).Warn("后台同步失败")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sync_failed"})
			}
			return c.JSON(fiber.Map{"applied": "sync", "tag": msg.Tag})

		default:
			// 未知消息类型静默忽略，控制通道保持向前兼容。
			return c.JSON(fiber.Map{"applied": "none"})
		}
	})
}

// registerExtractRoute 暴露 /-/extract：抓取新闻链接并抽取正文段落，
// 供前端"粘贴链接"入口使用。
func registerExtractRoute(app *fiber.App, opts Options) {
	if opts.Extractor == nil {
		return
	}

	app.Post("/-/extract", func(c fiber.Ctx) error {
		var request struct {
			URL string `json:"url"`
		}
		if err := c.Bind().Body(&request); err != nil || strings.TrimSpace(request.URL) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}

		article, err := opts.Extractor.FromURL(c.Context(), request.URL)
		switch {
		case err == nil:
			return c.JSON(article)
		case errors.Is(err, extract.ErrNoParagraphs):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "no_paragraphs"})
		default:
			opts.Logger.WithError(err).Warn("正文抽取失败")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "extract_failed"})
		}
	})
}

func registerNotifyRoute(app *fiber.App, opts Options) {
	if opts.Notifier == nil {
		return
	}

	app.Post("/-/notify", func(c fiber.Ctx) error {
		var notification lifecycle.Notification
		if err := c.Bind().Body(&notification); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}
		if notification.Title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title_required"})
		}
		if err := opts.Notifier.Notify(c.Context(), notification); err != nil {
			opts.Logger.WithError(err).Warn("通知下发失败")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "notify_failed"})
		}
		return c.JSON(fiber.Map{"notified": true})
	})
}
