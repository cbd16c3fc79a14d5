package gateway

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/fact-gate/fact-gate/internal/cache"
)

// handleStatic 实现 network-first 策略：先走真实网络，成功则边下发边写缓存，
// 失败时退回任意分区的缓存命中，最后才考虑离线页或原样失败。
func (g *Gateway) handleStatic(c fiber.Ctx) error {
	started := time.Now()
	ctx := requestContext(c)
	reqPath := requestPath(c)
	rawQuery := append([]byte(nil), c.Request().URI().QueryString()...)
	key := cacheKey(reqPath, rawQuery)

	req, err := g.buildUpstreamRequest(c, ctx, http.MethodGet, http.NoBody)
	if err != nil {
		return g.serveFallback(c, key, started, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return g.serveFallback(c, key, started, err)
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	g.setGatewayHeaders(c, false)
	c.Status(resp.StatusCode)

	// write-through：只缓存 200，且边透传边落盘，写失败绝不截断正常响应。
	if resp.StatusCode == http.StatusOK {
		locator := cache.Locator{Partition: g.staticPartition, Path: key}
		opts := cache.PutOptions{ModTime: extractModTime(resp.Header)}
		reader := io.TeeReader(resp.Body, c.Response().BodyWriter())
		if _, err := g.store.Put(ctx, locator, reader, opts); err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"action":    "cache_write",
				"partition": g.staticPartition,
				"path":      key,
			}).Warn("cache_write_failed")
			// 落盘中断后把剩余字节补发给下游，响应体保持完整。
			if _, err := io.Copy(c.Response().BodyWriter(), resp.Body); err != nil {
				g.logResult(laneStatic, c, resp.StatusCode, false, started, err)
				return fiber.NewError(fiber.StatusBadGateway, "proxy stream failed")
			}
		}
		g.logResult(laneStatic, c, resp.StatusCode, false, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	g.logResult(laneStatic, c, resp.StatusCode, false, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "proxy stream failed")
	}
	return nil
}

// serveFallback 是网络失败后的降级链：缓存命中 → 导航请求的离线页 →
// 原样失败。
func (g *Gateway) serveFallback(c fiber.Ctx, key string, started time.Time, cause error) error {
	ctx := requestContext(c)

	cached, err := g.store.MatchAny(ctx, key, g.staticPartition)
	switch {
	case err == nil:
		return g.serveCached(c, cached, started)
	case errors.Is(err, cache.ErrNotFound):
		// miss, continue
	default:
		g.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_match",
			"path":   key,
		}).Warn("cache_match_failed")
	}

	if isNavigation(c) {
		g.logResult(laneStatic, c, fiber.StatusOK, false, started, nil)
		g.setGatewayHeaders(c, false)
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Status(fiber.StatusOK).SendString(g.offlinePage(preferredLanguage(c)))
	}

	// 无缓存且非导航：失败原样向下游暴露，不做静默兜底。
	g.logResult(laneStatic, c, 0, false, started, cause)
	return g.writeError(c, fiber.StatusBadGateway, "upstream_failed")
}

func (g *Gateway) serveCached(c fiber.Ctx, cached *cache.ReadResult, started time.Time) error {
	defer cached.Reader.Close()

	if contentType := inferContentType(stripQueryMarker(cached.Entry.Locator.Path)); contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	}
	if cached.Entry.SizeBytes > 0 {
		c.Response().Header.SetContentLength(int(cached.Entry.SizeBytes))
	}
	g.setGatewayHeaders(c, true)
	c.Status(fiber.StatusOK)

	_, err := io.Copy(c.Response().BodyWriter(), cached.Reader)
	g.logResult(laneStatic, c, fiber.StatusOK, true, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "read cache failed")
	}
	return nil
}

// cacheKey 把查询串哈希进缓存键，带不同参数的同一路径互不覆盖；
// 无查询串时保持裸路径，预缓存的资源照常命中。
func cacheKey(reqPath string, rawQuery []byte) string {
	if len(rawQuery) == 0 {
		return reqPath
	}
	sum := sha1.Sum(rawQuery)
	return fmt.Sprintf("%s/__qs/%s", reqPath, hex.EncodeToString(sum[:]))
}

func stripQueryMarker(p string) string {
	if idx := strings.Index(p, "/__qs/"); idx >= 0 {
		return p[:idx]
	}
	return p
}

// isNavigation 判断请求是否是整页导航：优先看 Sec-Fetch-Mode，
// 退而求其次看 Accept 是否要 HTML。
func isNavigation(c fiber.Ctx) bool {
	if c.Method() != http.MethodGet {
		return false
	}
	if mode := c.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(c.Get(fiber.HeaderAccept), "text/html")
}

// inferContentType 按扩展名推断缓存命中的内容类型，根路径视为页面。
func inferContentType(reqPath string) string {
	if reqPath == "/" || strings.HasSuffix(reqPath, "/") {
		return fiber.MIMETextHTMLCharsetUTF8
	}
	ext := filepath.Ext(reqPath)
	switch ext {
	case ".html":
		return fiber.MIMETextHTMLCharsetUTF8
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript"
	case ".json":
		return fiber.MIMEApplicationJSON
	case ".svg":
		return "image/svg+xml"
	case "":
		return fiber.MIMETextHTMLCharsetUTF8
	}
	return mime.TypeByExtension(ext)
}

func extractModTime(header http.Header) time.Time {
	if last := header.Get("Last-Modified"); last != "" {
		if parsed, err := http.ParseTime(last); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}
