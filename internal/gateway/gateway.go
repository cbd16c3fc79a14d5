package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/fact-gate/fact-gate/internal/cache"
	"github.com/fact-gate/fact-gate/internal/history"
	"github.com/fact-gate/fact-gate/internal/i18n"
	"github.com/fact-gate/fact-gate/internal/logging"
	"github.com/fact-gate/fact-gate/internal/server"
)

// lane 是请求拦截的处理车道，按序匹配，互不重叠。
type lane string

const (
	lanePredict     lane = "predict"
	laneStatic      lane = "static"
	lanePassthrough lane = "passthrough"
)

// HistoryRecorder 记录分类车道的成功响应；写失败不阻塞响应下发。
type HistoryRecorder interface {
	Add(ctx context.Context, text string, prediction int, confidence float64) (*history.Record, error)
}

// Options 聚合 Gateway 的全部依赖与行为参数。
type Options struct {
	Client          *http.Client
	Logger          *logrus.Logger
	Store           cache.Store
	History         HistoryRecorder // 可选
	Locales         *i18n.Bundle    // 可选，离线页文案
	Upstream        *url.URL
	StaticPartition string
	PredictPaths    []string
	PredictTimeout  time.Duration
}

// Gateway orchestrate 三条车道：分类端点的限时代理、静态 GET 的
// network-first 缓存策略、以及其余请求的透明转发。
type Gateway struct {
	client          *http.Client
	logger          *logrus.Logger
	store           cache.Store
	history         HistoryRecorder
	locales         *i18n.Bundle
	upstream        *url.URL
	staticPartition string
	predictPaths    map[string]struct{}
	predictTimeout  time.Duration
	now             func() time.Time
}

// New 构造 Gateway；Client/Logger/Store/Upstream 为必填。
func New(opts Options) (*Gateway, error) {
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Upstream == nil {
		return nil, errors.New("upstream url is required")
	}
	if opts.PredictTimeout <= 0 {
		opts.PredictTimeout = 10 * time.Second
	}
	if opts.Locales == nil {
		// 未提供语言包时退回内置英文，离线页渲染永远有词条可用。
		bundle, err := i18n.Load("", "")
		if err != nil {
			return nil, fmt.Errorf("load builtin locales: %w", err)
		}
		opts.Locales = bundle
	}

	paths := make(map[string]struct{}, len(opts.PredictPaths))
	for _, p := range opts.PredictPaths {
		paths[p] = struct{}{}
	}

	return &Gateway{
		client:          opts.Client,
		logger:          opts.Logger,
		store:           opts.Store,
		history:         opts.History,
		locales:         opts.Locales,
		upstream:        opts.Upstream,
		staticPartition: opts.StaticPartition,
		predictPaths:    paths,
		predictTimeout:  opts.PredictTimeout,
		now:             time.Now,
	}, nil
}

// Handle 实现 server.GatewayHandler：按序匹配车道后分发。
func (g *Gateway) Handle(c fiber.Ctx) error {
	switch g.classifyLane(c.Method(), requestPath(c)) {
	case lanePredict:
		return g.handlePredict(c)
	case laneStatic:
		return g.handleStatic(c)
	default:
		return g.handlePassthrough(c)
	}
}

// classifyLane 实现两段式匹配：先分类端点 POST，再泛化 GET，其余透传。
func (g *Gateway) classifyLane(method, reqPath string) lane {
	if method == http.MethodPost {
		if _, ok := g.predictPaths[reqPath]; ok {
			return lanePredict
		}
	}
	if method == http.MethodGet {
		return laneStatic
	}
	return lanePassthrough
}

// requestContext 提取请求上下文，Fiber 在极端情况下可能返回 nil。
func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func requestPath(c fiber.Ctx) string {
	uri := c.Request().URI()
	if uri == nil {
		return "/"
	}
	raw := string(uri.Path())
	if raw == "" {
		raw = "/"
	}
	return path.Clean("/" + raw)
}

// buildUpstreamRequest 构造转发请求：透传头部（去掉 hop-by-hop），
// 补全 X-Forwarded-* 与 Host。
func (g *Gateway) buildUpstreamRequest(c fiber.Ctx, ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	uri := c.Request().URI()
	relative := &url.URL{Path: requestPath(c)}
	if query := uri.QueryString(); len(query) > 0 {
		relative.RawQuery = string(query)
	}
	target := g.upstream.ResolveReference(relative)

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = target.Host
	req.Header.Set("Host", target.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())

	return req, nil
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

// handlePassthrough 把不属于前两条车道的请求原样转发，不缓存不改写。
func (g *Gateway) handlePassthrough(c fiber.Ctx) error {
	started := time.Now()
	ctx := requestContext(c)

	req, err := g.buildUpstreamRequest(c, ctx, c.Method(), bytesReader(c.Body()))
	if err != nil {
		return g.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logResult(lanePassthrough, c, 0, false, started, err)
		return g.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	g.setGatewayHeaders(c, false)
	c.Status(resp.StatusCode)

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	g.logResult(lanePassthrough, c, resp.StatusCode, false, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "proxy stream failed")
	}
	return nil
}

func (g *Gateway) setGatewayHeaders(c fiber.Ctx, cacheHit bool) {
	c.Set("X-Fact-Gate-Upstream", g.upstream.String())
	if cacheHit {
		c.Set("X-Fact-Gate-Cache-Hit", "true")
	} else {
		c.Set("X-Fact-Gate-Cache-Hit", "false")
	}
	if reqID := server.RequestID(c); reqID != "" {
		c.Set("X-Request-ID", reqID)
	}
}

func (g *Gateway) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (g *Gateway) logResult(l lane, c fiber.Ctx, status int, cacheHit bool, started time.Time, err error) {
	fields := logging.LaneFields(string(l), c.Method(), requestPath(c), cacheHit)
	fields["action"] = "gateway"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if reqID := server.RequestID(c); reqID != "" {
		fields["request_id"] = reqID
	}
	if err != nil {
		fields["error"] = err.Error()
		g.logger.WithFields(fields).Error("gateway_failed")
		return
	}
	g.logger.WithFields(fields).Info("gateway_complete")
}
