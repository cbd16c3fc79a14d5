package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GatewayHandler describes the component that handles every intercepted
// request (lane dispatch lives behind it). It allows injecting fake handlers
// during tests.
type GatewayHandler interface {
	Handle(fiber.Ctx) error
}

// GatewayHandlerFunc adapts a function to the GatewayHandler interface.
type GatewayHandlerFunc func(fiber.Ctx) error

// Handle makes GatewayHandlerFunc satisfy GatewayHandler.
func (f GatewayHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Gateway    GatewayHandler
	ListenPort int
}

const contextKeyRequestID = "_factgate_request_id"

// NewApp builds a Fiber application with request-ID middleware and the
// catch-all route that feeds every non-diagnostics request into the gateway.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("gateway handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if IsDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Gateway.Handle(c)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID 并回写响应头，便于日志关联。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// IsDiagnosticsPath 判断路径是否属于 /-/ 诊断与控制面，这些路径不进入网关车道。
func IsDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
