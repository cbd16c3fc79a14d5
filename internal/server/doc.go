// Package server hosts the Fiber HTTP service and the middleware chain that
// feeds intercepted requests into the gateway lanes. It bootstraps Fiber,
// attaches recover/request-ID middlewares, and exposes the shared upstream
// http.Client plus header-copy helpers that the gateway reuses. Control and
// diagnostics surfaces live under the /-/ prefix and are registered by the
// routes subpackage, so keep exports narrow and accept explicit dependencies.
package server
