package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/fact-gate/fact-gate/internal/server"
)

// predictOutcome 是一次上游分类调用的完整结果，通过带缓冲 channel 送回，
// 竞速失败的一方也能安全写入后被丢弃。
type predictOutcome struct {
	status int
	body   []byte
	err    error
}

// handlePredict 实现分类车道：上游调用与固定截止时间竞速，先到者决定结果。
// 任何失败都在本地转换为合成错误信封并以 HTTP 200 下发——本车道永远不会
// 向页面返回传输级失败。
func (g *Gateway) handlePredict(c fiber.Ctx) error {
	started := time.Now()
	reqBody := append([]byte(nil), c.Body()...)

	// 上游请求在竞速开始前构造完毕，之后的 goroutine 不再触碰 fiber 上下文：
	// 超时后 fiber 会回收 ctx，而竞速输掉的一方还要继续跑完。
	// 刻意挂在 context.Background() 上，竞速不取消底层请求。
	req, err := g.buildUpstreamRequest(c, context.Background(), http.MethodPost, bytesReader(reqBody))
	if err != nil {
		return g.writeEnvelope(c, err, started)
	}
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	// 先到者决定结果；输家的结果写进缓冲 channel 后被悄悄丢弃，
	// 不产生任何可观测副作用。
	outcomeCh := make(chan predictOutcome, 1)
	go func() {
		outcomeCh <- g.doPredict(req)
	}()

	timer := time.NewTimer(g.predictTimeout)
	defer timer.Stop()

	var outcome predictOutcome
	select {
	case outcome = <-outcomeCh:
	case <-timer.C:
		outcome = predictOutcome{
			err: fmt.Errorf("%w after %s", errDeadlineLost, g.predictTimeout),
		}
	}

	if outcome.err != nil {
		return g.writeEnvelope(c, outcome.err, started)
	}

	if outcome.status < 200 || outcome.status > 299 {
		err := &APIError{Message: fmt.Sprintf("API Error: status %d", outcome.status)}
		return g.writeEnvelope(c, err, started)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(outcome.body, &parsed); err != nil {
		return g.writeEnvelope(c, &APIError{Message: "API Error: invalid response body"}, started)
	}

	// 传输成功但正文携带应用级 error 字段，同样提升为 api_error。
	if appErr, ok := applicationError(parsed); ok {
		return g.writeEnvelope(c, &APIError{Message: appErr}, started)
	}

	g.recordHistory(c, reqBody, parsed)

	g.setGatewayHeaders(c, false)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Status(fiber.StatusOK)
	g.logResult(lanePredict, c, fiber.StatusOK, false, started, nil)
	return c.Send(outcome.body)
}

// doPredict 执行真实的上游调用并读完正文。它只持有已构造好的请求，
// 可以在调用方已经返回之后继续安全运行。
func (g *Gateway) doPredict(req *http.Request) predictOutcome {
	resp, err := g.client.Do(req)
	if err != nil {
		return predictOutcome{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return predictOutcome{err: err}
	}
	return predictOutcome{status: resp.StatusCode, body: body}
}

// applicationError 检查成功正文里是否带应用级 error 字段。
func applicationError(parsed map[string]interface{}) (string, bool) {
	raw, ok := parsed["error"]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case bool:
		if !v {
			return "", false
		}
		if msg, ok := parsed["message"].(string); ok && msg != "" {
			return msg, true
		}
		return "API Error: upstream reported an error", true
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		// JSON 数字统一解成 float64，0 按假值处理。
		if v == 0 {
			return "", false
		}
		if msg, ok := parsed["message"].(string); ok && msg != "" {
			return msg, true
		}
		return "API Error: upstream reported an error", true
	default:
		return "API Error: upstream reported an error", true
	}
}

// writeEnvelope 把失败统一转换为合成信封，传输层永远是 200。
func (g *Gateway) writeEnvelope(c fiber.Ctx, cause error, started time.Time) error {
	envelope := NewEnvelope(cause.Error(), Classify(cause), g.now())

	fields := logrus.Fields{
		"action":     "gateway",
		"lane":       string(lanePredict),
		"method":     c.Method(),
		"path":       requestPath(c),
		"error_type": string(envelope.ErrorType),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if reqID := server.RequestID(c); reqID != "" {
		fields["request_id"] = reqID
	}
	g.logger.WithFields(fields).Warn(envelope.Message)

	g.setGatewayHeaders(c, false)
	return c.Status(fiber.StatusOK).JSON(envelope)
}

// recordHistory 尽力而为地把成功结果写进历史，失败只记日志。
func (g *Gateway) recordHistory(c fiber.Ctx, reqBody []byte, parsed map[string]interface{}) {
	if g.history == nil {
		return
	}

	var request struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(reqBody, &request); err != nil || request.Text == "" {
		return
	}

	prediction, confidence, ok := extractVerdict(parsed)
	if !ok {
		return
	}

	if _, err := g.history.Add(requestContext(c), request.Text, prediction, confidence); err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"action": "history_record",
			"path":   requestPath(c),
		}).Warn("history_record_failed")
	}
}

// extractVerdict 兼容 /predict 的顶层字段与 /predict_all 的 best 字段。
func extractVerdict(parsed map[string]interface{}) (int, float64, bool) {
	source := parsed
	if best, ok := parsed["best"].(map[string]interface{}); ok {
		source = best
	}

	rawPrediction, ok := source["prediction"].(float64)
	if !ok {
		return 0, 0, false
	}
	confidence, _ := source["confidence"].(float64)
	return int(rawPrediction), confidence, true
}
