package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOfflineFlowFallsBackToPrecachedAssets(t *testing.T) {
	upstream := newClassifierStub(t, `{"prediction":1}`, 0)
	env := newTestEnv(t, upstream.URL, nil)
	env.install(t)

	// 上游下线后，预缓存资源仍然可用。
	upstream.Close()

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望缓存兜底 200, 实际 %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Fact-Gate-Cache-Hit") != "true" {
		t.Fatalf("应命中预缓存")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "body{}" {
		t.Fatalf("缓存正文异常: %s", body)
	}
}

func TestOfflineFlowServesOfflinePageForUncachedNavigation(t *testing.T) {
	upstream := newClassifierStub(t, `{"prediction":1}`, 0)
	env := newTestEnv(t, upstream.URL, nil)
	env.install(t)
	upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Accept", "text/html")

	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("离线页应返回 200, 实际 %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<html") {
		t.Fatalf("离线页正文异常: %s", body)
	}
}

func TestOfflineFlowFailsUncachedNonNavigation(t *testing.T) {
	upstream := newClassifierStub(t, `{"prediction":1}`, 0)
	env := newTestEnv(t, upstream.URL, nil)
	env.install(t)
	upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set("Accept", "application/json")

	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("未缓存的非导航请求应失败, 实际 %d", resp.StatusCode)
	}
}

func TestOfflineFlowPredictYieldsNetworkEnvelope(t *testing.T) {
	upstream := newClassifierStub(t, `{"prediction":1}`, 0)
	env := newTestEnv(t, upstream.URL, nil)
	env.install(t)
	upstream.Close()

	resp := postPredict(t, env.app, "/predict", `{"text":"offline"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("分类车道离线时也应返回 200 信封, 实际 %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"errorType":"network_error"`) {
		t.Fatalf("期望 network_error 信封: %s", body)
	}
}
