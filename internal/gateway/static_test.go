package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fact-gate/fact-gate/internal/cache"
)

func TestStaticSuccessWritesThroughCache(t *testing.T) {
	const cssBody = "body { color: red; }"

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		_, _ = w.Write([]byte(cssBody))
	}))
	defer upstream.Close()

	app, _, store := newTestGateway(t, upstream.URL, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/static/css/style.css", nil))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != cssBody {
		t.Fatalf("正文不一致: %s", body)
	}
	if resp.Header.Get("X-Fact-Gate-Cache-Hit") != "false" {
		t.Fatalf("网络成功不应标记缓存命中")
	}

	// 成功响应应已写入当前分区。
	cached, err := store.Get(context.Background(), cache.Locator{
		Partition: testStaticPartition,
		Path:      "/static/css/style.css",
	})
	if err != nil {
		t.Fatalf("缓存未写入: %v", err)
	}
	defer cached.Reader.Close()
	data, _ := io.ReadAll(cached.Reader)
	if string(data) != cssBody {
		t.Fatalf("缓存内容不一致: %s", data)
	}
}

func TestStaticNonOKIsNotCached(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	app, _, store := newTestGateway(t, upstream.URL, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 404 透传, 实际 %d", resp.StatusCode)
	}
	if _, err := store.Get(context.Background(), cache.Locator{
		Partition: testStaticPartition,
		Path:      "/missing.js",
	}); err == nil {
		t.Fatalf("非 200 响应不应写缓存")
	}
}

func TestStaticFallsBackToCacheWhenUpstreamDown(t *testing.T) {
	const jsBody = "console.log('cached');"

	app, _, store := newTestGateway(t, "http://127.0.0.1:1", nil)

	_, err := store.Put(context.Background(), cache.Locator{
		Partition: testStaticPartition,
		Path:      "/static/js/app.js",
	}, bytes.NewReader([]byte(jsBody)), cache.PutOptions{})
	if err != nil {
		t.Fatalf("预写缓存失败: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/static/js/app.js", nil))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Fact-Gate-Cache-Hit") != "true" {
		t.Fatalf("缓存命中应标记 X-Fact-Gate-Cache-Hit")
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/javascript" {
		t.Fatalf("期望按扩展名推断类型, 实际 %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != jsBody {
		t.Fatalf("缓存正文不一致: %s", body)
	}
}

func TestStaticFallbackDistinguishesQueryStrings(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.RawQuery))
	}))

	app, _, _ := newTestGateway(t, upstream.URL, nil)

	// 在线阶段：两个查询串各自写穿缓存。
	for _, query := range []string{"fruit=apple", "fruit=banana"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/data?"+query, nil))
		if err != nil {
			t.Fatalf("请求失败: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("期望 200, 实际 %d", resp.StatusCode)
		}
	}

	// 离线阶段：每个查询串必须命中自己的条目。
	upstream.Close()
	for _, query := range []string{"fruit=apple", "fruit=banana"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/data?"+query, nil))
		if err != nil {
			t.Fatalf("请求失败: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("期望缓存命中 200, 实际 %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Fact-Gate-Cache-Hit") != "true" {
			t.Fatalf("应标记缓存命中")
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != query {
			t.Fatalf("查询串 %q 命中了错误的条目: %s", query, body)
		}
	}
}

func TestCacheKeyQueryMarker(t *testing.T) {
	plain := cacheKey("/data", nil)
	if plain != "/data" {
		t.Fatalf("无查询串应保持裸路径, 实际 %q", plain)
	}

	apple := cacheKey("/data", []byte("fruit=apple"))
	banana := cacheKey("/data", []byte("fruit=banana"))
	if apple == banana {
		t.Fatalf("不同查询串不应得到同一缓存键")
	}
	if !strings.HasPrefix(apple, "/data/__qs/") {
		t.Fatalf("缓存键格式异常: %q", apple)
	}
	if stripQueryMarker(apple) != "/data" {
		t.Fatalf("剥离标记后应还原路径, 实际 %q", stripQueryMarker(apple))
	}
	if stripQueryMarker("/plain.css") != "/plain.css" {
		t.Fatalf("无标记路径应原样返回")
	}
}

func TestStaticServesStalePartitionWhenCurrentMisses(t *testing.T) {
	const staleBody = "<html>old version</html>"

	app, _, store := newTestGateway(t, "http://127.0.0.1:1", nil)

	// 只在旧分区里有条目，当前分区为空。
	_, err := store.Put(context.Background(), cache.Locator{
		Partition: "static-v2",
		Path:      "/index.html",
	}, bytes.NewReader([]byte(staleBody)), cache.PutOptions{})
	if err != nil {
		t.Fatalf("预写缓存失败: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/index.html", nil))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != staleBody {
		t.Fatalf("应回退旧分区内容: %s", body)
	}
}

func TestStaticNavigationMissServesOfflinePage(t *testing.T) {
	app, _, _ := newTestGateway(t, "http://127.0.0.1:1", nil)

	req := httptest.NewRequest(http.MethodGet, "/articles/42", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("离线页应返回 200, 实际 %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("离线页应是 HTML, 实际 %q", resp.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<html") {
		t.Fatalf("离线页正文异常: %s", body)
	}
	// 自包含：不得引用外部资源。
	if strings.Contains(string(body), "src=") || strings.Contains(string(body), "href=") {
		t.Fatalf("离线页不应引用外部资源")
	}
}

func TestStaticNonNavigationMissFailsWith502(t *testing.T) {
	app, _, _ := newTestGateway(t, "http://127.0.0.1:1", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/data.json", nil)
	req.Header.Set("Accept", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("期望 502, 实际 %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if payload["error"] != "upstream_failed" {
		t.Fatalf("期望 upstream_failed, 实际 %+v", payload)
	}
}

func TestPassthroughStreamsUpstreamResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("意外的方法: %s", r.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("accepted"))
	}))
	defer upstream.Close()

	app, _, _ := newTestGateway(t, upstream.URL, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/jobs/7", nil))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("期望 202 透传, 实际 %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "accepted" {
		t.Fatalf("正文不一致: %s", body)
	}
}

func TestInferContentType(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/", "text/html; charset=utf-8"},
		{"/index.html", "text/html; charset=utf-8"},
		{"/static/css/style.css", "text/css; charset=utf-8"},
		{"/static/js/app.js", "application/javascript"},
		{"/manifest.json", "application/json"},
		{"/articles/42", "text/html; charset=utf-8"},
	}

	for _, tc := range cases {
		if got := inferContentType(tc.path); got != tc.want {
			t.Fatalf("%s: 期望 %q, 实际 %q", tc.path, tc.want, got)
		}
	}
}
