package i18n

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingDirFallsBackToBuiltin(t *testing.T) {
	bundle, err := Load(filepath.Join(t.TempDir(), "nope"), "en")
	if err != nil {
		t.Fatalf("缺失目录不应失败: %v", err)
	}
	if got := bundle.Lookup("en", "offline.heading"); got != "You're offline" {
		t.Fatalf("内置文案缺失: %s", got)
	}
}

func TestLookupWithFallbackChain(t *testing.T) {
	dir := t.TempDir()
	writeLocale(t, dir, "en.json", `{"offline": {"heading": "You're offline"}, "app": {"title": "QuickFactChecker"}}`)
	writeLocale(t, dir, "es.json", `{"offline": {"heading": "Sin conexión"}}`)

	bundle, err := Load(dir, "en")
	if err != nil {
		t.Fatalf("Load 错误: %v", err)
	}

	if got := bundle.Lookup("es", "offline.heading"); got != "Sin conexión" {
		t.Fatalf("应命中 es 语言包: %s", got)
	}
	if got := bundle.Lookup("es", "app.title"); got != "QuickFactChecker" {
		t.Fatalf("缺失 key 应回退默认语言: %s", got)
	}
	if got := bundle.Lookup("es", "app.missing"); got != "app.missing" {
		t.Fatalf("两级都缺失时应返回 key 本身: %s", got)
	}
}

func TestLoadRejectsBrokenLocale(t *testing.T) {
	dir := t.TempDir()
	writeLocale(t, dir, "en.json", `{"broken`)
	if _, err := Load(dir, "en"); err == nil {
		t.Fatalf("损坏的语言包应整体失败")
	}
}

func TestLanguagesStableOrder(t *testing.T) {
	dir := t.TempDir()
	writeLocale(t, dir, "zh.json", `{}`)
	writeLocale(t, dir, "ar.json", `{}`)
	writeLocale(t, dir, "en.json", `{}`)

	bundle, err := Load(dir, "en")
	if err != nil {
		t.Fatalf("Load 错误: %v", err)
	}
	langs := bundle.Languages()
	if len(langs) != 3 || langs[0] != "ar" || langs[1] != "en" || langs[2] != "zh" {
		t.Fatalf("语言列表应为稳定字典序: %v", langs)
	}
}

func TestIsRTL(t *testing.T) {
	bundle, err := Load("", "en")
	if err != nil {
		t.Fatalf("Load 错误: %v", err)
	}
	if !bundle.IsRTL("ar") || !bundle.IsRTL("AR") {
		t.Fatalf("阿拉伯语应为 RTL")
	}
	if bundle.IsRTL("en") {
		t.Fatalf("英语不应为 RTL")
	}
}

func writeLocale(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("写入语言包失败: %v", err)
	}
}
