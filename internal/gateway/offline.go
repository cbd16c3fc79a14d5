package gateway

import (
	"fmt"
	"html"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// offlinePage 渲染自包含的离线提示页，不引用任何外部资源，
// 保证在上游不可达时页面本身仍可完整呈现。
func (g *Gateway) offlinePage(lang string) string {
	if lang == "" {
		lang = g.locales.DefaultLang()
	}
	dir := "ltr"
	if g.locales.IsRTL(lang) {
		dir = "rtl"
	}

	title := html.EscapeString(g.locales.Lookup(lang, "offline.title"))
	heading := html.EscapeString(g.locales.Lookup(lang, "offline.heading"))
	message := html.EscapeString(g.locales.Lookup(lang, "offline.message"))
	retry := html.EscapeString(g.locales.Lookup(lang, "offline.retry"))

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang=%q dir=%q>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body{font-family:sans-serif;background:#f5f6fa;color:#2d3436;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0}
main{text-align:center;padding:2rem;max-width:28rem}
h1{font-size:1.5rem;margin-bottom:.5rem}
p{color:#636e72;line-height:1.6}
button{margin-top:1.5rem;padding:.6rem 1.6rem;border:0;border-radius:.3rem;background:#0984e3;color:#fff;font-size:1rem;cursor:pointer}
</style>
</head>
<body>
<main>
<h1>%s</h1>
<p>%s</p>
<button onclick="location.reload()">%s</button>
</main>
</body>
</html>
`, lang, dir, title, heading, message, retry)
}

// preferredLanguage 取 Accept-Language 首个语言标签的主语言部分。
func preferredLanguage(c fiber.Ctx) string {
	raw := c.Get(fiber.HeaderAcceptLanguage)
	if raw == "" {
		return ""
	}
	first := strings.TrimSpace(strings.SplitN(raw, ",", 2)[0])
	first = strings.SplitN(first, ";", 2)[0]
	if idx := strings.IndexByte(first, '-'); idx > 0 {
		first = first[:idx]
	}
	return strings.ToLower(strings.TrimSpace(first))
}
