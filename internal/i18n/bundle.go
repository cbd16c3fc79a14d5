package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Bundle 持有全部已加载的语言包，按点分路径查词并回退到默认语言。
// 实例由调用方显式创建与持有，不存在包级单例。
type Bundle struct {
	defaultLang string
	messages    map[string]map[string]interface{}
}

// rtlLanguages 列出需要从右到左排版的语言。
var rtlLanguages = map[string]struct{}{
	"ar": {},
	"he": {},
	"fa": {},
	"ur": {},
}

// Load 从 dir 读取 <lang>.json 语言包。dir 为空或缺失时退化为内置英文文案，
// 不视为错误；单个语言包解析失败则整体失败，避免半加载状态。
func Load(dir, defaultLang string) (*Bundle, error) {
	if defaultLang == "" {
		defaultLang = "en"
	}

	bundle := &Bundle{
		defaultLang: defaultLang,
		messages:    map[string]map[string]interface{}{},
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read locales dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			lang := strings.TrimSuffix(entry.Name(), ".json")
			raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("read locale %s: %w", lang, err)
			}
			var parsed map[string]interface{}
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return nil, fmt.Errorf("parse locale %s: %w", lang, err)
			}
			bundle.messages[lang] = parsed
		}
	}

	// 默认语言缺席时补内置英文，保证任何 key 都有最终回退。
	if _, ok := bundle.messages[bundle.defaultLang]; !ok {
		bundle.messages[bundle.defaultLang] = builtinEnglish()
	}

	return bundle, nil
}

// Lookup 以 "a.b.c" 形式的路径查词。当前语言没有时回退默认语言，
// 仍然没有时返回 key 本身，方便页面直接显示缺失项。
func (b *Bundle) Lookup(lang, key string) string {
	if value, ok := lookupPath(b.messages[lang], key); ok {
		return value
	}
	if lang != b.defaultLang {
		if value, ok := lookupPath(b.messages[b.defaultLang], key); ok {
			return value
		}
	}
	return key
}

// Languages 返回已加载语言的稳定列表。
func (b *Bundle) Languages() []string {
	names := make([]string, 0, len(b.messages))
	for lang := range b.messages {
		names = append(names, lang)
	}
	sort.Strings(names)
	return names
}

// IsRTL 判断语言是否需要 RTL 布局。
func (b *Bundle) IsRTL(lang string) bool {
	_, ok := rtlLanguages[strings.ToLower(lang)]
	return ok
}

// DefaultLang 返回回退链末端的默认语言。
func (b *Bundle) DefaultLang() string {
	return b.defaultLang
}

func lookupPath(tree map[string]interface{}, key string) (string, bool) {
	if tree == nil || key == "" {
		return "", false
	}

	parts := strings.Split(key, ".")
	current := tree
	for i, part := range parts {
		value, ok := current[part]
		if !ok {
			return "", false
		}
		if i == len(parts)-1 {
			text, ok := value.(string)
			return text, ok
		}
		next, ok := value.(map[string]interface{})
		if !ok {
			return "", false
		}
		current = next
	}
	return "", false
}

// builtinEnglish 是离线页与诊断接口的最终兜底文案。
func builtinEnglish() map[string]interface{} {
	return map[string]interface{}{
		"offline": map[string]interface{}{
			"title":   "Offline - QuickFactChecker",
			"heading": "You're offline",
			"message": "This page isn't cached yet. Reconnect and try again.",
			"retry":   "Retry",
		},
	}
}
