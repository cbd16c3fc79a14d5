package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// maxArticleBytes 限制抓取正文的大小，防止超大页面拖垮内存。
const maxArticleBytes = 4 * 1024 * 1024

// ErrNoParagraphs 表示页面成功抓取但没有可用的段落文本。
var ErrNoParagraphs = errors.New("page has no paragraph text")

var whitespaceRe = regexp.MustCompile(`\s+`)

// Article 是一次 URL 抽取的结果：标题 + 拼接后的段落正文。
type Article struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// Extractor 抓取外部文章页面并抽取 <p> 段落文本，供分类端点使用。
type Extractor struct {
	client *http.Client
	logger *logrus.Logger
}

// New 构造 Extractor，client/logger 必填。
func New(client *http.Client, logger *logrus.Logger) *Extractor {
	return &Extractor{client: client, logger: logger}
}

// FromURL 抓取 rawURL 并返回抽取结果。页面编码按 Content-Type + 字节探测
// 统一解码为 UTF-8 后再解析。
func (e *Extractor) FromURL(ctx context.Context, rawURL string) (*Article, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme: %s", parsed.Scheme)
	}

	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch url: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	article, err := parseArticle(data, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	article.URL = parsed.String()

	e.logger.WithFields(logrus.Fields{
		"action":     "extract",
		"url":        parsed.String(),
		"word_count": article.WordCount,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("extract_complete")

	return article, nil
}

func parseArticle(data []byte, contentType string) (*Article, error) {
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		utf8data = data
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(utf8data))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	doc.Find("script,noscript,style").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var parts []string
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return nil, ErrNoParagraphs
	}

	text := strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.Join(parts, " "), " "))
	return &Article{
		Title:     title,
		Text:      text,
		WordCount: len(strings.Fields(text)),
	}, nil
}
