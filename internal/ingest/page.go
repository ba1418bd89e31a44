package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxPageChars = 50000

// Page is the readable part of a recipe web page.
type Page struct {
	Title   string
	Excerpt string
	Content string
}

// Text renders the page the way it is handed to the instruction parser.
func (p *Page) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", p.Title)
	if p.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", p.Excerpt)
	}
	b.WriteString("\n-- CONTENT --\n")
	b.WriteString(p.Content)
	return b.String()
}

type PageFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewPageFetcher() *PageFetcher {
	return &PageFetcher{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	}
}

// FetchPage downloads a recipe page and extracts its main content as
// sanitised text.
func (f *PageFetcher) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse article: %w", err)
	}

	content := bluemonday.StrictPolicy().Sanitize(article.TextContent)
	content = strings.TrimSpace(content)
	content = truncateChars(content, maxPageChars)
	if content == "" {
		return nil, fmt.Errorf("no readable content at %s", rawURL)
	}

	return &Page{
		Title:   article.Title,
		Excerpt: article.Excerpt,
		Content: content,
	}, nil
}

// truncateChars keeps the first n characters of s and marks the cut.
func truncateChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := 0
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[:cut] + "\n... (content truncated) ..."
}
