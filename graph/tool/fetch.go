package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/dshills/stategraph/graph/model"
)

const (
	// DefaultFetchTimeout bounds one fetch when the caller's context has no deadline.
	DefaultFetchTimeout = 30 * time.Second

	// MaxBodySize is the largest response body read, in bytes.
	MaxBodySize = 5 * 1024 * 1024

	defaultMaxChars  = 20000
	defaultUserAgent = "stategraph-fetch/1.0"
)

// FetchTool retrieves a web page over HTTP GET and returns it as Markdown.
//
// Input:
//   - url (string, required): http or https URL. A bare host gets https://.
//
// Output:
//   - url: final URL after redirects
//   - status_code: HTTP status
//   - markdown: page content, truncated to MaxChars
//   - truncated: whether markdown was cut
//
// Non-HTML responses are returned as text without conversion.
type FetchTool struct {
	client   *http.Client
	maxChars int
}

// NewFetchTool creates a FetchTool. A nil client uses one with DefaultFetchTimeout.
// maxChars <= 0 uses the default limit.
func NewFetchTool(client *http.Client, maxChars int) *FetchTool {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &FetchTool{client: client, maxChars: maxChars}
}

// Name implements Tool.
func (f *FetchTool) Name() string {
	return "fetch_article"
}

// Spec implements Tool.
func (f *FetchTool) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        f.Name(),
		Description: "Fetch a web page by URL and return its content as Markdown.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Absolute URL of the page to fetch",
				},
			},
			"required": []string{"url"},
		},
	}
}

// Call implements Tool.
func (f *FetchTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	urlStr, ok := input["url"].(string)
	urlStr = strings.TrimSpace(urlStr)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter required (string)")
	}
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		urlStr = "https://" + urlStr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", urlStr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status fetching %s: %s", urlStr, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		content, err = htmltomarkdown.ConvertString(content)
		if err != nil {
			return nil, fmt.Errorf("failed to convert HTML to Markdown: %w", err)
		}
	}

	content = strings.TrimSpace(content)
	truncated := false
	if r := []rune(content); len(r) > f.maxChars {
		content = string(r[:f.maxChars])
		truncated = true
	}

	return map[string]interface{}{
		"url":         resp.Request.URL.String(),
		"status_code": resp.StatusCode,
		"markdown":    content,
		"truncated":   truncated,
	}, nil
}
