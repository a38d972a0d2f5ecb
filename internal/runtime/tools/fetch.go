package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/user/thinkstream/internal/types"
)

const (
	// DefaultFetchProxy is the content-extraction endpoint fetched URLs are
	// appended to.
	DefaultFetchProxy = "https://r.jina.ai/"

	defaultMaxFetchChars = 50000
	maxFetchBodyBytes    = 10 << 20
)

// FetchOptions configures the fetch_urls tool.
type FetchOptions struct {
	// Proxy is prefixed to every target URL. Empty fetches targets directly.
	Proxy    string
	Timeout  time.Duration
	MaxChars int
}

// FetchURLs fetches a batch of URLs concurrently and returns their content as
// markdown.
type FetchURLs struct {
	client   *http.Client
	proxy    string
	maxChars int
}

// NewFetchURLs creates a new fetch_urls tool.
func NewFetchURLs(opts FetchOptions) *FetchURLs {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaultMaxFetchChars
	}
	return &FetchURLs{
		client:   &http.Client{Timeout: opts.Timeout},
		proxy:    opts.Proxy,
		maxChars: opts.MaxChars,
	}
}

func (f *FetchURLs) Name() string { return "fetch_urls" }
func (f *FetchURLs) Description() string {
	return "Fetch one or more web pages and return their content as markdown"
}
func (f *FetchURLs) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"urls": {
				"type": "array",
				"items": {"type": "string"},
				"description": "The URLs to fetch"
			}
		},
		"required": ["urls"]
	}`)
}

func (f *FetchURLs) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var params struct {
		URLs []string `json:"urls"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	results := f.FetchAll(ctx, params.URLs)
	return &Result{Text: Combine(results), URLResults: results}, nil
}

// FetchAll fetches every URL in its own goroutine. Results keep the input
// order and a failed URL never fails the batch.
func (f *FetchURLs) FetchAll(ctx context.Context, urls []string) []types.URLFetchResult {
	if len(urls) == 0 {
		return nil
	}
	results := make([]types.URLFetchResult, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			results[i] = f.fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Combine renders fetch results as one markdown document, one section per URL.
func Combine(results []types.URLFetchResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## %s\n\n%s", r.URL, r.Content)
	}
	return sb.String()
}

func (f *FetchURLs) fetch(ctx context.Context, raw string) types.URLFetchResult {
	start := time.Now()
	content, size, err := f.get(ctx, raw)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		slog.Warn("fetch failed", "url", raw, "error", err)
		return types.URLFetchResult{
			URL:     raw,
			Content: fmt.Sprintf("Error fetching %s: %v", raw, err),
			Metrics: types.URLMetrics{LatencyMs: latency, SizeFormatted: humanize.Bytes(0)},
		}
	}
	return types.URLFetchResult{
		URL:     raw,
		Content: content,
		Metrics: types.URLMetrics{
			LatencyMs:     latency,
			SizeBytes:     size,
			SizeFormatted: humanize.Bytes(uint64(size)),
		},
	}
}

func (f *FetchURLs) get(ctx context.Context, raw string) (string, int, error) {
	target, err := normalizeURL(raw)
	if err != nil {
		return "", 0, err
	}
	if f.proxy != "" {
		target = f.proxy + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "thinkstream/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("HTTP error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return "", 0, fmt.Errorf("read body: %w", err)
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		md, err := htmltomarkdown.ConvertString(content)
		if err != nil {
			return "", 0, fmt.Errorf("convert to markdown: %w", err)
		}
		content = md
	}

	if len(content) > f.maxChars {
		content = truncate(content, f.maxChars) + "\n\n[Content truncated]"
	}
	return content, len(body), nil
}

// normalizeURL adds a missing scheme and rejects anything that is not http(s).
func normalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return u.String(), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
