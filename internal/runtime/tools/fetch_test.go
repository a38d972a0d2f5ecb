package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestFetchURLsName(t *testing.T) {
	f := NewFetchURLs(FetchOptions{})
	if f.Name() != "fetch_urls" {
		t.Errorf("expected 'fetch_urls', got %q", f.Name())
	}
}

func TestFetchURLsThroughProxy(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Title: Example Domain\n\nThis domain is for use in examples."))
	}))
	defer server.Close()

	f := NewFetchURLs(FetchOptions{Proxy: server.URL + "/"})
	args, _ := json.Marshal(map[string][]string{"urls": {"example.com"}})
	res, err := f.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/https://example.com" {
		t.Errorf("unexpected proxy path %q", gotPath)
	}
	if len(res.URLResults) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res.URLResults))
	}
	r := res.URLResults[0]
	if r.URL != "example.com" {
		t.Errorf("expected url as given, got %q", r.URL)
	}
	if r.Metrics.SizeBytes <= 0 {
		t.Errorf("expected positive size, got %d", r.Metrics.SizeBytes)
	}
	if r.Metrics.SizeFormatted == "" {
		t.Error("expected formatted size")
	}
	if !strings.Contains(res.Text, "## example.com") || !strings.Contains(res.Text, "Example Domain") {
		t.Errorf("unexpected combined text %q", res.Text)
	}
}

func TestFetchURLsDirectHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Hello World</h1><p>This is a test.</p></body></html>`))
	}))
	defer server.Close()

	f := NewFetchURLs(FetchOptions{})
	results := f.FetchAll(context.Background(), []string{server.URL})
	if !strings.Contains(results[0].Content, "Hello World") {
		t.Errorf("expected 'Hello World' in result, got %q", results[0].Content)
	}
	if strings.Contains(results[0].Content, "<h1>") {
		t.Errorf("expected markdown, got %q", results[0].Content)
	}
}

func TestFetchURLsBadScheme(t *testing.T) {
	f := NewFetchURLs(FetchOptions{Proxy: DefaultFetchProxy})
	args, _ := json.Marshal(map[string][]string{"urls": {"bad://url"}})
	res, err := f.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("batch should not fail, got %v", err)
	}
	r := res.URLResults[0]
	if r.Metrics.SizeBytes != 0 {
		t.Errorf("expected zero size, got %d", r.Metrics.SizeBytes)
	}
	if !strings.HasPrefix(r.Content, "Error fetching") {
		t.Errorf("expected error content, got %q", r.Content)
	}
}

func TestFetchURLsPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetchURLs(FetchOptions{})
	results := f.FetchAll(context.Background(), []string{server.URL + "/good", server.URL + "/missing"})
	if results[0].Content != "ok" {
		t.Errorf("expected first URL to succeed, got %q", results[0].Content)
	}
	if !strings.HasPrefix(results[1].Content, "Error fetching") || !strings.Contains(results[1].Content, "404") {
		t.Errorf("expected 404 error content, got %q", results[1].Content)
	}
	if results[1].Metrics.SizeBytes != 0 {
		t.Errorf("expected zero size for failure, got %d", results[1].Metrics.SizeBytes)
	}
}

func TestFetchURLsPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Earlier URLs answer later.
		switch r.URL.Path {
		case "/1":
			time.Sleep(60 * time.Millisecond)
		case "/2":
			time.Sleep(30 * time.Millisecond)
		}
		w.Write([]byte("page" + r.URL.Path))
	}))
	defer server.Close()

	urls := []string{server.URL + "/1", server.URL + "/2", server.URL + "/3"}
	results := NewFetchURLs(FetchOptions{}).FetchAll(context.Background(), urls)
	for i, u := range urls {
		if results[i].URL != u {
			t.Errorf("slot %d: expected %q, got %q", i, u, results[i].URL)
		}
	}
	if results[0].Content != "page/1" || results[2].Content != "page/3" {
		t.Errorf("content mismatched to slots: %+v", results)
	}
}

func TestFetchURLsEmpty(t *testing.T) {
	f := NewFetchURLs(FetchOptions{})
	res, err := f.Execute(context.Background(), json.RawMessage(`{"urls":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "" {
		t.Errorf("expected empty text, got %q", res.Text)
	}
	if len(res.URLResults) != 0 {
		t.Errorf("expected no results, got %d", len(res.URLResults))
	}
}

func TestFetchURLsTruncation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer server.Close()

	results := NewFetchURLs(FetchOptions{MaxChars: 100}).FetchAll(context.Background(), []string{server.URL})
	if !strings.HasSuffix(results[0].Content, "[Content truncated]") {
		t.Errorf("expected truncation marker, got %q", results[0].Content)
	}
	if results[0].Metrics.SizeBytes != 500 {
		t.Errorf("expected raw size 500, got %d", results[0].Metrics.SizeBytes)
	}
}

func TestFetchURLsTruncationKeepsRunes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("é", 10)))
	}))
	defer server.Close()

	results := NewFetchURLs(FetchOptions{MaxChars: 5}).FetchAll(context.Background(), []string{server.URL})
	got := results[0].Content
	if !utf8.ValidString(got) {
		t.Fatalf("truncated content is not valid UTF-8: %q", got)
	}
	if want := "éé\n\n[Content truncated]"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 3, "hel"},
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{"日本", 1, ""},
	}
	for _, c := range cases {
		if got := truncate(c.in, c.n); got != c.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	if got, err := normalizeURL("example.com/path"); err != nil || got != "https://example.com/path" {
		t.Errorf("expected https default, got %q, %v", got, err)
	}
	if got, err := normalizeURL("http://example.com"); err != nil || got != "http://example.com" {
		t.Errorf("expected http kept, got %q, %v", got, err)
	}
	for _, bad := range []string{"", "ftp://example.com", "bad://url", "https://"} {
		if _, err := normalizeURL(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
