package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestCrawlSubmitsScripts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head>
<script src="/static/app.js"></script>
<link rel="modulepreload" href="/static/chunk.mjs">
</head><body><a href="/about">about</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><script src="/static/about.js"></script></html>`)
	})
	mux.HandleFunc("/static/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprintf(w, `fetch("/api%s");`, r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	driver := NewHTTPDriver(CrawlOptions{MaxDepth: 2, SameHostOnly: true, RateLimit: 100}, nil)

	var got []Payload
	err := driver.Crawl(context.Background(), srv.URL, func(p Payload) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	urls := map[string]bool{}
	for _, p := range got {
		urls[p.URL] = true
		if p.Domain == "" || len(p.Body) == 0 {
			t.Fatalf("incomplete payload: %+v", p)
		}
	}
	for _, want := range []string{"/static/app.js", "/static/chunk.mjs", "/static/about.js"} {
		if !urls[srv.URL+want] {
			t.Fatalf("missing script %s, got %v", want, urls)
		}
	}
}

func TestCrawlDoesNotRefetchScripts(t *testing.T) {
	fetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html>
<script src="/app.js"></script>
<a href="/a">a</a><a href="/b">b</a></html>`)
	})
	pageWithScript := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><script src="/app.js"></script></html>`)
	}
	mux.HandleFunc("/a", pageWithScript)
	mux.HandleFunc("/b", pageWithScript)
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		fetches++
		fmt.Fprint(w, `fetch("/api/x");`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	driver := NewHTTPDriver(CrawlOptions{MaxDepth: 2, SameHostOnly: true, RateLimit: 100}, nil)
	if err := driver.Crawl(context.Background(), srv.URL, func(Payload) {}); err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("script fetched %d times, want 1", fetches)
	}
}

func TestCrawlStaysOnHost(t *testing.T) {
	// The second server shares the crawl target's IP but listens on another
	// port; same hostname with a different port is a different service and
	// must stay out of scope.
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("off-host page fetched: %s", r.URL)
	}))
	defer other.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html>
<a href="%s/page">same ip, other port</a>
<a href="https://elsewhere.example/page">other hostname</a>
</html>`, other.URL)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	driver := NewHTTPDriver(CrawlOptions{MaxDepth: 3, SameHostOnly: true, RateLimit: 100}, nil)
	if err := driver.Crawl(context.Background(), srv.URL, func(Payload) {}); err != nil {
		t.Fatalf("crawl: %v", err)
	}
}

func TestCrawlInvalidTarget(t *testing.T) {
	driver := NewHTTPDriver(CrawlOptions{}, nil)
	if err := driver.Crawl(context.Background(), "://nope", func(Payload) {}); err == nil {
		t.Fatal("expected error for invalid target")
	}
}

func TestCrawlHonorsCancellation(t *testing.T) {
	driver := NewHTTPDriver(CrawlOptions{RateLimit: 100}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := driver.Crawl(ctx, "https://example.com", func(Payload) {
		t.Error("cancelled crawl must not submit")
	})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestResolveRef(t *testing.T) {
	base, _ := url.Parse("https://example.com/dir/page.html")

	tests := []struct {
		href string
		want string
	}{
		{"/abs/path", "https://example.com/abs/path"},
		{"relative.js", "https://example.com/dir/relative.js"},
		{"//cdn.example.net/lib.js", "https://cdn.example.net/lib.js"},
		{"https://other.com/x", "https://other.com/x"},
		{"javascript:void(0)", ""},
		{"mailto:x@example.com", ""},
		{"#fragment", ""},
		{"ftp://example.com/file", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := resolveRef(base, tc.href); got != tc.want {
			t.Errorf("resolveRef(%q) = %q, want %q", tc.href, got, tc.want)
		}
	}
}

func TestExtractScriptURLsDedup(t *testing.T) {
	base, _ := url.Parse("https://example.com/")
	body := []byte(`
<script src="/app.js"></script>
<script src="/app.js"></script>
<script src="data:text/javascript;base64,xxx"></script>
<link rel="modulepreload" href="/chunk.mjs">
`)
	got := extractScriptURLs(base, body)
	if len(got) != 2 {
		t.Fatalf("urls = %v, want 2 entries", got)
	}
}

func TestCanonicalURL(t *testing.T) {
	a, _ := url.Parse("https://example.com")
	b, _ := url.Parse("https://example.com/#top")
	if canonicalURL(a) != canonicalURL(b) {
		t.Fatalf("fragment/path variants should canonicalize equal: %q vs %q", canonicalURL(a), canonicalURL(b))
	}
}

func TestNormalizeTarget(t *testing.T) {
	if got := normalizeTarget("example.com"); got != "https://example.com" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeTarget("http://example.com"); got != "http://example.com" {
		t.Fatalf("got %q", got)
	}
}
