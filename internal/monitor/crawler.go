package monitor

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Driver is the interface the engine expects from a crawl driver: something
// that observes JavaScript resources for a target and submits their bytes.
// Headless rendering drivers satisfy the same interface; this package ships
// a plain HTTP fetcher.
type Driver interface {
	Crawl(ctx context.Context, startURL string, submit func(Payload)) error
}

// CrawlOptions configures script discovery for one target.
type CrawlOptions struct {
	MaxDepth     int
	MaxPages     int
	MaxScripts   int
	SameHostOnly bool
	Timeout      time.Duration
	RateLimit    int // requests per second
}

const (
	maxPageBodyBytes   = 512 * 1024
	maxScriptBodyBytes = 4 * 1024 * 1024
)

var (
	hrefPattern      = regexp.MustCompile(`(?i)href\s*=\s*(?:'([^']*)'|"([^"]*)"|([^\s"'<>]+))`)
	scriptSrcPattern = regexp.MustCompile(`(?i)<script[^>]+src=["']([^"']+)["']`)
	// modulepreload/prefetch links frequently carry chunk URLs in SPAs.
	preloadPattern = regexp.MustCompile(`(?i)<link[^>]+rel=["'](?:modulepreload|prefetch)["'][^>]+href=["']([^"']+\.m?js[^"']*)["']`)
)

// HTTPDriver discovers pages within the same host via a bounded BFS, collects
// script URLs from them, fetches each script once and submits the bytes.
type HTTPDriver struct {
	opts    CrawlOptions
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewHTTPDriver builds a driver with sane bounds for unset options.
func NewHTTPDriver(opts CrawlOptions, log *zap.SugaredLogger) *HTTPDriver {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.MaxScripts <= 0 {
		opts.MaxScripts = 200
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HTTPDriver{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit),
		log:     log,
	}
}

// Crawl walks same-host pages starting from startURL, collects script URLs
// and submits each fetched script payload. Cancellation stops further
// fetches; already-submitted payloads are not recalled.
func (d *HTTPDriver) Crawl(ctx context.Context, startURL string, submit func(Payload)) error {
	root, err := url.Parse(normalizeTarget(startURL))
	if err != nil || root.Hostname() == "" {
		return fmt.Errorf("invalid start url %q", startURL)
	}

	type queueItem struct {
		url   *url.URL
		depth int
	}

	queue := []queueItem{{url: root, depth: 0}}
	seenPages := map[string]struct{}{canonicalURL(root): {}}
	seenScripts := map[string]struct{}{}
	pages := 0
	scripts := 0

	for len(queue) > 0 && pages < d.opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]
		pages++

		body, contentType, err := d.fetch(ctx, item.url.String(), maxPageBodyBytes)
		if err != nil || !isHTML(contentType) {
			continue
		}

		for _, src := range extractScriptURLs(item.url, body) {
			if _, ok := seenScripts[src]; ok {
				continue
			}
			seenScripts[src] = struct{}{}
			if scripts >= d.opts.MaxScripts {
				continue
			}
			scripts++
			d.fetchScript(ctx, root, src, submit)
		}

		if item.depth+1 >= d.opts.MaxDepth {
			continue
		}
		for _, raw := range extractLinks(item.url, body) {
			u, err := url.Parse(raw)
			if err != nil {
				continue
			}
			// Host includes the port: a different port on the same
			// hostname is a different service and stays out of scope.
			if d.opts.SameHostOnly && !strings.EqualFold(u.Host, root.Host) {
				continue
			}
			key := canonicalURL(u)
			if key == "" {
				continue
			}
			if _, ok := seenPages[key]; ok {
				continue
			}
			seenPages[key] = struct{}{}
			queue = append(queue, queueItem{url: u, depth: item.depth + 1})
		}
	}

	return nil
}

func (d *HTTPDriver) fetchScript(ctx context.Context, root *url.URL, src string, submit func(Payload)) {
	body, contentType, err := d.fetch(ctx, src, maxScriptBodyBytes)
	if err != nil {
		d.log.Debugw("script fetch failed", "url", src, "error", err)
		return
	}
	submit(Payload{
		Domain:      root.Hostname(),
		URL:         src,
		Body:        body,
		ContentType: contentType,
		ObservedAt:  time.Now().UTC(),
	})
}

func (d *HTTPDriver) fetch(ctx context.Context, target string, limit int64) ([]byte, string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, contentType, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, contentType, err
	}
	return data, contentType, nil
}

// extractScriptURLs returns absolute script URLs referenced by a page via
// script tags and modulepreload/prefetch links.
func extractScriptURLs(base *url.URL, body []byte) []string {
	var out []string
	seen := map[string]struct{}{}

	collect := func(matches [][][]byte) {
		for _, match := range matches {
			if len(match) < 2 {
				continue
			}
			src := strings.TrimSpace(string(match[1]))
			if src == "" || strings.HasPrefix(src, "data:") {
				continue
			}
			resolved := resolveRef(base, src)
			if resolved == "" {
				continue
			}
			if _, ok := seen[resolved]; ok {
				continue
			}
			seen[resolved] = struct{}{}
			out = append(out, resolved)
		}
	}

	collect(scriptSrcPattern.FindAllSubmatch(body, -1))
	collect(preloadPattern.FindAllSubmatch(body, -1))
	return out
}

func extractLinks(base *url.URL, body []byte) []string {
	matches := hrefPattern.FindAllSubmatch(body, -1)
	links := make([]string, 0, len(matches))
	for _, match := range matches {
		var raw string
		for i := 1; i < len(match); i++ {
			if len(match[i]) > 0 {
				raw = string(match[i])
				break
			}
		}
		if raw == "" {
			continue
		}
		if resolved := resolveRef(base, raw); resolved != "" {
			links = append(links, resolved)
		}
	}
	return links
}

func resolveRef(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	switch {
	case href == "",
		strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"),
		strings.HasPrefix(lower, "#"):
		return ""
	}

	if strings.HasPrefix(href, "//") {
		href = base.Scheme + ":" + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.Scheme == "" {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

func normalizeTarget(target string) string {
	if !strings.Contains(target, "://") {
		return "https://" + target
	}
	return target
}

func canonicalURL(u *url.URL) string {
	if u == nil || u.Hostname() == "" {
		return ""
	}
	copied := *u
	copied.Fragment = ""
	if copied.Path == "" {
		copied.Path = "/"
	}
	return copied.String()
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
