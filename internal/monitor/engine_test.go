package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jswatch/jswatch/internal/extract"
	"github.com/jswatch/jswatch/internal/notify"
	"github.com/jswatch/jswatch/internal/storage"
)

func newTestEngine(t *testing.T, aggregator *notify.Aggregator, cfg Config) (*Engine, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewEngine(store, aggregator, nil, cfg), store
}

func payload(domain, url, body string) Payload {
	return Payload{
		Domain:     domain,
		URL:        url,
		Body:       []byte(body),
		ObservedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestProcessNewFile(t *testing.T) {
	aggregator := notify.NewAggregator(nil, 0, nil)
	engine, store := newTestEngine(t, aggregator, Config{})

	outcome := engine.Process(context.Background(), payload("a.com", "https://a.com/app.js", `fetch("/api/users");`))
	if outcome.Err != nil {
		t.Fatalf("process: %v", outcome.Err)
	}
	if !outcome.Change.IsNew {
		t.Fatalf("expected new file: %+v", outcome.Change)
	}
	if len(outcome.Endpoints) == 0 {
		t.Fatal("expected extracted endpoints")
	}

	// Endpoints and fingerprint land in the store.
	eps, err := store.ListEndpoints("a.com")
	if err != nil || len(eps) == 0 {
		t.Fatalf("endpoints not persisted: %v %v", eps, err)
	}
	fps, err := store.ListFingerprints("a.com")
	if err != nil || len(fps) != 1 {
		t.Fatalf("fingerprint not persisted: %v %v", fps, err)
	}

	// New-file and endpoints-found events are buffered.
	if aggregator.Pending() != 2 {
		t.Fatalf("pending events = %d, want 2", aggregator.Pending())
	}
}

func TestProcessUnchangedSkipsDownstream(t *testing.T) {
	aggregator := notify.NewAggregator(nil, 0, nil)
	engine, store := newTestEngine(t, aggregator, Config{})
	p := payload("a.com", "https://a.com/app.js", `fetch("/api/users");`)

	if outcome := engine.Process(context.Background(), p); outcome.Err != nil {
		t.Fatalf("first process: %v", outcome.Err)
	}
	pendingAfterFirst := aggregator.Pending()

	outcome := engine.Process(context.Background(), p)
	if outcome.Err != nil {
		t.Fatalf("second process: %v", outcome.Err)
	}
	if outcome.Change.IsNew || outcome.Change.Changed {
		t.Fatalf("expected unchanged: %+v", outcome.Change)
	}
	if len(outcome.Endpoints) != 0 {
		t.Fatal("unchanged file must skip extraction")
	}
	if aggregator.Pending() != pendingAfterFirst {
		t.Fatal("unchanged file must not buffer events")
	}

	// The store still holds exactly one fingerprint.
	fps, _ := store.ListFingerprints("a.com")
	if len(fps) != 1 {
		t.Fatalf("fingerprints = %d, want 1", len(fps))
	}
}

func TestProcessChangedFile(t *testing.T) {
	aggregator := notify.NewAggregator(nil, 0, nil)
	engine, _ := newTestEngine(t, aggregator, Config{})

	engine.Process(context.Background(), payload("a.com", "https://a.com/app.js", "fetch(\"/api/users\");\n"))
	outcome := engine.Process(context.Background(), payload("a.com", "https://a.com/app.js", "fetch(\"/api/users\");\nfetch(\"/api/orders\");\n"))
	if outcome.Err != nil {
		t.Fatalf("process: %v", outcome.Err)
	}
	if !outcome.Change.Changed {
		t.Fatalf("expected changed: %+v", outcome.Change)
	}
	if outcome.Change.Stats.AddedLines == 0 {
		t.Fatal("expected added lines")
	}
	if _, ok := findByURL(outcome.Endpoints, "/api/orders"); !ok {
		t.Fatalf("new endpoint missing: %+v", outcome.Endpoints)
	}
}

func TestProcessInvalidPayloadBuffersError(t *testing.T) {
	aggregator := notify.NewAggregator(nil, 0, nil)
	engine, _ := newTestEngine(t, aggregator, Config{})

	outcome := engine.Process(context.Background(), payload("a.com", "https://a.com/app.js", ""))
	if outcome.Err == nil {
		t.Fatal("empty payload must fail")
	}
	if aggregator.Pending() != 1 {
		t.Fatalf("error event not buffered, pending = %d", aggregator.Pending())
	}
}

func TestProcessConcurrentDistinctURLs(t *testing.T) {
	engine, store := newTestEngine(t, nil, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://a.com/chunk-%d.js", i)
			body := fmt.Sprintf("fetch(\"/api/chunk/%d\");", i)
			if outcome := engine.Process(context.Background(), payload("a.com", url, body)); outcome.Err != nil {
				t.Errorf("process %s: %v", url, outcome.Err)
			}
		}(i)
	}
	wg.Wait()

	fps, err := store.ListFingerprints("a.com")
	if err != nil || len(fps) != 8 {
		t.Fatalf("fingerprints = %d (%v), want 8", len(fps), err)
	}
}

func TestClusterDomainFindsRenamedCopy(t *testing.T) {
	engine, _ := newTestEngine(t, nil, Config{})
	src := `
import { api } from "./api";
function loadUsers(page) { return api.get("/users?page=" + page); }
function saveUser(u) { return api.post("/users", u); }
`
	engine.Process(context.Background(), payload("a.com", "https://a.com/app.abc123.js", src))
	engine.Process(context.Background(), payload("a.com", "https://a.com/app.def456.js", src+"\n"))
	engine.Process(context.Background(), payload("a.com", "https://a.com/vendor.js", `function unrelated() { return 42; } var x = "/totally/else";`))

	result, err := engine.ClusterDomain("a.com")
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("clusters = %d, want 1: %+v", len(result.Clusters), result)
	}
	if len(result.Clusters[0].MemberURLs) != 2 {
		t.Fatalf("members = %v", result.Clusters[0].MemberURLs)
	}
}

func TestEndpointSummary(t *testing.T) {
	engine, _ := newTestEngine(t, nil, Config{})
	engine.Process(context.Background(), payload("a.com", "https://a.com/app.js", `fetch("/api/users"); var hint = "assets/misc/readme.txt";`))

	summary, err := engine.EndpointSummary("a.com")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Total == 0 {
		t.Fatal("expected endpoints in summary")
	}
	if summary.ByConfidence[string(extract.ConfidenceHigh)] == 0 {
		t.Fatalf("expected a high-confidence endpoint: %+v", summary)
	}
}

func TestProcessRetentionTrim(t *testing.T) {
	engine, store := newTestEngine(t, nil, Config{MaxFilesPerDomain: 2})

	for i := 0; i < 4; i++ {
		url := fmt.Sprintf("https://a.com/%d.js", i)
		outcome := engine.Process(context.Background(), payload("a.com", url, fmt.Sprintf("fetch(\"/api/f%d\");", i)))
		if outcome.Err != nil {
			t.Fatalf("process %s: %v", url, outcome.Err)
		}
	}

	fps, err := store.ListFingerprints("a.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(fps) > 2 {
		t.Fatalf("retention not applied, %d fingerprints", len(fps))
	}
}

func findByURL(endpoints []extract.Endpoint, url string) (extract.Endpoint, bool) {
	for _, ep := range endpoints {
		if ep.URL == url {
			return ep, true
		}
	}
	return extract.Endpoint{}, false
}
