package storage

import (
	"errors"
	"testing"
	"time"

	sharedErrors "github.com/jswatch/jswatch/internal/shared/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRequiresDataDir(t *testing.T) {
	if _, err := Open(""); !errors.Is(err, sharedErrors.ErrEmptyDataDir) {
		t.Fatalf("got %v, want ErrEmptyDataDir", err)
	}
}

func TestOpenIsIdempotentOnDisk(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	// Reopening must not re-apply migrations.
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s2.Close()
}

func TestContentRecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	observed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.GetContentRecord("a.com", "https://a.com/app.js"); !errors.Is(err, sharedErrors.ErrRecordNotFound) {
		t.Fatalf("got %v, want ErrRecordNotFound", err)
	}

	if err := s.SetContentHash("a.com", "https://a.com/app.js", "h1", 42, observed); err != nil {
		t.Fatalf("set hash: %v", err)
	}
	rec, err := s.GetContentRecord("a.com", "https://a.com/app.js")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Hash != "h1" || rec.Size != 42 || !rec.ObservedAt.Equal(observed) {
		t.Fatalf("record = %+v", rec)
	}

	// Upsert replaces in place.
	if err := s.SetContentHash("a.com", "https://a.com/app.js", "h2", 43, observed.Add(time.Hour)); err != nil {
		t.Fatalf("update hash: %v", err)
	}
	rec, err = s.GetContentRecord("a.com", "https://a.com/app.js")
	if err != nil {
		t.Fatalf("get updated record: %v", err)
	}
	if rec.Hash != "h2" || rec.Size != 43 {
		t.Fatalf("updated record = %+v", rec)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	body := []byte("const a = 1;")

	if err := s.SaveSnapshot("a.com", "https://a.com/app.js", "h1", body); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	// Saving the same snapshot twice is a no-op, not a failure.
	if err := s.SaveSnapshot("a.com", "https://a.com/app.js", "h1", body); err != nil {
		t.Fatalf("repeat save: %v", err)
	}

	got, err := s.GetSnapshot("a.com", "https://a.com/app.js", "h1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("snapshot = %q", got)
	}

	if _, err := s.GetSnapshot("a.com", "https://a.com/app.js", "h2"); !errors.Is(err, sharedErrors.ErrRecordNotFound) {
		t.Fatalf("got %v, want ErrRecordNotFound", err)
	}
}

func TestFingerprintRoundTrip(t *testing.T) {
	s := openTestStore(t)
	observed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	recs := []FingerprintRecord{
		{Domain: "a.com", URL: "https://a.com/b.js", Signatures: []string{"fn b"}, Imports: []string{"import y"}, NormalizedHash: "hb", CodeLength: 20, ObservedAt: observed},
		{Domain: "a.com", URL: "https://a.com/a.js", Signatures: []string{"fn a"}, Imports: nil, NormalizedHash: "ha", CodeLength: 10, ObservedAt: observed},
	}
	for _, rec := range recs {
		if err := s.SaveFingerprint(rec); err != nil {
			t.Fatalf("save fingerprint: %v", err)
		}
	}

	got, err := s.ListFingerprints("a.com")
	if err != nil {
		t.Fatalf("list fingerprints: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("count = %d, want 2", len(got))
	}
	// Ordered by url for a stable clustering order.
	if got[0].URL != "https://a.com/a.js" || got[1].URL != "https://a.com/b.js" {
		t.Fatalf("order wrong: %s, %s", got[0].URL, got[1].URL)
	}
	if got[1].Signatures[0] != "fn b" || got[1].Imports[0] != "import y" {
		t.Fatalf("sets lost in round trip: %+v", got[1])
	}

	// Replacing a url's fingerprint keeps one row.
	recs[0].NormalizedHash = "hb2"
	if err := s.SaveFingerprint(recs[0]); err != nil {
		t.Fatalf("replace fingerprint: %v", err)
	}
	got, _ = s.ListFingerprints("a.com")
	if len(got) != 2 || got[1].NormalizedHash != "hb2" {
		t.Fatalf("upsert failed: %+v", got)
	}
}

func TestSaveEndpointsKeepsHigherConfidence(t *testing.T) {
	s := openTestStore(t)
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	low := EndpointRecord{Domain: "a.com", Endpoint: "/api/users", Category: "line-context", Confidence: "LOW", SourceFile: "app.js", Line: 10, FirstSeen: seen}
	if err := s.SaveEndpoints("a.com", []EndpointRecord{low}); err != nil {
		t.Fatalf("save low: %v", err)
	}

	high := EndpointRecord{Domain: "a.com", Endpoint: "/api/users", Method: "GET", Category: "network-call", Confidence: "HIGH", SourceFile: "app.js", Line: 3, FirstSeen: seen.Add(time.Hour)}
	if err := s.SaveEndpoints("a.com", []EndpointRecord{high}); err != nil {
		t.Fatalf("save high: %v", err)
	}

	got, err := s.ListEndpoints("a.com")
	if err != nil {
		t.Fatalf("list endpoints: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("count = %d, want 1", len(got))
	}
	if got[0].Confidence != "HIGH" || got[0].Method != "GET" {
		t.Fatalf("upgrade lost: %+v", got[0])
	}
	if !got[0].FirstSeen.Equal(seen) {
		t.Fatalf("first_seen must survive upgrades, got %s", got[0].FirstSeen)
	}

	// A later lower-confidence sighting never downgrades.
	if err := s.SaveEndpoints("a.com", []EndpointRecord{low}); err != nil {
		t.Fatalf("save low again: %v", err)
	}
	got, _ = s.ListEndpoints("a.com")
	if got[0].Confidence != "HIGH" {
		t.Fatalf("downgraded to %s", got[0].Confidence)
	}
}

func TestSaveEndpointsTieFavorsResolvedCalls(t *testing.T) {
	s := openTestStore(t)
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// The same endpoint can surface in two files at equal confidence: first
	// as a static path literal, later as a resolved network call carrying a
	// method. The call variant must win the row.
	literal := EndpointRecord{Domain: "a.com", Endpoint: "/api/x", Category: "path-literal", Confidence: "MEDIUM", SourceFile: "routes.js", Line: 7, FirstSeen: seen}
	if err := s.SaveEndpoints("a.com", []EndpointRecord{literal}); err != nil {
		t.Fatalf("save literal: %v", err)
	}

	call := EndpointRecord{Domain: "a.com", Endpoint: "/api/x", Method: "POST", Category: "network-call", Confidence: "MEDIUM", SourceFile: "client.js", Line: 42, FirstSeen: seen.Add(time.Minute)}
	if err := s.SaveEndpoints("a.com", []EndpointRecord{call}); err != nil {
		t.Fatalf("save call: %v", err)
	}

	got, err := s.ListEndpoints("a.com")
	if err != nil {
		t.Fatalf("list endpoints: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("count = %d, want 1", len(got))
	}
	if got[0].Category != "network-call" || got[0].Method != "POST" {
		t.Fatalf("equal-confidence call sighting lost: %+v", got[0])
	}

	// Seeing the literal again must not flip the row back.
	if err := s.SaveEndpoints("a.com", []EndpointRecord{literal}); err != nil {
		t.Fatalf("save literal again: %v", err)
	}
	got, _ = s.ListEndpoints("a.com")
	if got[0].Category != "network-call" {
		t.Fatalf("reverted to %s", got[0].Category)
	}
}

func TestTrimFilesCascades(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, url := range []string{"https://a.com/1.js", "https://a.com/2.js", "https://a.com/3.js"} {
		observed := base.Add(time.Duration(i) * time.Hour)
		if err := s.SaveSnapshot("a.com", url, "h", []byte("x")); err != nil {
			t.Fatalf("snapshot %s: %v", url, err)
		}
		if err := s.SetContentHash("a.com", url, "h", 1, observed); err != nil {
			t.Fatalf("hash %s: %v", url, err)
		}
		if err := s.SaveFingerprint(FingerprintRecord{Domain: "a.com", URL: url, NormalizedHash: "h", ObservedAt: observed}); err != nil {
			t.Fatalf("fingerprint %s: %v", url, err)
		}
	}

	n, err := s.TrimFiles("a.com", 2)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 1 {
		t.Fatalf("trimmed = %d, want 1", n)
	}

	// The oldest url goes, along with its fingerprint and snapshot.
	if _, err := s.GetContentRecord("a.com", "https://a.com/1.js"); !errors.Is(err, sharedErrors.ErrRecordNotFound) {
		t.Fatalf("oldest record kept: %v", err)
	}
	if _, err := s.GetSnapshot("a.com", "https://a.com/1.js", "h"); !errors.Is(err, sharedErrors.ErrRecordNotFound) {
		t.Fatalf("orphan snapshot kept: %v", err)
	}
	fps, _ := s.ListFingerprints("a.com")
	if len(fps) != 2 {
		t.Fatalf("fingerprints = %d, want 2", len(fps))
	}

	// Zero disables trimming.
	if n, err := s.TrimFiles("a.com", 0); err != nil || n != 0 {
		t.Fatalf("trim with max 0: n=%d err=%v", n, err)
	}
}

func TestTrimEndpoints(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, ep := range []string{"/api/a", "/api/b", "/api/c"} {
		rec := EndpointRecord{Domain: "a.com", Endpoint: ep, Category: "path-literal", Confidence: "MEDIUM", FirstSeen: base.Add(time.Duration(i) * time.Hour)}
		if err := s.SaveEndpoints("a.com", []EndpointRecord{rec}); err != nil {
			t.Fatalf("save %s: %v", ep, err)
		}
	}

	n, err := s.TrimEndpoints("a.com", 2)
	if err != nil || n != 1 {
		t.Fatalf("trim: n=%d err=%v", n, err)
	}
	got, _ := s.ListEndpoints("a.com")
	if len(got) != 2 {
		t.Fatalf("endpoints = %d, want 2", len(got))
	}
	for _, rec := range got {
		if rec.Endpoint == "/api/a" {
			t.Fatal("oldest endpoint should have been trimmed")
		}
	}
}

func TestDomains(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	for _, d := range []string{"b.com", "a.com", "a.com"} {
		if err := s.SetContentHash(d, "https://"+d+"/app.js", "h", 1, now); err != nil {
			t.Fatalf("set hash: %v", err)
		}
	}

	domains, err := s.Domains()
	if err != nil {
		t.Fatalf("domains: %v", err)
	}
	if len(domains) != 2 || domains[0] != "a.com" || domains[1] != "b.com" {
		t.Fatalf("domains = %v", domains)
	}
}
