package storage

import "time"

// ContentRecord holds the hash of the most recently observed bytes for a url.
// Records are replaced on change and never deleted by the analysis engine;
// only retention trimming removes them.
type ContentRecord struct {
	Domain     string
	URL        string
	Hash       string
	Size       int
	ObservedAt time.Time
}

// FingerprintRecord is one file version's structural summary, used only for
// similarity clustering, never for change detection.
type FingerprintRecord struct {
	Domain         string
	URL            string
	Signatures     []string
	Imports        []string
	NormalizedHash string
	CodeLength     int
	ObservedAt     time.Time
}

// EndpointRecord is one deduplicated endpoint candidate for a domain, keyed by
// the exact endpoint string.
type EndpointRecord struct {
	Domain     string
	Endpoint   string
	Method     string
	Category   string
	Confidence string
	SourceFile string
	Line       int
	FirstSeen  time.Time
}
