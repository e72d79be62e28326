package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jswatch/jswatch/internal/detect"
	"github.com/jswatch/jswatch/internal/extract"
	"github.com/jswatch/jswatch/internal/fingerprint"
	"github.com/jswatch/jswatch/internal/notify"
	sharedErrors "github.com/jswatch/jswatch/internal/shared/errors"
	"github.com/jswatch/jswatch/internal/storage"
)

// Config carries the engine's runtime settings.
type Config struct {
	SimilarityThreshold   float64
	MaxSectionLines       int
	MaxFilesPerDomain     int
	MaxEndpointsPerDomain int
	CustomPatterns        []extract.CustomPattern
}

// Payload is one observed JavaScript resource handed over by the crawl
// driver. It is ephemeral and consumed immediately.
type Payload struct {
	Domain      string
	URL         string
	Body        []byte
	ContentType string
	ObservedAt  time.Time
}

// FileOutcome is the per-file result of one engine invocation.
type FileOutcome struct {
	Change    *detect.ChangeResult
	Endpoints []extract.Endpoint
	Err       error
}

// Engine runs the per-payload analysis pipeline: change classification,
// endpoint extraction, fingerprinting and notification buffering.
//
// Process may be invoked concurrently for distinct (domain, url) pairs; a
// per-domain mutex serializes the store read-modify-write so two concurrent
// observations of the same url cannot race on the hash update.
type Engine struct {
	store      *storage.Store
	detector   *detect.Detector
	extractor  *extract.Extractor
	aggregator *notify.Aggregator
	log        *zap.SugaredLogger
	cfg        Config

	mu          sync.Mutex
	domainLocks map[string]*sync.Mutex
}

// NewEngine wires the analysis components around one store and aggregator.
func NewEngine(store *storage.Store, aggregator *notify.Aggregator, log *zap.SugaredLogger, cfg Config) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = fingerprint.DefaultSimilarityThreshold
	}
	return &Engine{
		store:       store,
		detector:    detect.NewDetector(store, log, cfg.MaxSectionLines),
		extractor:   extract.NewExtractor(log),
		aggregator:  aggregator,
		log:         log,
		cfg:         cfg,
		domainLocks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) domainLock(domain string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.domainLocks[domain]
	if !ok {
		lock = &sync.Mutex{}
		e.domainLocks[domain] = lock
	}
	return lock
}

// Process analyzes one payload. Failures are isolated: they are buffered as
// error events and returned in the outcome, never propagated in a way that
// would abort sibling files.
func (e *Engine) Process(ctx context.Context, p Payload) *FileOutcome {
	outcome := &FileOutcome{}

	lock := e.domainLock(p.Domain)
	lock.Lock()
	change, err := e.detector.Classify(p.Domain, p.URL, p.Body)
	lock.Unlock()
	if err != nil {
		outcome.Err = e.addError(p, "payload", err)
		return outcome
	}
	outcome.Change = change

	if !change.IsNew && !change.Changed {
		return outcome
	}

	endpoints, err := e.extractor.Extract(ctx, string(p.Body), p.URL, e.cfg.CustomPatterns)
	if err != nil {
		// Extraction trouble does not invalidate the change result.
		e.addError(p, "extract", err)
	} else {
		outcome.Endpoints = endpoints
	}

	fp := fingerprint.Compute(string(p.Body))
	lock.Lock()
	err = e.store.SaveFingerprint(storage.FingerprintRecord{
		Domain:         p.Domain,
		URL:            p.URL,
		Signatures:     fp.Signatures,
		Imports:        fp.Imports,
		NormalizedHash: fp.NormalizedHash,
		CodeLength:     fp.CodeLength,
		ObservedAt:     p.ObservedAt,
	})
	lock.Unlock()
	if err != nil {
		e.addError(p, "store", err)
	}

	if len(outcome.Endpoints) > 0 {
		if err := e.saveEndpoints(p, outcome.Endpoints); err != nil {
			e.addError(p, "store", err)
		}
	}

	e.trim(p.Domain)
	e.buffer(p, outcome)

	return outcome
}

func (e *Engine) saveEndpoints(p Payload, endpoints []extract.Endpoint) error {
	recs := make([]storage.EndpointRecord, 0, len(endpoints))
	for _, ep := range endpoints {
		recs = append(recs, storage.EndpointRecord{
			Domain:     p.Domain,
			Endpoint:   ep.URL,
			Method:     ep.Method,
			Category:   string(ep.Category),
			Confidence: string(ep.Confidence),
			SourceFile: ep.SourceFile,
			Line:       ep.Line,
			FirstSeen:  p.ObservedAt,
		})
	}
	return e.store.SaveEndpoints(p.Domain, recs)
}

func (e *Engine) trim(domain string) {
	if n, err := e.store.TrimFiles(domain, e.cfg.MaxFilesPerDomain); err != nil {
		e.log.Warnw("file retention trim failed", "domain", domain, "error", err)
	} else if n > 0 {
		e.log.Debugw("trimmed old file records", "domain", domain, "removed", n)
	}
	if n, err := e.store.TrimEndpoints(domain, e.cfg.MaxEndpointsPerDomain); err != nil {
		e.log.Warnw("endpoint retention trim failed", "domain", domain, "error", err)
	} else if n > 0 {
		e.log.Debugw("trimmed old endpoints", "domain", domain, "removed", n)
	}
}

func (e *Engine) buffer(p Payload, outcome *FileOutcome) {
	if e.aggregator == nil {
		return
	}
	change := outcome.Change
	if change.IsNew {
		e.aggregator.AddEvent(notify.Event{
			Kind:   notify.EventNewFile,
			Domain: p.Domain,
			URL:    p.URL,
		})
	} else if change.Changed {
		e.aggregator.AddEvent(notify.Event{
			Kind:     notify.EventChangedFile,
			Domain:   p.Domain,
			URL:      p.URL,
			Added:    change.Stats.AddedLines,
			Removed:  change.Stats.RemovedLines,
			Sections: change.Sections.Count(),
		})
	}
	if len(outcome.Endpoints) > 0 {
		high := 0
		for _, ep := range outcome.Endpoints {
			if ep.Confidence == extract.ConfidenceHigh {
				high++
			}
		}
		e.aggregator.AddEvent(notify.Event{
			Kind:          notify.EventEndpointsFound,
			Domain:        p.Domain,
			URL:           p.URL,
			EndpointCount: len(outcome.Endpoints),
			HighCount:     high,
		})
	}
}

func (e *Engine) addError(p Payload, kind string, err error) *sharedErrors.PayloadError {
	perr := sharedErrors.NewPayloadError(p.URL, kind, err)
	e.log.Warnw("payload processing failed", "domain", p.Domain, "url", p.URL, "kind", kind, "error", err)
	if e.aggregator == nil {
		return perr
	}
	e.aggregator.AddEvent(notify.Event{
		Kind:    notify.EventError,
		Domain:  p.Domain,
		URL:     p.URL,
		ErrKind: kind,
		Message: perr.Message,
	})
	return perr
}

// ClusterDomain recomputes the similarity partition for every stored file
// version of a domain. It takes the domain lock, so it never interleaves
// with concurrent fingerprint writes.
func (e *Engine) ClusterDomain(domain string) (fingerprint.Result, error) {
	lock := e.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	recs, err := e.store.ListFingerprints(domain)
	if err != nil {
		return fingerprint.Result{}, err
	}
	files := make([]fingerprint.FileVersion, 0, len(recs))
	for _, rec := range recs {
		files = append(files, fingerprint.FileVersion{
			URL: rec.URL,
			FP: fingerprint.Fingerprint{
				Signatures:     rec.Signatures,
				Imports:        rec.Imports,
				NormalizedHash: rec.NormalizedHash,
				CodeLength:     rec.CodeLength,
			},
		})
	}
	return fingerprint.ClusterFiles(files, e.cfg.SimilarityThreshold), nil
}

// EndpointSummary aggregates the stored endpoints of a domain by confidence,
// method and category.
func (e *Engine) EndpointSummary(domain string) (extract.Summary, error) {
	recs, err := e.store.ListEndpoints(domain)
	if err != nil {
		return extract.Summary{}, err
	}
	endpoints := make([]extract.Endpoint, 0, len(recs))
	for _, rec := range recs {
		endpoints = append(endpoints, extract.Endpoint{
			URL:        rec.Endpoint,
			Method:     rec.Method,
			Category:   extract.Category(rec.Category),
			Confidence: extract.Confidence(rec.Confidence),
			SourceFile: rec.SourceFile,
			Line:       rec.Line,
		})
	}
	return extract.Summarize(endpoints), nil
}

// Flush delivers the cycle's notification batch.
func (e *Engine) Flush(ctx context.Context) (bool, error) {
	if e.aggregator == nil {
		return false, nil
	}
	return e.aggregator.Flush(ctx)
}
