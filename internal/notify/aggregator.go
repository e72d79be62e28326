package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMinInterval is the minimum gap between two deliveries of the same
// batch signature.
const DefaultMinInterval = 5 * time.Minute

// EventKind classifies one per-file outcome buffered for the cycle summary.
type EventKind string

const (
	EventNewFile        EventKind = "new-file"
	EventChangedFile    EventKind = "changed-file"
	EventError          EventKind = "error"
	EventEndpointsFound EventKind = "endpoints-found"
)

// Event is one per-file outcome from the current cycle.
type Event struct {
	Kind   EventKind `json:"kind"`
	Domain string    `json:"domain"`
	URL    string    `json:"url"`

	Added    int `json:"added,omitempty"`
	Removed  int `json:"removed,omitempty"`
	Sections int `json:"sections,omitempty"`

	EndpointCount int `json:"endpoint_count,omitempty"`
	HighCount     int `json:"high_count,omitempty"`

	ErrKind string `json:"err_kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// DomainSummary groups one domain's events inside a batch.
type DomainSummary struct {
	Domain       string  `json:"domain"`
	NewFiles     []Event `json:"new_files,omitempty"`
	ChangedFiles []Event `json:"changed_files,omitempty"`
	Errors       []Event `json:"errors,omitempty"`
	Endpoints    []Event `json:"endpoints,omitempty"`
}

// Batch is one cycle's grouped summary, ready for transport serialization.
type Batch struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Domains     []DomainSummary `json:"domains"`
}

// Transport delivers one batch to the outbound channel.
type Transport interface {
	Deliver(ctx context.Context, batch *Batch) error
}

// Aggregator buffers per-file outcomes for one crawl cycle and flushes a
// single deduplicated, rate-limit-aware summary at cycle end.
//
// AddEvent is safe under concurrent access from all in-flight per-URL tasks;
// Flush is a single serialized step at cycle end.
type Aggregator struct {
	mu          sync.Mutex
	events      []Event
	lastSig     string
	lastSentAt  time.Time
	notBefore   time.Time
	minInterval time.Duration

	transport Transport
	log       *zap.SugaredLogger
	now       func() time.Time
}

// NewAggregator builds an Aggregator. minInterval <= 0 selects the default.
// A nil transport turns Flush into a counted no-op.
func NewAggregator(transport Transport, minInterval time.Duration, log *zap.SugaredLogger) *Aggregator {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Aggregator{
		transport:   transport,
		minInterval: minInterval,
		log:         log,
		now:         time.Now,
	}
}

// AddEvent appends one outcome to the cycle buffer. It never blocks on
// delivery.
func (a *Aggregator) AddEvent(ev Event) {
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.mu.Unlock()
}

// Pending reports how many events are buffered.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

// Flush builds the cycle summary and attempts delivery. It reports whether a
// send happened. The buffer is cleared after any attempt, sent or
// suppressed; a rate-limit deadline requeues the events instead.
func (a *Aggregator) Flush(ctx context.Context) (bool, error) {
	a.mu.Lock()
	events := a.events
	a.events = nil
	a.mu.Unlock()

	if len(events) == 0 {
		return false, nil
	}

	now := a.now()

	if now.Before(a.notBefore) {
		a.requeue(events)
		a.log.Infow("delivery deferred by rate limit", "not_before", a.notBefore)
		return false, nil
	}

	sig := signature(events)
	if sig == a.lastSig && now.Sub(a.lastSentAt) < a.minInterval {
		// Duplicate summary from a retried or overlapping cycle.
		a.log.Debugw("duplicate batch suppressed", "signature", sig)
		return false, nil
	}

	if a.transport == nil {
		a.log.Debugw("no transport configured, dropping batch", "events", len(events))
		return false, nil
	}

	batch := buildBatch(events, now)
	err := a.transport.Deliver(ctx, batch)
	if err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			a.notBefore = now.Add(rl.RetryAfter)
			a.requeue(events)
			a.log.Warnw("delivery rate limited", "retry_after", rl.RetryAfter)
			return false, nil
		}
		a.log.Warnw("delivery failed", "error", err)
		return false, err
	}

	a.lastSig = sig
	a.lastSentAt = now
	return true, nil
}

func (a *Aggregator) requeue(events []Event) {
	a.mu.Lock()
	a.events = append(events, a.events...)
	a.mu.Unlock()
}

// buildBatch groups events by domain into one summary.
func buildBatch(events []Event, now time.Time) *Batch {
	byDomain := make(map[string]*DomainSummary)
	var order []string
	for _, ev := range events {
		ds, ok := byDomain[ev.Domain]
		if !ok {
			ds = &DomainSummary{Domain: ev.Domain}
			byDomain[ev.Domain] = ds
			order = append(order, ev.Domain)
		}
		switch ev.Kind {
		case EventNewFile:
			ds.NewFiles = append(ds.NewFiles, ev)
		case EventChangedFile:
			ds.ChangedFiles = append(ds.ChangedFiles, ev)
		case EventError:
			ds.Errors = append(ds.Errors, ev)
		case EventEndpointsFound:
			ds.Endpoints = append(ds.Endpoints, ev)
		}
	}
	sort.Strings(order)

	batch := &Batch{
		ID:          uuid.NewString(),
		GeneratedAt: now.UTC(),
	}
	for _, d := range order {
		batch.Domains = append(batch.Domains, *byDomain[d])
	}
	return batch
}

// signature computes a deterministic hash over the batch's semantic content:
// per-item kind, domain, url and counts, never timestamps. Any stable hash
// works here; only determinism across repeated runs matters.
func signature(events []Event) string {
	items := make([]string, 0, len(events))
	for _, ev := range events {
		items = append(items, fmt.Sprintf("%s|%s|%s|%d|%d|%d|%d|%s",
			ev.Kind, ev.Domain, ev.URL, ev.Added, ev.Removed, ev.Sections, ev.EndpointCount, ev.ErrKind))
	}
	sort.Strings(items)
	sum := sha256.Sum256([]byte(strings.Join(items, "\n")))
	return hex.EncodeToString(sum[:])
}
