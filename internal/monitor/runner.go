package monitor

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CycleReport summarizes one completed monitoring cycle.
type CycleReport struct {
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration
	Targets   int
	Files     int
	NewFiles  int
	Changed   int
	Errors    int
	Flushed   bool
}

// Runner executes monitoring cycles: crawl every target, feed each observed
// script through the engine, then cluster and flush per cycle.
type Runner struct {
	engine      *Engine
	driver      Driver
	log         *zap.SugaredLogger
	concurrency int
}

// NewRunner wires a runner. concurrency <= 0 selects a small default.
func NewRunner(engine *Engine, driver Driver, concurrency int, log *zap.SugaredLogger) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{
		engine:      engine,
		driver:      driver,
		log:         log,
		concurrency: concurrency,
	}
}

// RunCycle crawls all targets once. Crawl cancellation stops submission of
// new payloads; payloads already handed to the engine finish their analysis.
// A failing target never aborts its siblings.
func (r *Runner) RunCycle(ctx context.Context, targets []string) (CycleReport, error) {
	report := CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Targets:   len(targets),
	}
	r.log.Infow("cycle started", "cycle_id", report.CycleID, "targets", len(targets))

	var mu sync.Mutex
	domains := map[string]struct{}{}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)

	for _, target := range targets {
		target := target
		group.Go(func() error {
			err := r.driver.Crawl(groupCtx, target, func(p Payload) {
				// Analysis runs to completion even when the crawl context
				// is already cancelled.
				outcome := r.engine.Process(context.WithoutCancel(groupCtx), p)
				mu.Lock()
				report.Files++
				if outcome.Err != nil {
					report.Errors++
				} else if outcome.Change != nil {
					if outcome.Change.IsNew {
						report.NewFiles++
					} else if outcome.Change.Changed {
						report.Changed++
					}
				}
				domains[p.Domain] = struct{}{}
				mu.Unlock()
			})
			if err != nil && groupCtx.Err() == nil {
				r.log.Warnw("target crawl failed", "target", target, "error", err)
			}
			return nil
		})
	}
	_ = group.Wait()

	for _, domain := range sortedKeys(domains) {
		if _, err := r.engine.ClusterDomain(domain); err != nil {
			r.log.Warnw("clustering failed", "domain", domain, "error", err)
		}
	}

	sent, err := r.engine.Flush(ctx)
	if err != nil {
		r.log.Warnw("batch delivery failed", "cycle_id", report.CycleID, "error", err)
	}
	report.Flushed = sent
	report.Duration = time.Since(report.StartedAt)

	r.log.Infow("cycle finished",
		"cycle_id", report.CycleID,
		"files", report.Files,
		"new", report.NewFiles,
		"changed", report.Changed,
		"errors", report.Errors,
		"duration", report.Duration,
	)
	return report, ctx.Err()
}

// RunLoop repeats cycles at the given interval until the context is done.
func (r *Runner) RunLoop(ctx context.Context, targets []string, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunCycle(ctx, targets); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DomainOf extracts the registrable host of a target for reporting.
func DomainOf(target string) string {
	u, err := url.Parse(normalizeTarget(target))
	if err != nil {
		return strings.TrimSpace(target)
	}
	return u.Hostname()
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
