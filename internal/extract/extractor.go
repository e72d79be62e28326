package extract

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Extractor orchestrates the three extraction passes (pattern catalog,
// syntax-tree resolution, line-context fallback) into one deduplicated
// endpoint table.
//
// Extract is safe for concurrent use: the catalog and resolver are
// read-only, and all per-file state is local to the call.
type Extractor struct {
	catalog  *Catalog
	resolver *Resolver
	log      *zap.SugaredLogger
}

// NewExtractor builds an Extractor with the built-in pattern catalog.
func NewExtractor(log *zap.SugaredLogger) *Extractor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Extractor{
		catalog:  NewCatalog(),
		resolver: NewResolver(),
		log:      log,
	}
}

// Extract runs all passes over content and returns the deduplicated,
// confidence-scored endpoint list, ordered by confidence then url. Running
// it twice on identical content yields an identical result.
//
// A syntax parse failure degrades silently to the pattern and line passes.
// No single candidate's failure aborts extraction of the rest of the file.
func (e *Extractor) Extract(ctx context.Context, content, sourceURL string, custom []CustomPattern) ([]Endpoint, error) {
	lines := newLineIndex(content)

	patterns := e.catalog.patterns
	if len(custom) > 0 {
		compiled, err := CompileCustom(custom)
		if err != nil {
			return nil, err
		}
		patterns = append(append([]pattern{}, patterns...), compiled...)
	}

	candidates := matchAll(patterns, content, lines)

	resolved, err := e.resolver.Resolve(ctx, []byte(content), lines)
	if err != nil {
		// ParseDegradation: pattern and line passes still apply.
		e.log.Debugw("syntax pass degraded", "source", sourceURL, "error", err)
	} else {
		candidates = append(candidates, resolved...)
	}

	candidates = append(candidates, scanLines(lines)...)

	table := make(map[string]Endpoint, len(candidates))
	for _, c := range candidates {
		value := CleanCandidate(c.value)
		if value == "" || !IsValidCandidate(value) {
			continue
		}
		score, confidence := scoreCandidate(c)
		ep := Endpoint{
			URL:        value,
			Method:     c.method,
			Category:   c.category,
			Confidence: confidence,
			SourceFile: sourceURL,
			Line:       c.line,
			score:      score,
		}
		if existing, ok := table[value]; ok {
			ep = MergeEndpoints(existing, ep)
		}
		table[value] = ep
	}

	out := make([]Endpoint, 0, len(table))
	for _, ep := range table {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence.rank() != out[j].Confidence.rank() {
			return out[i].Confidence.rank() > out[j].Confidence.rank()
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}
