package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"

	sharedErrors "github.com/jswatch/jswatch/internal/shared/errors"
)

// matchLimit bounds how many matches a single pattern may produce per file,
// so one pathological payload cannot stall a cycle.
const matchLimit = 1000

// pattern is one catalog entry. Patterns with two capture groups are
// fragment pairs (concatenations, split strings) whose pieces are joined into
// one candidate.
type pattern struct {
	re       *regexp2.Regexp
	category Category
	// methodGroup, when non-zero, names the capture group carrying the HTTP
	// verb; urlGroup carries the candidate itself.
	methodGroup int
	urlGroup    int
	secondGroup int
}

// CustomPattern is a user-supplied extraction rule.
type CustomPattern struct {
	Pattern     string `json:"pattern" mapstructure:"pattern"`
	Flags       string `json:"flags,omitempty" mapstructure:"flags"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

// Catalog is the fixed set of endpoint extraction regexes, grouped by
// category.
type Catalog struct {
	patterns []pattern
}

// NewCatalog compiles the built-in pattern catalog.
func NewCatalog() *Catalog {
	mk := func(expr string, opts regexp2.RegexOptions) *regexp2.Regexp {
		return regexp2.MustCompile(expr, opts)
	}
	return &Catalog{patterns: []pattern{
		// HTTP-verb client calls: axios.get("/api/v1/users"), http.post('...')
		{re: mk(`\.(get|post|put|patch|delete|head|options)\s*\(\s*["'`+"`"+`]([^"'`+"`"+`]+)["'`+"`"+`]`, regexp2.IgnoreCase),
			category: CategoryHTTPCall, methodGroup: 1, urlGroup: 2},
		// fetch("/api/...") and $.ajax({url: "..."})
		{re: mk(`\bfetch\s*\(\s*["'`+"`"+`]([^"'`+"`"+`]+)["'`+"`"+`]`, regexp2.IgnoreCase),
			category: CategoryFetch, urlGroup: 1},
		{re: mk(`\$\.ajax\s*\(\s*\{[^}]*?url\s*:\s*["']([^"']+)["']`, regexp2.IgnoreCase|regexp2.Singleline),
			category: CategoryFetch, urlGroup: 1},
		// xhr.open("GET", "/api/...")
		{re: mk(`\.open\s*\(\s*["']([A-Z]+)["']\s*,\s*["']([^"']+)["']`, regexp2.IgnoreCase),
			category: CategoryHTTPCall, methodGroup: 1, urlGroup: 2},
		// Router registrations: app.get('/users', ...), router.post("/login", ...)
		{re: mk(`\b(?:app|router|server)\.(get|post|put|patch|delete|all|use)\s*\(\s*["']([^"']+)["']`, regexp2.IgnoreCase),
			category: CategoryRouter, methodGroup: 1, urlGroup: 2},
		// WebSocket URLs
		{re: mk(`["'`+"`"+`](wss?://[^"'`+"`"+`\s]+)["'`+"`"+`]`, regexp2.IgnoreCase),
			category: CategoryWebSocket, urlGroup: 1},
		{re: mk(`new\s+WebSocket\s*\(\s*["'`+"`"+`]([^"'`+"`"+`]+)["'`+"`"+`]`, regexp2.IgnoreCase),
			category: CategoryWebSocket, urlGroup: 1},
		// Absolute URLs
		{re: mk(`["'](https?://[^"'\s]{4,})["']`, regexp2.IgnoreCase),
			category: CategoryAbsoluteURL, urlGroup: 1},
		// Config keys: API_URL = "...", baseURL: '...', endpoint = "..."
		{re: mk(`\b(?:API|URL|HOST|DOMAIN|ENDPOINT|BASE)_?(?:URL|PATH|PREFIX|URI)?\s*[:=]\s*["']([^"']+)["']`, regexp2.IgnoreCase),
			category: CategoryConfigKey, urlGroup: 1},
		{re: mk(`\b(?:url|endpoint|path|baseURL|basePath)\s*:\s*["']([^"']+)["']`, regexp2.IgnoreCase),
			category: CategoryConfigKey, urlGroup: 1},
		// Path literals
		{re: mk(`["'](/[A-Za-z0-9_\-./]{2,}(?:\?[^"']*)?)["']`, regexp2.None),
			category: CategoryPathLiteral, urlGroup: 1},
		// Naive concatenations: "/api/" + "users"
		{re: mk(`["']([^"']+)["']\s*\+\s*["']([^"']+)["']`, regexp2.None),
			category: CategoryConcat, urlGroup: 1, secondGroup: 2},
		// Obfuscated split strings: "/ap".concat("i/users"), ["/api/","users"].join("")
		{re: mk(`["']([^"']+)["']\s*\.concat\s*\(\s*["']([^"']+)["']`, regexp2.None),
			category: CategorySplitString, urlGroup: 1, secondGroup: 2},
		{re: mk(`\[\s*["']([^"']+)["']\s*,\s*["']([^"']+)["']\s*\]\s*\.join\s*\(\s*["']{2}`, regexp2.None),
			category: CategorySplitString, urlGroup: 1, secondGroup: 2},
	}}
}

// CompileCustom turns user-supplied pattern definitions into catalog entries.
// Patterns must carry exactly one capture group; "i", "m" and "s" flags are
// honored.
func CompileCustom(defs []CustomPattern) ([]pattern, error) {
	var compiled []pattern
	for _, def := range defs {
		if strings.TrimSpace(def.Pattern) == "" {
			return nil, fmt.Errorf("%w: empty pattern (%s)", sharedErrors.ErrInvalidPattern, def.Description)
		}
		opts := regexp2.None
		if strings.Contains(def.Flags, "i") {
			opts |= regexp2.IgnoreCase
		}
		if strings.Contains(def.Flags, "m") {
			opts |= regexp2.Multiline
		}
		if strings.Contains(def.Flags, "s") {
			opts |= regexp2.Singleline
		}
		re, err := regexp2.Compile(def.Pattern, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", sharedErrors.ErrInvalidPattern, def.Pattern, err)
		}
		compiled = append(compiled, pattern{re: re, category: CategoryCustom, urlGroup: 1})
	}
	return compiled, nil
}

// candidate is one raw extraction before validation, scoring and dedup.
type candidate struct {
	value    string
	category Category
	method   string
	line     int
	context  string
}

// matchAll runs every pattern over the content and returns raw candidates.
// A failing pattern is skipped; it never aborts the other patterns.
func matchAll(patterns []pattern, content string, lines *lineIndex) []candidate {
	var out []candidate
	for _, p := range patterns {
		m, err := p.re.FindStringMatch(content)
		if err != nil {
			continue
		}
		count := 0
		for m != nil && count < matchLimit {
			if c, ok := candidateFromMatch(p, m, lines); ok {
				out = append(out, c)
			}
			m, err = p.re.FindNextMatch(m)
			if err != nil {
				break
			}
			count++
		}
	}
	return out
}

func candidateFromMatch(p pattern, m *regexp2.Match, lines *lineIndex) (candidate, bool) {
	groups := m.Groups()
	if p.urlGroup >= len(groups) {
		return candidate{}, false
	}
	value := groups[p.urlGroup].String()
	if p.secondGroup > 0 && p.secondGroup < len(groups) {
		first, second := value, groups[p.secondGroup].String()
		// Fragment pairs only become a candidate when a piece or the joined
		// string independently looks like an endpoint.
		joined := first + second
		if !IsValidCandidate(first) && !IsValidCandidate(second) && !IsValidCandidate(joined) {
			return candidate{}, false
		}
		value = joined
	}
	c := candidate{
		value:    value,
		category: p.category,
		line:     lines.lineAt(m.Index),
		context:  lines.textAt(m.Index),
	}
	if p.methodGroup > 0 && p.methodGroup < len(groups) {
		c.method = strings.ToUpper(groups[p.methodGroup].String())
	}
	return c, true
}

// lineIndex maps byte offsets to 1-based line numbers and line text.
type lineIndex struct {
	starts []int
	lines  []string
}

func newLineIndex(content string) *lineIndex {
	idx := &lineIndex{}
	start := 0
	for i := 0; i <= len(content); i++ {
		if i == len(content) || content[i] == '\n' {
			idx.starts = append(idx.starts, start)
			idx.lines = append(idx.lines, content[start:i])
			start = i + 1
		}
	}
	return idx
}

func (idx *lineIndex) lineAt(offset int) int {
	n := sort.Search(len(idx.starts), func(i int) bool { return idx.starts[i] > offset })
	if n == 0 {
		return 1
	}
	return n
}

func (idx *lineIndex) textAt(offset int) string {
	line := idx.lineAt(offset) - 1
	if line < 0 || line >= len(idx.lines) {
		return ""
	}
	return idx.lines[line]
}
