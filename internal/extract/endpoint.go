package extract

// Confidence buckets an extracted candidate by how likely it is to be a real
// network endpoint.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

// Category identifies which extraction rule produced a candidate.
type Category string

const (
	CategoryNetworkCall    Category = "network-call"
	CategoryWebSocket      Category = "websocket"
	CategoryAbsoluteURL    Category = "absolute-url"
	CategoryHTTPCall       Category = "http-call"
	CategoryFetch          Category = "fetch"
	CategoryRouter         Category = "router"
	CategoryResolvedString Category = "resolved-string"
	CategoryPathLiteral    Category = "path-literal"
	CategoryConfigKey      Category = "config-key"
	CategoryConcat         Category = "concat"
	CategorySplitString    Category = "split-string"
	CategoryLineContext    Category = "line-context"
	CategoryCustom         Category = "custom"
)

// resolvedCallCategories are preferred over static literals when a dedup tie
// has to be broken.
var resolvedCallCategories = map[Category]bool{
	CategoryNetworkCall: true,
	CategoryFetch:       true,
	CategoryHTTPCall:    true,
}

// Endpoint is one deduplicated candidate network endpoint extracted from a
// file.
type Endpoint struct {
	URL        string     `json:"url"`
	Method     string     `json:"method,omitempty"`
	Category   Category   `json:"category"`
	Confidence Confidence `json:"confidence"`
	SourceFile string     `json:"source_file"`
	Line       int        `json:"line"`

	score int
}

// MergeEndpoints keeps the higher-confidence variant of two endpoints with
// the same url. The function is total and commutative: ties are broken toward
// resolved network-call categories, then by raw score, then by a fixed
// lexicographic order so the winner never depends on argument order.
func MergeEndpoints(a, b Endpoint) Endpoint {
	if a.Confidence.rank() != b.Confidence.rank() {
		if a.Confidence.rank() > b.Confidence.rank() {
			return a
		}
		return b
	}
	if resolvedCallCategories[a.Category] != resolvedCallCategories[b.Category] {
		if resolvedCallCategories[a.Category] {
			return a
		}
		return b
	}
	if a.score != b.score {
		if a.score > b.score {
			return a
		}
		return b
	}
	if a.Category != b.Category {
		if a.Category < b.Category {
			return a
		}
		return b
	}
	if a.Method != b.Method {
		if a.Method < b.Method {
			return a
		}
		return b
	}
	return a
}

// Summary aggregates extracted endpoints for one domain.
type Summary struct {
	Total        int            `json:"total"`
	ByConfidence map[string]int `json:"by_confidence"`
	ByMethod     map[string]int `json:"by_method"`
	ByCategory   map[string]int `json:"by_category"`
}

// Summarize counts endpoints by confidence, method and category.
func Summarize(endpoints []Endpoint) Summary {
	s := Summary{
		Total:        len(endpoints),
		ByConfidence: make(map[string]int),
		ByMethod:     make(map[string]int),
		ByCategory:   make(map[string]int),
	}
	for _, ep := range endpoints {
		s.ByConfidence[string(ep.Confidence)]++
		if ep.Method != "" {
			s.ByMethod[ep.Method]++
		}
		s.ByCategory[string(ep.Category)]++
	}
	return s
}
