package extract

import (
	"regexp"
	"strings"
)

// Base scores by category. Resolved network calls, websockets and absolute
// URLs score highest; the line-context fallback scores lowest.
var categoryBaseScore = map[Category]int{
	CategoryNetworkCall:    9,
	CategoryWebSocket:      9,
	CategoryAbsoluteURL:    8,
	CategoryHTTPCall:       8,
	CategoryFetch:          8,
	CategoryRouter:         7,
	CategoryResolvedString: 6,
	CategoryCustom:         6,
	CategoryPathLiteral:    5,
	CategoryConfigKey:      4,
	CategoryConcat:         4,
	CategorySplitString:    3,
	CategoryLineContext:    2,
}

const (
	highThreshold   = 8
	mediumThreshold = 4
)

var versionedPathPattern = regexp.MustCompile(`/v\d+/`)

// contextHints are nearby tokens that raise confidence that a string feeds a
// network call.
var contextHints = []string{"fetch", "axios", "ajax", "request", "xhr", "http"}

// scoreCandidate computes the raw score and confidence bucket for one
// cleaned, validated candidate.
func scoreCandidate(c candidate) (int, Confidence) {
	score := categoryBaseScore[c.category]

	lower := strings.ToLower(c.value)
	if strings.Contains(lower, "/api/") {
		score += 2
	}
	if versionedPathPattern.MatchString(lower) {
		score += 2
	}
	if strings.Contains(lower, "graphql") {
		score += 2
	}

	ctx := strings.ToLower(c.context)
	for _, hint := range contextHints {
		if strings.Contains(ctx, hint) {
			score++
			break
		}
	}

	switch {
	case score >= highThreshold:
		return score, ConfidenceHigh
	case score >= mediumThreshold:
		return score, ConfidenceMedium
	default:
		return score, ConfidenceLow
	}
}
