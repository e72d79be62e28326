package extract

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Line-context fallback patterns: quoted, slash-containing or
// extension-bearing substrings picked up independently of parse success.
var lineScanPatterns = []*regexp2.Regexp{
	regexp2.MustCompile(`["'](/[^"'\s]{2,})["']`, regexp2.None),
	regexp2.MustCompile(`["']([^"'\s]+/[^"'\s]+)["']`, regexp2.None),
	regexp2.MustCompile(`["']([^"'\s]{3,}\.(?:js|json|php|aspx?|jsp|do|action|xml|html?|map))["']`, regexp2.IgnoreCase),
}

// scanLines is the third pass: a lower-confidence per-line scan over every
// non-comment, non-blank line.
func scanLines(lines *lineIndex) []candidate {
	var out []candidate
	seen := make(map[string]bool)

	for i, text := range lines.lines {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || isCommentLine(trimmed) {
			continue
		}

		for _, re := range lineScanPatterns {
			m, err := re.FindStringMatch(trimmed)
			if err != nil {
				continue
			}
			count := 0
			for m != nil && count < matchLimit {
				if groups := m.Groups(); len(groups) > 1 {
					value := groups[1].String()
					if !seen[value] {
						seen[value] = true
						out = append(out, candidate{
							value:    value,
							category: CategoryLineContext,
							line:     i + 1,
							context:  trimmed,
						})
					}
				}
				m, err = re.FindNextMatch(m)
				if err != nil {
					break
				}
				count++
			}
		}
	}

	return out
}

func isCommentLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*")
}
