package extract

import "strings"

// reservedWords are JavaScript keywords and common literals that regex passes
// routinely capture but that are never endpoints.
var reservedWords = map[string]bool{
	"function": true, "return": true, "typeof": true, "undefined": true,
	"null": true, "true": true, "false": true, "import": true, "export": true,
	"default": true, "const": true, "var": true, "let": true, "this": true,
	"new": true, "class": true, "async": true, "await": true, "void": true,
	"delete": true, "instanceof": true, "use strict": true, "prototype": true,
	"constructor": true, "arguments": true,
}

// endpointKeywords make an otherwise plain string interesting enough to keep.
var endpointKeywords = []string{"api", "auth", "admin", "graphql", "user", "config"}

// endpointExtensions are file extensions that mark a candidate as a fetchable
// resource.
var endpointExtensions = []string{
	".js", ".mjs", ".json", ".xml", ".php", ".asp", ".aspx", ".jsp",
	".do", ".action", ".cgi", ".html", ".htm", ".map", ".txt", ".csv",
	".yaml", ".yml", ".graphql", ".wasm",
}

// CleanCandidate normalizes a raw captured string before validation and
// dedup: surrounding whitespace and quotes go, escaped slashes are unescaped.
// The normalization is idempotent, so a candidate that passes validation
// still passes after being cleaned again.
func CleanCandidate(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"' || first == '`') && first == last {
			s = s[1 : len(s)-1]
			continue
		}
		break
	}
	s = strings.ReplaceAll(s, `\/`, "/")
	return strings.TrimSpace(s)
}

// IsValidCandidate is the validity predicate applied to every candidate
// string, regardless of which pass produced it. Exclusion rules run first,
// then the inclusion test. It is a pure function of the candidate, and it
// normalizes its input first so validity is stable under CleanCandidate.
func IsValidCandidate(s string) bool {
	s = CleanCandidate(s)
	if len(s) < 3 {
		return false
	}

	lower := strings.ToLower(s)
	if reservedWords[lower] {
		return false
	}

	digits, letters, other := 0, 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letters++
		default:
			other++
		}
	}
	if digits == len(s) || letters == len(s) {
		return false
	}
	if digits+letters == 0 {
		// Pure punctuation/whitespace.
		return false
	}

	// Inclusion test.
	if strings.HasPrefix(s, "/") {
		return true
	}
	if isAbsoluteURL(lower) {
		return true
	}
	for _, ext := range endpointExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	if strings.Contains(s, "/") {
		return true
	}
	for _, kw := range endpointKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if hasTemplatePlaceholder(s) {
		return true
	}

	return false
}

func isAbsoluteURL(lower string) bool {
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://")
}

func hasTemplatePlaceholder(s string) bool {
	if strings.Contains(s, "${") {
		return true
	}
	if open := strings.IndexByte(s, '{'); open >= 0 && strings.IndexByte(s[open:], '}') > 0 {
		return true
	}
	return strings.Contains(s, "/:")
}
