package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// Fingerprint is the structural summary of one file version, used only for
// similarity comparison, never for change detection.
type Fingerprint struct {
	Signatures     []string `json:"signatures"`
	Imports        []string `json:"imports"`
	NormalizedHash string   `json:"normalized_hash"`
	CodeLength     int      `json:"code_length"`
}

// Structural regexes over declaration forms. These run on raw content; the
// goal is a stable shape summary, not a correct parse.
var (
	functionDeclPattern = regexp.MustCompile(`function\s+([A-Za-z_$][\w$]*)\s*\(([^)]*)\)`)
	assignedFnPattern   = regexp.MustCompile(`(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)
	classDeclPattern    = regexp.MustCompile(`class\s+([A-Za-z_$][\w$]*)`)
	methodDeclPattern   = regexp.MustCompile(`(?m)^\s*(?:async\s+)?([A-Za-z_$][\w$]*)\s*\(([^)]*)\)\s*\{`)

	importPattern  = regexp.MustCompile(`(?m)^\s*(import\s+[^;\n]+)`)
	exportPattern  = regexp.MustCompile(`(?m)^\s*(export\s+[^;\n{(]+)`)
	requirePattern = regexp.MustCompile(`require\s*\(\s*["']([^"']+)["']\s*\)`)

	lineCommentPattern  = regexp.MustCompile(`(?m)//[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// Compute derives the fingerprint for one file version: sorted signature and
// import/export sets plus a comment-and-whitespace normalized content hash.
func Compute(content string) Fingerprint {
	return Fingerprint{
		Signatures:     extractSignatures(content),
		Imports:        extractImports(content),
		NormalizedHash: normalizedHash(content),
		CodeLength:     len(content),
	}
}

func extractSignatures(content string) []string {
	set := make(map[string]bool)

	for _, m := range functionDeclPattern.FindAllStringSubmatch(content, -1) {
		set["function "+m[1]+"("+normalizeParams(m[2])+")"] = true
	}
	for _, m := range assignedFnPattern.FindAllStringSubmatch(content, -1) {
		set["fn "+m[1]] = true
	}
	for _, m := range classDeclPattern.FindAllStringSubmatch(content, -1) {
		set["class "+m[1]] = true
	}
	for _, m := range methodDeclPattern.FindAllStringSubmatch(content, -1) {
		// Keyword-shaped lines (if, for, while ...) match the method form too.
		if isControlKeyword(m[1]) {
			continue
		}
		set["method "+m[1]+"("+normalizeParams(m[2])+")"] = true
	}

	return sortedSet(set)
}

func extractImports(content string) []string {
	set := make(map[string]bool)

	for _, m := range importPattern.FindAllStringSubmatch(content, -1) {
		set[strings.TrimSpace(whitespacePattern.ReplaceAllString(m[1], " "))] = true
	}
	for _, m := range exportPattern.FindAllStringSubmatch(content, -1) {
		set[strings.TrimSpace(whitespacePattern.ReplaceAllString(m[1], " "))] = true
	}
	for _, m := range requirePattern.FindAllStringSubmatch(content, -1) {
		set["require "+m[1]] = true
	}

	return sortedSet(set)
}

// normalizedHash hashes the content with comments stripped and all
// whitespace collapsed, so formatting-only edits compare equal.
func normalizedHash(content string) string {
	normalized := blockCommentPattern.ReplaceAllString(content, "")
	normalized = lineCommentPattern.ReplaceAllString(normalized, "")
	normalized = whitespacePattern.ReplaceAllString(normalized, "")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalizeParams(params string) string {
	parts := strings.Split(params, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

func isControlKeyword(name string) bool {
	switch name {
	case "if", "for", "while", "switch", "catch", "return", "function":
		return true
	}
	return false
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
