package util

import (
	"regexp"
	"strings"
)

var reCitation = regexp.MustCompile(`\[\[([^][]+)\]\]`)

// CollapseWhitespace folds runs of whitespace (including newlines) into
// single spaces and trims the result. Used when flattening generated text
// and evidence snippets into one-line form.
func CollapseWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// SanitizeText strips invalid UTF-8 and NUL bytes. Extracted PDF text
// regularly contains both.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}
	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// ExtractCitations returns the unique [[chunk_id]] markers in a generated
// answer, in first-occurrence order.
func ExtractCitations(answer string) []string {
	matches := reCitation.FindAllStringSubmatch(answer, -1)
	seen := make(map[string]bool, len(matches))
	var ids []string
	for _, match := range matches {
		id := strings.TrimSpace(match[1])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// TruncateRunes shortens s to at most n runes, appending an ellipsis when
// anything was cut.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
