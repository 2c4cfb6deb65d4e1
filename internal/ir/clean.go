package ir

import (
	"regexp"
	"strings"
)

// ByteOrderMark is the U+FEFF character that spreadsheet exports leave in
// headers and cells.
const ByteOrderMark = "\ufeff"

var (
	newlineRuns = regexp.MustCompile(`\n+`)
	lineBreaks  = regexp.MustCompile(`[\r\n]+`)
	spaceRuns   = regexp.MustCompile(` +`)
)

// CleanField removes byte order marks and surrounding whitespace.
// It is the normalization every field goes through before equality checks.
func CleanField(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ByteOrderMark, ""))
}

// CleanCell applies the source cleansing rules to one input cell:
// runs of newlines become a single comma, then the result is cleaned
// with CleanField.
func CleanCell(s string) string {
	return CleanField(newlineRuns.ReplaceAllString(strings.TrimSpace(s), ","))
}

// SplitIDs splits a comma separated identifier list into cleaned,
// non-empty identifiers. Order is preserved; duplicates are kept.
func SplitIDs(s string) []string {
	parts := strings.Split(CleanCell(s), ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if id := CleanField(p); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// CollapseLog turns a response body or error message into a single line:
// line breaks are dropped and runs of spaces collapse to one.
func CollapseLog(s string) string {
	return strings.TrimSpace(spaceRuns.ReplaceAllString(lineBreaks.ReplaceAllString(s, ""), " "))
}
