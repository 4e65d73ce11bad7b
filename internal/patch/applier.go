// Package patch computes, previews, confirms and commits multi-edit line patches.
//
// All computation works on "\n"-separated text. Line numbers in an edit list always
// refer to the content as it was before any edit of the same list was applied.
package patch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"file-patch-server/internal/models"
)

// ErrMalformedEdit is returned by Apply for edits that cannot denote a line range.
var ErrMalformedEdit = errors.New("malformed edit")

// Apply returns content with every edit applied as if simultaneously.
//
// Edits are applied on a copy sorted by StartLine descending, so a splice never shifts
// the lines of an edit that is still pending. Out-of-range numbers are clamped: a start
// past the end appends, an end past the end removes through the last line. Overlapping
// ranges are the caller's responsibility; their result depends on the order above,
// and edits sharing a StartLine keep the caller's relative order.
func Apply(content string, edits []models.EditSpec) (string, error) {
	for i, e := range edits {
		if e.StartLine < 0 || e.EndLine < 0 {
			return "", fmt.Errorf("%w: edit #%d has a negative line number (start_line=%d, end_line=%d)",
				ErrMalformedEdit, i+1, e.StartLine, e.EndLine)
		}
	}
	if len(edits) == 0 {
		return content, nil
	}

	lines := strings.Split(content, "\n")

	sorted := make([]models.EditSpec, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartLine > sorted[j].StartLine
	})

	for _, e := range sorted {
		start := max(0, e.StartLine-1)
		// Clamp before subtracting so a huge EndLine cannot overflow the count.
		remove := max(0, min(e.EndLine, len(lines))-e.StartLine+1)
		lines = splice(lines, start, remove, splitContent(e.Content))
	}
	return strings.Join(lines, "\n"), nil
}

// CountLines returns the number of lines Apply sees in content. The empty string is one empty line.
func CountLines(content string) int {
	return strings.Count(content, "\n") + 1
}

func splitContent(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// splice removes up to count elements at start and inserts repl there, clamping
// start and count to the slice bounds.
func splice(lines []string, start, count int, repl []string) []string {
	if start > len(lines) {
		start = len(lines)
	}
	if start+count > len(lines) {
		count = len(lines) - start
	}
	out := make([]string, 0, len(lines)-count+len(repl))
	out = append(out, lines[:start]...)
	out = append(out, repl...)
	out = append(out, lines[start+count:]...)
	return out
}
