package patch

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"file-patch-server/internal/models"
)

const (
	// DefaultDiffContext is the number of unchanged lines shown around each hunk.
	DefaultDiffContext = 3
	// DefaultSnippetContext is the number of lines shown around the first change in a snippet.
	DefaultSnippetContext = 4
	// DefaultSnippetMaxLines bounds the length of a snippet.
	DefaultSnippetMaxLines = 40
)

// Preview is a unified diff and its statistics.
type Preview struct {
	UnifiedDiff string
	Stat        models.DiffStat
}

// PreviewOption configures a Previewer.
type PreviewOption func(*Previewer)

// WithDiffContext sets the number of context lines around each hunk. Negative values are ignored.
func WithDiffContext(n int) PreviewOption {
	return func(p *Previewer) {
		if n >= 0 {
			p.context = n
		}
	}
}

// WithSnippetMaxLines bounds snippets to n lines. Values below 1 are ignored.
func WithSnippetMaxLines(n int) PreviewOption {
	return func(p *Previewer) {
		if n > 0 {
			p.snippetMaxLines = n
		}
	}
}

// Previewer renders changes for humans and agents.
type Previewer struct {
	context         int
	snippetMaxLines int
}

// NewPreviewer returns a Previewer with the default context sizes.
func NewPreviewer(opts ...PreviewOption) *Previewer {
	p := &Previewer{context: DefaultDiffContext, snippetMaxLines: DefaultSnippetMaxLines}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preview returns the unified diff between before and after, with the sides labelled
// "Current" and "Proposed", and the line statistics of the same comparison.
// The diff is empty when nothing changed.
func (p *Previewer) Preview(before, after, label string) (Preview, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: label,
		FromDate: "Current",
		ToFile:   label,
		ToDate:   "Proposed",
		Context:  p.context,
	})
	if err != nil {
		return Preview{}, fmt.Errorf("rendering diff for %s: %w", label, err)
	}
	return Preview{UnifiedDiff: diff, Stat: ComputeStat(before, after)}, nil
}

// Snippet returns a numbered excerpt of after around the first changed region, with
// contextLines lines on either side. Excerpts longer than the configured maximum are
// cut and end with an ellipsis line. It returns "" when before and after are equal.
func (p *Previewer) Snippet(before, after string, contextLines int) string {
	if before == after {
		return ""
	}
	if contextLines < 0 {
		contextLines = 0
	}
	oldLines := strings.Split(before, "\n")
	newLines := strings.Split(after, "\n")

	var first *difflib.OpCode
	for _, op := range difflib.NewMatcher(oldLines, newLines).GetOpCodes() {
		if op.Tag != 'e' {
			first = &op
			break
		}
	}
	if first == nil {
		return ""
	}

	from := max(0, first.J1-contextLines)
	to := min(len(newLines), max(first.J2, first.J1+1)+contextLines)

	width := len(fmt.Sprint(to))
	var b strings.Builder
	for i := from; i < to; i++ {
		if i-from == p.snippetMaxLines {
			b.WriteString("...\n")
			break
		}
		fmt.Fprintf(&b, "%*d | %s\n", width, i+1, newLines[i])
	}
	return strings.TrimSuffix(b.String(), "\n")
}
