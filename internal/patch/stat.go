package patch

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"file-patch-server/internal/models"
)

// ComputeStat compares before and after line by line and counts what was added and removed.
// Character counts exclude line separators. Lines are counted the way Apply counts them,
// so the empty string is a single empty line.
func ComputeStat(before, after string) models.DiffStat {
	var stat models.DiffStat
	if before == after {
		return stat
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before+"\n", after+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stat.AddedLines += strings.Count(d.Text, "\n")
			stat.AddedChars += utf8.RuneCountInString(d.Text) - strings.Count(d.Text, "\n")
		case diffmatchpatch.DiffDelete:
			stat.RemovedLines += strings.Count(d.Text, "\n")
			stat.RemovedChars += utf8.RuneCountInString(d.Text) - strings.Count(d.Text, "\n")
		}
	}
	return stat
}
