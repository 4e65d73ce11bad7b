package patch

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-patch-server/internal/models"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		edits   []models.EditSpec
		want    string
	}{
		{
			name:    "no edits",
			content: "a\nb\nc",
			want:    "a\nb\nc",
		},
		{
			name:    "replace a range",
			content: "1\n2\n3\n4\n5",
			edits:   []models.EditSpec{{StartLine: 2, EndLine: 3, Content: "two\nthree"}},
			want:    "1\ntwo\nthree\n4\n5",
		},
		{
			name:    "insert before a line",
			content: "a\nb\nc",
			edits:   []models.EditSpec{{StartLine: 2, EndLine: 1, Content: "X"}},
			want:    "a\nX\nb\nc",
		},
		{
			name:    "delete lines with empty content",
			content: "a\nb\nc",
			edits:   []models.EditSpec{{StartLine: 2, EndLine: 2, Content: ""}},
			want:    "a\nc",
		},
		{
			name:    "replace one line with several",
			content: "a\nb\nc",
			edits:   []models.EditSpec{{StartLine: 3, EndLine: 3, Content: "c1\nc2\nc3"}},
			want:    "a\nb\nc1\nc2\nc3",
		},
		{
			name:    "start line zero replaces from the first line",
			content: "a\nb",
			edits:   []models.EditSpec{{StartLine: 0, EndLine: 0, Content: "top"}},
			want:    "top\nb",
		},
		{
			name:    "start line zero with maximal end line replaces the whole file",
			content: "a\nb\nc",
			edits:   []models.EditSpec{{StartLine: 0, EndLine: math.MaxInt, Content: "X"}},
			want:    "X",
		},
		{
			name:    "maximal end line removes through the last line",
			content: "a\nb\nc",
			edits:   []models.EditSpec{{StartLine: 1, EndLine: math.MaxInt, Content: "X"}},
			want:    "X",
		},
		{
			name:    "maximal end line from the middle",
			content: "a\nb\nc",
			edits:   []models.EditSpec{{StartLine: 2, EndLine: math.MaxInt, Content: "X"}},
			want:    "a\nX",
		},
		{
			name:    "insert at the top",
			content: "a\nb",
			edits:   []models.EditSpec{{StartLine: 1, EndLine: 0, Content: "top"}},
			want:    "top\na\nb",
		},
		{
			name:    "start beyond the end appends",
			content: "a\nb",
			edits:   []models.EditSpec{{StartLine: 10, EndLine: 12, Content: "z"}},
			want:    "a\nb\nz",
		},
		{
			name:    "end beyond the end removes through the last line",
			content: "a\nb\nc",
			edits:   []models.EditSpec{{StartLine: 2, EndLine: 99, Content: "B"}},
			want:    "a\nB",
		},
		{
			name:    "several non-overlapping edits use original numbering",
			content: "1\n2\n3\n4\n5\n6",
			edits: []models.EditSpec{
				{StartLine: 1, EndLine: 1, Content: "one"},
				{StartLine: 3, EndLine: 4, Content: ""},
				{StartLine: 6, EndLine: 5, Content: "five-and-a-half"},
			},
			want: "one\n2\n5\nfive-and-a-half\n6",
		},
		{
			name:    "trailing newline is an empty last line",
			content: "a\nb\n",
			edits:   []models.EditSpec{{StartLine: 3, EndLine: 2, Content: "c"}},
			want:    "a\nb\nc\n",
		},
		{
			name:    "same start line keeps caller order",
			content: "a\nb",
			edits: []models.EditSpec{
				{StartLine: 2, EndLine: 1, Content: "first"},
				{StartLine: 2, EndLine: 1, Content: "second"},
			},
			want: "a\nsecond\nfirst\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.content, tt.edits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_FullReplacement(t *testing.T) {
	for _, content := range []string{"", "x", "a\nb\nc", "a\r\nb", "trailing\n", "\n\n\n"} {
		for _, replacement := range []string{"", "D", "d1\nd2", "new\n"} {
			edit := models.EditSpec{StartLine: 1, EndLine: CountLines(content), Content: replacement}
			got, err := Apply(content, []models.EditSpec{edit})
			require.NoError(t, err)
			assert.Equal(t, replacement, got, "content %q", content)
		}
	}
}

func TestApply_OrderIndependence(t *testing.T) {
	content := strings.Join([]string{"l1", "l2", "l3", "l4", "l5", "l6", "l7", "l8"}, "\n")
	edits := []models.EditSpec{
		{StartLine: 1, EndLine: 2, Content: "A"},
		{StartLine: 4, EndLine: 3, Content: "B\nB"},
		{StartLine: 5, EndLine: 5, Content: ""},
		{StartLine: 7, EndLine: 8, Content: "C"},
	}
	want, err := Apply(content, edits)
	require.NoError(t, err)
	assert.Equal(t, "A\nl3\nB\nB\nl4\nl6\nC", want)

	permutations := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}, {0, 2, 1, 3}}
	for _, perm := range permutations {
		t.Run(fmt.Sprint(perm), func(t *testing.T) {
			shuffled := make([]models.EditSpec, len(perm))
			for i, idx := range perm {
				shuffled[i] = edits[idx]
			}
			got, err := Apply(content, shuffled)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestApply_DoesNotMutateEdits(t *testing.T) {
	edits := []models.EditSpec{
		{StartLine: 1, EndLine: 1, Content: "a"},
		{StartLine: 3, EndLine: 3, Content: "c"},
	}
	original := append([]models.EditSpec(nil), edits...)
	_, err := Apply("1\n2\n3", edits)
	require.NoError(t, err)
	assert.Equal(t, original, edits)
}

func TestApply_NegativeLineNumbers(t *testing.T) {
	_, err := Apply("a", []models.EditSpec{{StartLine: -1, EndLine: 1}})
	assert.ErrorIs(t, err, ErrMalformedEdit)

	_, err = Apply("a", []models.EditSpec{{StartLine: 1, EndLine: -3}})
	assert.ErrorIs(t, err, ErrMalformedEdit)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 1, CountLines(""))
	assert.Equal(t, 1, CountLines("a"))
	assert.Equal(t, 2, CountLines("a\n"))
	assert.Equal(t, 3, CountLines("a\nb\nc"))
}
