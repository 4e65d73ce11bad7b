package patch

import "strings"

// LineEnding is the line separator convention of a file.
type LineEnding string

const (
	LineEndingLF   LineEnding = "lf"
	LineEndingCRLF LineEnding = "crlf"
)

// DetectLineEnding reports CRLF if content contains any "\r\n", LF otherwise.
func DetectLineEnding(content string) LineEnding {
	if strings.Contains(content, "\r\n") {
		return LineEndingCRLF
	}
	return LineEndingLF
}

// NormalizeLineEndings converts every "\r\n" to "\n". Lone "\r" characters are kept.
func NormalizeLineEndings(content string) string {
	return strings.ReplaceAll(content, "\r\n", "\n")
}

// RestoreLineEndings converts "\n" separators back to the given convention.
func RestoreLineEndings(content string, ending LineEnding) string {
	if ending != LineEndingCRLF {
		return content
	}
	return strings.ReplaceAll(content, "\n", "\r\n")
}
