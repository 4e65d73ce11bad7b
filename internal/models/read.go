package models

// ReadFileRequest represents a request to read a file.
type ReadFileRequest struct {
	// FilePath is the file to read, relative to the workspace root or absolute.
	FilePath string `json:"file_path"`
	// StartLine is the optional 1-based starting line number for partial file reads.
	StartLine int `json:"start_line,omitempty"`
	// EndLine is the optional 1-based ending line number for partial file reads.
	EndLine int `json:"end_line,omitempty"`
}

// RangeRequested indicates the range of lines that were returned.
type RangeRequested struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// ReadFileResponse represents the response from a file read operation.
type ReadFileResponse struct {
	// Content is the "\n"-normalized content of the file, or of the requested range.
	Content string `json:"content"`
	// TotalLines is the number of lines in the file, counted the same way edits count them.
	TotalLines int `json:"total_lines"`
	// LineEnding is "crlf" or "lf", the style restored when the file is patched.
	LineEnding string `json:"line_ending"`
	// RangeRequested is present when a partial read was requested.
	RangeRequested *RangeRequested `json:"range_requested,omitempty"`
}
