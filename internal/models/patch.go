package models

// EditSpec replaces the inclusive 1-based line range [StartLine, EndLine] with Content.
// When StartLine > EndLine nothing is removed and Content is inserted before StartLine.
type EditSpec struct {
	// StartLine is the first line of the replaced range (1-based).
	StartLine int `json:"start_line" yaml:"start_line"`
	// EndLine is the last line of the replaced range (1-based, inclusive).
	EndLine int `json:"end_line" yaml:"end_line"`
	// Content is the replacement text. Lines are separated by "\n"; an empty string
	// inserts nothing.
	Content string `json:"content" yaml:"content"`
}

// EditRequest is one patch invocation against a single file.
// The order of Edits carries no meaning: all line numbers refer to the file as it was
// before any edit was applied.
type EditRequest struct {
	// FilePath is the target file, relative to the workspace root or absolute.
	FilePath string `json:"file_path" yaml:"file_path"`
	// Edits is the list of line-range replacements.
	Edits []EditSpec `json:"edits" yaml:"edits"`
	// Instruction is a free-form description of the intent of the change.
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	// ModifiedByUser is set when a reviewer substituted the proposed content.
	ModifiedByUser bool `json:"modified_by_user,omitempty" yaml:"modified_by_user,omitempty"`
}

// DiffStat summarizes a line comparison.
type DiffStat struct {
	AddedLines   int `json:"added_lines"`
	RemovedLines int `json:"removed_lines"`
	AddedChars   int `json:"added_chars"`
	RemovedChars int `json:"removed_chars"`
}

// PatchDisplay is the structured preview of a change.
type PatchDisplay struct {
	FileName        string    `json:"file_name"`
	FilePath        string    `json:"file_path"`
	UnifiedDiff     string    `json:"unified_diff"`
	OriginalContent string    `json:"original_content"`
	NewContent      string    `json:"new_content"`
	DiffStat        DiffStat  `json:"diff_stat"`
	UserDiffStat    *DiffStat `json:"user_diff_stat,omitempty"`
	IsNewFile       bool      `json:"is_new_file"`
	// Snippet is a short numbered excerpt of the new content around the first change.
	Snippet string `json:"snippet,omitempty"`
}

// PreviewPatchResponse is returned by preview_patch. Nothing is written.
type PreviewPatchResponse struct {
	EditCount int          `json:"edit_count"`
	Display   PatchDisplay `json:"display"`
}

// PatchFileResponse is returned by patch_file.
type PatchFileResponse struct {
	// Success is true when the change was written.
	Success bool `json:"success"`
	// Message is a short human-readable summary, including the edit count.
	Message string `json:"message"`
	// Outcome is one of "approved", "modified" or "rejected".
	Outcome        string       `json:"outcome"`
	EditCount      int          `json:"edit_count"`
	ModifiedByUser bool         `json:"modified_by_user"`
	Edits          []EditSpec   `json:"edits"`
	Display        PatchDisplay `json:"display"`
}
