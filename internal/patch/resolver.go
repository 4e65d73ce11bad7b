package patch

import (
	"context"
	stdErrors "errors"
	"fmt"

	"file-patch-server/internal/errors"
	"file-patch-server/internal/filesystem"
	"file-patch-server/internal/models"
)

// ResolvedEdit is the outcome of one resolution: the candidate content, not yet committed.
// When Failure is set NewContent equals OriginalContent.
type ResolvedEdit struct {
	// OriginalContent is the "\n"-normalized pre-edit text. Empty when IsNewFile.
	OriginalContent string
	NewContent      string
	// IsNewFile is true when the target does not exist.
	IsNewFile  bool
	LineEnding LineEnding
	Failure    *errors.PatchError
}

// Resolver loads the current content of a file and computes the patched candidate.
// It never writes.
type Resolver struct {
	store filesystem.TextStore
}

// NewResolver returns a Resolver reading through store.
func NewResolver(store filesystem.TextStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve reads path and applies req.Edits to it. Classified failures are reported in
// ResolvedEdit.Failure; the returned error is non-nil only when ctx is done.
// path is the already access-checked location of req.FilePath.
func (r *Resolver) Resolve(ctx context.Context, path string, req models.EditRequest) (*ResolvedEdit, error) {
	raw, err := r.store.ReadTextFile(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if stdErrors.Is(err, filesystem.ErrNotFound) {
			return &ResolvedEdit{
				IsNewFile:  true,
				LineEnding: LineEndingLF,
				Failure:    errors.FileNotFound(req.FilePath, err),
			}, nil
		}
		return &ResolvedEdit{
			LineEnding: LineEndingLF,
			Failure:    errors.ReadContentFailure(req.FilePath, err),
		}, nil
	}

	resolved := &ResolvedEdit{
		OriginalContent: NormalizeLineEndings(raw),
		LineEnding:      DetectLineEnding(raw),
	}
	newContent, err := safeApply(resolved.OriginalContent, normalizeEdits(req.Edits))
	if err != nil {
		resolved.NewContent = resolved.OriginalContent
		resolved.Failure = errors.EditPreparationFailure(req.FilePath, err)
		return resolved, nil
	}
	resolved.NewContent = newContent
	return resolved, nil
}

// normalizeEdits returns a copy of edits whose content uses "\n" separators only.
func normalizeEdits(edits []models.EditSpec) []models.EditSpec {
	out := make([]models.EditSpec, len(edits))
	for i, e := range edits {
		e.Content = NormalizeLineEndings(e.Content)
		out[i] = e
	}
	return out
}

func safeApply(content string, edits []models.EditSpec) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("applying edits panicked: %v", r)
		}
	}()
	return Apply(content, edits)
}
