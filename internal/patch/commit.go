package patch

import (
	"context"
	"path/filepath"

	"file-patch-server/internal/errors"
	"file-patch-server/internal/filesystem"
)

// CommitWriter persists resolved content. It is the only place where the original
// line-ending style is reintroduced.
type CommitWriter struct {
	store filesystem.TextStore
}

// NewCommitWriter returns a CommitWriter writing through store.
func NewCommitWriter(store filesystem.TextStore) *CommitWriter {
	return &CommitWriter{store: store}
}

// Commit creates the parent directory of path if needed and writes content with the
// given line ending. Store failures are returned as a FileWriteFailure reported for
// displayPath. If ctx is done before the write starts its error is returned unchanged.
func (w *CommitWriter) Commit(ctx context.Context, path, displayPath, content string, ending LineEnding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.store.EnsureDir(ctx, filepath.Dir(path)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.FileWriteFailure(displayPath, err)
	}
	if err := w.store.WriteTextFile(ctx, path, RestoreLineEndings(content, ending)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.FileWriteFailure(displayPath, err)
	}
	return nil
}
