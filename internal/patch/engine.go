package patch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"file-patch-server/internal/errors"
	"file-patch-server/internal/filesystem"
	"file-patch-server/internal/models"
	"file-patch-server/internal/workspace"
)

// Outcome is the result of a patch invocation that did not fail.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeModified Outcome = "modified"
	OutcomeRejected Outcome = "rejected"
)

// Prepared is a resolved and previewed request that has not been confirmed.
type Prepared struct {
	// Request is the request as received.
	Request models.EditRequest
	// Path is the access-checked location of Request.FilePath.
	Path     string
	Resolved *ResolvedEdit
	Display  models.PatchDisplay
}

// Result describes a confirmed (or rejected) invocation.
type Result struct {
	Outcome Outcome
	// Request is the canonical request: reconciled into a single full-file edit when
	// the content was substituted.
	Request models.EditRequest
	Display models.PatchDisplay
	// Written is true when the content was committed.
	Written bool
}

// ConfirmOptions carries the confirmation policy of one invocation.
type ConfirmOptions struct {
	// SkipConfirmation approves without asking.
	SkipConfirmation bool
	Approver         Approver
	Reviewer         Reviewer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPreviewer replaces the default Previewer.
func WithPreviewer(p *Previewer) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.previewer = p
		}
	}
}

// WithSnippetContext sets the number of lines shown around the first change in snippets.
func WithSnippetContext(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.snippetContext = n
		}
	}
}

// Engine runs the patch pipeline: access check, resolve, preview, confirm, reconcile,
// commit. It holds no per-invocation state and is safe for concurrent use.
type Engine struct {
	access         workspace.AccessChecker
	resolver       *Resolver
	previewer      *Previewer
	writer         *CommitWriter
	snippetContext int
	logger         *slog.Logger
}

// NewEngine returns an Engine reading and writing through store, with every path
// checked by access before any I/O.
func NewEngine(store filesystem.TextStore, access workspace.AccessChecker, opts ...EngineOption) *Engine {
	e := &Engine{
		access:         access,
		resolver:       NewResolver(store),
		previewer:      NewPreviewer(),
		writer:         NewCommitWriter(store),
		snippetContext: DefaultSnippetContext,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prepare resolves req and renders its preview. It never writes.
func (e *Engine) Prepare(ctx context.Context, req models.EditRequest) (*Prepared, error) {
	decision := e.access.Check(req.FilePath, workspace.IntentRead)
	if !decision.Approved {
		return nil, errors.PathNotInWorkspace(req.FilePath, decision.Reason)
	}

	e.logger.Debug("resolving edits", "file", req.FilePath, "edits", len(req.Edits))
	resolved, err := e.resolver.Resolve(ctx, decision.Path, req)
	if err != nil {
		return nil, err
	}
	if resolved.Failure != nil {
		e.logger.Debug("resolution failed", "file", req.FilePath, "kind", string(resolved.Failure.Kind))
		return nil, resolved.Failure
	}

	display, err := e.display(decision.Path, resolved.OriginalContent, resolved.NewContent)
	if err != nil {
		return nil, err
	}
	display.IsNewFile = resolved.IsNewFile
	return &Prepared{Request: req, Path: decision.Path, Resolved: resolved, Display: display}, nil
}

// Execute prepares req, asks for confirmation and commits the confirmed content.
// A rejection is a Result with OutcomeRejected and no write. Failures are
// *errors.PatchError values; cancellation is returned as the context's error and
// leaves the file untouched unless the write had already completed.
//
// Content substituted by a reviewer or approver replaces the proposal line for line,
// but its line endings are normalised and the file's detected ending is restored on
// commit: a CRLF reply to an LF file is written with LF.
func (e *Engine) Execute(ctx context.Context, req models.EditRequest, opts ConfirmOptions) (*Result, error) {
	prepared, err := e.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	decision := e.access.Check(req.FilePath, workspace.IntentWrite)
	if !decision.Approved {
		return nil, errors.PathNotInWorkspace(req.FilePath, decision.Reason)
	}

	coordinator := NewCoordinator(
		WithApprover(opts.Approver),
		WithReviewer(opts.Reviewer),
		WithSkipConfirmation(opts.SkipConfirmation),
		WithCoordinatorLogger(e.logger),
	)

	resolved := prepared.Resolved
	confirmation, err := coordinator.Confirm(ctx, Proposal{
		FilePath:        req.FilePath,
		FileName:        prepared.Display.FileName,
		UnifiedDiff:     prepared.Display.UnifiedDiff,
		OriginalContent: resolved.OriginalContent,
		ProposedContent: resolved.NewContent,
		Stat:            prepared.Display.DiffStat,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Request: req, Display: prepared.Display}
	switch confirmation.State {
	case StateApproved:
		result.Outcome = OutcomeApproved
	case StateExternallyModified:
		final := NormalizeLineEndings(confirmation.Content)
		if final == resolved.NewContent {
			result.Outcome = OutcomeApproved
			break
		}
		display, err := e.display(decision.Path, resolved.OriginalContent, final)
		if err != nil {
			return nil, err
		}
		display.IsNewFile = resolved.IsNewFile
		userStat := ComputeStat(resolved.NewContent, final)
		display.UserDiffStat = &userStat
		result.Outcome = OutcomeModified
		result.Request = Reconcile(resolved.OriginalContent, final, req)
		result.Display = display
	default:
		result.Outcome = OutcomeRejected
		return result, nil
	}

	e.logger.Debug("committing", "file", req.FilePath, "line_ending", string(resolved.LineEnding))
	if err := e.writer.Commit(ctx, decision.Path, req.FilePath, result.Display.NewContent, resolved.LineEnding); err != nil {
		return nil, err
	}
	result.Written = true
	e.logger.Info("patch committed",
		"file", req.FilePath,
		"outcome", string(result.Outcome),
		"added", result.Display.DiffStat.AddedLines,
		"removed", result.Display.DiffStat.RemovedLines)
	return result, nil
}

func (e *Engine) display(path, original, proposed string) (models.PatchDisplay, error) {
	name := filepath.Base(path)
	preview, err := e.previewer.Preview(original, proposed, name)
	if err != nil {
		return models.PatchDisplay{}, fmt.Errorf("previewing %s: %w", name, err)
	}
	return models.PatchDisplay{
		FileName:        name,
		FilePath:        path,
		UnifiedDiff:     preview.UnifiedDiff,
		OriginalContent: original,
		NewContent:      proposed,
		DiffStat:        preview.Stat,
		Snippet:         e.previewer.Snippet(original, proposed, e.snippetContext),
	}, nil
}
