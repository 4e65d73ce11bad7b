package service

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"file-patch-server/internal/config"
	"file-patch-server/internal/errors"
	"file-patch-server/internal/filesystem"
	"file-patch-server/internal/models"
	"file-patch-server/internal/patch"
	"file-patch-server/internal/workspace"
)

// PatchService defines the operations exposed by the transports.
type PatchService interface {
	ReadFile(ctx context.Context, req models.ReadFileRequest) (*models.ReadFileResponse, *models.ErrorDetail)
	PreviewPatch(ctx context.Context, req models.EditRequest) (*models.PreviewPatchResponse, *models.ErrorDetail)
	PatchFile(ctx context.Context, req models.EditRequest) (*models.PatchFileResponse, *models.ErrorDetail)
}

// Option configures a DefaultPatchService.
type Option func(*DefaultPatchService)

// WithApprover sets the caller-side approver used in interactive mode.
func WithApprover(a patch.Approver) Option {
	return func(s *DefaultPatchService) { s.approver = a }
}

// WithReviewer attaches an external reviewer.
func WithReviewer(r patch.Reviewer) Option {
	return func(s *DefaultPatchService) { s.reviewer = r }
}

// WithLogger sets the service logger. It is also handed to the engine.
func WithLogger(l *slog.Logger) Option {
	return func(s *DefaultPatchService) {
		if l != nil {
			s.logger = l
		}
	}
}

// DefaultPatchService implements PatchService on top of the patch engine.
type DefaultPatchService struct {
	store       filesystem.TextStore
	access      workspace.AccessChecker
	engine      *patch.Engine
	sem         *semaphore.Weighted
	maxFileSize int64
	maxEdits    int
	opTimeout   time.Duration
	approval    string
	approver    patch.Approver
	reviewer    patch.Reviewer
	logger      *slog.Logger
}

// NewDefaultPatchService creates a DefaultPatchService.
func NewDefaultPatchService(
	store filesystem.TextStore,
	access workspace.AccessChecker,
	cfg *config.Config,
	opts ...Option,
) (*DefaultPatchService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if store == nil {
		return nil, fmt.Errorf("text store is required")
	}
	if access == nil {
		return nil, fmt.Errorf("access checker is required")
	}
	if cfg.MaxConcurrentOps < 1 {
		return nil, fmt.Errorf("max concurrent operations must be at least 1")
	}

	s := &DefaultPatchService{
		store:       store,
		access:      access,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentOps)),
		maxFileSize: cfg.MaxFileSizeBytes(),
		maxEdits:    cfg.MaxEdits,
		opTimeout:   cfg.OperationTimeout(),
		approval:    cfg.Approval,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch s.approval {
	case config.ApprovalAuto:
	case config.ApprovalReviewer:
		if s.reviewer == nil {
			return nil, fmt.Errorf("approval mode %q requires a reviewer", s.approval)
		}
	case config.ApprovalInteractive:
		if s.approver == nil {
			return nil, fmt.Errorf("approval mode %q requires an approver", s.approval)
		}
	default:
		return nil, fmt.Errorf("unknown approval mode %q", s.approval)
	}

	s.engine = patch.NewEngine(store, access,
		patch.WithLogger(s.logger),
		patch.WithPreviewer(patch.NewPreviewer(
			patch.WithDiffContext(cfg.DiffContext),
			patch.WithSnippetMaxLines(cfg.SnippetMaxLines),
		)),
		patch.WithSnippetContext(cfg.SnippetContext),
	)
	return s, nil
}

// begin bounds the operation by the service timeout and takes a concurrency slot.
// The returned function releases both.
func (s *DefaultPatchService) begin(ctx context.Context, filename, operation string) (context.Context, func(), *models.ErrorDetail) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	if err := s.sem.Acquire(opCtx, 1); err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, nil, errors.NewOperationCancelledError(filename, operation, ctx.Err())
		}
		return nil, nil, errors.NewOperationLockFailedError(filename, operation,
			fmt.Sprintf("no operation slot became free within %s", s.opTimeout))
	}
	return opCtx, func() {
		s.sem.Release(1)
		cancel()
	}, nil
}

// mapError converts engine and store errors to the service-boundary representation.
func (s *DefaultPatchService) mapError(err error, filename, operation string) *models.ErrorDetail {
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		if _, isPatchErr := errors.KindOf(err); !isPatchErr {
			return errors.NewOperationCancelledError(filename, operation, err)
		}
	}
	if stdErrors.Is(err, filesystem.ErrFileTooLarge) {
		return errors.NewFileTooLargeError(filename, int(s.maxFileSize/(1024*1024)))
	}
	return errors.ToErrorDetail(err, operation)
}

// ReadFile implements the PatchService interface.
func (s *DefaultPatchService) ReadFile(ctx context.Context, req models.ReadFileRequest) (*models.ReadFileResponse, *models.ErrorDetail) {
	const op = "read_file"
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, errors.NewInvalidParamsError("file_path is required.", nil)
	}
	if req.StartLine < 0 || req.EndLine < 0 {
		return nil, errors.NewInvalidParamsError("Line numbers must be 1 or greater if specified.",
			map[string]interface{}{"filename": req.FilePath, "start_line": req.StartLine, "end_line": req.EndLine})
	}
	if req.StartLine > 0 && req.EndLine > 0 && req.StartLine > req.EndLine {
		return nil, errors.NewInvalidParamsError("start_line cannot be greater than end_line.",
			map[string]interface{}{"filename": req.FilePath, "start_line": req.StartLine, "end_line": req.EndLine})
	}

	decision := s.access.Check(req.FilePath, workspace.IntentRead)
	if !decision.Approved {
		return nil, s.mapError(errors.PathNotInWorkspace(req.FilePath, decision.Reason), req.FilePath, op)
	}

	ctx, done, errDetail := s.begin(ctx, req.FilePath, op)
	if errDetail != nil {
		return nil, errDetail
	}
	defer done()

	raw, err := s.store.ReadTextFile(ctx, decision.Path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.mapError(ctx.Err(), req.FilePath, op)
		}
		if stdErrors.Is(err, filesystem.ErrNotFound) {
			return nil, s.mapError(errors.FileNotFound(req.FilePath, err), req.FilePath, op)
		}
		return nil, s.mapError(errors.ReadContentFailure(req.FilePath, err), req.FilePath, op)
	}

	content := patch.NormalizeLineEndings(raw)
	lines := strings.Split(content, "\n")
	total := len(lines)
	resp := &models.ReadFileResponse{
		Content:    content,
		TotalLines: total,
		LineEnding: string(patch.DetectLineEnding(raw)),
	}
	if req.StartLine == 0 && req.EndLine == 0 {
		return resp, nil
	}

	startLine, endLine := req.StartLine, req.EndLine
	if startLine == 0 {
		startLine = 1
	}
	if endLine == 0 || endLine > total {
		endLine = total
	}
	if startLine > total {
		return nil, errors.NewInvalidParamsError(
			fmt.Sprintf("start_line %d is greater than total lines %d.", startLine, total),
			map[string]interface{}{"filename": req.FilePath, "start_line": startLine, "total_lines": total})
	}
	resp.Content = strings.Join(lines[startLine-1:endLine], "\n")
	resp.RangeRequested = &models.RangeRequested{StartLine: startLine, EndLine: endLine}
	return resp, nil
}

func (s *DefaultPatchService) validateEditRequest(req models.EditRequest) *models.ErrorDetail {
	if strings.TrimSpace(req.FilePath) == "" {
		return errors.NewInvalidParamsError("file_path is required.", nil)
	}
	if len(req.Edits) > s.maxEdits {
		return errors.NewInvalidParamsError(
			fmt.Sprintf("Number of edits exceeds maximum allowed of %d.", s.maxEdits),
			map[string]interface{}{"filename": req.FilePath, "num_edits": len(req.Edits), "max_edits": s.maxEdits})
	}
	var total int64
	for i, edit := range req.Edits {
		if edit.StartLine < 0 || edit.EndLine < 0 {
			return errors.NewInvalidParamsError(
				fmt.Sprintf("Edit #%d: start_line and end_line must be 0 or greater.", i+1),
				map[string]interface{}{"filename": req.FilePath, "edit_index": i, "start_line": edit.StartLine, "end_line": edit.EndLine})
		}
		if !utf8.ValidString(edit.Content) {
			return errors.NewInvalidParamsError(
				fmt.Sprintf("Edit #%d: content contains invalid UTF-8 encoding.", i+1),
				map[string]interface{}{"filename": req.FilePath, "edit_index": i})
		}
		total += int64(len(edit.Content))
	}
	if total > s.maxFileSize {
		return errors.NewFileTooLargeError(req.FilePath, int(s.maxFileSize/(1024*1024)))
	}
	return nil
}

// PreviewPatch implements the PatchService interface. Nothing is written.
func (s *DefaultPatchService) PreviewPatch(ctx context.Context, req models.EditRequest) (*models.PreviewPatchResponse, *models.ErrorDetail) {
	const op = "preview_patch"
	if errDetail := s.validateEditRequest(req); errDetail != nil {
		return nil, errDetail
	}
	ctx, done, errDetail := s.begin(ctx, req.FilePath, op)
	if errDetail != nil {
		return nil, errDetail
	}
	defer done()

	prepared, err := s.engine.Prepare(ctx, req)
	if err != nil {
		return nil, s.mapError(err, req.FilePath, op)
	}
	return &models.PreviewPatchResponse{EditCount: len(req.Edits), Display: prepared.Display}, nil
}

// PatchFile implements the PatchService interface.
func (s *DefaultPatchService) PatchFile(ctx context.Context, req models.EditRequest) (*models.PatchFileResponse, *models.ErrorDetail) {
	const op = "patch_file"
	if errDetail := s.validateEditRequest(req); errDetail != nil {
		return nil, errDetail
	}
	ctx, done, errDetail := s.begin(ctx, req.FilePath, op)
	if errDetail != nil {
		return nil, errDetail
	}
	defer done()

	result, err := s.engine.Execute(ctx, req, s.confirmOptions())
	if err != nil {
		s.logger.Debug("patch failed", "file", req.FilePath, "error", err)
		return nil, s.mapError(err, req.FilePath, op)
	}

	return &models.PatchFileResponse{
		Success:        result.Written,
		Message:        resultMessage(result, req),
		Outcome:        string(result.Outcome),
		EditCount:      len(req.Edits),
		ModifiedByUser: result.Request.ModifiedByUser,
		Edits:          result.Request.Edits,
		Display:        result.Display,
	}, nil
}

func (s *DefaultPatchService) confirmOptions() patch.ConfirmOptions {
	switch s.approval {
	case config.ApprovalReviewer:
		return patch.ConfirmOptions{Reviewer: s.reviewer}
	case config.ApprovalInteractive:
		return patch.ConfirmOptions{Approver: s.approver, Reviewer: s.reviewer}
	default:
		return patch.ConfirmOptions{SkipConfirmation: true}
	}
}

func resultMessage(result *patch.Result, req models.EditRequest) string {
	switch result.Outcome {
	case patch.OutcomeModified:
		return fmt.Sprintf("Applied user-modified content to %s in place of %d proposed edit(s).", req.FilePath, len(req.Edits))
	case patch.OutcomeRejected:
		return fmt.Sprintf("Changes to %s were rejected; the file was not modified.", req.FilePath)
	default:
		return fmt.Sprintf("Successfully applied %d edit(s) to %s.", len(req.Edits), req.FilePath)
	}
}
