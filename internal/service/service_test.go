package service

import (
	"context"
	stdErrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-patch-server/internal/config"
	"file-patch-server/internal/errors"
	"file-patch-server/internal/filesystem"
	"file-patch-server/internal/lock"
	"file-patch-server/internal/models"
	"file-patch-server/internal/patch"
	"file-patch-server/internal/workspace"
)

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.WorkingDirectory = dir
	cfg.OperationTimeoutSec = 5
	return cfg
}

// setup returns a service over a real temporary workspace.
func setup(t *testing.T, mutate func(*config.Config), opts ...Option) (*DefaultPatchService, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)
	if mutate != nil {
		mutate(cfg)
	}
	lm, err := lock.NewLockManager(t.TempDir(), time.Second)
	require.NoError(t, err)
	fs := filesystem.NewDefaultFileSystemAdapter(
		filesystem.WithMaxFileSize(cfg.MaxFileSizeBytes()),
		filesystem.WithLockManager(lm),
	)
	guard, err := workspace.NewGuard(dir, workspace.WithDenyPatterns(cfg.Deny...), workspace.WithSymlinkResolver(fs))
	require.NoError(t, err)
	svc, err := NewDefaultPatchService(fs, guard, cfg, opts...)
	require.NoError(t, err)
	return svc, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(b)
}

func TestNewDefaultPatchService_Validation(t *testing.T) {
	store := filesystem.NewMemoryStore(nil)
	guard, err := workspace.NewGuard(t.TempDir())
	require.NoError(t, err)
	cfg := testConfig(guard.Root())

	_, err = NewDefaultPatchService(store, guard, nil)
	assert.Error(t, err)
	_, err = NewDefaultPatchService(nil, guard, cfg)
	assert.Error(t, err)
	_, err = NewDefaultPatchService(store, nil, cfg)
	assert.Error(t, err)

	cfg.Approval = config.ApprovalReviewer
	_, err = NewDefaultPatchService(store, guard, cfg)
	assert.ErrorContains(t, err, "requires a reviewer")

	cfg.Approval = config.ApprovalInteractive
	_, err = NewDefaultPatchService(store, guard, cfg)
	assert.ErrorContains(t, err, "requires an approver")
}

func TestReadFile_Success_FullRead(t *testing.T) {
	svc, dir := setup(t, nil)
	writeFile(t, dir, "a.txt", "one\r\ntwo\r\nthree")

	resp, errDetail := svc.ReadFile(context.Background(), models.ReadFileRequest{FilePath: "a.txt"})
	require.Nil(t, errDetail)
	assert.Equal(t, "one\ntwo\nthree", resp.Content)
	assert.Equal(t, 3, resp.TotalLines)
	assert.Equal(t, "crlf", resp.LineEnding)
	assert.Nil(t, resp.RangeRequested)
}

func TestReadFile_Success_PartialRead(t *testing.T) {
	svc, dir := setup(t, nil)
	writeFile(t, dir, "a.txt", "1\n2\n3\n4\n5")

	tests := []struct {
		name       string
		start, end int
		want       string
		wantRange  models.RangeRequested
	}{
		{"start and end", 2, 3, "2\n3", models.RangeRequested{StartLine: 2, EndLine: 3}},
		{"start only", 4, 0, "4\n5", models.RangeRequested{StartLine: 4, EndLine: 5}},
		{"end only", 0, 1, "1", models.RangeRequested{StartLine: 1, EndLine: 1}},
		{"end clamped", 5, 99, "5", models.RangeRequested{StartLine: 5, EndLine: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, errDetail := svc.ReadFile(context.Background(), models.ReadFileRequest{FilePath: "a.txt", StartLine: tt.start, EndLine: tt.end})
			require.Nil(t, errDetail)
			assert.Equal(t, tt.want, resp.Content)
			assert.Equal(t, 5, resp.TotalLines)
			require.NotNil(t, resp.RangeRequested)
			assert.Equal(t, tt.wantRange, *resp.RangeRequested)
		})
	}
}

func TestReadFile_Errors(t *testing.T) {
	svc, dir := setup(t, nil)
	writeFile(t, dir, "a.txt", "1\n2")
	writeFile(t, dir, ".git/config", "[core]")
	writeFile(t, dir, "bin.dat", "\xff\xfe")

	tests := []struct {
		name     string
		req      models.ReadFileRequest
		wantCode int
		wantType string
	}{
		{"empty path", models.ReadFileRequest{}, errors.CodeInvalidParams, "invalid_params"},
		{"inverted range", models.ReadFileRequest{FilePath: "a.txt", StartLine: 2, EndLine: 1}, errors.CodeInvalidParams, "invalid_params"},
		{"negative line", models.ReadFileRequest{FilePath: "a.txt", StartLine: -1}, errors.CodeInvalidParams, "invalid_params"},
		{"start past end", models.ReadFileRequest{FilePath: "a.txt", StartLine: 3}, errors.CodeInvalidParams, "invalid_params"},
		{"missing", models.ReadFileRequest{FilePath: "missing.txt"}, errors.CodeFileSystemError, "file_not_found"},
		{"outside workspace", models.ReadFileRequest{FilePath: "../escape.txt"}, errors.CodePathNotInWorkspace, "path_not_in_workspace"},
		{"denied pattern", models.ReadFileRequest{FilePath: ".git/config"}, errors.CodePathNotInWorkspace, "path_not_in_workspace"},
		{"invalid utf-8", models.ReadFileRequest{FilePath: "bin.dat"}, errors.CodeFileSystemError, "read_content_failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, errDetail := svc.ReadFile(context.Background(), tt.req)
			assert.Nil(t, resp)
			require.NotNil(t, errDetail)
			assert.Equal(t, tt.wantCode, errDetail.Code)
			assert.Equal(t, tt.wantType, errDetail.Type())
		})
	}
}

func TestReadFile_Error_FileTooLarge(t *testing.T) {
	svc, dir := setup(t, func(c *config.Config) { c.MaxFileSizeMB = 1 })
	writeFile(t, dir, "big.txt", strings.Repeat("x", 1024*1024+1))

	_, errDetail := svc.ReadFile(context.Background(), models.ReadFileRequest{FilePath: "big.txt"})
	require.NotNil(t, errDetail)
	assert.Equal(t, errors.CodeFileTooLarge, errDetail.Code)
}

func TestPatchFile_Success_EndToEnd(t *testing.T) {
	svc, dir := setup(t, nil)
	writeFile(t, dir, "n.txt", "1\n2\n3\n4\n5")

	req := models.EditRequest{FilePath: "n.txt", Edits: []models.EditSpec{{StartLine: 2, EndLine: 3, Content: "two\nthree"}}}
	resp, errDetail := svc.PatchFile(context.Background(), req)
	require.Nil(t, errDetail)

	assert.True(t, resp.Success)
	assert.Equal(t, "approved", resp.Outcome)
	assert.Equal(t, 1, resp.EditCount)
	assert.Contains(t, resp.Message, "1 edit(s)")
	assert.False(t, resp.ModifiedByUser)
	assert.Equal(t, req.Edits, resp.Edits)
	assert.Equal(t, 2, resp.Display.DiffStat.AddedLines)
	assert.Equal(t, 2, resp.Display.DiffStat.RemovedLines)
	assert.Equal(t, "1\ntwo\nthree\n4\n5", readFile(t, dir, "n.txt"))
}

func TestPatchFile_PreservesCRLF(t *testing.T) {
	svc, dir := setup(t, nil)
	writeFile(t, dir, "w.txt", "a\r\nb\r\n")

	_, errDetail := svc.PatchFile(context.Background(), models.EditRequest{FilePath: "w.txt"})
	require.Nil(t, errDetail)
	assert.Equal(t, "a\r\nb\r\n", readFile(t, dir, "w.txt"))

	_, errDetail = svc.PatchFile(context.Background(), models.EditRequest{
		FilePath: "w.txt",
		Edits:    []models.EditSpec{{StartLine: 3, EndLine: 2, Content: "c"}},
	})
	require.Nil(t, errDetail)
	assert.Equal(t, "a\r\nb\r\nc\r\n", readFile(t, dir, "w.txt"))
}

func TestPatchFile_Error_FileNotFound(t *testing.T) {
	svc, dir := setup(t, nil)

	_, errDetail := svc.PatchFile(context.Background(), models.EditRequest{
		FilePath: "sub/new.txt",
		Edits:    []models.EditSpec{{StartLine: 1, EndLine: 1, Content: "x"}},
	})
	require.NotNil(t, errDetail)
	assert.Equal(t, errors.CodeFileSystemError, errDetail.Code)
	assert.Equal(t, "file_not_found", errDetail.Type())
	assert.NoFileExists(t, filepath.Join(dir, "sub", "new.txt"))
	assert.NoDirExists(t, filepath.Join(dir, "sub"))
}

func TestPatchFile_Error_Validation(t *testing.T) {
	svc, dir := setup(t, func(c *config.Config) { c.MaxEdits = 2 })
	writeFile(t, dir, "a.txt", "a")

	tests := []struct {
		name string
		req  models.EditRequest
	}{
		{"empty path", models.EditRequest{Edits: []models.EditSpec{{StartLine: 1, EndLine: 1}}}},
		{"too many edits", models.EditRequest{FilePath: "a.txt", Edits: make([]models.EditSpec, 3)}},
		{"negative start", models.EditRequest{FilePath: "a.txt", Edits: []models.EditSpec{{StartLine: -1, EndLine: 1}}}},
		{"invalid utf-8", models.EditRequest{FilePath: "a.txt", Edits: []models.EditSpec{{StartLine: 1, EndLine: 1, Content: "\xff"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errDetail := svc.PatchFile(context.Background(), tt.req)
			require.NotNil(t, errDetail)
			assert.Equal(t, errors.CodeInvalidParams, errDetail.Code)
		})
	}
	assert.Equal(t, "a", readFile(t, dir, "a.txt"))
}

func TestPreviewPatch_DoesNotWrite(t *testing.T) {
	svc, dir := setup(t, nil)
	writeFile(t, dir, "p.txt", "x\ny")

	resp, errDetail := svc.PreviewPatch(context.Background(), models.EditRequest{
		FilePath: "p.txt",
		Edits:    []models.EditSpec{{StartLine: 2, EndLine: 2, Content: "Y"}},
	})
	require.Nil(t, errDetail)
	assert.Equal(t, 1, resp.EditCount)
	assert.Equal(t, "x\nY", resp.Display.NewContent)
	assert.Contains(t, resp.Display.UnifiedDiff, "-y\n+Y\n")
	assert.Equal(t, "x\ny", readFile(t, dir, "p.txt"))
}

type fixedApprover struct {
	verdict patch.Verdict
	calls   atomic.Int32
}

func (a *fixedApprover) Approve(ctx context.Context, p patch.Proposal) (patch.Verdict, error) {
	a.calls.Add(1)
	return a.verdict, nil
}

func TestPatchFile_Interactive(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		approver := &fixedApprover{verdict: patch.Verdict{Decision: patch.DecisionReject}}
		svc, dir := setup(t, func(c *config.Config) { c.Approval = config.ApprovalInteractive }, WithApprover(approver))
		writeFile(t, dir, "a.txt", "a")

		resp, errDetail := svc.PatchFile(context.Background(), models.EditRequest{
			FilePath: "a.txt",
			Edits:    []models.EditSpec{{StartLine: 1, EndLine: 1, Content: "b"}},
		})
		require.Nil(t, errDetail)
		assert.False(t, resp.Success)
		assert.Equal(t, "rejected", resp.Outcome)
		assert.Equal(t, int32(1), approver.calls.Load())
		assert.Equal(t, "a", readFile(t, dir, "a.txt"))
	})

	t.Run("modified", func(t *testing.T) {
		approver := &fixedApprover{verdict: patch.Verdict{Decision: patch.DecisionAcceptModified, Content: "hand\nwritten"}}
		svc, dir := setup(t, func(c *config.Config) { c.Approval = config.ApprovalInteractive }, WithApprover(approver))
		writeFile(t, dir, "a.txt", "a\nb")

		resp, errDetail := svc.PatchFile(context.Background(), models.EditRequest{
			FilePath: "a.txt",
			Edits:    []models.EditSpec{{StartLine: 1, EndLine: 1, Content: "A"}},
		})
		require.Nil(t, errDetail)
		assert.True(t, resp.Success)
		assert.Equal(t, "modified", resp.Outcome)
		assert.True(t, resp.ModifiedByUser)
		assert.Equal(t, 1, resp.EditCount)
		assert.Equal(t, []models.EditSpec{{StartLine: 1, EndLine: 2, Content: "hand\nwritten"}}, resp.Edits)
		require.NotNil(t, resp.Display.UserDiffStat)
		assert.Equal(t, "hand\nwritten", readFile(t, dir, "a.txt"))
	})
}

func TestPatchFile_Error_Cancelled(t *testing.T) {
	blocking := patch.ApproverFunc(func(ctx context.Context, p patch.Proposal) (patch.Verdict, error) {
		<-ctx.Done()
		return patch.Verdict{}, ctx.Err()
	})
	svc, dir := setup(t, func(c *config.Config) { c.Approval = config.ApprovalInteractive }, WithApprover(blocking))
	writeFile(t, dir, "a.txt", "a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, errDetail := svc.PatchFile(ctx, models.EditRequest{
		FilePath: "a.txt",
		Edits:    []models.EditSpec{{StartLine: 1, EndLine: 1, Content: "b"}},
	})
	require.NotNil(t, errDetail)
	assert.Equal(t, errors.CodeOperationCancelled, errDetail.Code)
	assert.Equal(t, "a", readFile(t, dir, "a.txt"))
}

func TestPatchFile_Error_NoFreeSlot(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	holding := patch.ApproverFunc(func(ctx context.Context, p patch.Proposal) (patch.Verdict, error) {
		entered <- struct{}{}
		<-release
		return patch.Verdict{Decision: patch.DecisionAccept}, nil
	})
	svc, dir := setup(t, func(c *config.Config) {
		c.Approval = config.ApprovalInteractive
		c.MaxConcurrentOps = 1
	}, WithApprover(holding))
	svc.opTimeout = 100 * time.Millisecond
	writeFile(t, dir, "a.txt", "a")
	writeFile(t, dir, "b.txt", "b")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.PatchFile(context.Background(), models.EditRequest{FilePath: "a.txt"})
	}()
	<-entered

	_, errDetail := svc.ReadFile(context.Background(), models.ReadFileRequest{FilePath: "b.txt"})
	require.NotNil(t, errDetail)
	assert.Equal(t, errors.CodeOperationLockFailed, errDetail.Code)

	close(release)
	wg.Wait()
}

func TestPatchFile_Error_WriteFailure(t *testing.T) {
	store := filesystem.NewMemoryStore(map[string]string{"/ws/a.txt": "a"})
	store.WriteErr["/ws/a.txt"] = stdErrors.New("read-only file system")
	svc, err := NewDefaultPatchService(store, stubChecker{}, testConfig("/ws"))
	require.NoError(t, err)

	_, errDetail := svc.PatchFile(context.Background(), models.EditRequest{
		FilePath: "a.txt",
		Edits:    []models.EditSpec{{StartLine: 1, EndLine: 1, Content: "b"}},
	})
	require.NotNil(t, errDetail)
	assert.Equal(t, errors.CodeFileSystemError, errDetail.Code)
	assert.Equal(t, "file_write_failure", errDetail.Type())
	got, _ := store.Content("/ws/a.txt")
	assert.Equal(t, "a", got)
}

type stubChecker struct{}

func (stubChecker) Check(p string, intent workspace.Intent) workspace.Decision {
	return workspace.Decision{Approved: true, Path: filepath.Join("/ws", p)}
}
