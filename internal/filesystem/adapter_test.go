package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-patch-server/internal/lock"
)

func TestDefaultFileSystemAdapter_ReadTextFile(t *testing.T) {
	dir := t.TempDir()
	adapter := NewDefaultFileSystemAdapter(WithMaxFileSize(16))

	write := func(name string, content []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, content, 0o644))
		return p
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{"plain text", write("ok.txt", []byte("a\r\nb")), "a\r\nb", nil},
		{"empty file", write("empty.txt", nil), "", nil},
		{"missing", filepath.Join(dir, "missing.txt"), "", ErrNotFound},
		{"invalid utf-8", write("bin.dat", []byte{0xff, 0xfe, 0xfd}), "", ErrInvalidEncoding},
		{"too large", write("big.txt", []byte("0123456789abcdefXYZ")), "", ErrFileTooLarge},
		{"directory", dir, "", ErrIsDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := adapter.ReadTextFile(context.Background(), tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultFileSystemAdapter_ReadTextFileCancelled(t *testing.T) {
	adapter := NewDefaultFileSystemAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := adapter.ReadTextFile(ctx, filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultFileSystemAdapter_WriteTextFile(t *testing.T) {
	dir := t.TempDir()
	lm, err := lock.NewLockManager(t.TempDir(), time.Second)
	require.NoError(t, err)
	adapter := NewDefaultFileSystemAdapter(WithLockManager(lm))

	p := filepath.Join(dir, "new.txt")
	require.NoError(t, adapter.WriteTextFile(context.Background(), p, "hello\r\nworld"))

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello\r\nworld", string(got))

	info, err := os.Stat(p)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, defaultFilePerm, info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestDefaultFileSystemAdapter_WriteTextFilePreservesPerms(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	p := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755))

	adapter := NewDefaultFileSystemAdapter()
	require.NoError(t, adapter.WriteTextFile(context.Background(), p, "#!/bin/sh\necho hi\n"))

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestDefaultFileSystemAdapter_WriteTextFileTooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("keep"), 0o644))

	adapter := NewDefaultFileSystemAdapter(WithMaxFileSize(4))
	err := adapter.WriteTextFile(context.Background(), p, "too long")
	assert.ErrorIs(t, err, ErrFileTooLarge)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got), "failed write must leave the file untouched")
}

func TestDefaultFileSystemAdapter_WriteTextFileMissingDir(t *testing.T) {
	adapter := NewDefaultFileSystemAdapter()
	err := adapter.WriteTextFile(context.Background(), filepath.Join(t.TempDir(), "nope", "f.txt"), "x")
	assert.Error(t, err)
}

func TestDefaultFileSystemAdapter_EnsureDir(t *testing.T) {
	adapter := NewDefaultFileSystemAdapter()
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, adapter.EnsureDir(context.Background(), dir))
	assert.DirExists(t, dir)
	// Idempotent.
	require.NoError(t, adapter.EnsureDir(context.Background(), dir))
}

func TestDefaultFileSystemAdapter_GetFileStats(t *testing.T) {
	adapter := NewDefaultFileSystemAdapter()
	p := filepath.Join(t.TempDir(), "s.txt")
	require.NoError(t, os.WriteFile(p, []byte("12345"), 0o600))

	stats, err := adapter.GetFileStats(p)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Size)
	assert.False(t, stats.IsDir)

	_, err = adapter.GetFileStats(p + ".missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckDirectoryIsWritable(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckDirectoryIsWritable(dir))
	assert.Error(t, CheckDirectoryIsWritable(filepath.Join(dir, "missing")))

	f := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	assert.Error(t, CheckDirectoryIsWritable(f))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(map[string]string{"a.txt": "one"})

	got, err := m.ReadTextFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	_, err = m.ReadTextFile(ctx, "b.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.EnsureDir(ctx, "x/y"))
	assert.True(t, m.HasDir("x"))
	assert.True(t, m.HasDir("x/y"))

	require.NoError(t, m.WriteTextFile(ctx, "x/y/b.txt", "two"))
	c, ok := m.Content("x/y/b.txt")
	assert.True(t, ok)
	assert.Equal(t, "two", c)
	assert.Equal(t, 1, m.Writes())
}
