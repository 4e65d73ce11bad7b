package filesystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"file-patch-server/internal/lock"
)

var (
	// ErrNotFound is returned (wrapped) by ReadTextFile when the file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidEncoding is returned when file content is not valid UTF-8.
	ErrInvalidEncoding = errors.New("file content is not valid UTF-8")
	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrIsDirectory is returned when a text operation targets a directory.
	ErrIsDirectory = errors.New("path is a directory")
)

const defaultFilePerm os.FileMode = 0o644

// TextStore is the read/write primitive the patch engine is built on.
// Writes must be all-or-nothing: on error the previous content is untouched.
type TextStore interface {
	ReadTextFile(ctx context.Context, path string) (string, error)
	WriteTextFile(ctx context.Context, path string, text string) error
	EnsureDir(ctx context.Context, dir string) error
}

// FileStats holds basic statistics about a file.
type FileStats struct {
	Size    int64
	IsDir   bool
	ModTime time.Time
	Mode    os.FileMode
}

// FileSystemAdapter is the OS-facing store, also used for symlink-aware path checks.
type FileSystemAdapter interface {
	TextStore
	GetFileStats(filePath string) (*FileStats, error)
	EvalSymlinks(path string) (string, error)
}

// CheckDirectoryIsWritable performs a robust check if a directory is writable.
func CheckDirectoryIsWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path does not exist: %s: %w", path, err)
		}
		return fmt.Errorf("could not stat path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// #nosec G404 -- rand is okay for temp file names
	tmpFileName := fmt.Sprintf("writable_test_%d_%d.tmp", time.Now().UnixNano(), rand.Intn(100000))
	tmpFilePath := filepath.Join(path, tmpFileName)

	file, err := os.Create(tmpFilePath)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied to write in directory %s: %w", path, err)
		}
		return fmt.Errorf("error creating temporary file in %s: %w", path, err)
	}
	_ = file.Close()
	_ = os.Remove(tmpFilePath)
	return nil
}

// AdapterOption configures a DefaultFileSystemAdapter.
type AdapterOption func(*DefaultFileSystemAdapter)

// WithMaxFileSize rejects reads and writes larger than n bytes. Zero disables the check.
func WithMaxFileSize(n int64) AdapterOption {
	return func(fs *DefaultFileSystemAdapter) { fs.maxFileSize = n }
}

// WithLockManager serializes writers of the same path through lm.
func WithLockManager(lm lock.LockManagerInterface) AdapterOption {
	return func(fs *DefaultFileSystemAdapter) { fs.locks = lm }
}

// WithLogger sets the logger used for lock release problems.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(fs *DefaultFileSystemAdapter) { fs.logger = logger }
}

// DefaultFileSystemAdapter is the standard implementation of FileSystemAdapter using the os package.
type DefaultFileSystemAdapter struct {
	maxFileSize int64
	locks       lock.LockManagerInterface
	logger      *slog.Logger
}

// NewDefaultFileSystemAdapter creates a new DefaultFileSystemAdapter.
func NewDefaultFileSystemAdapter(opts ...AdapterOption) *DefaultFileSystemAdapter {
	fs := &DefaultFileSystemAdapter{logger: slog.Default()}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// ReadTextFile reads a UTF-8 text file. Absence is reported as ErrNotFound.
func (fs *DefaultFileSystemAdapter) ReadTextFile(ctx context.Context, filePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stats, err := fs.GetFileStats(filePath)
	if err != nil {
		return "", err
	}
	if stats.IsDir {
		return "", fmt.Errorf("%s: %w", filePath, ErrIsDirectory)
	}
	if fs.maxFileSize > 0 && stats.Size > fs.maxFileSize {
		return "", fmt.Errorf("%s is %d bytes, limit %d: %w", filePath, stats.Size, fs.maxFileSize, ErrFileTooLarge)
	}
	content, err := fs.ReadFileBytes(filePath)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s: %w", filePath, ErrInvalidEncoding)
	}
	return string(content), nil
}

// WriteTextFile replaces the file content atomically while holding the path lock.
// An existing file keeps its permission bits; a new file gets 0644.
func (fs *DefaultFileSystemAdapter) WriteTextFile(ctx context.Context, filePath string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fs.maxFileSize > 0 && int64(len(text)) > fs.maxFileSize {
		return fmt.Errorf("%s would be %d bytes, limit %d: %w", filePath, len(text), fs.maxFileSize, ErrFileTooLarge)
	}
	if fs.locks != nil {
		l, err := fs.locks.AcquireLock(ctx, filePath)
		if err != nil {
			return fmt.Errorf("could not lock %s for writing: %w", filePath, err)
		}
		defer func() {
			if err := fs.locks.ReleaseLock(l); err != nil {
				fs.logger.Warn("releasing file lock failed", "path", filePath, "error", err)
			}
		}()
	}

	perm := defaultFilePerm
	if st, err := os.Stat(filePath); err == nil {
		if st.IsDir() {
			return fmt.Errorf("%s: %w", filePath, ErrIsDirectory)
		}
		if m := st.Mode().Perm(); m != 0 {
			perm = m
		}
	}
	return fs.WriteFileBytesAtomic(filePath, []byte(text), perm)
}

// EnsureDir creates dir and any missing parents. An existing directory is not an error.
func (fs *DefaultFileSystemAdapter) EnsureDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// ReadFileBytes reads the entire file into a byte slice.
func (fs *DefaultFileSystemAdapter) ReadFileBytes(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", filePath, ErrNotFound)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading file: %s: %w", filePath, err)
		}
		return nil, fmt.Errorf("failed to read file: %s: %w", filePath, err)
	}
	return content, nil
}

// WriteFileBytesAtomic writes content to a temporary file in the target directory,
// renames it over the target and sets the final permissions.
func (fs *DefaultFileSystemAdapter) WriteFileBytesAtomic(filePath string, content []byte, finalPerm os.FileMode) error {
	dir := filepath.Dir(filePath)

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	// Harmless after a successful rename.
	defer os.Remove(tempFile.Name())

	if _, errWrite := tempFile.Write(content); errWrite != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write to temporary file %s: %w", tempFile.Name(), errWrite)
	}
	if errSync := tempFile.Sync(); errSync != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary file %s: %w", tempFile.Name(), errSync)
	}
	if errClose := tempFile.Close(); errClose != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", tempFile.Name(), errClose)
	}
	if errChmod := os.Chmod(tempFile.Name(), finalPerm); errChmod != nil {
		return fmt.Errorf("failed to set permissions %o on %s: %w", finalPerm, tempFile.Name(), errChmod)
	}
	if errRename := os.Rename(tempFile.Name(), filePath); errRename != nil {
		return fmt.Errorf("failed to rename temporary file %s to %s: %w", tempFile.Name(), filePath, errRename)
	}
	return nil
}

// GetFileStats retrieves statistics for a given file.
func (fs *DefaultFileSystemAdapter) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", filePath, ErrNotFound)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied getting stats for file: %s: %w", filePath, err)
		}
		return nil, fmt.Errorf("failed to get file stats for %s: %w", filePath, err)
	}

	return &FileStats{
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Mode:    info.Mode().Perm(),
	}, nil
}

// EvalSymlinks evaluates symbolic links for the given path.
func (fs *DefaultFileSystemAdapter) EvalSymlinks(path string) (string, error) {
	resolvedPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate symlinks for %s: %w", path, err)
	}
	return resolvedPath, nil
}

// Ensure DefaultFileSystemAdapter implements FileSystemAdapter
var _ FileSystemAdapter = (*DefaultFileSystemAdapter)(nil)
