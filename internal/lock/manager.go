package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrLockTimeout is returned when acquiring a lock times out.
	ErrLockTimeout = fmt.Errorf("timeout acquiring lock")
	// ErrFilenameRequired is returned when a filename is empty.
	ErrFilenameRequired = fmt.Errorf("filename is required")
	// ErrNilLock is returned when a nil lock handle is provided to ReleaseLock.
	ErrNilLock = fmt.Errorf("nil lock handle")
)

const (
	// shortPollInterval is the interval to sleep when polling for a lock.
	shortPollInterval = 10 * time.Millisecond
)

// LockManager hands out flock-based locks. Lock files live in a dedicated
// directory so the workspace is never littered with *.lock files.
type LockManager struct {
	lockDir string
	timeout time.Duration
}

// NewLockManager initializes and returns a new LockManager.
// An empty lockDir selects a directory under os.TempDir().
func NewLockManager(lockDir string, timeout time.Duration) (*LockManager, error) {
	if lockDir == "" {
		lockDir = filepath.Join(os.TempDir(), "file-patcher-locks")
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	if err := os.MkdirAll(lockDir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create lock directory %s: %w", lockDir, err)
	}
	return &LockManager{lockDir: lockDir, timeout: timeout}, nil
}

// LockPath returns the lock file used for filePath.
func (lm *LockManager) LockPath(filePath string) string {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		abs = filepath.Clean(filePath)
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(lm.lockDir, hex.EncodeToString(sum[:12])+".lock")
}

// AcquireLock attempts to acquire an exclusive OS-level lock for the given file.
// It gives up after the manager timeout or when ctx is done, whichever comes first.
func (lm *LockManager) AcquireLock(ctx context.Context, filePath string) (*FileLock, error) {
	if filePath == "" {
		return nil, ErrFilenameRequired
	}

	ctx, cancel := context.WithTimeout(ctx, lm.timeout)
	defer cancel()

	fileLock := flock.New(lm.LockPath(filePath))
	locked, err := fileLock.TryLockContext(ctx, shortPollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("error acquiring file lock for %s: %w", filePath, err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}

	return &FileLock{FilePath: filePath, flock: fileLock}, nil
}

// ReleaseLock releases the given OS-level lock.
func (lm *LockManager) ReleaseLock(lock *FileLock) error {
	if lock == nil {
		return ErrNilLock
	}
	if lock.flock == nil {
		return nil
	}
	if err := lock.flock.Unlock(); err != nil {
		return fmt.Errorf("error releasing file lock for %s: %w", lock.FilePath, err)
	}
	return nil
}

var _ LockManagerInterface = (*LockManager)(nil)
