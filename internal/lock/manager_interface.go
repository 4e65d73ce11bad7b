package lock

import (
	"context"

	"github.com/gofrs/flock"
)

// FileLock represents a handle to an OS-level file lock.
type FileLock struct {
	// FilePath is the path the lock protects, not the lock file itself.
	FilePath string
	flock    *flock.Flock
}

// LockManagerInterface defines the methods a lock manager should implement.
// AcquireLock obtains an exclusive OS-level lock for filePath and returns a handle
// which must be provided back to ReleaseLock.
type LockManagerInterface interface {
	AcquireLock(ctx context.Context, filePath string) (*FileLock, error)
	ReleaseLock(lock *FileLock) error
}
