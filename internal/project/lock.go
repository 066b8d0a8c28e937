package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process holds the project lock.
var ErrLocked = errors.New("project is locked by another process")

// Lock is an advisory exclusive lock on a project file. Only one
// materialization may write a project at a time.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the lock for the project at projectPath without
// blocking. The lock lives in a sidecar file next to the project.
func AcquireLock(projectPath string) (*Lock, error) {
	path := projectPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", projectPath, ErrLocked)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	}

	return &Lock{path: path, file: f}, nil
}

// Release drops the lock. The sidecar file is left in place so every
// process locks the same inode.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		_ = l.file.Close()
		l.file = nil
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
