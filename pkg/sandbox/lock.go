package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
)

// DirLock marks a working directory as in use by one controller
type DirLock struct {
	path string
}

// LockPath returns the lock file for dir inside lockDir. The name is derived
// from the absolute path so every process agrees on it whatever its cwd.
func LockPath(lockDir, dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(lockDir, hex.EncodeToString(sum[:12])+".lock")
}

// AcquireDirLock takes an exclusive lock on dir. It fails with ErrDirLocked
// while a live process holds it; a lock left by a dead process is reclaimed.
func AcquireDirLock(lockDir, dir string) (*DirLock, error) {
	path := LockPath(lockDir, dir)
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			defer f.Close()
			if _, err := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), dir); err != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lock %s: %w", path, err)
			}
			return &DirLock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock %s: %w", path, err)
		}

		pid, ok := lockHolder(path)
		if ok && attempt == 0 && !processAlive(pid) {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to remove stale lock %s: %w", path, err)
			}
			continue
		}
		holder := "unknown"
		if ok {
			holder = strconv.Itoa(pid)
		}
		return nil, fmt.Errorf("%w: %s held by pid %s", apperrors.ErrDirLocked, dir, holder)
	}
}

// lockHolder reads the pid recorded on the first line of a lock file
func lockHolder(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	first, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Release removes the lock file. Safe to call more than once.
func (l *DirLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release lock %s: %w", path, err)
	}
	return nil
}
