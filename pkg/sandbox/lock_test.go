package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
)

func TestAcquireDirLock(t *testing.T) {
	root := t.TempDir()
	locks := filepath.Join(root, "locks")
	dir := filepath.Join(root, "work")

	lock, err := AcquireDirLock(locks, dir)
	if err != nil {
		t.Fatalf("AcquireDirLock() error = %v", err)
	}
	data, err := os.ReadFile(LockPath(locks, dir))
	if err != nil {
		t.Fatalf("lock file missing: %v", err)
	}
	if !strings.HasPrefix(string(data), strconv.Itoa(os.Getpid())+"\n") {
		t.Errorf("lock file = %q, want our pid first", data)
	}

	_, err = AcquireDirLock(locks, dir)
	if !errors.Is(err, apperrors.ErrDirLocked) {
		t.Fatalf("second AcquireDirLock() error = %v, want ErrDirLocked", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}

	again, err := AcquireDirLock(locks, dir)
	if err != nil {
		t.Fatalf("AcquireDirLock() after release error = %v", err)
	}
	again.Release()
}

func TestLockPath_Central(t *testing.T) {
	root := t.TempDir()
	locks := filepath.Join(root, "locks")
	dir := filepath.Join(root, "work")

	got := LockPath(locks, dir)
	if filepath.Dir(got) != locks {
		t.Errorf("LockPath() = %q, want a file inside %q", got, locks)
	}
	if strings.HasPrefix(got, dir) {
		t.Errorf("LockPath() = %q, must not sit next to the work dir", got)
	}

	// relative and absolute spellings share one lock
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if LockPath(locks, "sub") != LockPath(locks, filepath.Join(wd, "sub")) {
		t.Error("relative and absolute paths map to different locks")
	}
	if LockPath(locks, "a") == LockPath(locks, "b") {
		t.Error("different dirs map to the same lock")
	}
}

func TestAcquireDirLock_ReclaimsDeadHolder(t *testing.T) {
	root := t.TempDir()
	locks := filepath.Join(root, "locks")
	dir := filepath.Join(root, "work")

	if err := os.MkdirAll(locks, 0755); err != nil {
		t.Fatal(err)
	}
	// above the largest pid the kernel hands out
	if err := os.WriteFile(LockPath(locks, dir), []byte("99999999\n"+dir+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	lock, err := AcquireDirLock(locks, dir)
	if err != nil {
		t.Fatalf("AcquireDirLock() over a dead holder error = %v", err)
	}
	defer lock.Release()

	data, _ := os.ReadFile(LockPath(locks, dir))
	if !strings.HasPrefix(string(data), strconv.Itoa(os.Getpid())+"\n") {
		t.Errorf("lock file = %q, want it rewritten with our pid", data)
	}
}

func TestAcquireDirLock_UnreadableHolderStaysLocked(t *testing.T) {
	root := t.TempDir()
	locks := filepath.Join(root, "locks")
	dir := filepath.Join(root, "work")

	if err := os.MkdirAll(locks, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(LockPath(locks, dir), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := AcquireDirLock(locks, dir)
	if !errors.Is(err, apperrors.ErrDirLocked) {
		t.Fatalf("AcquireDirLock() error = %v, want ErrDirLocked", err)
	}
	if !strings.Contains(err.Error(), "pid unknown") {
		t.Errorf("error = %v, want unknown holder", err)
	}
}
