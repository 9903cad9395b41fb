package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := Acquire(stateDir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	lockPath := filepath.Join(stateDir, LockFileName)
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("lock file not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "pid=") {
		t.Errorf("lock file should record the owning pid, got %q", data)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	lock, err := Acquire(t.TempDir())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
}

func TestAcquireCreatesStateDir(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := Acquire(stateDir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(stateDir); err != nil {
		t.Errorf("state directory was not created: %v", err)
	}
}

func TestAcquireConflict(t *testing.T) {
	stateDir := t.TempDir()

	first, err := Acquire(stateDir)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	_, err = Acquire(stateDir)
	if err == nil {
		t.Fatal("second Acquire should fail while the lock is held")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockError, got %T: %v", err, err)
	}
	if !strings.Contains(lockErr.Error(), LockFileName) {
		t.Errorf("error should name the lock file, got %q", lockErr.Error())
	}
	if !strings.Contains(lockErr.Holder, "running") {
		t.Errorf("error should describe the holding process, got %q", lockErr.Holder)
	}
}

func TestExtractPID(t *testing.T) {
	if pid := extractPID("pid=1234\n"); pid != 1234 {
		t.Errorf("expected 1234, got %d", pid)
	}
	if pid := extractPID("garbage"); pid != 0 {
		t.Errorf("expected 0 for missing pid, got %d", pid)
	}
	if pid := extractPID("pid=\n"); pid != 0 {
		t.Errorf("expected 0 for empty pid, got %d", pid)
	}
}
