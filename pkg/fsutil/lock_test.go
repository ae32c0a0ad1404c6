package fsutil

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRunLock_BlocksConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireRunLock(dir, "run-1")
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	if _, err := AcquireRunLock(dir, "run-2"); err == nil {
		t.Fatalf("expected second acquire to fail")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireRunLock(dir, "run-3")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestRunLock_ZeroValueRelease(t *testing.T) {
	if err := (RunLock{}).Release(); err != nil {
		t.Fatalf("release zero lock: %v", err)
	}
}

func writeLockOwner(t *testing.T, dir string, owner runLockOwner) {
	t.Helper()
	lockDir := filepath.Join(dir, runLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		t.Fatalf("create lock dir: %v", err)
	}
	data, err := json.Marshal(owner)
	if err != nil {
		t.Fatalf("encode owner: %v", err)
	}
	if err := os.WriteFile(filepath.Join(lockDir, runLockOwnerFile), data, 0o644); err != nil {
		t.Fatalf("write owner: %v", err)
	}
}

func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run helper process: %v", err)
	}
	return cmd.ProcessState.Pid()
}

func TestAcquireRunLock_TakesOverLockOfExitedProcess(t *testing.T) {
	dir := t.TempDir()
	writeLockOwner(t, dir, runLockOwner{
		PID:       exitedPID(t),
		RunID:     "crashed",
		CreatedAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	})

	lock, err := AcquireRunLock(dir, "run-2")
	if err != nil {
		t.Fatalf("expected stale lock to be taken over: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	owner, ok := readLockOwner(filepath.Join(dir, runLockDirName, runLockOwnerFile))
	if !ok || owner.RunID != "run-2" || owner.PID != os.Getpid() {
		t.Fatalf("unexpected owner after takeover: %+v", owner)
	}
}

func TestAcquireRunLock_KeepsLockOfLiveProcess(t *testing.T) {
	dir := t.TempDir()
	writeLockOwner(t, dir, runLockOwner{PID: os.Getpid(), RunID: "live", Hostname: hostnameOrUnknown()})

	if _, err := AcquireRunLock(dir, "run-2"); err == nil {
		t.Fatalf("expected lock held by a live process to block")
	}
}

func TestAcquireRunLock_KeepsLockFromOtherHost(t *testing.T) {
	dir := t.TempDir()
	writeLockOwner(t, dir, runLockOwner{PID: exitedPID(t), RunID: "remote", Hostname: "some-other-host"})

	if _, err := AcquireRunLock(dir, "run-2"); err == nil {
		t.Fatalf("expected lock from another host to block")
	}
}

func TestAcquireRunLock_RemovesOldOrphanLock(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, runLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		t.Fatalf("create lock dir: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(lockDir, old, old); err != nil {
		t.Fatalf("age lock dir: %v", err)
	}

	lock, err := AcquireRunLock(dir, "run-2")
	if err != nil {
		t.Fatalf("expected orphan lock to be removed: %v", err)
	}
	_ = lock.Release()
}
