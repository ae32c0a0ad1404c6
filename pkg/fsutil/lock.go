package fsutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	runLockDirName   = ".reelcast.lock"
	runLockOwnerFile = "owner.json"

	// A lock directory without an owner file older than this is abandoned.
	orphanLockAge = time.Minute
)

// RunLock prevents two pipeline runs from sharing the same queue directory.
type RunLock struct {
	lockDir string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	RunID     string `json:"run_id,omitempty"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireRunLock creates the lock directory under dir or reports who holds it.
func AcquireRunLock(dir, runID string) (RunLock, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return RunLock{}, fmt.Errorf("lock directory is required")
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return RunLock{}, fmt.Errorf("create lock parent %s: %w", target, err)
	}

	lockDir := filepath.Join(target, runLockDirName)
	ownerPath := filepath.Join(lockDir, runLockOwnerFile)
	err := os.Mkdir(lockDir, 0o755)
	if os.IsExist(err) && isStaleLock(lockDir) {
		if rmErr := os.RemoveAll(lockDir); rmErr != nil {
			return RunLock{}, fmt.Errorf("remove stale run lock %s: %w", lockDir, rmErr)
		}
		err = os.Mkdir(lockDir, 0o755)
	}
	if err != nil {
		if os.IsExist(err) {
			if owner, ok := readLockOwner(ownerPath); ok {
				return RunLock{}, fmt.Errorf(
					"pipeline is locked: %s (pid=%d run_id=%s created_at=%s host=%s)",
					target, owner.PID, owner.RunID, owner.CreatedAt, owner.Hostname,
				)
			}
			return RunLock{}, fmt.Errorf("pipeline is locked: %s", target)
		}
		return RunLock{}, fmt.Errorf("acquire run lock for %s: %w", target, err)
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		RunID:     runID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, err := json.MarshalIndent(owner, "", "  ")
	if err == nil {
		err = WriteFileAtomic(ownerPath, append(data, '\n'))
	}
	if err != nil {
		_ = os.RemoveAll(lockDir)
		return RunLock{}, fmt.Errorf("write run lock owner for %s: %w", target, err)
	}

	return RunLock{lockDir: lockDir}, nil
}

// Release removes the lock. Releasing a zero RunLock is a no-op.
func (l RunLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, runLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock %s: %w", l.lockDir, err)
	}
	return nil
}

func readLockOwner(path string) (runLockOwner, bool) {
	var owner runLockOwner
	data, err := os.ReadFile(path)
	if err != nil || json.Unmarshal(data, &owner) != nil || owner.PID <= 0 {
		return runLockOwner{}, false
	}
	return owner, true
}

// isStaleLock reports whether the lock was left behind by a process that is
// gone. Locks held from another host are never taken over.
func isStaleLock(lockDir string) bool {
	owner, ok := readLockOwner(filepath.Join(lockDir, runLockOwnerFile))
	if !ok {
		info, err := os.Stat(lockDir)
		return err == nil && time.Since(info.ModTime()) > orphanLockAge
	}
	if owner.Hostname != "" && owner.Hostname != hostnameOrUnknown() {
		return false
	}
	return !processAlive(owner.PID)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
