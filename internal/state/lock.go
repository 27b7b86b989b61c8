package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockFileName is the instance lock kept inside the state directory.
const LockFileName = "bot.lock"

// LockInfo contains information about the lock holder
type LockInfo struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
	Hostname  string    `json:"hostname"`
}

// InstanceLock keeps two bot processes from sharing one state directory.
type InstanceLock struct {
	lockFile string
	acquired bool
}

// ProcessAlive reports whether a process with the given PID is still running.
func ProcessAlive(pid int) bool {
	return processAlive(pid)
}

// NewInstanceLock creates a lock for the given state directory.
func NewInstanceLock(dir string) *InstanceLock {
	return &InstanceLock{
		lockFile: filepath.Join(dir, LockFileName),
	}
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.lockFile
}

// Acquire creates the lock file with O_EXCL. A lock left behind by a dead
// process is removed and acquisition retried once.
func (l *InstanceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.lockFile), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	err := l.create()
	if err == nil || !os.IsExist(err) {
		return err
	}

	info, readErr := l.readLockInfo()
	if readErr == nil && processAlive(info.PID) {
		return fmt.Errorf("another instance is running (PID: %d, started: %s)",
			info.PID, info.StartTime.Format(time.RFC3339))
	}

	// Unreadable or stale lock: remove and retry once
	os.Remove(l.lockFile)
	if err := l.create(); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("lock file exists and could not be acquired")
		}
		return err
	}
	return nil
}

func (l *InstanceLock) create() error {
	f, err := os.OpenFile(l.lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := writeLockInfoTo(f); err != nil {
		f.Close()
		os.Remove(l.lockFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(l.lockFile)
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	l.acquired = true
	return nil
}

// Release removes the lock file
func (l *InstanceLock) Release() error {
	if !l.acquired {
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	l.acquired = false
	return nil
}

// IsStale checks if the lock file is stale (process no longer running)
func (l *InstanceLock) IsStale() bool {
	info, err := l.readLockInfo()
	if err != nil {
		return false
	}

	return !processAlive(info.PID)
}

func (l *InstanceLock) readLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockFile)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

func writeLockInfoTo(f *os.File) error {
	hostname, _ := os.Hostname()
	info := LockInfo{
		PID:       os.Getpid(),
		StartTime: time.Now(),
		Hostname:  hostname,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	return nil
}
