// Package lock guards an index file against concurrent runs.
//
// The lock is a small JSON file next to the index, created with O_EXCL.
// A lock whose holder is gone is stale and may be taken over.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	// Suffix is appended to the index path to name its lock file
	Suffix = ".lock"
	// DefaultStaleTimeout bounds how long a lock from another host is honoured
	DefaultStaleTimeout = 30 * time.Minute
)

// ErrLocked is matched by every LockError
var ErrLocked = errors.New("index is locked")

// Holder describes the run holding the lock
type Holder struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Command   string    `json:"command,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
}

func currentHolder(command, runID string) *Holder {
	return &Holder{
		PID:       os.Getpid(),
		Hostname:  hostname(),
		StartTime: time.Now(),
		Command:   command,
		RunID:     runID,
	}
}

// same reports whether h and o describe the same acquisition
func (h *Holder) same(o *Holder) bool {
	return h.PID == o.PID &&
		h.Hostname == o.Hostname &&
		h.StartTime.Equal(o.StartTime) &&
		h.Command == o.Command &&
		h.RunID == o.RunID
}

// IndexLock is a lock file living next to an index
type IndexLock struct {
	lockPath     string
	staleTimeout time.Duration
	// holder is what this instance wrote, nil while not held
	holder *Holder
}

// ForIndex creates the lock guarding indexPath. The lock file is
// indexPath + Suffix; its directory is created if missing.
func ForIndex(indexPath string) (*IndexLock, error) {
	if indexPath == "" {
		return nil, errors.New("index path is empty")
	}

	abs, err := filepath.Abs(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve index path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &IndexLock{lockPath: abs + Suffix, staleTimeout: DefaultStaleTimeout}, nil
}

// Path returns the lock file path
func (l *IndexLock) Path() string {
	return l.lockPath
}

// Acquire takes the lock for one run of command. A second Acquire on the
// same instance relabels the holder. Returns a *LockError if another live
// run holds it.
func (l *IndexLock) Acquire(command, runID string) error {
	existing, err := l.read()
	switch {
	case err == nil && l.ownedBy(existing):
		return l.relabel(command, runID)
	case err == nil && !l.isStale(existing):
		return &LockError{Holder: existing, Reason: "lock is held by another process"}
	case err == nil:
		if err := removeIfExists(l.lockPath); err != nil {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	holder := currentHolder(command, runID)
	if err := l.create(holder); err != nil {
		return err
	}
	l.holder = holder
	return nil
}

func (l *IndexLock) relabel(command, runID string) error {
	next := *l.holder
	next.Command = command
	next.RunID = runID
	if err := l.write(&next); err != nil {
		return err
	}
	l.holder = &next
	return nil
}

// create writes holder into a lock file that must not exist yet
func (l *IndexLock) create(holder *Holder) error {
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		winner, _ := l.read()
		return &LockError{Holder: winner, Reason: "lock acquired by another process during acquisition"}
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(holder); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	return nil
}

// Release removes the lock file if this instance still owns it. A lock
// rewritten by someone else is left in place and reported.
func (l *IndexLock) Release() error {
	if l.holder == nil {
		return nil
	}
	defer func() { l.holder = nil }()

	existing, err := l.read()
	if err != nil {
		return nil
	}
	if !l.ownedBy(existing) {
		return fmt.Errorf("lock was taken over by PID %d", existing.PID)
	}
	if err := removeIfExists(l.lockPath); err != nil {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked checks if a live lock is present
func (l *IndexLock) IsLocked() bool {
	h, err := l.read()
	return err == nil && !l.isStale(h)
}

// Holder returns the live holder of the lock
func (l *IndexLock) Holder() (*Holder, error) {
	h, err := l.read()
	if err != nil {
		return nil, err
	}
	if l.isStale(h) {
		return nil, errors.New("lock is stale")
	}
	return h, nil
}

// ForceRelease removes the lock file whoever holds it and reports whether
// there was one.
func (l *IndexLock) ForceRelease() (bool, error) {
	l.holder = nil
	err := os.Remove(l.lockPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to force remove lock: %w", err)
	}
	return true, nil
}

func (l *IndexLock) read() (*Holder, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}

	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &h, nil
}

func (l *IndexLock) write(h *Holder) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.lockPath, data, 0644)
}

// isStale reports whether the holder is gone. On the same host only a dead
// process makes a lock stale; across hosts the timeout decides.
func (l *IndexLock) isStale(h *Holder) bool {
	if h.Hostname == hostname() {
		return !processExists(h.PID)
	}
	return time.Since(h.StartTime) > l.staleTimeout
}

func (l *IndexLock) ownedBy(h *Holder) bool {
	return l.holder != nil && l.holder.same(h)
}

func hostname() string {
	name, _ := os.Hostname()
	return name
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// LockError is returned when the lock is held elsewhere
type LockError struct {
	Holder *Holder
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder == nil {
		return "cannot acquire lock: " + e.Reason
	}
	return fmt.Sprintf("cannot acquire lock: %s (held by PID %d on %s since %s, command: %s)",
		e.Reason,
		e.Holder.PID,
		e.Holder.Hostname,
		e.Holder.StartTime.Format(time.RFC3339),
		e.Holder.Command,
	)
}

// Unwrap lets errors.Is(err, ErrLocked) match
func (e *LockError) Unwrap() error {
	return ErrLocked
}

// IsLockError checks if an error is or wraps a LockError
func IsLockError(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
