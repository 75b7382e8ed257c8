// Package lockfile implements a cross-process advisory single-writer
// lock, grounded on pm's internal/daemon/pidfile.go
// (PID file read/write) and pidfile_unix.go (signal-0 liveness probe),
// generalized to the {pid, startTime, runId} JSON payload imploid persists.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Holder is the JSON payload written into the lock file. RunID
// disambiguates successive runs by the same PID across process-table
// reuse, which StartTime alone cannot do at second resolution.
type Holder struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"startTime"`
	RunID     string    `json:"runId"`
}

// Lock is an advisory cross-process lock backed by a JSON file.
type Lock struct {
	Path string
}

// New creates a Lock bound to path.
func New(path string) *Lock {
	return &Lock{Path: path}
}

// Acquire attempts to take the lock. If no file exists, it writes one
// atomically and returns true. If a file exists and names a live
// process, it returns false. If the named process is dead, the stale
// file is deleted and acquisition is retried once. Filesystem failures
// return (false, nil): acquire never panics on I/O trouble, the caller
// treats a false return as "could not acquire".
func (l *Lock) Acquire() (bool, error) {
	ok, err := l.tryAcquire()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	holder, err := l.currentHolder()
	if err != nil {
		// Unreadable lock file: treat as stale, same as a dead holder.
		if rmErr := os.Remove(l.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			return false, nil
		}
		return l.tryAcquire()
	}

	if isAlive(holder.PID) {
		return false, nil
	}

	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return false, nil
	}
	return l.tryAcquire()
}

// tryAcquire writes the lock file only if it does not already exist,
// using O_EXCL so two concurrent acquirers cannot both succeed.
func (l *Lock) tryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return false, nil
	}

	holder := Holder{PID: os.Getpid(), StartTime: time.Now().UTC(), RunID: uuid.NewString()}
	data, err := json.Marshal(holder)
	if err != nil {
		return false, fmt.Errorf("marshal lock holder: %w", err)
	}

	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, nil
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return false, nil
	}
	return true, nil
}

// Release deletes the lock file iff it names the current process. A
// missing file is not an error.
func (l *Lock) Release() error {
	holder, err := l.currentHolder()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return nil
	}
	if holder.PID != os.Getpid() {
		return nil
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// CurrentHolder returns the lock file's recorded holder, or nil if no
// lock file exists.
func (l *Lock) CurrentHolder() (*Holder, error) {
	h, err := l.currentHolder()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

func (l *Lock) currentHolder() (*Holder, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &h, nil
}
