package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shipway/shipway/pkg/log"
)

// DefaultLease bounds how long a lock outlives its holder. A crashed run
// that could not release leaves a lock that expires on its own.
const DefaultLease = 2 * time.Hour

// ContentionError reports that another run owns the target. Callers abort
// immediately with no side effects.
type ContentionError struct {
	Target string
	Holder holder
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("target %s is locked by pid %d (run %s) since %s",
		e.Target, e.Holder.PID, e.Holder.RunID, e.Holder.AcquiredAt.Format(time.RFC3339))
}

// holder is the lock file payload.
type holder struct {
	PID        int       `json:"pid"`
	RunID      string    `json:"run_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Manager hands out per-target locks backed by lock files in the data
// directory. Two orchestrator runs can never hold the same target's lock at
// once; a lock from a dead or expired holder is broken automatically.
type Manager struct {
	dir    string
	lease  time.Duration
	logger zerolog.Logger
}

// NewManager creates a lock manager rooted in dataDir.
func NewManager(dataDir string) (*Manager, error) {
	dir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Manager{
		dir:    dir,
		lease:  DefaultLease,
		logger: log.WithComponent("lock"),
	}, nil
}

func (m *Manager) path(target string) string {
	return filepath.Join(m.dir, target+".lock")
}

// Acquire takes the target's lock or fails with ContentionError. The
// returned Guard must be released on every exit path.
func (m *Manager) Acquire(target, runID string) (*Guard, error) {
	path := m.path(target)

	for attempt := 0; attempt < 2; attempt++ {
		guard, err := m.tryCreate(path, target, runID)
		if err == nil {
			return guard, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		existing, readErr := readHolder(path)
		if readErr != nil {
			// Unreadable lock file: likely a partially written one from a
			// crash. Break it and retry once.
			m.logger.Warn().Str("target", target).Err(readErr).Msg("breaking unreadable lock")
			os.Remove(path)
			continue
		}

		if stale(existing) {
			m.logger.Warn().
				Str("target", target).
				Int("pid", existing.PID).
				Msg("breaking stale lock")
			os.Remove(path)
			continue
		}

		return nil, &ContentionError{Target: target, Holder: existing}
	}
	return nil, fmt.Errorf("failed to acquire lock for target %s", target)
}

func (m *Manager) tryCreate(path, target, runID string) (*Guard, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}

	h := holder{
		PID:        os.Getpid(),
		RunID:      runID,
		AcquiredAt: time.Now(),
		ExpiresAt:  time.Now().Add(m.lease),
	}
	if err := json.NewEncoder(f).Encode(h); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	m.logger.Debug().Str("target", target).Msg("lock acquired")
	return &Guard{path: path, target: target, logger: m.logger}, nil
}

func readHolder(path string) (holder, error) {
	var h holder
	data, err := os.ReadFile(path)
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, err
	}
	return h, nil
}

// stale reports whether the holder's lease expired or its process is gone.
func stale(h holder) bool {
	if time.Now().After(h.ExpiresAt) {
		return true
	}
	if h.PID <= 0 {
		return true
	}
	proc, err := os.FindProcess(h.PID)
	if err != nil {
		return true
	}
	// Signal 0 probes existence without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return true
	}
	return false
}

// Guard is a held lock. Release is idempotent so deferred and explicit
// releases can coexist.
type Guard struct {
	path     string
	target   string
	released bool
	logger   zerolog.Logger
}

// Release drops the lock.
func (g *Guard) Release() error {
	if g == nil || g.released {
		return nil
	}
	g.released = true
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock for %s: %w", g.target, err)
	}
	g.logger.Debug().Str("target", g.target).Msg("lock released")
	return nil
}
