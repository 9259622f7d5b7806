package degraded

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Mode is the application operating mode.
type Mode string

const (
	// ModeLive is normal operation against real integrations.
	ModeLive Mode = "live"
	// ModeOffline serves cached/mock data because one or more critical
	// integrations are unavailable.
	ModeOffline Mode = "offline"
)

type persistedState struct {
	Mode      Mode      `json:"mode"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// Store persists the application mode so a restart during an outage comes
// back up offline instead of hammering a down dependency.
type Store struct {
	path string

	mu    sync.Mutex
	state persistedState
}

// NewStore creates a store backed by the given file. A readable existing
// file seeds the initial mode; otherwise the store starts live.
func NewStore(path string) *Store {
	s := &Store{
		path:  path,
		state: persistedState{Mode: ModeLive, ChangedAt: time.Now()},
	}
	if data, err := os.ReadFile(path); err == nil {
		var loaded persistedState
		if sonic.Unmarshal(data, &loaded) == nil && loaded.Mode != "" {
			s.state = loaded
		}
	}
	return s
}

// Mode returns the current operating mode.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode
}

// Reason returns why the current mode was entered.
func (s *Store) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Reason
}

// SetMode switches the operating mode and persists it. Persistence errors
// are returned but the in-memory mode always changes: serving degraded
// beats failing because a state file was unwritable.
func (s *Store) SetMode(mode Mode, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Mode == mode {
		return nil
	}
	s.state = persistedState{Mode: mode, Reason: reason, ChangedAt: time.Now()}

	data, err := sonic.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("failed to encode app mode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to persist app mode: %w", err)
	}
	return nil
}
