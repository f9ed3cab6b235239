// Package console holds the operator-side authorization state: the selected
// role, whether step-up verification succeeded for it, and a cached copy of
// the policy table. It only drives affordances; the server re-checks every
// operation.
package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/odyssey-erp/storefront/internal/authz"
)

// State is the persisted session context.
type State struct {
	CurrentRole    authz.Role `json:"role"`
	StepUpVerified bool       `json:"step_up_verified"`
}

// DefaultState is the state of a first run: read-only and unverified.
func DefaultState() State {
	return State{CurrentRole: authz.RoleViewer}
}

// normalize maps unknown roles to the default and drops verification for
// roles that never need it.
func (s State) normalize() State {
	if !s.CurrentRole.Valid() {
		return DefaultState()
	}
	if !s.CurrentRole.IsPrivileged() {
		s.StepUpVerified = false
	}
	return s
}

// Store persists State between runs.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps State as a small JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStatePath is the per-user location of the console state file.
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "storefront", "console.json"), nil
}

// Load reads the state. A missing file yields DefaultState without error; an
// unreadable one yields DefaultState and the error.
func (f *FileStore) Load() (State, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultState(), nil
		}
		return DefaultState(), fmt.Errorf("console: read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return DefaultState(), fmt.Errorf("console: decode state: %w", err)
	}
	return st.normalize(), nil
}

// Save writes the state atomically. Writing the same state twice is harmless.
func (f *FileStore) Save(st State) error {
	raw, err := json.MarshalIndent(st.normalize(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("console: create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".console-*.json")
	if err != nil {
		return fmt.Errorf("console: create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("console: write state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("console: chmod state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("console: close state: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// MemoryStore keeps State in memory.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	saves int
}

// NewMemoryStore returns a store seeded with st.
func NewMemoryStore(st State) *MemoryStore {
	return &MemoryStore{state: st}
}

// Load implements Store.
func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.normalize(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st.normalize()
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
