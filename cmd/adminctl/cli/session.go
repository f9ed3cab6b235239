package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SessionFile keeps the operator's server session between invocations.
type SessionFile struct {
	Path string
}

type storedSession struct {
	Server  string `json:"server"`
	Session string `json:"session"`
}

// SessionPathFor places the session file next to the console state file.
func SessionPathFor(statePath string) string {
	return filepath.Join(filepath.Dir(statePath), "session.json")
}

// Load returns the session stored for server. A missing file, or one written
// for another server, yields an empty session.
func (f SessionFile) Load(server string) (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var st storedSession
	if err := json.Unmarshal(raw, &st); err != nil {
		return "", fmt.Errorf("session file %s: %w", f.Path, err)
	}
	if st.Server != server {
		return "", nil
	}
	return st.Session, nil
}

// Save writes the session for server with owner-only permissions.
func (f SessionFile) Save(server, session string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(storedSession{Server: server, Session: session})
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, raw, 0o600)
}

// Clear forgets any stored session.
func (f SessionFile) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
