package console

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storefront/internal/authz"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "console.json")
	store := NewFileStore(path)

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultState(), st)

	want := State{CurrentRole: authz.RoleAdmin, StepUpVerified: true}
	require.NoError(t, store.Save(want))
	require.NoError(t, store.Save(want))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"admin","step_up_verified":true}`, string(raw))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStoreCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	st, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.Equal(t, DefaultState(), st)
}
