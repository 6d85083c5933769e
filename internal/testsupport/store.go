package testsupport

import (
	"path/filepath"
	"testing"

	"horizon/internal/store"
)

// MustOpenStore opens a store in a fresh temp directory with migrations and
// recovery enabled, failing the test on error. The store is closed during
// cleanup.
func MustOpenStore(t testing.TB) *store.Store {
	t.Helper()
	return MustOpenStoreAt(t, filepath.Join(t.TempDir(), "studio.db"), store.Options{
		RunMigrations:       true,
		RecoverRuntimeState: true,
	})
}

// MustOpenStoreAt opens a store at an explicit path with the given options,
// failing the test on error.
func MustOpenStoreAt(t testing.TB, path string, opts store.Options) *store.Store {
	t.Helper()

	st, err := store.Open(path, opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}
