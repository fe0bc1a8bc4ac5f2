package testsupport

import (
	"testing"

	"craefto/internal/config"
	"craefto/internal/contentstore"
)

// MustOpenStore opens a contentstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *contentstore.Store {
	t.Helper()

	store, err := contentstore.Open(cfg)
	if err != nil {
		t.Fatalf("contentstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
