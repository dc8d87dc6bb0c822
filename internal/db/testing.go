// Package db test helpers.
//
// Tests requiring database access should use NewTestStore: in-memory
// databases are much faster than file-based ones and each call returns an
// isolated, fully migrated store that is closed via t.Cleanup.
package db

import (
	"testing"
)

// NewTestStore creates an in-memory store for testing.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    store := db.NewTestStore(t)
//	    // use store...
//	}
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
