package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/viewsync/internal/ident"
)

// createTestStore creates a file-backed store in a temp dir with
// deterministic document ids ("doc-1", "doc-2", ...).
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(ident.NewSequence("doc")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
