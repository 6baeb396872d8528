package store

import (
	"testing"
)

func newTestStoreWithMigrations(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(":memory:", opts...)
	if err != nil {
		t.Fatalf("New(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(Migrations()); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	return s
}
