package offsetstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStore_CommitReadCommitted_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Commit("g1", "orders", 0, 42); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok, err := s.ReadCommitted("g1", "orders", 0)
	if err != nil {
		t.Fatalf("ReadCommitted: %v", err)
	}
	if !ok || got != 42 {
		t.Fatalf("ReadCommitted = (%d, %v), want (42, true)", got, ok)
	}
}

func TestStore_ReadCommitted_Missing(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ok, err := s.ReadCommitted("g1", "orders", 0)
	if err != nil {
		t.Fatalf("ReadCommitted: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a triple that was never committed")
	}
}

func TestStore_Commit_OverwritesPreviousValue(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Commit("g1", "orders", 0, 42); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Commit("g1", "orders", 0, 99); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok, err := s.ReadCommitted("g1", "orders", 0)
	if err != nil {
		t.Fatalf("ReadCommitted: %v", err)
	}
	if !ok || got != 99 {
		t.Fatalf("ReadCommitted = (%d, %v), want (99, true)", got, ok)
	}
}

func TestStore_Commit_LeavesNoTmpFileBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Commit("g1", "orders", 0, 7); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover tmp file after successful commit: %s", e.Name())
		}
	}
}

func TestStore_DistinctTriplesAreIndependent(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Commit("g1", "orders", 0, 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Commit("g1", "orders", 1, 2); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Commit("g2", "orders", 0, 3); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	cases := []struct {
		group, topic string
		pid          int
		want         uint64
	}{
		{"g1", "orders", 0, 1},
		{"g1", "orders", 1, 2},
		{"g2", "orders", 0, 3},
	}
	for _, c := range cases {
		got, ok, err := s.ReadCommitted(c.group, c.topic, c.pid)
		if err != nil || !ok {
			t.Fatalf("ReadCommitted(%s,%s,%d): got=%d ok=%v err=%v", c.group, c.topic, c.pid, got, ok, err)
		}
		if got != c.want {
			t.Errorf("ReadCommitted(%s,%s,%d) = %d, want %d", c.group, c.topic, c.pid, got, c.want)
		}
	}
}
