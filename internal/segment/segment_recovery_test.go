package segment

import (
	"os"
	"testing"

	"lkstream/internal/record"
)

func testConfig(indexEveryN int) Config {
	return Config{
		SegmentMaxBytes: 1 << 20,
		IndexMaxBytes:   1 << 20,
		IndexEveryN:     indexEveryN,
	}
}

func mustAppend(t *testing.T, s *Segment, key, value string) uint64 {
	t.Helper()
	off, err := s.Append(&record.Record{Timestamp: 1, Key: []byte(key), Value: []byte(value)})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return off
}

func TestSegment_AppendRead_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSegment(dir, 0, testConfig(1), 0)
	if err != nil {
		t.Fatalf("NewSegment: %v", err)
	}
	defer s.Close()

	for i := 0; i < 5; i++ {
		mustAppend(t, s, "k", "value-data")
	}

	recs, err := s.Read(2, 10, 1<<20)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Offset != 2 {
		t.Errorf("first offset = %d, want 2", recs[0].Offset)
	}
}

func TestSegment_Recovery_RebuildIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(2) // index every other record, forces sparsity

	s, err := NewSegment(dir, 0, cfg, 0)
	if err != nil {
		t.Fatalf("NewSegment: %v", err)
	}
	for i := 0; i < 25; i++ {
		mustAppend(t, s, "k", "payload")
	}
	if s.NextOffset != 25 {
		t.Fatalf("NextOffset = %d, want 25", s.NextOffset)
	}
	s.Close()

	// Simulate index loss.
	if err := os.Truncate(idxPath(dir, 0), 0); err != nil {
		t.Fatalf("truncate index: %v", err)
	}

	recovered, err := NewSegment(dir, 0, cfg, 0)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	defer recovered.Close()

	if recovered.NextOffset != 25 {
		t.Errorf("recovered NextOffset = %d, want 25", recovered.NextOffset)
	}
	if _, _, ok := recovered.index.LastEntry(); !ok {
		t.Error("expected index to be rebuilt with at least one entry")
	}

	recs, err := recovered.Read(10, 1, 1<<20)
	if err != nil || len(recs) != 1 || recs[0].Offset != 10 {
		t.Errorf("read after rebuild failed: recs=%v err=%v", recs, err)
	}
}

func TestSegment_Recovery_TruncatesTornWrite(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(1)
	baseOffset := uint64(100)

	s, err := NewSegment(dir, baseOffset, cfg, 0)
	if err != nil {
		t.Fatalf("NewSegment: %v", err)
	}
	mustAppend(t, s, "k", "valid-data")
	validSize := s.log.Size()
	s.Close()

	f, err := os.OpenFile(segPath(dir, baseOffset), os.O_WRONLY, 0666)
	if err != nil {
		t.Fatalf("open segment file: %v", err)
	}
	// Write a frame header declaring a length that runs past the file, then
	// a few garbage bytes — simulates a process killed mid-Append.
	garbage := []byte{0x00, 0x00, 0x10, 0x00, 0xFF, 0xFF}
	if _, err := f.WriteAt(garbage, validSize); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	recovered, err := NewSegment(dir, baseOffset, cfg, 0)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	defer recovered.Close()

	if recovered.log.Size() != validSize {
		t.Errorf("log size = %d, want %d (truncated back)", recovered.log.Size(), validSize)
	}
	if recovered.NextOffset != baseOffset+1 {
		t.Errorf("NextOffset = %d, want %d", recovered.NextOffset, baseOffset+1)
	}
}

func TestSegment_Recovery_SeedsHotTail(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(1)

	s, err := NewSegment(dir, 0, cfg, 10)
	if err != nil {
		t.Fatalf("NewSegment: %v", err)
	}
	for i := 0; i < 3; i++ {
		mustAppend(t, s, "k", "v")
	}
	s.Close()

	recovered, err := NewSegment(dir, 0, cfg, 10)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	defer recovered.Close()

	tail := recovered.TakeRecoveredTail()
	if len(tail) != 3 {
		t.Fatalf("recovered tail has %d records, want 3", len(tail))
	}
	if tail[2].Offset != 2 {
		t.Errorf("last tail offset = %d, want 2", tail[2].Offset)
	}
	if recovered.TakeRecoveredTail() != nil {
		t.Error("TakeRecoveredTail should clear after first call")
	}
}
