package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lkstream/internal/partition"
	"lkstream/internal/record"
	"lkstream/internal/segment"
)

func testConfig() partition.Config {
	return partition.Config{
		SegmentConfig: segment.Config{
			SegmentMaxBytes: 150,
			IndexMaxBytes:   512,
			IndexEveryN:     1,
		},
		HotTailCapacity:   16,
		RetentionMaxBytes: -1,
		RetentionMaxAge:   0,
	}
}

func appendAt(t *testing.T, p *partition.Partition, timestamp int64) {
	t.Helper()
	if _, err := p.Append(&record.Record{Timestamp: timestamp, Value: []byte("some-moderately-long-payload")}); err != nil {
		t.Fatal(err)
	}
}

func countSegFiles(entries []os.DirEntry) int {
	count := 0
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > 4 && e.Name()[len(e.Name())-4:] == ".seg" {
			count++
		}
	}
	return count
}

func TestCleaner_StartStop(t *testing.T) {
	rc := NewCleaner(CleanerConfig{RetentionCheckIntervalMs: 50})
	rc.Start()
	time.Sleep(100 * time.Millisecond)
	rc.Stop()
}

func TestCleaner_Register(t *testing.T) {
	tmpDir := t.TempDir()
	cache := partition.NewSegmentCache(10)
	defer cache.Close()

	p, err := partition.NewPartition(tmpDir, "test", 0, testConfig(), cache)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	rc := NewCleaner(CleanerConfig{RetentionCheckIntervalMs: 50})
	rc.Register(p)

	if len(rc.partitions) != 1 {
		t.Errorf("expected 1 partition, got %d", len(rc.partitions))
	}
}

func TestCleaner_Integration_RetentionMaxAge(t *testing.T) {
	tmpDir := t.TempDir()
	cache := partition.NewSegmentCache(10)
	defer cache.Close()

	cfg := testConfig()
	cfg.RetentionMaxAge = 100 * time.Millisecond

	p, err := partition.NewPartition(tmpDir, "test", 0, cfg, cache)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	oldTimestamp := time.Now().Add(-500 * time.Millisecond).UnixMilli()
	for i := 0; i < 3; i++ {
		appendAt(t, p, oldTimestamp)
	}
	appendAt(t, p, time.Now().UnixMilli())

	segmentsBefore := len(p.Segments)
	if segmentsBefore <= 1 {
		t.Skip("not enough segments rolled for this test")
	}

	rc := NewCleaner(CleanerConfig{RetentionCheckIntervalMs: 50})
	rc.Register(p)
	rc.Start()

	time.Sleep(150 * time.Millisecond)
	rc.Stop()

	segmentsAfter := len(p.Segments)
	if segmentsAfter >= segmentsBefore {
		t.Errorf("expected segments to be deleted: before=%d, after=%d", segmentsBefore, segmentsAfter)
	}

	partDir := filepath.Join(tmpDir, "test", "part0")
	files, _ := os.ReadDir(partDir)
	t.Logf("segments before: %d, after: %d, files remaining: %d", segmentsBefore, segmentsAfter, len(files))
}

func TestCleaner_Integration_RetentionMaxBytes(t *testing.T) {
	tmpDir := t.TempDir()
	cache := partition.NewSegmentCache(10)
	defer cache.Close()

	cfg := testConfig()
	cfg.RetentionMaxBytes = 200

	p, err := partition.NewPartition(tmpDir, "test", 0, cfg, cache)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ts := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		appendAt(t, p, ts)
	}

	segmentsBefore := len(p.Segments)
	if segmentsBefore <= 1 {
		t.Skip("not enough segments for this test")
	}

	partDir := filepath.Join(tmpDir, "test", "part0")
	filesBefore, _ := os.ReadDir(partDir)
	countBefore := len(filesBefore)

	rc := NewCleaner(CleanerConfig{RetentionCheckIntervalMs: 50})
	rc.Register(p)
	rc.Start()

	time.Sleep(150 * time.Millisecond)
	rc.Stop()

	segmentsAfter := len(p.Segments)
	filesAfter, _ := os.ReadDir(partDir)
	countAfter := len(filesAfter)

	if segmentsAfter >= segmentsBefore {
		t.Errorf("expected segments to be deleted: before=%d, after=%d", segmentsBefore, segmentsAfter)
	}
	if countAfter >= countBefore {
		t.Errorf("expected files to be deleted: before=%d, after=%d", countBefore, countAfter)
	}

	t.Logf("segments: %d->%d, files: %d->%d", segmentsBefore, segmentsAfter, countBefore, countAfter)
}

func TestCleaner_Integration_NoDeleteWhenDisabled(t *testing.T) {
	tmpDir := t.TempDir()
	cache := partition.NewSegmentCache(10)
	defer cache.Close()

	cfg := testConfig() // both retention knobs left disabled

	p, err := partition.NewPartition(tmpDir, "test", 0, cfg, cache)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ts := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		appendAt(t, p, ts)
	}

	segmentsBefore := len(p.Segments)
	if segmentsBefore <= 1 {
		t.Skip("not enough segments for this test")
	}

	rc := NewCleaner(CleanerConfig{RetentionCheckIntervalMs: 50})
	rc.Register(p)
	rc.Start()

	time.Sleep(150 * time.Millisecond)
	rc.Stop()

	if len(p.Segments) != segmentsBefore {
		t.Errorf("expected no segments deleted when retention disabled: before=%d, after=%d", segmentsBefore, len(p.Segments))
	}
}

func TestCleaner_Integration_FilesActuallyDeleted(t *testing.T) {
	tmpDir := t.TempDir()
	cache := partition.NewSegmentCache(10)
	defer cache.Close()

	cfg := testConfig()
	cfg.RetentionMaxAge = 50 * time.Millisecond

	p, err := partition.NewPartition(tmpDir, "test", 0, cfg, cache)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	oldTimestamp := time.Now().Add(-500 * time.Millisecond).UnixMilli()
	for i := 0; i < 4; i++ {
		appendAt(t, p, oldTimestamp)
	}
	appendAt(t, p, time.Now().UnixMilli())

	partDir := filepath.Join(tmpDir, "test", "part0")
	filesBefore, _ := os.ReadDir(partDir)
	segFilesBefore := countSegFiles(filesBefore)
	if segFilesBefore <= 1 {
		t.Skip("not enough segment files for this test")
	}

	rc := NewCleaner(CleanerConfig{RetentionCheckIntervalMs: 30})
	rc.Register(p)
	rc.Start()

	time.Sleep(200 * time.Millisecond)
	rc.Stop()

	filesAfter, _ := os.ReadDir(partDir)
	segFilesAfter := countSegFiles(filesAfter)

	if segFilesAfter >= segFilesBefore {
		t.Errorf("expected .seg files to be deleted: before=%d, after=%d", segFilesBefore, segFilesAfter)
	}

	t.Logf("segment files: %d -> %d (deleted %d)", segFilesBefore, segFilesAfter, segFilesBefore-segFilesAfter)
}
