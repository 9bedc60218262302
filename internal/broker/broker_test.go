package broker

import (
	"path/filepath"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.PersistDir = t.TempDir()
	cfg.SegmentMaxBytes = 1 << 20
	cfg.FsyncMode = FsyncSync
	return cfg
}

func TestBroker_CreateTopic_IdempotentSameCount(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}

	if err := b.CreateTopic("orders", 3); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if err := b.CreateTopic("orders", 3); err != nil {
		t.Fatalf("CreateTopic (idempotent retry): %v", err)
	}
}

func TestBroker_CreateTopic_ConflictOnDifferentCount(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}

	if err := b.CreateTopic("orders", 3); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if err := b.CreateTopic("orders", 4); err == nil {
		t.Fatal("expected a partition-count mismatch to fail")
	}
}

func TestBroker_Produce_KeyStickiness(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if err := b.CreateTopic("t", 4); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	pid1, offsets1, err := b.Produce("t", []byte("AAPL"), [][]byte{[]byte("a")})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	pid2, offsets2, err := b.Produce("t", []byte("AAPL"), [][]byte{[]byte("b")})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	if pid1 != pid2 {
		t.Errorf("same key landed on different partitions: %d vs %d", pid1, pid2)
	}
	if offsets1[0] != 0 || offsets2[0] != 1 {
		t.Errorf("expected consecutive offsets 0,1, got %v %v", offsets1, offsets2)
	}
}

func TestBroker_Produce_ValuesShareKeyLandConsecutively(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if err := b.CreateTopic("t", 2); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	pid, offsets, err := b.Produce("t", []byte("AAPL"), [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(offsets) != 3 || offsets[0] != 0 || offsets[1] != 1 || offsets[2] != 2 {
		t.Fatalf("offsets = %v, want [0 1 2]", offsets)
	}

	recs, err := b.Fetch("t", pid, 0, 10, 1<<20)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Fetch returned %d records, want 3", len(recs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(recs[i].Value) != want {
			t.Errorf("record[%d] = %q, want %q", i, recs[i].Value, want)
		}
	}
}

func TestBroker_Produce_UnknownTopic(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if _, _, err := b.Produce("nope", nil, [][]byte{[]byte("x")}); err == nil {
		t.Fatal("expected an error producing to an unknown topic")
	}
}

func TestBroker_Produce_RoundRobinWithoutKey(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if err := b.CreateTopic("t", 4); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	seen := make(map[int]bool)
	for i := 0; i < 20; i++ {
		pid, _, err := b.Produce("t", nil, [][]byte{[]byte("v")})
		if err != nil {
			t.Fatalf("Produce: %v", err)
		}
		seen[pid] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected round-robin to spread across more than one partition, saw %v", seen)
	}
}

func TestBroker_CommitOffset_RejectsAboveNextOffset(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if err := b.CreateTopic("t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if _, _, err := b.Produce("t", nil, [][]byte{[]byte("a")}); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	if err := b.CommitOffset("g", "t", 0, 50); err == nil {
		t.Fatal("expected committing beyond next_offset to fail")
	}
	if err := b.CommitOffset("g", "t", 0, 1); err != nil {
		t.Fatalf("CommitOffset: %v", err)
	}

	got, ok, err := b.FetchCommittedOffset("g", "t", 0)
	if err != nil {
		t.Fatalf("FetchCommittedOffset: %v", err)
	}
	if !ok || got != 1 {
		t.Fatalf("FetchCommittedOffset = (%d, %v), want (1, true)", got, ok)
	}
}

func TestBroker_Backpressure(t *testing.T) {
	cfg := testConfig(t)
	cfg.InflightMaxBytes = 4
	cfg.FsyncMode = FsyncGroup // keep bytes inflight so backpressure can trip
	b, err := NewBroker(cfg)
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if err := b.CreateTopic("t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	if _, _, err := b.Produce("t", nil, [][]byte{[]byte("abcdefgh")}); err == nil {
		t.Fatal("expected a produce exceeding inflight_max_bytes to fail with backpressure")
	}
}

func TestBroker_DescribePartition(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if err := b.CreateTopic("t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if _, _, err := b.Produce("t", nil, [][]byte{[]byte("a"), []byte("b")}); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	d, err := b.DescribePartition("t", 0)
	if err != nil {
		t.Fatalf("DescribePartition: %v", err)
	}
	if d.NextOffset != 2 {
		t.Errorf("NextOffset = %d, want 2", d.NextOffset)
	}
	if d.SegmentCount < 1 {
		t.Errorf("SegmentCount = %d, want >= 1", d.SegmentCount)
	}
}

func TestBroker_SubscribeOnce_ReceivesNewRecord(t *testing.T) {
	b, err := NewBroker(testConfig(t))
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if err := b.CreateTopic("t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	done := make(chan []uint64, 1)
	go func() {
		recs, err := b.SubscribeOnce("t", 0, 0, 10, 1<<20, 2*time.Second)
		if err != nil {
			done <- nil
			return
		}
		offsets := make([]uint64, len(recs))
		for i, r := range recs {
			offsets[i] = r.Offset
		}
		done <- offsets
	}()

	time.Sleep(20 * time.Millisecond)
	if _, _, err := b.Produce("t", nil, [][]byte{[]byte("hello")}); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	select {
	case offsets := <-done:
		if len(offsets) != 1 || offsets[0] != 0 {
			t.Fatalf("SubscribeOnce returned offsets %v, want [0]", offsets)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("SubscribeOnce did not return in time")
	}
}

func TestBroker_PersistDirLayout(t *testing.T) {
	cfg := testConfig(t)
	b, err := NewBroker(cfg)
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	if err := b.CreateTopic("t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	want := filepath.Join(cfg.PersistDir, "topics", "t", "part0")
	if _, err := b.DescribePartition("t", 0); err != nil {
		t.Fatalf("DescribePartition: %v", err)
	}
	p, err := b.lookupPartition("t", 0)
	if err != nil {
		t.Fatalf("lookupPartition: %v", err)
	}
	if p.Dir != want {
		t.Errorf("partition dir = %q, want %q", p.Dir, want)
	}
}
