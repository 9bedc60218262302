package broker

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"lkstream/internal/errs"
	"lkstream/internal/offsetstore"
	"lkstream/internal/partition"
	"lkstream/internal/protocol"
	"lkstream/internal/record"
	"lkstream/internal/retention"
	"lkstream/internal/scheduler"
)

// topicEntry is a topic's fixed partition set plus the per-topic counter
// round-robin produce uses when the caller supplies no key.
type topicEntry struct {
	name           string
	partitions     []*partition.Partition
	roundRobinNext atomic.Uint64
}

// trackedPartition adapts a *partition.Partition into scheduler.Flusher
// while also accounting its pending bytes against the broker's
// inflight-bytes backpressure counter, so a successful flush both syncs
// the partition and releases the bytes it made durable.
type trackedPartition struct {
	p       *partition.Partition
	pending atomic.Int64
	broker  *Broker
}

func (t *trackedPartition) Dirty() bool { return t.p.Dirty() }

func (t *trackedPartition) Flush() error {
	if err := t.p.Flush(); err != nil {
		return err
	}
	n := t.pending.Swap(0)
	t.broker.inflightBytes.Add(-n)
	return nil
}

// Broker owns the topic/partition registry and the shared infrastructure
// (segment cache, group-commit scheduler, retention cleaner, offset store)
// every partition is registered with on creation. Mirrors the teacher's
// single-partition Broker, generalized to spec §4.4's topic map.
type Broker struct {
	Config Config

	mu     sync.RWMutex
	topics map[string]*topicEntry
	tracked map[*partition.Partition]*trackedPartition

	cache     *partition.SegmentCache
	scheduler *scheduler.Scheduler
	cleaner   *retention.Cleaner
	offsets   *offsetstore.Store

	inflightBytes atomic.Int64

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

func NewBroker(cfg Config) (*Broker, error) {
	offsets, err := offsetstore.New(filepath.Join(cfg.PersistDir, "offsets"))
	if err != nil {
		return nil, err
	}

	b := &Broker{
		Config:  cfg,
		topics:  make(map[string]*topicEntry),
		tracked: make(map[*partition.Partition]*trackedPartition),
		cache:   partition.NewSegmentCache(256),
		offsets: offsets,
		quit:    make(chan struct{}),
	}

	b.scheduler = scheduler.New(cfg.schedulerConfig())
	b.cleaner = retention.NewCleaner(retention.CleanerConfig{RetentionCheckIntervalMs: 60_000})

	return b, nil
}

func (b *Broker) topicsDir() string { return filepath.Join(b.Config.PersistDir, "topics") }

// CreateTopic creates name with partitionCount fixed partitions, or, if the
// topic already exists with the same partitionCount, succeeds as a no-op
// (spec §4.4's idempotency requirement). A mismatched count is rejected.
func (b *Broker) CreateTopic(name string, partitionCount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.topics[name]; ok {
		if len(existing.partitions) != partitionCount {
			return errs.ErrTopicExistsConflict
		}
		return nil
	}

	entry := &topicEntry{name: name}
	entry.roundRobinNext.Store(uint64(time.Now().UnixNano()))

	for pid := 0; pid < partitionCount; pid++ {
		p, err := partition.NewPartition(b.topicsDir(), name, pid, b.Config.partitionConfig(), b.cache)
		if err != nil {
			return err
		}
		entry.partitions = append(entry.partitions, p)

		tp := &trackedPartition{p: p, broker: b}
		b.tracked[p] = tp
		b.scheduler.Register(tp)
		b.cleaner.Register(p)
	}

	b.topics[name] = entry
	fmt.Printf("[broker] created topic %q with %d partitions\n", name, partitionCount)
	return nil
}

func (b *Broker) lookupTopic(name string) (*topicEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topics[name]
	if !ok {
		return nil, errs.ErrTopicUnknown
	}
	return t, nil
}

func (b *Broker) lookupPartition(topic string, pid int) (*partition.Partition, error) {
	t, err := b.lookupTopic(topic)
	if err != nil {
		return nil, err
	}
	if pid < 0 || pid >= len(t.partitions) {
		return nil, errs.ErrPartitionUnknown
	}
	return t.partitions[pid], nil
}

// partitionFor picks the target pid for one produce call: a hash of a
// non-empty key, otherwise the topic's round-robin counter.
func partitionFor(t *topicEntry, key []byte) int {
	n := uint64(len(t.partitions))
	if len(key) > 0 {
		return int(stableHash(key) % n)
	}
	return int(t.roundRobinNext.Add(1) % n)
}

// Produce assigns every value in one call to the same partition (spec §4.4:
// values sharing a key land on one partition in call order) and appends
// them as a single batch.
func (b *Broker) Produce(topic string, key []byte, values [][]byte) (pid int, offsets []uint64, err error) {
	t, err := b.lookupTopic(topic)
	if err != nil {
		return 0, nil, err
	}

	var totalBytes int64
	for _, v := range values {
		totalBytes += int64(len(v))
	}
	if limit := b.Config.InflightMaxBytes; limit > 0 && b.inflightBytes.Load()+totalBytes > limit {
		return 0, nil, errs.ErrBackpressure
	}

	pid = partitionFor(t, key)
	p := t.partitions[pid]

	// Record timestamps are Unix milliseconds; age-based retention reads
	// them that way.
	now := time.Now().UnixMilli()
	recs := make([]record.Record, len(values))
	for i, v := range values {
		// v aliases the connection's pooled read buffer (protocol.Request.Body);
		// it gets reused the moment handleConnection releases it, but the hot
		// tail keeps *r around long after that. Copy before it ever reaches
		// appendLocked/hotTail.push.
		recs[i] = record.Record{Timestamp: now, Key: key, Value: append([]byte(nil), v...)}
	}

	offsets, err = p.AppendMany(recs)
	if err != nil {
		return pid, offsets, err
	}

	b.mu.RLock()
	tp := b.tracked[p]
	b.mu.RUnlock()
	tp.pending.Add(totalBytes)
	b.inflightBytes.Add(totalBytes)

	switch b.Config.FsyncMode {
	case FsyncSync:
		if err := tp.Flush(); err != nil {
			return pid, offsets, err
		}
	case FsyncGroup:
		b.scheduler.NotifyBytes(totalBytes)
	}

	return pid, offsets, nil
}

// Fetch is a thin router to the named partition's ReadFrom.
func (b *Broker) Fetch(topic string, pid int, offset uint64, maxMsgs int, maxBytes int32) ([]record.Record, error) {
	p, err := b.lookupPartition(topic, pid)
	if err != nil {
		return nil, err
	}
	return p.ReadFrom(offset, maxMsgs, maxBytes)
}

// SubscribeOnce implements Subscribe as a bounded long-poll: it blocks up
// to timeout waiting for at least fromOffset to become available, then
// returns whatever ReadFrom can supply. A caller wanting continuous push
// delivery simply calls this in a loop with the last record's offset + 1.
func (b *Broker) SubscribeOnce(topic string, pid int, fromOffset uint64, maxMsgs int, maxBytes int32, timeout time.Duration) ([]record.Record, error) {
	p, err := b.lookupPartition(topic, pid)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// A deadline-exceeded error from WaitForOffset just means nothing new
	// showed up within timeout; ReadFrom below still answers correctly
	// either way (nil, nil if fromOffset is exactly caught up).
	_ = p.WaitForOffset(ctx, fromOffset)
	return p.ReadFrom(fromOffset, maxMsgs, maxBytes)
}

// CommitOffset persists offset for (group, topic, pid) after checking it
// does not exceed the partition's current next_offset (spec.md's Open
// Question resolution).
func (b *Broker) CommitOffset(group, topic string, pid int, offset uint64) error {
	p, err := b.lookupPartition(topic, pid)
	if err != nil {
		return err
	}
	if offset > p.NextOffset() {
		return errs.ErrOffsetOutOfRange
	}
	return b.offsets.Commit(group, topic, pid, offset)
}

func (b *Broker) FetchCommittedOffset(group, topic string, pid int) (uint64, bool, error) {
	if _, err := b.lookupPartition(topic, pid); err != nil {
		return 0, false, err
	}
	return b.offsets.ReadCommitted(group, topic, pid)
}

// DescribePartitionResult is the admin view of one partition's retained
// range, deliberately decoupled from the wire encoding in internal/protocol.
type DescribePartitionResult struct {
	EarliestOffset uint64
	NextOffset     uint64
	SegmentCount   int
}

func (b *Broker) DescribePartition(topic string, pid int) (DescribePartitionResult, error) {
	p, err := b.lookupPartition(topic, pid)
	if err != nil {
		return DescribePartitionResult{}, err
	}
	earliest, next, segCount := p.Bounds()
	return DescribePartitionResult{EarliestOffset: earliest, NextOffset: next, SegmentCount: segCount}, nil
}

// ListTopics returns every known topic name. Not currently exposed over
// the wire (spec.md's admin surface names list_topics, but the minimal
// transport this module ships only wires create_topic and
// describe_partition — see handleRequest).
func (b *Broker) ListTopics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}

func (b *Broker) Start() error {
	ln, err := net.Listen("tcp", b.Config.ListenAddr)
	if err != nil {
		return err
	}
	b.listener = ln
	b.scheduler.Start()
	b.cleaner.Start()

	fmt.Printf("[broker] listening on %s\n", b.Config.ListenAddr)

	go func() {
		<-b.quit
		fmt.Println("[broker] stopping: closing listener")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-b.quit:
				return nil
			default:
				fmt.Printf("[broker] accept error: %v\n", err)
				continue
			}
		}
		b.wg.Add(1)
		go b.handleConnection(conn)
	}
}

// Stop drains in-flight connections, forces a final flush of every
// partition, and stops the background scheduler/cleaner — the
// Draining -> Closed transition spec §5 describes for shutdown.
func (b *Broker) Stop() {
	close(b.quit)
	b.wg.Wait()
	b.scheduler.FlushAll()
	b.scheduler.Stop()
	b.cleaner.Stop()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.topics {
		for _, p := range t.partitions {
			_ = p.Close()
		}
	}
}

func (b *Broker) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		b.wg.Done()
	}()

	for {
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				fmt.Printf("[broker] connection closed/error: %v\n", err)
			}
			return
		}

		err = func() error {
			defer req.Release()

			respBody := b.handleRequest(req)
			return protocol.SendResponse(conn, req.Header.CorrelationID, respBody)
		}()

		if err != nil {
			return
		}
	}
}
