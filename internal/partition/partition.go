package partition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"lkstream/internal/errs"
	"lkstream/internal/record"
	"lkstream/internal/segment"
)

// sealedMeta is the small amount of bookkeeping retention needs about a
// sealed segment without reopening its mmap'd files on every sweep.
type sealedMeta struct {
	baseOffset       uint64
	largestTimestamp int64
	sizeBytes        int64
}

// Partition owns one topic-partition's directory: an ordered run of
// segments, the currently writable one (active), a shared LRU of the
// read-only ones, a hot tail for zero-disk reads of recent data, and the
// broadcast signal WaitForOffset/Subscribe block on.
type Partition struct {
	mu    sync.RWMutex
	Dir   string
	Topic string
	ID    int

	Segments   []uint64 // base offsets, ascending; last entry is the active segment
	sealedMeta []sealedMeta

	active *segment.Segment
	cache  *SegmentCache

	config  Config
	hotTail *hotTail
	waiters *waiterSet

	dirty bool
}

// NewPartition opens or recovers the partition rooted at
// {baseDir}/{topic}/part{id}, using cache as the shared sealed-segment LRU.
func NewPartition(baseDir, topic string, id int, c Config, cache *SegmentCache) (*Partition, error) {
	dir := filepath.Join(baseDir, topic, fmt.Sprintf("part%d", id))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	p := &Partition{
		Dir:     dir,
		Topic:   topic,
		ID:      id,
		config:  c,
		cache:   cache,
		hotTail: newHotTail(c.HotTailCapacity),
		waiters: newWaiterSet(),
	}

	bases, err := scanSegmentBases(dir)
	if err != nil {
		return nil, err
	}

	if len(bases) == 0 {
		bases = []uint64{0}
	} else {
		// Every base offset but the last was already sealed by a previous
		// run; learn just enough about each to make retention decisions
		// without keeping them open.
		for _, base := range bases[:len(bases)-1] {
			seg, err := segment.NewSegment(dir, base, c.SegmentConfig, 0)
			if err != nil {
				return nil, err
			}
			p.sealedMeta = append(p.sealedMeta, sealedMeta{
				baseOffset:       base,
				largestTimestamp: seg.LargestTimestamp,
				sizeBytes:        seg.Size(),
			})
			seg.Close()
		}
	}
	p.Segments = bases

	active, err := segment.NewSegment(dir, bases[len(bases)-1], c.SegmentConfig, c.HotTailCapacity)
	if err != nil {
		return nil, err
	}
	p.active = active
	p.hotTail.seed(active.TakeRecoveredTail())

	if sealedBase, nextOffset, ok := segment.ReadCheckpoint(dir); ok {
		fmt.Printf("[partition] %s-%d: checkpoint.meta says last sealed segment %d ended at offset %d\n", topic, id, sealedBase, nextOffset)
	}

	return p, nil
}

func scanSegmentBases(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var bases []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".seg") {
			continue
		}
		base, err := strconv.ParseUint(strings.TrimSuffix(name, ".seg"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid segment filename %q: %w", name, err)
		}
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	return bases, nil
}

// Append assigns r the next offset in the partition, rolling to a new
// segment first if the current one has no room left.
func (p *Partition) Append(r *record.Record) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appendLocked(r)
}

// AppendMany appends a batch under a single lock acquisition, the group
// equivalent producers use to land a whole batch at consecutive offsets.
// On error it returns the offsets assigned before the failure.
func (p *Partition) AppendMany(recs []record.Record) ([]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offsets := make([]uint64, 0, len(recs))
	for i := range recs {
		offset, err := p.appendLocked(&recs[i])
		if err != nil {
			return offsets, err
		}
		offsets = append(offsets, offset)
	}
	return offsets, nil
}

func (p *Partition) appendLocked(r *record.Record) (uint64, error) {
	if p.active.WouldOverflow(r.Size()) {
		if err := p.rollLocked(); err != nil {
			return 0, err
		}
	}

	offset, err := p.active.Append(r)
	if err != nil {
		return 0, err
	}
	r.Offset = offset
	p.hotTail.push(*r)
	p.dirty = true
	p.waiters.broadcast()
	return offset, nil
}

// rollLocked seals the current active segment, records its retention
// metadata and opens a fresh one starting at the old segment's NextOffset.
func (p *Partition) rollLocked() error {
	nextBase := p.active.NextOffset
	meta := sealedMeta{
		baseOffset:       p.active.BaseOffset,
		largestTimestamp: p.active.LargestTimestamp,
		sizeBytes:        p.active.Size(),
	}

	if err := p.active.Seal(); err != nil {
		return err
	}
	if err := p.active.Close(); err != nil {
		return err
	}
	p.sealedMeta = append(p.sealedMeta, meta)
	if err := segment.WriteCheckpoint(p.Dir, meta.baseOffset, nextBase); err != nil {
		return err
	}

	newSeg, err := segment.NewSegment(p.Dir, nextBase, p.config.SegmentConfig, p.config.HotTailCapacity)
	if err != nil {
		return err
	}
	p.Segments = append(p.Segments, nextBase)
	p.active = newSeg
	return nil
}

// ReadFrom returns up to maxMsgs records starting at offset, favoring the
// hot tail when it covers the request and otherwise routing to the active
// segment or a cached sealed one. Returns (nil, nil) if offset is exactly
// the current end of the log (nothing new yet, not an error).
func (p *Partition) ReadFrom(offset uint64, maxMsgs int, maxBytes int32) ([]record.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.Segments) == 0 {
		return nil, errs.ErrPartitionUnknown
	}
	if offset < p.Segments[0] || offset > p.active.NextOffset {
		return nil, errs.ErrOffsetOutOfRange
	}
	if offset == p.active.NextOffset {
		return nil, nil
	}

	if p.hotTail.covers(offset) {
		return p.hotTail.readFrom(offset, maxMsgs, maxBytes), nil
	}

	if offset >= p.active.BaseOffset {
		return p.active.Read(offset, maxMsgs, maxBytes)
	}

	idx := sort.Search(len(p.Segments), func(i int) bool { return p.Segments[i] > offset }) - 1
	if idx < 0 {
		idx = 0
	}
	base := p.Segments[idx]

	seg, err := p.cache.GetOrLoad(cacheKey(p.Topic, p.ID, base), func() (*segment.Segment, error) {
		return segment.NewSegment(p.Dir, base, p.config.SegmentConfig, 0)
	})
	if err != nil {
		return nil, err
	}
	return seg.Read(offset, maxMsgs, maxBytes)
}

// NextOffset is the offset that will be assigned to the next appended
// record.
func (p *Partition) NextOffset() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active.NextOffset
}

// Bounds reports the partition's earliest retained offset, its next_offset
// and how many segments currently make up its log — the admin
// describe_partition view.
func (p *Partition) Bounds() (earliest, next uint64, segmentCount int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Segments[0], p.active.NextOffset, len(p.Segments)
}

// WaitForOffset blocks until the partition's NextOffset exceeds target, ctx
// is cancelled, or ctx's deadline passes.
func (p *Partition) WaitForOffset(ctx context.Context, target uint64) error {
	for {
		p.mu.RLock()
		ready := p.active.NextOffset > target
		ch := p.waiters.wait()
		p.mu.RUnlock()

		if ready {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscription is a live, push-delivered view of a partition starting at a
// given offset. Stop releases it; the channel is closed once the
// subscriber goroutine exits for any reason.
type Subscription struct {
	C    <-chan record.Record
	Stop func()
}

// Subscribe starts delivering every record from fromOffset onward as it is
// appended, blocking between batches via WaitForOffset rather than polling.
func (p *Partition) Subscribe(ctx context.Context, fromOffset uint64) *Subscription {
	out := make(chan record.Record, 64)
	stopCh := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(stopCh) }) }

	go func() {
		defer close(out)
		cursor := fromOffset
		for {
			if err := p.WaitForOffset(ctx, cursor); err != nil {
				return
			}
			recs, err := p.ReadFrom(cursor, 256, 1<<20)
			if err != nil {
				return
			}
			for _, r := range recs {
				select {
				case out <- r:
				case <-ctx.Done():
					return
				case <-stopCh:
					return
				}
			}
			if len(recs) > 0 {
				cursor = recs[len(recs)-1].Offset + 1
			}
		}
	}()

	return &Subscription{C: out, Stop: stop}
}

// Dirty reports whether this partition has unflushed appends — the group
// commit scheduler polls this to decide which partitions need a sync.
func (p *Partition) Dirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirty
}

// Flush msyncs the active segment's log and index and clears the dirty
// flag. Called by the scheduler and, in the broker's sync fsync mode, by
// the produce path right after each append.
func (p *Partition) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.active.Sync(); err != nil {
		return err
	}
	p.dirty = false
	return nil
}

func (p *Partition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.Close()
}
