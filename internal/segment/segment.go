package segment

import (
	"encoding/binary"
	"sync"

	"lkstream/internal/errs"
	"lkstream/internal/record"
)

// Segment owns one (.seg, .idx) pair covering the absolute offset range
// [BaseOffset, NextOffset). It is the unit the partition rotates, seals and
// eventually retires — mirroring the teacher's Segment, generalized to the
// spec's (offset, pos) absolute-indexing scheme instead of Kafka batches.
type Segment struct {
	mu sync.RWMutex

	Dir              string
	BaseOffset       uint64
	NextOffset       uint64
	LargestTimestamp int64
	Sealed           bool

	log    *Log
	index  *Index
	config Config

	// recoveredTail holds the records recover() found in the newest segment,
	// in offset order, capped to tailCapacity — the seed for the partition's
	// in-memory hot tail. Consumed once via TakeRecoveredTail.
	recoveredTail []record.Record
}

// NewSegment opens (or creates) the files for baseOffset under dir and
// recovers its state. tailCapacity bounds how many trailing records recovery
// keeps in memory for hot-tail seeding; pass 0 if this segment will never be
// the newest (no need to remember its tail).
func NewSegment(dir string, baseOffset uint64, c Config, tailCapacity int) (*Segment, error) {
	l, err := newLog(segPath(dir, baseOffset), c.SegmentMaxBytes)
	if err != nil {
		return nil, err
	}

	idx, err := newIndex(idxPath(dir, baseOffset), c.IndexMaxBytes)
	if err != nil {
		l.Close()
		return nil, err
	}

	s := &Segment{
		Dir:        dir,
		BaseOffset: baseOffset,
		NextOffset: baseOffset,
		log:        l,
		index:      idx,
		config:     c,
	}

	if err := s.recover(tailCapacity); err != nil {
		s.log.Close()
		s.index.Close()
		return nil, err
	}

	return s, nil
}

// indexEveryN returns config.IndexEveryN clamped to at least 1 (dense).
func (s *Segment) indexEveryN() uint64 {
	if s.config.IndexEveryN <= 0 {
		return 1
	}
	return uint64(s.config.IndexEveryN)
}

// shouldIndex reports whether the record at this absolute offset gets a
// sparse index entry: always the segment's first record (spec invariant),
// otherwise every IndexEveryN-th record by a deterministic modulo so that
// recovery can reconstruct the exact same decision without keeping any
// running counter across restarts.
func (s *Segment) shouldIndex(offset uint64) bool {
	rel := offset - s.BaseOffset
	return rel == 0 || rel%s.indexEveryN() == 0
}

// WouldOverflow reports whether appending a record of this encoded payload
// length would exceed the segment's pre-allocated capacity — the partition
// uses this to decide when to roll a new segment instead of attempting (and
// failing) an Append.
func (s *Segment) WouldOverflow(payloadLen int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Size()+int64(frameHeaderSize+payloadLen) > s.log.capacity()
}

// Append encodes r, writes its frame and (sparsely) indexes it, returning
// the offset it was assigned. r.Offset is not part of the encoded payload
// (the offset is implicit from log position plus index, not CRC-covered
// wire state) so the caller never needs to set it beforehand.
func (s *Segment) Append(r *record.Record) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Sealed {
		return 0, errs.ErrClosedPartition
	}

	payload := record.Marshal(r)
	pos, err := s.log.Append(payload)
	if err != nil {
		return 0, err
	}

	offset := s.NextOffset
	if s.shouldIndex(offset) {
		// Index.Write failing (full index file) is advisory only: the
		// index stays sparser than configured, lookups just scan further.
		_ = s.index.Write(offset, uint64(pos))
	}

	if r.Timestamp > s.LargestTimestamp {
		s.LargestTimestamp = r.Timestamp
	}
	s.NextOffset++
	return offset, nil
}

// Read returns up to maxMsgs records starting at targetOffset, stopping
// early once the running total would exceed maxBytes — except the first
// record returned is never dropped for exceeding maxBytes, so a read never
// comes back empty solely because one record is larger than the budget.
func (s *Segment) Read(targetOffset uint64, maxMsgs int, maxBytes int32) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if targetOffset < s.BaseOffset || targetOffset >= s.NextOffset {
		return nil, errs.ErrOffsetOutOfRange
	}
	if maxMsgs <= 0 {
		maxMsgs = 1
	}

	curOffset := s.BaseOffset
	curPos := int64(0)
	if entryOffset, pos, ok := s.index.Lookup(targetOffset); ok {
		curOffset = entryOffset
		curPos = int64(pos)
	}

	// Walk forward frame-by-frame from the index hint to the exact target;
	// the index only narrows the scan, it never points past it.
	for curOffset < targetOffset {
		_, next, err := s.log.ReadFrame(curPos)
		if err != nil {
			return nil, err
		}
		curPos = next
		curOffset++
	}

	var recs []record.Record
	var used int32
	for curOffset < s.NextOffset && len(recs) < maxMsgs {
		payload, next, err := s.log.ReadFrame(curPos)
		if err != nil {
			break
		}
		rec, err := record.Unmarshal(payload)
		if err != nil {
			break
		}
		frameSize := int32(next - curPos)
		if len(recs) > 0 && used+frameSize > maxBytes {
			break
		}
		// Unmarshal's Key/Value slices alias the mmap'd payload directly.
		// They must not escape this RLock still pointing at that memory: a
		// concurrent cache eviction (or retention) can Munmap this segment
		// the instant Read returns, well before a caller like the hot tail
		// or a wire response gets around to reading rec.Value.
		rec.Key = cloneBytes(rec.Key)
		rec.Value = cloneBytes(rec.Value)
		rec.Offset = curOffset
		recs = append(recs, rec)
		used += frameSize
		curPos = next
		curOffset++
	}
	return recs, nil
}

// recover re-derives NextOffset, LargestTimestamp and the log's logical size
// by replaying frames; the log itself is the source of truth. The index
// hint branch below only applies to an index that already holds entries,
// and newIndex opens every index with none, so recovery always rescans the
// log from position 0 and rewrites the index. A frame that fails CRC or runs past the physical file marks the
// first torn write; everything from there on is discarded, and the log and
// index are truncated back to the last good frame.
func (s *Segment) recover(tailCapacity int) error {
	rebuilding := false
	pos := int64(0)
	offset := s.BaseOffset

	if lastOffset, lastPos, ok := s.index.LastEntry(); ok {
		if int64(lastPos) <= s.log.capacity() {
			pos = int64(lastPos)
			offset = lastOffset
		} else {
			// The index claims a position past the physical file: it can't
			// be trusted at all, so discard it and rescan from scratch.
			s.index.Reset()
			rebuilding = true
		}
	} else {
		rebuilding = true
	}

	var tail []record.Record

	for {
		header := s.log.scanRaw(pos, frameHeaderSize)
		if len(header) < frameHeaderSize {
			break // reached the physical end of the pre-allocated file
		}
		length := binary.BigEndian.Uint32(header)
		if length == 0 {
			break // zero-padding: nothing real was ever written past here
		}

		total := frameHeaderSize + int(length)
		frame := s.log.scanRaw(pos, total)
		if frame == nil {
			break // declared length overruns the physical file: torn
		}

		rec, err := record.Unmarshal(frame[frameHeaderSize:])
		if err != nil {
			break // CRC mismatch or short payload: torn write, stop here
		}
		// rec.Key/Value still alias this segment's mmap; appendTail below
		// feeds straight into the partition's long-lived hot tail, so these
		// need to be independent of the segment's memory the same way Read's
		// results do.
		rec.Key = cloneBytes(rec.Key)
		rec.Value = cloneBytes(rec.Value)

		if rebuilding && s.shouldIndex(offset) {
			_ = s.index.Write(offset, uint64(pos))
		}

		if rec.Timestamp > s.LargestTimestamp {
			s.LargestTimestamp = rec.Timestamp
		}
		rec.Offset = offset
		tail = appendTail(tail, rec, tailCapacity)

		pos += int64(total)
		offset++
	}

	s.log.SetSize(pos)
	s.NextOffset = offset
	s.recoveredTail = tail

	// Index entries can only exist for offsets whose frames were fully
	// written (Segment.Append always writes the log frame before the index
	// entry), so this is a defensive guard rather than an expected case.
	s.index.Truncate(offset)
	return nil
}

// cloneBytes copies b onto the heap so the result outlives whatever mmap
// region b may currently alias. Returns nil for an empty/nil b rather than
// an empty non-nil slice, matching record.Unmarshal's own nil-when-absent
// convention for Key/Value.
func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func appendTail(tail []record.Record, rec record.Record, capacity int) []record.Record {
	if capacity <= 0 {
		return tail
	}
	tail = append(tail, rec)
	if len(tail) > capacity {
		tail = tail[len(tail)-capacity:]
	}
	return tail
}

// TakeRecoveredTail returns and clears the records recovery collected for
// hot-tail seeding. Only meaningful once, immediately after NewSegment.
func (s *Segment) TakeRecoveredTail() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	tail := s.recoveredTail
	s.recoveredTail = nil
	return tail
}

func (s *Segment) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NextOffset > s.BaseOffset
}

func (s *Segment) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Size()
}

// Seal marks the segment read-only and flushes it — called on rotation,
// once no further Append will ever target it.
func (s *Segment) Seal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sealed = true
	return s.syncLocked()
}

func (s *Segment) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked()
}

func (s *Segment) syncLocked() error {
	if err := s.log.Sync(); err != nil {
		return err
	}
	return s.index.Sync()
}

func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.index.Close()
	_ = s.log.Close()
	return nil
}

func (s *Segment) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Delete(); err != nil {
		return err
	}
	return s.log.Delete()
}
