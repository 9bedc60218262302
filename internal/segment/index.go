package segment

import (
	"encoding/binary"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"lkstream/internal/errs"
)

// entryWidth matches spec §3 exactly: each index entry is a 16-byte
// (offset: u64_be, pos: u64_be) pair.
const entryWidth = 16

// Index is the mmap'd, sparse offset→position map for one segment.
// Entries appear in strictly increasing offset order (spec §4.1); it is
// the caller's (Segment's) job to only ever append entries in that order.
type Index struct {
	file *os.File
	data []byte
	size int64 // bytes actually used (size/entryWidth = entry count)
}

func newIndex(path string, maxBytes int64) (*Index, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if fi.Size() < maxBytes {
		if err := f.Truncate(maxBytes); err != nil {
			f.Close()
			return nil, err
		}
	}

	data, err := syscall.Mmap(
		int(f.Fd()), 0, int(maxBytes),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED,
	)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Index{file: f, data: data, size: 0}, nil
}

// EntryCount returns the number of entries currently recorded.
func (i *Index) EntryCount() int64 { return i.size / entryWidth }

// Write appends one (offset, pos) entry. Returns errs.ErrStorageFull if the
// pre-allocated index file has no room left — the caller treats this as
// advisory (the index is allowed to be sparse; a full index file simply
// means future lookups fall back to a longer linear scan).
func (i *Index) Write(offset, pos uint64) error {
	if i.size+entryWidth > int64(len(i.data)) {
		return errs.ErrStorageFull
	}
	binary.BigEndian.PutUint64(i.data[i.size:i.size+8], offset)
	binary.BigEndian.PutUint64(i.data[i.size+8:i.size+16], pos)
	i.size += entryWidth
	return nil
}

func (i *Index) entryAt(n int64) (offset, pos uint64) {
	base := n * entryWidth
	return binary.BigEndian.Uint64(i.data[base : base+8]), binary.BigEndian.Uint64(i.data[base+8 : base+16])
}

// Lookup binary-searches for the entry with the greatest offset <= target.
// ok is false if the index is empty or every entry's offset exceeds target.
// Returns the matched entry's own offset alongside pos so the caller (the
// segment's linear scan forward from pos) knows which offset pos actually
// corresponds to.
func (i *Index) Lookup(target uint64) (offset, pos uint64, ok bool) {
	entries := i.EntryCount()
	if entries == 0 {
		return 0, 0, false
	}

	low, high := int64(0), entries-1
	best := int64(-1)
	for low <= high {
		mid := (low + high) / 2
		off, _ := i.entryAt(mid)
		if off <= target {
			best = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	offset, pos = i.entryAt(best)
	return offset, pos, true
}

// LastEntry returns the final (offset, pos) recorded, or ok=false if empty.
func (i *Index) LastEntry() (offset, pos uint64, ok bool) {
	entries := i.EntryCount()
	if entries == 0 {
		return 0, 0, false
	}
	offset, pos = i.entryAt(entries - 1)
	return offset, pos, true
}

// Truncate discards entries at or past the given offset — used during
// recovery to drop index entries for frames that turned out to be torn.
func (i *Index) Truncate(afterOffset uint64) {
	entries := i.EntryCount()
	keep := entries
	for n := int64(0); n < entries; n++ {
		off, _ := i.entryAt(n)
		if off >= afterOffset {
			keep = n
			break
		}
	}
	i.size = keep * entryWidth
}

// Reset discards all entries — used when an index is rebuilt from scratch.
func (i *Index) Reset() { i.size = 0 }

func (i *Index) Sync() error {
	return unix.Msync(i.data, unix.MS_SYNC)
}

func (i *Index) Close() error {
	_ = unix.Msync(i.data, unix.MS_SYNC)
	_ = syscall.Munmap(i.data)
	_ = i.file.Truncate(i.size)
	return i.file.Close()
}

func (i *Index) Delete() error {
	path := i.file.Name()
	_ = syscall.Munmap(i.data)
	_ = i.file.Close()
	return os.Remove(path)
}
