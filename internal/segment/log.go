package segment

import (
	"encoding/binary"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"lkstream/internal/errs"
)

const frameHeaderSize = 4 // u32_be length prefix (spec §3/§4.1)

// Log is the mmap'd file backing one segment's frames: a run of
// [u32_be len][payload]... entries, pre-allocated to SegmentMaxBytes and
// trimmed back to the logical size on Close, exactly as the teacher's
// mmap'd Log does for its Kafka batches.
type Log struct {
	file *os.File
	data []byte // mmap region, fixed physical capacity
	size int64  // logical size: bytes of real frame data written so far
}

func newLog(path string, maxBytes int64) (*Log, error) {
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

	return &Log{file: f, data: data, size: 0}, nil
}

// Size returns the logical size of the log (the byte offset one past the
// last fully-written frame).
func (l *Log) Size() int64 { return l.size }

// SetSize overwrites the logical size. Used only by recovery, after
// scanning has determined the true end of valid data.
func (l *Log) SetSize(size int64) { l.size = size }

// capacity returns the physical (pre-allocated) size of the mmap region.
func (l *Log) capacity() int64 { return int64(len(l.data)) }

// Append writes one frame ([len][payload]) at the current logical end and
// returns the byte position of its length header — this is the position
// the companion Index stores for this offset.
func (l *Log) Append(payload []byte) (pos int64, err error) {
	frameLen := int64(frameHeaderSize + len(payload))
	if l.size+frameLen > l.capacity() {
		return 0, errs.ErrStorageFull
	}

	pos = l.size
	binary.BigEndian.PutUint32(l.data[pos:pos+frameHeaderSize], uint32(len(payload)))
	copy(l.data[pos+frameHeaderSize:pos+frameLen], payload)
	l.size += frameLen
	return pos, nil
}

// ReadFrame reads the frame whose length header starts at pos and returns
// its payload (a zero-copy slice into the mmap region) along with the
// position immediately following it. It returns errs.ErrTorn — the
// recovery/truncation signal from spec §4.1 — if fewer than 4 bytes remain
// or the declared length runs past the logical end of the log.
func (l *Log) ReadFrame(pos int64) (payload []byte, next int64, err error) {
	if l.size-pos < frameHeaderSize {
		return nil, pos, errs.ErrTorn
	}
	length := int64(binary.BigEndian.Uint32(l.data[pos : pos+frameHeaderSize]))
	end := pos + frameHeaderSize + length
	if end > l.size {
		return nil, pos, errs.ErrTorn
	}
	return l.data[pos+frameHeaderSize : end], end, nil
}

// scanRaw reads size raw bytes starting at pos from the full (physical)
// mmap region, ignoring the logical size — used only while recovering,
// before l.size has been established, to peek at on-disk bytes that may
// be pre-allocated zero padding or genuine unscanned data.
func (l *Log) scanRaw(pos int64, size int) []byte {
	if pos+int64(size) > l.capacity() {
		return nil
	}
	return l.data[pos : pos+int64(size)]
}

// Sync flushes the mmap'd region to stable storage without closing it —
// the operation the group-commit scheduler calls (spec §4.3).
func (l *Log) Sync() error {
	return unix.Msync(l.data, unix.MS_SYNC)
}

func (l *Log) Close() error {
	_ = unix.Msync(l.data, unix.MS_SYNC)
	_ = syscall.Munmap(l.data)
	_ = l.file.Truncate(l.size)
	return l.file.Close()
}

func (l *Log) Delete() error {
	path := l.file.Name()
	_ = syscall.Munmap(l.data)
	_ = l.file.Close()
	return os.Remove(path)
}
