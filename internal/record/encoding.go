package record

import (
	"encoding/binary"
	"hash/crc32"

	"lkstream/internal/errs"
)

// Marshal encodes r into a new buffer: the segment frame payload.
// Layout: [CRC32C u32_be][Timestamp i64_be][KeyLen u32_be][ValueLen u32_be][Key][Value].
// The CRC covers everything from Timestamp onward; it lets recovery (§4.6)
// and live reads (§7) detect a corrupt-but-not-torn frame in addition to
// the length-based torn-write check the segment log already performs.
func Marshal(r *Record) []byte {
	buf := make([]byte, r.Size())
	MarshalTo(r, buf)
	return buf
}

// MarshalTo encodes r into dest, which must be at least r.Size() bytes.
func MarshalTo(r *Record, dest []byte) int {
	n := r.Size()
	keyLen := uint32(len(r.Key))
	valLen := uint32(len(r.Value))

	binary.BigEndian.PutUint64(dest[4:12], uint64(r.Timestamp))
	binary.BigEndian.PutUint32(dest[12:16], keyLen)
	binary.BigEndian.PutUint32(dest[16:20], valLen)
	copy(dest[20:20+keyLen], r.Key)
	copy(dest[20+keyLen:20+keyLen+valLen], r.Value)

	crc := crc32.Checksum(dest[4:n], crc32.MakeTable(crc32.Castagnoli))
	binary.BigEndian.PutUint32(dest[0:4], crc)
	return int(n)
}

// Unmarshal decodes a record payload produced by Marshal. Key and Value are
// zero-copy slices into src (src is typically a window into an mmap'd
// segment), matching the teacher's zero-copy read path.
func Unmarshal(src []byte) (Record, error) {
	if len(src) < HeaderSize {
		return Record{}, errs.ErrTorn
	}

	crc := binary.BigEndian.Uint32(src[0:4])
	calc := crc32.Checksum(src[4:], crc32.MakeTable(crc32.Castagnoli))
	if calc != crc {
		return Record{}, errs.ErrTorn
	}

	ts := int64(binary.BigEndian.Uint64(src[4:12]))
	keyLen := binary.BigEndian.Uint32(src[12:16])
	valLen := binary.BigEndian.Uint32(src[16:20])

	keyStart := HeaderSize
	keyEnd := keyStart + int(keyLen)
	valEnd := keyEnd + int(valLen)
	if len(src) < valEnd {
		return Record{}, errs.ErrTorn
	}

	var key, value []byte
	if keyLen > 0 {
		key = src[keyStart:keyEnd]
	}
	if valLen > 0 {
		value = src[keyEnd:valEnd]
	}

	return Record{Timestamp: ts, Key: key, Value: value}, nil
}
