// Package record defines the wire-level encoding of a single LKSTREAM
// record: the bytes that become one segment frame's payload (spec §3, §4.1
// — a segment frame is [u32_be len][payload]; this package defines what's
// inside that payload).
package record

// HeaderSize is the fixed portion of an encoded record, before the
// variable-length key and value.
const HeaderSize = 4 /*CRC*/ + 8 /*Timestamp*/ + 4 /*KeyLen*/ + 4 /*ValueLen*/

// Record is a single logical record. Offset is assigned by the partition on
// append and is not part of the encoded payload; Key and Value are opaque
// to the broker.
type Record struct {
	Offset    uint64
	Timestamp int64
	Key       []byte
	Value     []byte
}

// Size returns the number of bytes Marshal will produce for r.
func (r *Record) Size() int {
	return HeaderSize + len(r.Key) + len(r.Value)
}
