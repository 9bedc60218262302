package protocol

import "encoding/binary"

// Every response body starts with a one-byte status: StatusOK or
// StatusError. An error body continues with a two-byte error code and the
// remaining bytes as a UTF-8 message. An OK body continues with the
// operation-specific payload decoded by the matching *Request /*Response
// helpers below.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

// putString writes a u16-length-prefixed string — topic and group names are
// always short, so a 16-bit length is ample headroom without wasting space
// the way a u32 prefix would on every single request.
func putString(dst []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, s...)
}

func getString(src []byte) (s string, rest []byte, err error) {
	if len(src) < 2 {
		return "", nil, ErrPacketTooShort
	}
	n := int(binary.BigEndian.Uint16(src))
	src = src[2:]
	if len(src) < n {
		return "", nil, ErrPacketTooShort
	}
	return string(src[:n]), src[n:], nil
}

// EncodeErrorResponse builds a StatusError body for code/err.
func EncodeErrorResponse(code ErrorCode, err error) []byte {
	msg := err.Error()
	body := make([]byte, 0, 3+len(msg))
	body = append(body, StatusError)
	var codeBuf [2]byte
	binary.BigEndian.PutUint16(codeBuf[:], uint16(code))
	body = append(body, codeBuf[:]...)
	return append(body, msg...)
}

// ProduceRequest is topic + key (possibly empty) + one or more values.
type ProduceRequest struct {
	Topic  string
	Key    []byte
	Values [][]byte
}

func EncodeProduceRequest(r ProduceRequest) []byte {
	body := make([]byte, 0, 64)
	body = putString(body, r.Topic)
	body = putString(body, string(r.Key))
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(r.Values)))
	body = append(body, countBuf[:]...)
	for _, v := range r.Values {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		body = append(body, lenBuf[:]...)
		body = append(body, v...)
	}
	return body
}

func DecodeProduceRequest(body []byte) (ProduceRequest, error) {
	topic, body, err := getString(body)
	if err != nil {
		return ProduceRequest{}, err
	}
	keyStr, body, err := getString(body)
	if err != nil {
		return ProduceRequest{}, err
	}
	if len(body) < 4 {
		return ProduceRequest{}, ErrPacketTooShort
	}
	count := binary.BigEndian.Uint32(body)
	body = body[4:]

	values := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 4 {
			return ProduceRequest{}, ErrPacketTooShort
		}
		n := binary.BigEndian.Uint32(body)
		body = body[4:]
		if uint32(len(body)) < n {
			return ProduceRequest{}, ErrPacketTooShort
		}
		values = append(values, body[:n])
		body = body[n:]
	}

	var key []byte
	if len(keyStr) > 0 {
		key = []byte(keyStr)
	}
	return ProduceRequest{Topic: topic, Key: key, Values: values}, nil
}

// EncodeProduceResponse writes the partition the batch landed in and the
// offset assigned to each value, in call order.
func EncodeProduceResponse(pid int, offsets []uint64) []byte {
	body := make([]byte, 0, 9+8*len(offsets))
	body = append(body, StatusOK)
	var pidBuf [4]byte
	binary.BigEndian.PutUint32(pidBuf[:], uint32(pid))
	body = append(body, pidBuf[:]...)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(offsets)))
	body = append(body, countBuf[:]...)
	for _, off := range offsets {
		var offBuf [8]byte
		binary.BigEndian.PutUint64(offBuf[:], off)
		body = append(body, offBuf[:]...)
	}
	return body
}

func DecodeProduceResponse(body []byte) (pid int, offsets []uint64, err error) {
	if len(body) < 8 {
		return 0, nil, ErrPacketTooShort
	}
	pid = int(binary.BigEndian.Uint32(body))
	count := binary.BigEndian.Uint32(body[4:])
	body = body[8:]
	offsets = make([]uint64, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 8 {
			return 0, nil, ErrPacketTooShort
		}
		offsets = append(offsets, binary.BigEndian.Uint64(body))
		body = body[8:]
	}
	return pid, offsets, nil
}

// FetchRequest names a partition, a starting offset and bounds on the
// response size. MaxMsgs == 0 means "no message-count bound" (maxBytes
// still applies).
type FetchRequest struct {
	Topic    string
	Pid      int
	Offset   uint64
	MaxBytes int32
	MaxMsgs  int32
}

func EncodeFetchRequest(r FetchRequest) []byte {
	body := make([]byte, 0, 32)
	body = putString(body, r.Topic)
	var rest [20]byte
	binary.BigEndian.PutUint32(rest[0:4], uint32(r.Pid))
	binary.BigEndian.PutUint64(rest[4:12], r.Offset)
	binary.BigEndian.PutUint32(rest[12:16], uint32(r.MaxBytes))
	binary.BigEndian.PutUint32(rest[16:20], uint32(r.MaxMsgs))
	return append(body, rest[:]...)
}

func DecodeFetchRequest(body []byte) (FetchRequest, error) {
	topic, body, err := getString(body)
	if err != nil {
		return FetchRequest{}, err
	}
	if len(body) < 20 {
		return FetchRequest{}, ErrPacketTooShort
	}
	return FetchRequest{
		Topic:    topic,
		Pid:      int(binary.BigEndian.Uint32(body[0:4])),
		Offset:   binary.BigEndian.Uint64(body[4:12]),
		MaxBytes: int32(binary.BigEndian.Uint32(body[12:16])),
		MaxMsgs:  int32(binary.BigEndian.Uint32(body[16:20])),
	}, nil
}

// EncodedRecord is the wire shape of one fetched/subscribed record: the
// offset alongside the record package's own payload encoding, so Fetch and
// Subscribe responses never need a second record format.
type EncodedRecord struct {
	Offset  uint64
	Payload []byte // produced by record.Marshal
}

func EncodeRecordBatchResponse(recs []EncodedRecord) []byte {
	size := 5
	for _, r := range recs {
		size += 8 + 4 + len(r.Payload)
	}
	body := make([]byte, 0, size)
	body = append(body, StatusOK)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(recs)))
	body = append(body, countBuf[:]...)
	for _, r := range recs {
		var hdr [12]byte
		binary.BigEndian.PutUint64(hdr[0:8], r.Offset)
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(r.Payload)))
		body = append(body, hdr[:]...)
		body = append(body, r.Payload...)
	}
	return body
}

func DecodeRecordBatchResponse(body []byte) ([]EncodedRecord, error) {
	if len(body) < 4 {
		return nil, ErrPacketTooShort
	}
	count := binary.BigEndian.Uint32(body)
	body = body[4:]
	recs := make([]EncodedRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 12 {
			return nil, ErrPacketTooShort
		}
		offset := binary.BigEndian.Uint64(body[0:8])
		n := binary.BigEndian.Uint32(body[8:12])
		body = body[12:]
		if uint32(len(body)) < n {
			return nil, ErrPacketTooShort
		}
		recs = append(recs, EncodedRecord{Offset: offset, Payload: body[:n]})
		body = body[n:]
	}
	return recs, nil
}

// SubscribeRequest reuses FetchRequest's shape; Subscribe is a bounded
// long-poll, not a continuous push stream (see broker.SubscribeOnce).
type SubscribeRequest = FetchRequest

func EncodeSubscribeRequest(r SubscribeRequest) []byte { return EncodeFetchRequest(r) }
func DecodeSubscribeRequest(body []byte) (SubscribeRequest, error) {
	return DecodeFetchRequest(body)
}

// CommitOffsetRequest names the (group, topic, pid) triple and the offset
// to persist.
type CommitOffsetRequest struct {
	Group  string
	Topic  string
	Pid    int
	Offset uint64
}

func EncodeCommitOffsetRequest(r CommitOffsetRequest) []byte {
	body := putString(nil, r.Group)
	body = putString(body, r.Topic)
	var rest [12]byte
	binary.BigEndian.PutUint32(rest[0:4], uint32(r.Pid))
	binary.BigEndian.PutUint64(rest[4:12], r.Offset)
	return append(body, rest[:]...)
}

func DecodeCommitOffsetRequest(body []byte) (CommitOffsetRequest, error) {
	group, body, err := getString(body)
	if err != nil {
		return CommitOffsetRequest{}, err
	}
	topic, body, err := getString(body)
	if err != nil {
		return CommitOffsetRequest{}, err
	}
	if len(body) < 12 {
		return CommitOffsetRequest{}, ErrPacketTooShort
	}
	return CommitOffsetRequest{
		Group:  group,
		Topic:  topic,
		Pid:    int(binary.BigEndian.Uint32(body[0:4])),
		Offset: binary.BigEndian.Uint64(body[4:12]),
	}, nil
}

func EncodeAckResponse() []byte { return []byte{StatusOK} }

// FetchCommittedOffsetRequest names the (group, topic, pid) triple to read.
type FetchCommittedOffsetRequest struct {
	Group string
	Topic string
	Pid   int
}

func EncodeFetchCommittedOffsetRequest(r FetchCommittedOffsetRequest) []byte {
	body := putString(nil, r.Group)
	body = putString(body, r.Topic)
	var pidBuf [4]byte
	binary.BigEndian.PutUint32(pidBuf[:], uint32(r.Pid))
	return append(body, pidBuf[:]...)
}

func DecodeFetchCommittedOffsetRequest(body []byte) (FetchCommittedOffsetRequest, error) {
	group, body, err := getString(body)
	if err != nil {
		return FetchCommittedOffsetRequest{}, err
	}
	topic, body, err := getString(body)
	if err != nil {
		return FetchCommittedOffsetRequest{}, err
	}
	if len(body) < 4 {
		return FetchCommittedOffsetRequest{}, ErrPacketTooShort
	}
	return FetchCommittedOffsetRequest{Group: group, Topic: topic, Pid: int(binary.BigEndian.Uint32(body))}, nil
}

// EncodeFetchCommittedOffsetResponse's found byte lets "never committed"
// be distinguished from offset 0.
func EncodeFetchCommittedOffsetResponse(offset uint64, found bool) []byte {
	body := make([]byte, 0, 10)
	body = append(body, StatusOK)
	if found {
		body = append(body, 1)
	} else {
		body = append(body, 0)
	}
	var offBuf [8]byte
	binary.BigEndian.PutUint64(offBuf[:], offset)
	return append(body, offBuf[:]...)
}

func DecodeFetchCommittedOffsetResponse(body []byte) (offset uint64, found bool, err error) {
	if len(body) < 9 {
		return 0, false, ErrPacketTooShort
	}
	found = body[0] != 0
	offset = binary.BigEndian.Uint64(body[1:9])
	return offset, found, nil
}

// CreateTopicRequest names a topic and the fixed partition count it should
// have.
type CreateTopicRequest struct {
	Topic          string
	PartitionCount int
}

func EncodeCreateTopicRequest(r CreateTopicRequest) []byte {
	body := putString(nil, r.Topic)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(r.PartitionCount))
	return append(body, countBuf[:]...)
}

func DecodeCreateTopicRequest(body []byte) (CreateTopicRequest, error) {
	topic, body, err := getString(body)
	if err != nil {
		return CreateTopicRequest{}, err
	}
	if len(body) < 4 {
		return CreateTopicRequest{}, ErrPacketTooShort
	}
	return CreateTopicRequest{Topic: topic, PartitionCount: int(binary.BigEndian.Uint32(body))}, nil
}

// DescribePartitionRequest names the partition to describe.
type DescribePartitionRequest struct {
	Topic string
	Pid   int
}

func EncodeDescribePartitionRequest(r DescribePartitionRequest) []byte {
	body := putString(nil, r.Topic)
	var pidBuf [4]byte
	binary.BigEndian.PutUint32(pidBuf[:], uint32(r.Pid))
	return append(body, pidBuf[:]...)
}

func DecodeDescribePartitionRequest(body []byte) (DescribePartitionRequest, error) {
	topic, body, err := getString(body)
	if err != nil {
		return DescribePartitionRequest{}, err
	}
	if len(body) < 4 {
		return DescribePartitionRequest{}, ErrPacketTooShort
	}
	return DescribePartitionRequest{Topic: topic, Pid: int(binary.BigEndian.Uint32(body))}, nil
}

// DescribePartitionResponse answers with enough to let an operator reason
// about retention and lag without reading the partition's directory
// directly.
type DescribePartitionResponse struct {
	EarliestOffset uint64
	NextOffset     uint64
	SegmentCount   int
}

func EncodeDescribePartitionResponse(r DescribePartitionResponse) []byte {
	body := make([]byte, 0, 21)
	body = append(body, StatusOK)
	var rest [20]byte
	binary.BigEndian.PutUint64(rest[0:8], r.EarliestOffset)
	binary.BigEndian.PutUint64(rest[8:16], r.NextOffset)
	binary.BigEndian.PutUint32(rest[16:20], uint32(r.SegmentCount))
	return append(body, rest[:]...)
}

func DecodeDescribePartitionResponse(body []byte) (DescribePartitionResponse, error) {
	if len(body) < 20 {
		return DescribePartitionResponse{}, ErrPacketTooShort
	}
	return DescribePartitionResponse{
		EarliestOffset: binary.BigEndian.Uint64(body[0:8]),
		NextOffset:     binary.BigEndian.Uint64(body[8:16]),
		SegmentCount:   int(binary.BigEndian.Uint32(body[16:20])),
	}, nil
}
