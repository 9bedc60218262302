// Package client is a small TCP client for lkctl and for tests that want
// to exercise the broker over the wire instead of in-process. It mirrors
// the teacher's Client exactly in shape (one persistent connection, a
// sendRequest/readResponse pair, a fixed correlation ID) and only swaps in
// LKSTREAM's request/response codecs in place of raw RecordBatch bytes.
package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"lkstream/internal/protocol"
	"lkstream/internal/record"
)

type Config struct {
	BrokerAddr string
	ClientID   string
}

type Client struct {
	Config Config
	conn   net.Conn
}

func NewClient(cfg Config) (*Client, error) {
	conn, err := net.DialTimeout("tcp", cfg.BrokerAddr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{Config: cfg, conn: conn}, nil
}

func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Record is the client-facing view of a fetched/subscribed record.
type Record struct {
	Offset    uint64
	Timestamp int64
	Key       []byte
	Value     []byte
}

// Produce sends values under key to topic and returns the partition they
// landed in and their assigned offsets, in call order.
func (c *Client) Produce(topic string, key []byte, values [][]byte) (pid int, offsets []uint64, err error) {
	reqBody := protocol.EncodeProduceRequest(protocol.ProduceRequest{Topic: topic, Key: key, Values: values})
	if err := c.sendRequest(protocol.ApiKeyProduce, reqBody); err != nil {
		return 0, nil, err
	}
	respBody, err := c.readResponse()
	if err != nil {
		return 0, nil, err
	}
	return protocol.DecodeProduceResponse(respBody)
}

// Fetch requests up to maxMsgs records (bounded further by maxBytes)
// starting at offset.
func (c *Client) Fetch(topic string, pid int, offset uint64, maxMsgs int, maxBytes int32) ([]Record, error) {
	reqBody := protocol.EncodeFetchRequest(protocol.FetchRequest{
		Topic: topic, Pid: pid, Offset: offset, MaxBytes: maxBytes, MaxMsgs: int32(maxMsgs),
	})
	if err := c.sendRequest(protocol.ApiKeyFetch, reqBody); err != nil {
		return nil, err
	}
	respBody, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	encoded, err := protocol.DecodeRecordBatchResponse(respBody)
	if err != nil {
		return nil, err
	}
	return decodeRecords(encoded)
}

// Subscribe is a single bounded long-poll call: it returns as soon as at
// least one record is available past fromOffset, or after the server's
// poll timeout elapses with an empty result. A caller wanting continuous
// delivery loops this, advancing fromOffset by the records it already saw.
func (c *Client) Subscribe(topic string, pid int, fromOffset uint64, maxMsgs int, maxBytes int32) ([]Record, error) {
	reqBody := protocol.EncodeSubscribeRequest(protocol.SubscribeRequest{
		Topic: topic, Pid: pid, Offset: fromOffset, MaxBytes: maxBytes, MaxMsgs: int32(maxMsgs),
	})
	if err := c.sendRequest(protocol.ApiKeySubscribe, reqBody); err != nil {
		return nil, err
	}
	respBody, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	encoded, err := protocol.DecodeRecordBatchResponse(respBody)
	if err != nil {
		return nil, err
	}
	return decodeRecords(encoded)
}

// CommitOffset durably records offset for (group, topic, pid).
func (c *Client) CommitOffset(group, topic string, pid int, offset uint64) error {
	reqBody := protocol.EncodeCommitOffsetRequest(protocol.CommitOffsetRequest{
		Group: group, Topic: topic, Pid: pid, Offset: offset,
	})
	if err := c.sendRequest(protocol.ApiKeyCommitOffset, reqBody); err != nil {
		return err
	}
	_, err := c.readResponse()
	return err
}

// FetchCommittedOffset returns the last committed offset for
// (group, topic, pid), or found=false if nothing has ever been committed.
func (c *Client) FetchCommittedOffset(group, topic string, pid int) (offset uint64, found bool, err error) {
	reqBody := protocol.EncodeFetchCommittedOffsetRequest(protocol.FetchCommittedOffsetRequest{
		Group: group, Topic: topic, Pid: pid,
	})
	if err := c.sendRequest(protocol.ApiKeyFetchCommittedOffset, reqBody); err != nil {
		return 0, false, err
	}
	respBody, err := c.readResponse()
	if err != nil {
		return 0, false, err
	}
	return protocol.DecodeFetchCommittedOffsetResponse(respBody)
}

// CreateTopic creates topic with partitionCount partitions, succeeding as
// a no-op if it already exists with that same count.
func (c *Client) CreateTopic(topic string, partitionCount int) error {
	reqBody := protocol.EncodeCreateTopicRequest(protocol.CreateTopicRequest{Topic: topic, PartitionCount: partitionCount})
	if err := c.sendRequest(protocol.ApiKeyCreateTopic, reqBody); err != nil {
		return err
	}
	_, err := c.readResponse()
	return err
}

// DescribePartition returns the partition's retained range and segment
// count.
func (c *Client) DescribePartition(topic string, pid int) (protocol.DescribePartitionResponse, error) {
	reqBody := protocol.EncodeDescribePartitionRequest(protocol.DescribePartitionRequest{Topic: topic, Pid: pid})
	if err := c.sendRequest(protocol.ApiKeyDescribePartition, reqBody); err != nil {
		return protocol.DescribePartitionResponse{}, err
	}
	respBody, err := c.readResponse()
	if err != nil {
		return protocol.DescribePartitionResponse{}, err
	}
	return protocol.DecodeDescribePartitionResponse(respBody)
}

func decodeRecords(encoded []protocol.EncodedRecord) ([]Record, error) {
	out := make([]Record, len(encoded))
	for i, e := range encoded {
		r, err := record.Unmarshal(e.Payload)
		if err != nil {
			return nil, err
		}
		out[i] = Record{Offset: e.Offset, Timestamp: r.Timestamp, Key: r.Key, Value: r.Value}
	}
	return out, nil
}

// sendRequest frames and writes one request: [Size(4)][ApiKey(2)][ApiVersion(2)][CorrelationID(4)][ClientIDLen(2)][ClientID][Body].
func (c *Client) sendRequest(apiKey protocol.ApiKey, body []byte) error {
	clientIDLen := len(c.Config.ClientID)
	headerSize := 2 + 2 + 4 + 2 + clientIDLen
	totalSize := headerSize + len(body)

	buf := make([]byte, 4+totalSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(totalSize))

	off := 4
	binary.BigEndian.PutUint16(buf[off:], uint16(apiKey))
	off += 2
	binary.BigEndian.PutUint16(buf[off:], 0) // ApiVersion: always 0 for now
	off += 2
	binary.BigEndian.PutUint32(buf[off:], 1) // CorrelationID: fixed, one in-flight request per connection
	off += 4
	binary.BigEndian.PutUint16(buf[off:], uint16(clientIDLen))
	off += 2
	copy(buf[off:], c.Config.ClientID)
	off += clientIDLen
	copy(buf[off:], body)

	_, err := c.conn.Write(buf)
	return err
}

// readResponse reads one framed response: [Size(4)][CorrelationID(4)][Body].
// A StatusError body is surfaced as a Go error.
func (c *Client) readResponse() ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := int32(binary.BigEndian.Uint32(sizeBuf[:]))

	data := make([]byte, size)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("response too short")
	}
	body := data[4:]

	if len(body) > 0 && body[0] == protocol.StatusError {
		if len(body) < 3 {
			return nil, errors.New("client: malformed error response")
		}
		code := protocol.ErrorCode(binary.BigEndian.Uint16(body[1:3]))
		msg := string(body[3:])
		return nil, fmt.Errorf("broker error (code %d): %s", code, msg)
	}
	return body[1:], nil
}
