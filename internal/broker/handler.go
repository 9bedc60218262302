package broker

import (
	"fmt"
	"math"
	"time"

	"lkstream/internal/protocol"
	"lkstream/internal/record"
)

// subscribeLongPollTimeout bounds how long one Subscribe request blocks
// waiting for data before answering with whatever (possibly nothing) is
// available — spec §9's bounded-long-poll simplification of push delivery
// over the wire.
const subscribeLongPollTimeout = 5 * time.Second

func (b *Broker) handleRequest(req *protocol.Request) []byte {
	switch req.Header.ApiKey {
	case protocol.ApiKeyProduce:
		return b.handleProduce(req)
	case protocol.ApiKeyFetch:
		return b.handleFetch(req)
	case protocol.ApiKeySubscribe:
		return b.handleSubscribe(req)
	case protocol.ApiKeyCommitOffset:
		return b.handleCommitOffset(req)
	case protocol.ApiKeyFetchCommittedOffset:
		return b.handleFetchCommittedOffset(req)
	case protocol.ApiKeyCreateTopic:
		return b.handleCreateTopic(req)
	case protocol.ApiKeyDescribePartition:
		return b.handleDescribePartition(req)
	default:
		return protocol.EncodeErrorResponse(protocol.ErrCodeIO, fmt.Errorf("unknown api key: %d", req.Header.ApiKey))
	}
}

func (b *Broker) handleProduce(req *protocol.Request) []byte {
	in, err := protocol.DecodeProduceRequest(req.Body)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ErrCodeIO, err)
	}

	pid, offsets, err := b.Produce(in.Topic, in.Key, in.Values)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ClassifyError(err), err)
	}
	return protocol.EncodeProduceResponse(pid, offsets)
}

func (b *Broker) handleFetch(req *protocol.Request) []byte {
	in, err := protocol.DecodeFetchRequest(req.Body)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ErrCodeIO, err)
	}

	maxMsgs := int(in.MaxMsgs)
	if maxMsgs <= 0 {
		maxMsgs = math.MaxInt32 // MaxMsgs == 0: no message-count bound
	}
	recs, err := b.Fetch(in.Topic, in.Pid, in.Offset, maxMsgs, in.MaxBytes)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ClassifyError(err), err)
	}
	return protocol.EncodeRecordBatchResponse(encodeRecords(recs))
}

func (b *Broker) handleSubscribe(req *protocol.Request) []byte {
	in, err := protocol.DecodeSubscribeRequest(req.Body)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ErrCodeIO, err)
	}

	maxMsgs := int(in.MaxMsgs)
	if maxMsgs <= 0 {
		maxMsgs = math.MaxInt32 // MaxMsgs == 0: no message-count bound
	}
	recs, err := b.SubscribeOnce(in.Topic, in.Pid, in.Offset, maxMsgs, in.MaxBytes, subscribeLongPollTimeout)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ClassifyError(err), err)
	}
	return protocol.EncodeRecordBatchResponse(encodeRecords(recs))
}

func (b *Broker) handleCommitOffset(req *protocol.Request) []byte {
	in, err := protocol.DecodeCommitOffsetRequest(req.Body)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ErrCodeIO, err)
	}

	if err := b.CommitOffset(in.Group, in.Topic, in.Pid, in.Offset); err != nil {
		return protocol.EncodeErrorResponse(protocol.ClassifyError(err), err)
	}
	return protocol.EncodeAckResponse()
}

func (b *Broker) handleFetchCommittedOffset(req *protocol.Request) []byte {
	in, err := protocol.DecodeFetchCommittedOffsetRequest(req.Body)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ErrCodeIO, err)
	}

	offset, found, err := b.FetchCommittedOffset(in.Group, in.Topic, in.Pid)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ClassifyError(err), err)
	}
	return protocol.EncodeFetchCommittedOffsetResponse(offset, found)
}

func (b *Broker) handleCreateTopic(req *protocol.Request) []byte {
	in, err := protocol.DecodeCreateTopicRequest(req.Body)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ErrCodeIO, err)
	}

	if err := b.CreateTopic(in.Topic, in.PartitionCount); err != nil {
		return protocol.EncodeErrorResponse(protocol.ClassifyError(err), err)
	}
	return protocol.EncodeAckResponse()
}

func (b *Broker) handleDescribePartition(req *protocol.Request) []byte {
	in, err := protocol.DecodeDescribePartitionRequest(req.Body)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ErrCodeIO, err)
	}

	result, err := b.DescribePartition(in.Topic, in.Pid)
	if err != nil {
		return protocol.EncodeErrorResponse(protocol.ClassifyError(err), err)
	}
	return protocol.EncodeDescribePartitionResponse(protocol.DescribePartitionResponse{
		EarliestOffset: result.EarliestOffset,
		NextOffset:     result.NextOffset,
		SegmentCount:   result.SegmentCount,
	})
}

func encodeRecords(recs []record.Record) []protocol.EncodedRecord {
	out := make([]protocol.EncodedRecord, len(recs))
	for i := range recs {
		out[i] = protocol.EncodedRecord{Offset: recs[i].Offset, Payload: record.Marshal(&recs[i])}
	}
	return out
}
