package protocol

import (
	"errors"

	"lkstream/internal/errs"
)

// ErrorCode is the wire representation of a core sentinel error (spec §7).
// Codes are part of the wire contract, so existing values are never
// renumbered; new kinds are only ever appended.
type ErrorCode uint16

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeOffsetOutOfRange
	ErrCodeTopicUnknown
	ErrCodePartitionUnknown
	ErrCodeTopicExistsConflict
	ErrCodeClosedPartition
	ErrCodeClosedBroker
	ErrCodeBackpressure
	ErrCodeRecoveryCorruption
	ErrCodeStorageFull
	ErrCodeInvalidConfig
	ErrCodeIO
)

// ClassifyError maps a core sentinel error to its wire code, falling back
// to ErrCodeIO for anything unrecognized (storage failures surface this
// way per spec §7).
func ClassifyError(err error) ErrorCode {
	switch {
	case errors.Is(err, errs.ErrOffsetOutOfRange):
		return ErrCodeOffsetOutOfRange
	case errors.Is(err, errs.ErrTopicUnknown):
		return ErrCodeTopicUnknown
	case errors.Is(err, errs.ErrPartitionUnknown):
		return ErrCodePartitionUnknown
	case errors.Is(err, errs.ErrTopicExistsConflict):
		return ErrCodeTopicExistsConflict
	case errors.Is(err, errs.ErrClosedPartition):
		return ErrCodeClosedPartition
	case errors.Is(err, errs.ErrClosedBroker):
		return ErrCodeClosedBroker
	case errors.Is(err, errs.ErrBackpressure):
		return ErrCodeBackpressure
	case errors.Is(err, errs.ErrRecoveryCorruption):
		return ErrCodeRecoveryCorruption
	case errors.Is(err, errs.ErrStorageFull):
		return ErrCodeStorageFull
	case errors.Is(err, errs.ErrInvalidConfig):
		return ErrCodeInvalidConfig
	default:
		return ErrCodeIO
	}
}
