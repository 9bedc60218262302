// Package errs collects the sentinel errors surfaced across LKSTREAM's
// storage and broker layers (spec §7). Centralizing them here lets
// segment, partition, broker and protocol all compare against the same
// values with errors.Is, instead of each package re-declaring its own.
package errs

import "errors"

var (
	// ErrOffsetOutOfRange: below the earliest retained offset, or above
	// next_offset where that is not allowed (e.g. CommitOffset).
	ErrOffsetOutOfRange = errors.New("lkstream: offset out of range")

	ErrTopicUnknown        = errors.New("lkstream: unknown topic")
	ErrPartitionUnknown    = errors.New("lkstream: unknown partition")
	ErrTopicExistsConflict = errors.New("lkstream: topic exists with a different partition count")

	ErrClosedPartition = errors.New("lkstream: partition is closed")
	ErrClosedBroker    = errors.New("lkstream: broker is closed")

	// ErrBackpressure is transient; the producer may retry.
	ErrBackpressure = errors.New("lkstream: inflight bytes exceed configured limit")

	// ErrTorn is the internal recovery signal for a partially written frame.
	// It never escapes past segment/partition recovery and live-read code.
	ErrTorn = errors.New("lkstream: torn write detected")

	// ErrRecoveryCorruption is fatal at startup and requires operator
	// intervention (a segment gap or overlap was found).
	ErrRecoveryCorruption = errors.New("lkstream: recovery found a segment gap or overlap")

	ErrStorageFull   = errors.New("lkstream: segment storage is full")
	ErrInvalidConfig = errors.New("lkstream: invalid configuration")
)
