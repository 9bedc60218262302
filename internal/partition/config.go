package partition

import (
	"time"

	"lkstream/internal/segment"
)

// Config holds per-partition knobs: segment sizing/indexing, how many
// trailing records the hot tail keeps in memory, and the retention policy
// DeleteOldSegments enforces.
type Config struct {
	SegmentConfig   segment.Config
	HotTailCapacity int

	// RetentionMaxBytes caps total sealed-segment bytes kept on disk; <= 0
	// disables byte-based retention.
	RetentionMaxBytes int64
	// RetentionMaxAge caps how long a sealed segment's newest record may
	// age before the segment is eligible for deletion; <= 0 disables
	// age-based retention.
	RetentionMaxAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		SegmentConfig:     segment.DefaultConfig(),
		HotTailCapacity:   1000,
		RetentionMaxBytes: -1,
		RetentionMaxAge:   0,
	}
}
