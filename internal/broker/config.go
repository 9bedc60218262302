package broker

import (
	"time"

	"lkstream/internal/partition"
	"lkstream/internal/scheduler"
	"lkstream/internal/segment"
)

// FsyncMode selects the durability policy the group-commit scheduler and
// the broker's append path apply, per spec §4.3.
type FsyncMode int

const (
	// FsyncGroup flushes on whichever of FsyncIntervalMs / FsyncGroupBytes
	// fires first; appenders never wait for it. The default.
	FsyncGroup FsyncMode = iota
	// FsyncSync flushes synchronously after every Append before the offset
	// is returned to the caller.
	FsyncSync
	// FsyncNone adds no flush to the append path and never applies the
	// FsyncGroupBytes trigger; partitions are still synced by the
	// scheduler's FsyncIntervalMs sweep (when > 0) and at shutdown.
	FsyncNone
)

// Config holds every broker-level knob, mirroring spec §6's configuration
// table. A Config is a plain literal built by the caller (cmd/lkstreamd's
// job), not loaded from env or a config file by this package.
type Config struct {
	// PersistDir is the root directory for topics/ and offsets/.
	PersistDir string
	ListenAddr string

	FsyncMode         FsyncMode
	FsyncIntervalMs   int
	FsyncGroupBytes   int64
	SegmentMaxBytes   int64
	HotTailEntries    int
	InflightMaxBytes  int64
	IndexEveryN       int
	RetentionMaxBytes int64
	RetentionMaxAgeMs int64
}

func DefaultConfig() Config {
	return Config{
		PersistDir:        "./data",
		ListenAddr:        ":9092",
		FsyncMode:         FsyncGroup,
		FsyncIntervalMs:   200,
		FsyncGroupBytes:   1 << 20,
		SegmentMaxBytes:   128 << 20,
		HotTailEntries:    1000,
		InflightMaxBytes:  64 << 20,
		IndexEveryN:       64,
		RetentionMaxBytes: -1,
		RetentionMaxAgeMs: 0,
	}
}

func (c Config) partitionConfig() partition.Config {
	return partition.Config{
		SegmentConfig: segment.Config{
			SegmentMaxBytes: c.SegmentMaxBytes,
			IndexMaxBytes:   segment.DefaultConfig().IndexMaxBytes,
			IndexEveryN:     c.IndexEveryN,
		},
		HotTailCapacity:   c.HotTailEntries,
		RetentionMaxBytes: c.RetentionMaxBytes,
		RetentionMaxAge:   time.Duration(c.RetentionMaxAgeMs) * time.Millisecond,
	}
}

func (c Config) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		Interval:      time.Duration(c.FsyncIntervalMs) * time.Millisecond,
		ByteThreshold: c.FsyncGroupBytes,
	}
}
