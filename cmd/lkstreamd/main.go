// lkstreamd is the LKSTREAM broker daemon: flag parsing, config assembly
// and signal handling live here, outside the core packages, matching the
// teacher's cmd/broker/main.go split between wiring and engine.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lkstream/internal/broker"
)

func main() {
	cfg := broker.DefaultConfig()

	listenAddr := flag.String("listen", cfg.ListenAddr, "TCP address to listen on")
	persistDir := flag.String("persist-dir", cfg.PersistDir, "root directory for topic and offset state")
	fsyncMode := flag.String("fsync-mode", "group", "durability mode: sync | group | none")
	fsyncIntervalMs := flag.Int("fsync-interval-ms", cfg.FsyncIntervalMs, "max age of dirty data before flush (group and none modes)")
	fsyncGroupBytes := flag.Int64("fsync-group-bytes", cfg.FsyncGroupBytes, "byte trigger for flush (group mode)")
	segmentMaxBytes := flag.Int64("segment-max-bytes", cfg.SegmentMaxBytes, "segment rotation threshold")
	hotTailEntries := flag.Int("hot-tail-entries", cfg.HotTailEntries, "size of the per-partition in-memory ring")
	inflightMaxBytes := flag.Int64("inflight-max-bytes", cfg.InflightMaxBytes, "backpressure cap on unsynced bytes")
	indexEveryN := flag.Int("index-every-n", cfg.IndexEveryN, "sparsity of the on-disk index (1 = dense)")
	retentionMaxBytes := flag.Int64("retention-max-bytes", cfg.RetentionMaxBytes, "max sealed-segment bytes kept on disk per partition (<=0 disables)")
	retentionMaxAgeMs := flag.Int64("retention-max-age-ms", cfg.RetentionMaxAgeMs, "max age in ms of a sealed segment's newest record (<=0 disables)")
	flag.Parse()

	switch *fsyncMode {
	case "sync":
		cfg.FsyncMode = broker.FsyncSync
	case "group":
		cfg.FsyncMode = broker.FsyncGroup
	case "none":
		cfg.FsyncMode = broker.FsyncNone
	default:
		log.Fatalf("[lkstreamd] invalid -fsync-mode %q: must be sync, group or none", *fsyncMode)
	}

	cfg.ListenAddr = *listenAddr
	cfg.PersistDir = *persistDir
	cfg.FsyncIntervalMs = *fsyncIntervalMs
	cfg.FsyncGroupBytes = *fsyncGroupBytes
	cfg.SegmentMaxBytes = *segmentMaxBytes
	cfg.HotTailEntries = *hotTailEntries
	cfg.InflightMaxBytes = *inflightMaxBytes
	cfg.IndexEveryN = *indexEveryN
	cfg.RetentionMaxBytes = *retentionMaxBytes
	cfg.RetentionMaxAgeMs = *retentionMaxAgeMs

	b, err := broker.NewBroker(cfg)
	if err != nil {
		log.Fatalf("[lkstreamd] failed to initialize broker: %v", err)
	}

	fmt.Printf("[lkstreamd] persist_dir=%s listen=%s fsync_mode=%s\n", cfg.PersistDir, cfg.ListenAddr, *fsyncMode)

	go func() {
		if err := b.Start(); err != nil {
			log.Fatalf("[lkstreamd] broker failed to start: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("[lkstreamd] shutting down...")
	b.Stop()
	fmt.Println("[lkstreamd] stopped. bye!")
}
