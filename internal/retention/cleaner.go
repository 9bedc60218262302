package retention

import (
	"sync"
	"time"

	"lkstream/internal/partition"
)

// CleanerConfig holds the sweep cadence; each partition carries its own
// age/byte budget in its own partition.Config.
type CleanerConfig struct {
	RetentionCheckIntervalMs int64
}

// Cleaner periodically calls DeleteOldSegments on every registered
// partition — the ticker+stopCh+WaitGroup shape here is the same one the
// group-commit scheduler uses for flushing, applied to retention instead.
type Cleaner struct {
	mu         sync.Mutex
	partitions []*partition.Partition
	config     CleanerConfig
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewCleaner(config CleanerConfig) *Cleaner {
	return &Cleaner{
		partitions: make([]*partition.Partition, 0),
		config:     config,
		stopCh:     make(chan struct{}),
	}
}

func (rc *Cleaner) Register(p *partition.Partition) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.partitions = append(rc.partitions, p)
}

func (rc *Cleaner) Start() {
	rc.wg.Add(1)
	go rc.run()
}

func (rc *Cleaner) run() {
	defer rc.wg.Done()

	interval := time.Duration(rc.config.RetentionCheckIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanupAll()
		case <-rc.stopCh:
			return
		}
	}
}

func (rc *Cleaner) cleanupAll() {
	rc.mu.Lock()
	partitions := make([]*partition.Partition, len(rc.partitions))
	copy(partitions, rc.partitions)
	rc.mu.Unlock()

	for _, p := range partitions {
		p.DeleteOldSegments()
	}
}

func (rc *Cleaner) Stop() {
	close(rc.stopCh)
	rc.wg.Wait()
}
