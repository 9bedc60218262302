package partition

import (
	"time"

	"lkstream/internal/segment"
)

// DeleteOldSegments retires the oldest sealed segments according to the
// partition's age and byte-budget retention policy, invoked periodically by
// an internal/retention.Cleaner. The active segment is never a retention
// target regardless of policy, so a partition with only one segment is
// always a no-op.
func (p *Partition) DeleteOldSegments() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.Segments) <= 1 {
		return
	}

	if p.config.RetentionMaxAge > 0 {
		now := time.Now()
		for len(p.sealedMeta) > 0 {
			oldest := p.sealedMeta[0]
			if now.Sub(time.UnixMilli(oldest.largestTimestamp)) <= p.config.RetentionMaxAge {
				break
			}
			p.retireOldestLocked()
		}
	}

	if p.config.RetentionMaxBytes > 0 {
		for p.totalSealedBytesLocked() > p.config.RetentionMaxBytes && len(p.sealedMeta) > 0 {
			p.retireOldestLocked()
		}
	}
}

func (p *Partition) totalSealedBytesLocked() int64 {
	var total int64
	for _, m := range p.sealedMeta {
		total += m.sizeBytes
	}
	return total
}

func (p *Partition) retireOldestLocked() {
	if len(p.Segments) <= 1 {
		return
	}
	victim := p.Segments[0]

	p.cache.Evict(cacheKey(p.Topic, p.ID, victim))
	_ = segment.RemoveFiles(p.Dir, victim)

	p.Segments = p.Segments[1:]
	p.sealedMeta = p.sealedMeta[1:]
}
