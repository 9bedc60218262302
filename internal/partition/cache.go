package partition

import (
	"container/list"
	"fmt"
	"sync"

	"lkstream/internal/segment"
)

// SegmentCache is a process-wide LRU of open, sealed (read-only) segment
// file descriptors, shared across every partition so the broker never runs
// out of mmap'd file handles under a large topic/partition count. This
// replaces two near-identical caches kept separately in the teacher repo
// with one implementation.
type SegmentCache struct {
	mu       sync.Mutex
	capacity int
	lruList  *list.List
	items    map[string]*list.Element
}

type cacheItem struct {
	key string
	seg *segment.Segment
}

func NewSegmentCache(capacity int) *SegmentCache {
	if capacity <= 0 {
		capacity = 500
	}
	return &SegmentCache{
		capacity: capacity,
		lruList:  list.New(),
		items:    make(map[string]*list.Element),
	}
}

func cacheKey(topic string, id int, baseOffset uint64) string {
	return fmt.Sprintf("%s-%d-%020d", topic, id, baseOffset)
}

// GetOrLoad returns the cached segment for key, loading it via loader and
// admitting it into the cache (evicting the least-recently-used entry if
// full) if it isn't already present.
func (c *SegmentCache) GetOrLoad(key string, loader func() (*segment.Segment, error)) (*segment.Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*cacheItem).seg, nil
	}

	seg, err := loader()
	if err != nil {
		return nil, err
	}

	if c.lruList.Len() >= c.capacity {
		c.evictLocked()
	}

	item := &cacheItem{key: key, seg: seg}
	elem := c.lruList.PushFront(item)
	c.items[key] = elem
	return seg, nil
}

// Evict drops and closes key's entry if present. Retention calls this right
// before deleting a segment's files so the cache can never hand out a
// descriptor pointing at a file that no longer exists.
func (c *SegmentCache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return
	}
	c.lruList.Remove(elem)
	delete(c.items, key)
	_ = elem.Value.(*cacheItem).seg.Close()
}

func (c *SegmentCache) evictLocked() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	c.lruList.Remove(elem)
	item := elem.Value.(*cacheItem)
	delete(c.items, item.key)
	_ = item.seg.Close()
}

func (c *SegmentCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.lruList.Front(); e != nil; e = e.Next() {
		_ = e.Value.(*cacheItem).seg.Close()
	}
	c.lruList.Init()
	c.items = make(map[string]*list.Element)
	return nil
}
