package protocol

import "sync"

// PoolConfig bounds how large a returned buffer may be before it's
// discarded instead of pooled, so one oversized request doesn't pin a huge
// allocation in the pool forever.
type PoolConfig struct {
	MaxPoolSize int
}

var DefaultPoolConfig = PoolConfig{
	MaxPoolSize: 1024 * 64,
}

var bytePool = sync.Pool{
	New: func() any {
		b := make([]byte, 4096)
		return &b
	},
}

func GetBufferWithCapacity(capacity int) *[]byte {
	ptr := bytePool.Get().(*[]byte)
	if cap(*ptr) < capacity {
		b := make([]byte, capacity)
		return &b
	}
	*ptr = (*ptr)[:capacity]
	return ptr
}

func PutBuffer(ptr *[]byte) {
	if len(*ptr) > DefaultPoolConfig.MaxPoolSize {
		return
	}
	bytePool.Put(ptr)
}
