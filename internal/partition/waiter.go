package partition

import "sync"

// waiterSet is a broadcast-on-append signal: every caller blocked in
// WaitForOffset or Subscribe parks on the channel returned by wait(), and
// broadcast() wakes all of them at once by closing it and swapping in a
// fresh one. This is the same "channel close as broadcast" idiom used for
// watcher notification in log-structured stores of this kind, simplified
// to a single shared channel instead of a per-watcher registry since every
// waiter here re-checks the same monotonic NextOffset condition.
type waiterSet struct {
	mu sync.Mutex
	ch chan struct{}
}

func newWaiterSet() *waiterSet {
	return &waiterSet{ch: make(chan struct{})}
}

func (w *waiterSet) wait() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ch
}

func (w *waiterSet) broadcast() {
	w.mu.Lock()
	defer w.mu.Unlock()
	close(w.ch)
	w.ch = make(chan struct{})
}
