// File: reactor/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-shot timers, kept in a binary heap ordered by deadline. Ties
// break on registration order.

package reactor

import (
	"container/heap"
	"time"
)

// loopTimer is one pending After registration.
type loopTimer struct {
	loop      *Loop
	when      time.Time
	seq       uint64
	fn        func()
	index     int
	cancelled bool
	fired     bool
}

// Cancel implements api.Timer. Cancelling a fired timer is a no-op.
func (t *loopTimer) Cancel() {
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.cancelled || t.fired {
		return
	}
	t.cancelled = true
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
	}
}

// timerHeap implements heap.Interface over pending timers.
type timerHeap []*loopTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*loopTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
