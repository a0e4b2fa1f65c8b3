// File: reactor/timer_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"container/heap"
	"testing"
	"time"
)

func pushTimer(h *timerHeap, when time.Time, seq uint64) *loopTimer {
	t := &loopTimer{when: when, seq: seq}
	heap.Push(h, t)
	return t
}

func TestTimerHeapPopsByDeadline(t *testing.T) {
	var h timerHeap
	base := time.Now()
	third := pushTimer(&h, base.Add(30*time.Millisecond), 1)
	first := pushTimer(&h, base.Add(10*time.Millisecond), 2)
	second := pushTimer(&h, base.Add(20*time.Millisecond), 3)

	for i, want := range []*loopTimer{first, second, third} {
		got := heap.Pop(&h).(*loopTimer)
		if got != want {
			t.Fatalf("pop %d = seq %d, want seq %d", i, got.seq, want.seq)
		}
		if got.index != -1 {
			t.Errorf("popped timer keeps heap index %d", got.index)
		}
	}
}

func TestTimerHeapTieBreaksOnRegistrationOrder(t *testing.T) {
	var h timerHeap
	when := time.Now().Add(time.Millisecond)
	for seq := uint64(1); seq <= 4; seq++ {
		pushTimer(&h, when, seq)
	}
	for seq := uint64(1); seq <= 4; seq++ {
		got := heap.Pop(&h).(*loopTimer)
		if got.seq != seq {
			t.Fatalf("pop = seq %d, want seq %d", got.seq, seq)
		}
	}
}

func TestTimerHeapRemoveKeepsIndexesConsistent(t *testing.T) {
	var h timerHeap
	base := time.Now()
	timers := make([]*loopTimer, 0, 5)
	for i := 0; i < 5; i++ {
		timers = append(timers, pushTimer(&h, base.Add(time.Duration(i)*time.Millisecond), uint64(i)))
	}
	heap.Remove(&h, timers[2].index)
	for i, tm := range h {
		if tm.index != i {
			t.Fatalf("heap slot %d holds index %d", i, tm.index)
		}
	}
	want := []uint64{0, 1, 3, 4}
	for _, seq := range want {
		got := heap.Pop(&h).(*loopTimer)
		if got.seq != seq {
			t.Fatalf("pop = seq %d, want seq %d", got.seq, seq)
		}
	}
}
