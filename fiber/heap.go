// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package fiber

import "time"

// timerEntry is either a fiber delay (fiber set) or a bare callback
// (callback set). Exactly one of the two is non-nil.
type timerEntry[Payload any] struct {
	deadline time.Time
	seq      int64

	fiber *Fiber

	callback func()
}

// timerHeap orders entries by deadline, ties broken by registration
// sequence (spec §5 ordering guarantee c).
type timerHeap[Payload any] []*timerEntry[Payload]

func (h timerHeap[Payload]) Len() int { return len(h) }

func (h timerHeap[Payload]) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap[Payload]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap[Payload]) Push(x any) {
	*h = append(*h, x.(*timerEntry[Payload]))
}

func (h *timerHeap[Payload]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
