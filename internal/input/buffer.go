package input

import "container/heap"

// Buffer is a min-heap of Event keyed on FrameIndex, ties broken by
// insertion order (spec §4.C). It has no bound on capacity; nothing in
// this system ever pushes faster than one event per user action.
type Buffer struct {
	h entryHeap
	seq uint64
}

// New returns an empty Buffer.
func New() *Buffer { return &Buffer{} }

// Len reports the number of queued events.
func (b *Buffer) Len() int { return b.h.Len() }

// Push inserts ev in O(log n).
func (b *Buffer) Push(ev Event) {
	heap.Push(&b.h, entry{event: ev, seq: b.seq})
	b.seq++
}

// DrainResult is one event yielded by DrainDue, tagged with whether it
// arrived too late to apply.
type DrainResult struct {
	Event Event
	Stale bool
}

// DrainDue removes and returns, in ascending FrameIndex order, every
// queued event with FrameIndex <= frame. An event with FrameIndex <
// frame is marked Stale: the caller must still observe it (to log or
// count it) but must not apply its effect. The first event with
// FrameIndex > frame stops the drain and stays queued.
func (b *Buffer) DrainDue(frame uint32) []DrainResult {
	var out []DrainResult
	for b.h.Len() > 0 && b.h[0].event.FrameIndex <= frame {
		e := heap.Pop(&b.h).(entry)
		out = append(out, DrainResult{Event: e.event, Stale: e.event.FrameIndex < frame})
	}
	return out
}

// entry pairs an Event with its insertion sequence number so equal
// FrameIndex values compare by arrival order, matching container/heap's
// lack of a built-in stability guarantee.
type entry struct {
	event Event
	seq   uint64
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].event.FrameIndex != h[j].event.FrameIndex {
		return h[i].event.FrameIndex < h[j].event.FrameIndex
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
