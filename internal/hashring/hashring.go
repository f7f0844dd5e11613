// Package hashring implements the client-side HashRing from spec §3/§4.I:
// a bounded ring of (frame_index, hash) tuples recorded locally,
// compared against the server's periodic StateHash beacons to detect
// divergence.
package hashring

// MinFrames is the fixed constant INPUT_BUFFER_FRAMES from spec §4.I.
const MinFrames = 7

// DefaultCapacity is the suggested ring size from spec §4.I:
// INPUT_BUFFER_FRAMES + a ~1-second latency budget at 60Hz.
const DefaultCapacity = 60

type entry struct {
	frame uint32
	hash  uint64
}

// Ring is a bounded FIFO of (frame, hash) tuples, evicting the oldest
// entry once Capacity is exceeded.
type Ring struct {
	entries  []entry
	capacity int
}

// New returns a Ring retaining at least capacity entries before
// evicting the oldest. Per spec §4.I, capacity should be at least
// MinFrames plus the expected latency budget in frames.
func New(capacity int) *Ring {
	if capacity < MinFrames {
		capacity = MinFrames
	}
	return &Ring{capacity: capacity}
}

// Record appends (frame, hash), evicting the oldest entry if the ring
// is at capacity.
func (r *Ring) Record(frame uint32, hash uint64) {
	if len(r.entries) >= r.capacity {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, entry{frame: frame, hash: hash})
}

// Lookup reports the hash recorded for frame, if still present.
func (r *Ring) Lookup(frame uint32) (uint64, bool) {
	for _, e := range r.entries {
		if e.frame == frame {
			return e.hash, true
		}
	}
	return 0, false
}

// Remove discards the entry for frame, if present. A server beacon that
// matches the locally recorded hash removes it from the ring (spec
// §4.I step 1) so it isn't compared again.
func (r *Ring) Remove(frame uint32) {
	for i, e := range r.entries {
		if e.frame == frame {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len reports the number of retained entries.
func (r *Ring) Len() int { return len(r.entries) }
