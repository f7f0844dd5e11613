package nbody

import (
	"sync/atomic"

	"github.com/lockstep/nbody-server/internal/fixedpoint"
)

// gravity is the constant G used in force accumulation (spec §4.B
// phase 3): 0.1 in fixed-point, not the real-world 6.674e-11 — this is
// a simulation toy constant, not a physical one.
var gravity = fixedpoint.FromFloat64(0.1)

// Tick is the per-step integration constant (spec §4.B phase 4). The
// simulation always advances exactly one tick per call to Step; any
// real-time pacing is a client/server scheduling concern, not this
// package's (spec §5).
var Tick = fixedpoint.FromInt(1)

// Simulation is an ordered list of Body. Iteration order is
// significant for determinism: collision pairs are enumerated by
// ascending current-list index, and the swap-remove used to resolve a
// merge deterministically reorders the tail of the list, but every
// peer reorders it identically given identical inputs.
type Simulation struct {
	bodies  []Body
	nextID  atomic.Uint64
}

// New returns an empty Simulation.
func New() *Simulation { return &Simulation{} }

// Bodies returns the live body list in current iteration order. The
// returned slice aliases Simulation's internal storage and must not be
// retained across a call to Step or AddBody.
func (s *Simulation) Bodies() []Body { return s.bodies }

// BodyCount returns the number of live bodies.
func (s *Simulation) BodyCount() int { return len(s.bodies) }

// AddBody appends a new body with position, velocity, and mass,
// assigning it the next monotonic id from this Simulation's own
// counter (spec §9: per-simulation, not a process global, so two
// simulations in one process stay independently testable).
func (s *Simulation) AddBody(position, velocity Vec2, mass fixedpoint.Scalar) Body {
	b := Body{
		ID:       s.nextID.Add(1) - 1,
		Position: position,
		Velocity: velocity,
		Mass:     mass,
	}
	s.bodies = append(s.bodies, b)
	return b
}

// pair is a colliding pair enumerated in phase 1, identified by id
// rather than index so that phase 2's mutations (which reorder the
// list) don't invalidate earlier entries.
type pair struct {
	lowID, highID uint64
}

// Tick runs the four-phase tick described in spec §4.B: collision
// detection, collision resolution, acceleration recomputation, and
// integration, in that exact order.
func (s *Simulation) Tick() {
	pairs := s.detectCollisions()
	s.resolveCollisions(pairs)
	s.recomputeAccelerations()
	s.integrate()
}

// detectCollisions enumerates every unordered pair (i, j), i<j, by
// current list index, testing the saturating squared-distance
// predicate. The pair list preserves ascending (i, j) enumeration
// order, which is the order resolveCollisions must honor so that a
// body touching several others merges with whichever partner was
// enumerated first.
func (s *Simulation) detectCollisions() []pair {
	var pairs []pair
	for i := 0; i < len(s.bodies); i++ {
		for j := i + 1; j < len(s.bodies); j++ {
			if s.bodies[i].CollidesWith(s.bodies[j]) {
				pairs = append(pairs, pair{lowID: s.bodies[i].ID, highID: s.bodies[j].ID})
			}
		}
	}
	return pairs
}

// resolveCollisions merges each surviving pair in enumeration order.
// Per spec §4.B phase 2 / §9: body2 (the pair's high-index body at
// detection time) is located by id and removed with an O(1)
// swap-remove; body1 is then located by id and updated in place with
// the merged state. A pair referencing an id that a prior merge in
// this same tick already removed is silently discarded — this is how
// "first enumerated pair wins" is enforced without a separate
// bookkeeping pass.
func (s *Simulation) resolveCollisions(pairs []pair) {
	for _, p := range pairs {
		highIdx, ok := s.indexByID(p.highID)
		if !ok {
			continue
		}
		lowIdx, ok := s.indexByID(p.lowID)
		if !ok {
			continue
		}
		body2 := s.bodies[highIdx]
		s.swapRemove(highIdx)
		// swapRemove may have moved lowIdx's body if it lived at the
		// tail; re-resolve its index against the now-shrunk list.
		lowIdx, ok = s.indexByID(p.lowID)
		if !ok {
			continue
		}
		s.bodies[lowIdx] = merge(s.bodies[lowIdx], body2)
	}
}

// merge combines two bodies into one per spec §4.B phase 2: a
// mass-weighted average position and velocity, summed mass, and the
// first body's acceleration carried forward (it is about to be
// recomputed in phase 3 regardless).
func merge(a, b Body) Body {
	totalMass := a.Mass.Add(b.Mass)
	weighted := func(pa, pb Vec2) Vec2 {
		sum := pa.Scale(a.Mass).Add(pb.Scale(b.Mass))
		return Vec2{X: sum.X.Div(totalMass), Y: sum.Y.Div(totalMass)}
	}
	return Body{
		ID:           a.ID,
		Position:     weighted(a.Position, b.Position),
		Velocity:     weighted(a.Velocity, b.Velocity),
		Acceleration: a.Acceleration,
		Mass:         totalMass,
	}
}

func (s *Simulation) indexByID(id uint64) (int, bool) {
	for i := range s.bodies {
		if s.bodies[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// swapRemove deletes the body at idx in O(1) by overwriting it with
// the last element and truncating, reordering the list's tail
// deterministically (spec §4.B: "the reorder is deterministic across
// peers as long as the collision-pair enumeration is deterministic").
func (s *Simulation) swapRemove(idx int) {
	last := len(s.bodies) - 1
	s.bodies[idx] = s.bodies[last]
	s.bodies = s.bodies[:last]
}

// recomputeAccelerations implements spec §4.B phase 3: for every body,
// sum the pairwise gravitational acceleration contributions from every
// other body. A pair at exactly zero distance contributes the zero
// vector — there is no softening constant, unlike the original
// source's force_from.
func (s *Simulation) recomputeAccelerations() {
	next := make([]Vec2, len(s.bodies))
	for i := range s.bodies {
		var acc Vec2
		pi := s.bodies[i].Position
		for j := range s.bodies {
			if i == j {
				continue
			}
			other := s.bodies[j]
			delta := other.Position.Sub(pi)
			distSq := delta.LengthSquared()
			if distSq == fixedpoint.Zero {
				continue
			}
			dist := distSq.Sqrt()
			denom := distSq.Mul(dist) // ‖p‖³
			if denom == fixedpoint.Zero {
				continue
			}
			scalar := gravity.Mul(other.Mass).Div(denom)
			acc = acc.Add(delta.Scale(scalar))
		}
		next[i] = acc
	}
	for i := range s.bodies {
		s.bodies[i].Acceleration = next[i]
	}
}

// integrate implements spec §4.B phase 4: semi-implicit Euler
// integration with TICK=1, applied to every body in current list
// order.
func (s *Simulation) integrate() {
	for i := range s.bodies {
		b := &s.bodies[i]
		b.Velocity = b.Velocity.Add(b.Acceleration.Scale(Tick))
		b.Position = b.Position.Add(b.Velocity.Scale(Tick))
	}
}
