// Package input implements InputEvent and InputBuffer (spec §4.C): a
// min-heap of future-dated events keyed on frame index, used
// identically by the server's authoritative buffer and every client's
// local buffer.
package input

import "github.com/lockstep/nbody-server/internal/fixedpoint"

// AddBody is the payload of the one InputEvent kind this system
// supports: spawn a new body at the given state.
type AddBody struct {
	Position Vec2
	Velocity Vec2
	Mass     fixedpoint.Scalar
}

// Vec2 mirrors nbody.Vec2's shape without importing the nbody package,
// keeping input free of a dependency on simulation internals; wire and
// simstate convert between the two at their boundary.
type Vec2 struct {
	X, Y fixedpoint.Scalar
}

// Event is an immutable, frame-dated input. The only event kind today
// is AddBody; a tagged-union style field set (rather than an
// interface) keeps Event comparable and trivially encodable.
type Event struct {
	FrameIndex uint32
	AddBody    AddBody
}
