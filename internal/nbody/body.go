// Package nbody implements the deterministic N-body tick: collision
// detection, inelastic-merge resolution, force accumulation, and
// Verlet-style integration, entirely in fixed-point arithmetic except
// for the single documented cube-root escape hatch used to derive a
// Body's render radius.
package nbody

import (
	"math"

	"github.com/lockstep/nbody-server/internal/fixedpoint"
)

// Density is fixed at 1, per spec §3: Volume = Mass / Density.
var threeOverFourPi = fixedpoint.FromFloat64(3.0 / (4.0 * math.Pi))

// Vec2 is a two-component fixed-point vector. It has no independent
// existence outside Body's position/velocity/acceleration triple, so
// it stays inline in this package rather than becoming a reusable
// math module.
type Vec2 struct {
	X, Y fixedpoint.Scalar
}

// Add returns the saturating sum of v and o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X.Add(o.X), Y: v.Y.Add(o.Y)}
}

// Sub returns the saturating difference v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X.Sub(o.X), Y: v.Y.Sub(o.Y)}
}

// Scale returns v scaled by s, saturating.
func (v Vec2) Scale(s fixedpoint.Scalar) Vec2 {
	return Vec2{X: v.X.Mul(s), Y: v.Y.Mul(s)}
}

// LengthSquared returns the saturating squared magnitude of v. This is
// the predicate collision detection uses directly, avoiding an
// unnecessary square root on the hot path (spec §4.B phase 1).
func (v Vec2) LengthSquared() fixedpoint.Scalar {
	return v.X.Mul(v.X).Add(v.Y.Mul(v.Y))
}

// distanceSquared is the saturating squared distance between two
// points, used by both collision detection and force accumulation.
func distanceSquared(a, b Vec2) fixedpoint.Scalar {
	return b.Sub(a).LengthSquared()
}

// Body is one simulated point mass. Bodies are owned exclusively by a
// Simulation; id is assigned monotonically at creation time and never
// reused.
type Body struct {
	ID           uint64
	Position     Vec2
	Velocity     Vec2
	Acceleration Vec2
	Mass         fixedpoint.Scalar
}

// Radius derives the render/collision radius from mass via volume =
// mass/Density (Density=1) and radius = cbrt(3*volume/4π). The cube
// root is the single place this package is permitted a float
// round-trip (spec §3/§9); every other computation here stays in
// fixed-point.
func (b Body) Radius() fixedpoint.Scalar {
	volume := b.Mass // Density == 1
	return volume.Mul(threeOverFourPi).Cbrt()
}

// CollidesWith reports whether b and o overlap, using the saturating
// squared-distance predicate from spec §4.B phase 1.
func (b Body) CollidesWith(o Body) bool {
	d := distanceSquared(b.Position, o.Position)
	r := b.Radius().Add(o.Radius())
	return d.Cmp(r.Mul(r)) <= 0
}
