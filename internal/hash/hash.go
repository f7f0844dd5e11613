// Package hash implements the stable state hash from spec §4.E: every
// peer must reach byte-identical output for an identical simulation
// state, so the algorithm and field order here are load-bearing and
// must never change independently across implementations.
package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/lockstep/nbody-server/internal/simstate"
)

// State hashes a SimulationState's Simulation body list (in current
// list order: position, velocity, acceleration, mass raw bits) followed
// by the frame_index raw bits. The InputBuffer is never hashed — its
// contents are expected to diverge between peers.
//
// xxhash.New() seeds at 0, matching the seed every peer implementation
// is required to use (spec §4.E).
func State(s *simstate.State) uint64 {
	h := xxhash.New()
	var buf [8]byte
	writeScalar := func(raw int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(raw))
		h.Write(buf[:])
	}
	for _, b := range s.Simulation.Bodies() {
		writeScalar(b.Position.X.RawBits())
		writeScalar(b.Position.Y.RawBits())
		writeScalar(b.Velocity.X.RawBits())
		writeScalar(b.Velocity.Y.RawBits())
		writeScalar(b.Acceleration.X.RawBits())
		writeScalar(b.Acceleration.Y.RawBits())
		writeScalar(b.Mass.RawBits())
	}
	binary.LittleEndian.PutUint32(buf[:4], s.FrameIndex)
	h.Write(buf[:4])
	return h.Sum64()
}
