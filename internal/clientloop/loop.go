// Package clientloop implements the per-rendered-frame ClientLoop
// procedure from spec §4.I: drain inbound datagrams, ping, pace
// against the server's acknowledged frame, and inject local input.
package clientloop

import (
	"log/slog"
	"time"

	"github.com/lockstep/nbody-server/internal/fixedpoint"
	"github.com/lockstep/nbody-server/internal/hash"
	"github.com/lockstep/nbody-server/internal/hashring"
	"github.com/lockstep/nbody-server/internal/input"
	"github.com/lockstep/nbody-server/internal/latency"
	"github.com/lockstep/nbody-server/internal/logging"
	"github.com/lockstep/nbody-server/internal/metrics"
	"github.com/lockstep/nbody-server/internal/session"
	"github.com/lockstep/nbody-server/internal/simstate"
	"github.com/lockstep/nbody-server/internal/wire"
)

// InputBufferFrames is the fixed constant from spec §4.I: local input
// is always dated this many frames into the future.
const InputBufferFrames = hashring.MinFrames

// PingTimeout bounds how long an outstanding ping is tracked before
// being counted as lost. Fixed at 1 second per spec §5.
const PingTimeout = 1 * time.Second

// Datagram abstracts the subset of session.Client this package needs,
// so tests can substitute a fake transport.
type Datagram interface {
	Send(payload []byte) error
	TryRecv() ([]byte, bool)
}

var _ Datagram = (*session.Client)(nil)

// Loop is one client's local simulation plus its networking
// bookkeeping.
type Loop struct {
	state   *simstate.State
	conn    Datagram
	lat     *latency.Buffer
	ring    *hashring.Ring
	logger  *slog.Logger

	serverFrameIndex uint32
}

// New returns a Loop bound to a fresh local SimulationState.
func New(conn Datagram) *Loop {
	return &Loop{
		state:  simstate.New(),
		conn:   conn,
		lat:    latency.NewBuffer(PingTimeout),
		ring:   hashring.New(hashring.DefaultCapacity),
		logger: logging.L(),
	}
}

// Tick runs exactly one iteration of spec §4.I's per-rendered-frame
// procedure.
func (lp *Loop) Tick() {
	lp.drainInbound()
	lp.sendPing()
	lp.paceAndStep()
}

func (lp *Loop) drainInbound() {
	for {
		payload, ok := lp.conn.TryRecv()
		if !ok {
			return
		}
		msg, err := wire.DecodeRecv(payload)
		if err != nil {
			metrics.IncMalformed()
			lp.logger.Warn("recv_decode_failed", "error", err)
			continue
		}
		lp.handleRecv(msg)
	}
}

func (lp *Loop) handleRecv(msg wire.RecvMessage) {
	switch msg.Tag {
	case wire.RecvTagPong:
		lp.lat.Recv(msg.PongFrame)
	case wire.RecvTagStateHash:
		f, h := msg.StateHash.FrameIndex, msg.StateHash.Hash
		if f > lp.serverFrameIndex {
			lp.serverFrameIndex = f
		}
		local, present := lp.ring.Lookup(f)
		switch {
		case !present:
			lp.logger.Info("state_hash_beacon_untracked", "frame", f)
		case local != h:
			metrics.IncHashMismatch()
			lp.logger.Error("state_divergence", "frame", f, "local_hash", local, "server_hash", h)
		default:
			lp.ring.Remove(f)
		}
	case wire.RecvTagInputState:
		lp.state.PushInput(input.Event{FrameIndex: msg.InputEcho.FrameIndex, AddBody: msg.InputEcho.Event})
	case wire.RecvTagFullState:
		// reserved; not yet implemented.
	}
}

func (lp *Loop) sendPing() {
	f := lp.state.FrameIndex
	_ = lp.conn.Send(wire.EncodePing(f))
	lp.lat.Send(f)
}

// paceAndStep implements spec §4.I step 3: skip stepping if the client
// has drifted past target = server_frame_index + avg_latency_ms/60.
// This formula is preserved exactly as specified even though its units
// look unusual (it is not latency-in-frames at 60Hz); this is a
// deliberate, literal reading of the pacing rule, not a defect.
func (lp *Loop) paceAndStep() {
	avgLatencyMs := float64(lp.lat.AverageLatency()) / float64(time.Millisecond)
	target := float64(lp.serverFrameIndex) + avgLatencyMs/60
	if float64(lp.state.FrameIndex) > target {
		return
	}
	lp.ring.Record(lp.state.FrameIndex, hash.State(lp.state))
	lp.state.Step()
}

// QueueLocalInput builds an InputEvent dated InputBufferFrames into the
// future (spec §4.I step 4), applies it to the local buffer, and sends
// it to the server.
func (lp *Loop) QueueLocalInput(position, velocity input.Vec2, mass fixedpoint.Scalar) {
	ev := input.Event{
		FrameIndex: lp.state.FrameIndex + InputBufferFrames,
		AddBody:    input.AddBody{Position: position, Velocity: velocity, Mass: mass},
	}
	lp.state.PushInput(ev)
	_ = lp.conn.Send(wire.EncodeInputState(wire.IndexedEvent{FrameIndex: ev.FrameIndex, Event: ev.AddBody}))
}

// State exposes the local SimulationState for rendering.
func (lp *Loop) State() *simstate.State { return lp.state }
