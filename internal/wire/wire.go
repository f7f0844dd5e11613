// Package wire implements the binary, length-prefixed, little-endian
// codec described in spec §4.F: one tagged message per datagram, no
// inter-message framing, fixed field widths throughout.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lockstep/nbody-server/internal/fixedpoint"
	"github.com/lockstep/nbody-server/internal/input"
	"github.com/lockstep/nbody-server/internal/nbody"
)

// ErrTruncated is returned when a datagram ends before a complete
// message could be decoded.
var ErrTruncated = errors.New("wire: truncated message")

// ErrUnknownTag is returned when a datagram's leading tag byte does not
// match any known message kind for the direction being decoded.
var ErrUnknownTag = errors.New("wire: unknown tag")

// Send tags, client to server.
const (
	SendTagPing       byte = 0
	SendTagInputState byte = 1
)

// Recv tags, server to client.
const (
	RecvTagPong       byte = 0
	RecvTagStateHash  byte = 1
	RecvTagInputState byte = 2
	RecvTagFullState  byte = 3
)

// IndexedEvent pairs a frame index with the event queued at that frame.
type IndexedEvent struct {
	FrameIndex uint32
	Event      input.AddBody
}

// SendMessage is the tagged union a client transmits to the server.
// Exactly one of the Ping/InputState fields is meaningful, selected by
// Tag.
type SendMessage struct {
	Tag        byte
	PingFrame  uint32
	InputState IndexedEvent
}

// RecvMessage is the tagged union a server transmits to clients.
type RecvMessage struct {
	Tag         byte
	PongFrame   uint32
	StateHash   IndexedState
	InputEcho   IndexedEvent
	FullStateOp []byte // reserved, opaque per spec §4.F; DecodeRecv copies a tag-3 body here verbatim, and no encoder produces one
}

// IndexedState pairs a frame index with the authoritative hash at that
// frame (spec §4.H beacon).
type IndexedState struct {
	FrameIndex uint32
	Hash       uint64
}

// EncodePing encodes Send.Ping(frameIndex).
func EncodePing(frameIndex uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = SendTagPing
	binary.LittleEndian.PutUint32(buf[1:], frameIndex)
	return buf
}

// EncodeInputState encodes Send.InputState(ev).
func EncodeInputState(ev IndexedEvent) []byte {
	buf := make([]byte, 1+4+8*5)
	buf[0] = SendTagInputState
	off := 1
	binary.LittleEndian.PutUint32(buf[off:], ev.FrameIndex)
	off += 4
	off = putScalar(buf, off, ev.Event.Position.X)
	off = putScalar(buf, off, ev.Event.Position.Y)
	off = putScalar(buf, off, ev.Event.Velocity.X)
	off = putScalar(buf, off, ev.Event.Velocity.Y)
	putScalar(buf, off, ev.Event.Mass)
	return buf
}

// DecodeSend decodes a datagram received by a server.
func DecodeSend(b []byte) (SendMessage, error) {
	if len(b) < 1 {
		return SendMessage{}, fmt.Errorf("wire decode send: %w", ErrTruncated)
	}
	msg := SendMessage{Tag: b[0]}
	body := b[1:]
	switch msg.Tag {
	case SendTagPing:
		if len(body) < 4 {
			return msg, fmt.Errorf("wire decode send ping: %w", ErrTruncated)
		}
		msg.PingFrame = binary.LittleEndian.Uint32(body)
	case SendTagInputState:
		ev, err := decodeIndexedEvent(body)
		if err != nil {
			return msg, fmt.Errorf("wire decode send input_state: %w", err)
		}
		msg.InputState = ev
	default:
		return msg, fmt.Errorf("wire decode send: tag %d: %w", msg.Tag, ErrUnknownTag)
	}
	return msg, nil
}

// EncodePong encodes Recv.Pong(frameIndex).
func EncodePong(frameIndex uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = RecvTagPong
	binary.LittleEndian.PutUint32(buf[1:], frameIndex)
	return buf
}

// EncodeStateHash encodes Recv.StateHash(state).
func EncodeStateHash(state IndexedState) []byte {
	buf := make([]byte, 1+4+8)
	buf[0] = RecvTagStateHash
	binary.LittleEndian.PutUint32(buf[1:5], state.FrameIndex)
	binary.LittleEndian.PutUint64(buf[5:13], state.Hash)
	return buf
}

// EncodeInputEcho encodes Recv.InputState(ev), the server's echo of
// another client's input to every other connected peer.
func EncodeInputEcho(ev IndexedEvent) []byte {
	buf := make([]byte, 1+4+8*5)
	buf[0] = RecvTagInputState
	off := 1
	binary.LittleEndian.PutUint32(buf[off:], ev.FrameIndex)
	off += 4
	off = putScalar(buf, off, ev.Event.Position.X)
	off = putScalar(buf, off, ev.Event.Position.Y)
	off = putScalar(buf, off, ev.Event.Velocity.X)
	off = putScalar(buf, off, ev.Event.Velocity.Y)
	putScalar(buf, off, ev.Event.Mass)
	return buf
}

// DecodeRecv decodes a datagram received by a client.
func DecodeRecv(b []byte) (RecvMessage, error) {
	if len(b) < 1 {
		return RecvMessage{}, fmt.Errorf("wire decode recv: %w", ErrTruncated)
	}
	msg := RecvMessage{Tag: b[0]}
	body := b[1:]
	switch msg.Tag {
	case RecvTagPong:
		if len(body) < 4 {
			return msg, fmt.Errorf("wire decode recv pong: %w", ErrTruncated)
		}
		msg.PongFrame = binary.LittleEndian.Uint32(body)
	case RecvTagStateHash:
		if len(body) < 12 {
			return msg, fmt.Errorf("wire decode recv state_hash: %w", ErrTruncated)
		}
		msg.StateHash = IndexedState{
			FrameIndex: binary.LittleEndian.Uint32(body[0:4]),
			Hash:       binary.LittleEndian.Uint64(body[4:12]),
		}
	case RecvTagInputState:
		ev, err := decodeIndexedEvent(body)
		if err != nil {
			return msg, fmt.Errorf("wire decode recv input_state: %w", err)
		}
		msg.InputEcho = ev
	case RecvTagFullState:
		msg.FullStateOp = append([]byte(nil), body...)
	default:
		return msg, fmt.Errorf("wire decode recv: tag %d: %w", msg.Tag, ErrUnknownTag)
	}
	return msg, nil
}

func decodeIndexedEvent(body []byte) (IndexedEvent, error) {
	const want = 4 + 8*5
	if len(body) < want {
		return IndexedEvent{}, ErrTruncated
	}
	ev := IndexedEvent{FrameIndex: binary.LittleEndian.Uint32(body[0:4])}
	off := 4
	ev.Event.Position.X, off = getScalar(body, off)
	ev.Event.Position.Y, off = getScalar(body, off)
	ev.Event.Velocity.X, off = getScalar(body, off)
	ev.Event.Velocity.Y, off = getScalar(body, off)
	ev.Event.Mass, _ = getScalar(body, off)
	return ev, nil
}

// EncodeFullState encodes the binary body of GET /state (spec §6): the
// embedded hash, the frame index, and every body's raw fixed-point
// fields. The pending InputBuffer is never serialized here, matching
// the hasher's own exclusion of it (spec §4.E) — a late joiner adopts
// the stepped state and resumes queuing input locally.
func EncodeFullState(h uint64, frameIndex uint32, bodies []nbody.Body) []byte {
	const perBody = 8 + 8*7 // id + position(2) + velocity(2) + acceleration(2) + mass
	buf := make([]byte, 8+4+4+perBody*len(bodies))
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], h)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], frameIndex)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(bodies)))
	off += 4
	for _, b := range bodies {
		binary.LittleEndian.PutUint64(buf[off:], b.ID)
		off += 8
		off = putScalar(buf, off, b.Position.X)
		off = putScalar(buf, off, b.Position.Y)
		off = putScalar(buf, off, b.Velocity.X)
		off = putScalar(buf, off, b.Velocity.Y)
		off = putScalar(buf, off, b.Acceleration.X)
		off = putScalar(buf, off, b.Acceleration.Y)
		off = putScalar(buf, off, b.Mass)
	}
	return buf
}

// DecodedBody is one body as read back from a FullState payload.
type DecodedBody struct {
	ID                           uint64
	PositionX, PositionY         fixedpoint.Scalar
	VelocityX, VelocityY         fixedpoint.Scalar
	AccelerationX, AccelerationY fixedpoint.Scalar
	Mass                         fixedpoint.Scalar
}

// FullState is the decoded form of an EncodeFullState payload.
type FullState struct {
	Hash       uint64
	FrameIndex uint32
	Bodies     []DecodedBody
}

// DecodeFullState decodes a GET /state response body.
func DecodeFullState(b []byte) (FullState, error) {
	if len(b) < 16 {
		return FullState{}, fmt.Errorf("wire decode full_state: %w", ErrTruncated)
	}
	fs := FullState{}
	off := 0
	fs.Hash = binary.LittleEndian.Uint64(b[off:])
	off += 8
	fs.FrameIndex = binary.LittleEndian.Uint32(b[off:])
	off += 4
	count := binary.LittleEndian.Uint32(b[off:])
	off += 4
	const perBody = 8 + 8*7
	if len(b[off:]) < int(count)*perBody {
		return FullState{}, fmt.Errorf("wire decode full_state bodies: %w", ErrTruncated)
	}
	fs.Bodies = make([]DecodedBody, count)
	for i := range fs.Bodies {
		db := DecodedBody{}
		db.ID = binary.LittleEndian.Uint64(b[off:])
		off += 8
		db.PositionX, off = getScalar(b, off)
		db.PositionY, off = getScalar(b, off)
		db.VelocityX, off = getScalar(b, off)
		db.VelocityY, off = getScalar(b, off)
		db.AccelerationX, off = getScalar(b, off)
		db.AccelerationY, off = getScalar(b, off)
		db.Mass, off = getScalar(b, off)
		fs.Bodies[i] = db
	}
	return fs, nil
}

func putScalar(buf []byte, off int, s fixedpoint.Scalar) int {
	binary.LittleEndian.PutUint64(buf[off:], uint64(s.RawBits()))
	return off + 8
}

func getScalar(buf []byte, off int) (fixedpoint.Scalar, int) {
	raw := int64(binary.LittleEndian.Uint64(buf[off:]))
	return fixedpoint.FromRawBits(raw), off + 8
}
