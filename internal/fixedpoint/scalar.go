// Package fixedpoint implements the Q32.32 signed fixed-point scalar
// every peer uses for simulation arithmetic. Every operation that
// feeds the simulation hot path saturates on overflow instead of
// wrapping; cross-implementation agreement on that overflow behavior
// is a determinism requirement, not a nicety.
package fixedpoint

import (
	"math"
	"math/big"
	"math/bits"
)

// Scalar is a 64-bit signed fixed-point number: the low 32 bits are
// fractional, the high 32 are integer. Range is roughly ±2^31 with a
// resolution of about 2.3e-10.
type Scalar int64

const (
	fracBits = 32
	one      = int64(1) << fracBits

	// MaxValue and MinValue are the saturating extrema for Scalar.
	MaxValue = Scalar(math.MaxInt64)
	MinValue = Scalar(math.MinInt64)
)

// Zero is the additive identity.
const Zero Scalar = 0

// FromInt builds a Scalar from an integer part with zero fraction,
// saturating if the integer part doesn't fit.
func FromInt(n int64) Scalar {
	hi := n << fracBits
	if hi>>fracBits != n {
		if n > 0 {
			return MaxValue
		}
		return MinValue
	}
	return Scalar(hi)
}

// FromFloat64 is a lossy construction used only at rendering and input
// boundaries — never in the simulation hot path.
func FromFloat64(f float64) Scalar {
	scaled := math.Round(f * float64(one))
	switch {
	case scaled >= float64(math.MaxInt64):
		return MaxValue
	case scaled <= float64(math.MinInt64):
		return MinValue
	default:
		return Scalar(int64(scaled))
	}
}

// FromFloat32 is the f32 landing surface named in spec §3/§9.
func FromFloat32(f float32) Scalar { return FromFloat64(float64(f)) }

// ToFloat64 converts back to a float, lossy above ~2^53 of precision.
func (s Scalar) ToFloat64() float64 { return float64(int64(s)) / float64(one) }

// ToFloat32 is the rendering/input landing surface.
func (s Scalar) ToFloat32() float32 { return float32(s.ToFloat64()) }

// RawBits returns the underlying bit pattern, used for hashing and the
// wire codec.
func (s Scalar) RawBits() int64 { return int64(s) }

// FromRawBits rebuilds a Scalar from its raw bit pattern, e.g. after
// decoding it off the wire.
func FromRawBits(raw int64) Scalar { return Scalar(raw) }

// Add saturates on overflow.
func (s Scalar) Add(o Scalar) Scalar {
	sum := int64(s) + int64(o)
	// Overflow iff both operands share a sign and the result's sign differs.
	if (int64(s)^int64(o)) >= 0 && (sum^int64(s)) < 0 {
		if s > 0 {
			return MaxValue
		}
		return MinValue
	}
	return Scalar(sum)
}

// Sub saturates on overflow.
func (s Scalar) Sub(o Scalar) Scalar {
	if o == MinValue {
		// -MinValue overflows int64. s - MinValue = s + 2^63, which
		// overflows (and saturates) only for s >= 0.
		if s >= 0 {
			return MaxValue
		}
		return Scalar(int64(s) - math.MinInt64)
	}
	return s.Add(-o)
}

// Neg saturates MinValue to MaxValue rather than overflowing.
func (s Scalar) Neg() Scalar {
	if s == MinValue {
		return MaxValue
	}
	return -s
}

// Mul saturates on overflow. The product of two Q32.32 values needs up
// to 128 bits before rescaling, so the intermediate is computed with
// math/bits' 64x64->128 primitives rather than risked in an int64.
func (s Scalar) Mul(o Scalar) Scalar {
	neg := (s < 0) != (o < 0)
	ua, ub := absUint64(int64(s)), absUint64(int64(o))
	hi, lo := bits.Mul64(ua, ub)
	// Rescale the 128-bit unsigned magnitude right by fracBits.
	magHi := hi >> fracBits
	magLo := (lo >> fracBits) | (hi << (64 - fracBits))
	if magHi != 0 {
		return saturate(neg)
	}
	return signedScalar(magLo, neg)
}

// Div saturates on overflow and on division by zero (toward the
// extremum matching the dividend's sign).
func (s Scalar) Div(o Scalar) Scalar {
	if o == 0 {
		switch {
		case s > 0:
			return MaxValue
		case s < 0:
			return MinValue
		default:
			return Zero
		}
	}
	neg := (s < 0) != (o < 0)
	// Dividend widened by fracBits before dividing, so the fractional
	// part of the quotient survives integer division.
	ua := absUint64(int64(s))
	hi := ua >> (64 - fracBits)
	lo := ua << fracBits
	ud := absUint64(int64(o))
	if hi >= ud {
		return saturate(neg)
	}
	quo, _ := bits.Div64(hi, lo, ud)
	return signedScalar(quo, neg)
}

// absUint64 returns |n| widened to uint64, handling math.MinInt64.
func absUint64(n int64) uint64 {
	if n >= 0 {
		return uint64(n)
	}
	return uint64(-(n + 1)) + 1
}

func saturate(negative bool) Scalar {
	if negative {
		return MinValue
	}
	return MaxValue
}

// signedScalar applies sign to an unsigned magnitude, saturating if it
// doesn't fit in the signed range.
func signedScalar(mag uint64, negative bool) Scalar {
	if negative {
		if mag > 1<<63 {
			return MinValue
		}
		return Scalar(-int64(mag))
	}
	if mag > uint64(math.MaxInt64) {
		return MaxValue
	}
	return Scalar(int64(mag))
}

// Cmp returns -1, 0, or 1 per normal comparator semantics.
func (s Scalar) Cmp(o Scalar) int {
	switch {
	case s < o:
		return -1
	case s > o:
		return 1
	default:
		return 0
	}
}

// Sqrt is an integer-only fixed-point square root: it never touches a
// native float type, so it is safe for the per-tick force-accumulation
// hot path (spec §1/§3 forbid floats there; only Cbrt is the documented
// escape hatch, spec §4.A/§9). For x = raw/2^32, sqrt(x)*2^32 =
// sqrt(raw*2^32) exactly, so widening raw left by fracBits and taking
// an arbitrary-precision integer square root (math/big's Newton's
// method, itself pure integer arithmetic) yields the Q32.32 result
// rounded down (the floor of the exact root), with no float round-trip
// anywhere in the computation.
func (s Scalar) Sqrt() Scalar {
	if s <= 0 {
		return Zero
	}
	widened := new(big.Int).Lsh(big.NewInt(int64(s)), fracBits)
	root := new(big.Int).Sqrt(widened)
	if !root.IsInt64() {
		return MaxValue
	}
	return Scalar(root.Int64())
}

// Cbrt is the documented float escape hatch used exclusively to derive
// a Body's render radius from its volume (spec §3/§9). Any
// implementation choosing a different cube-root algorithm must match
// this bit-for-bit on the conformance suite; math.Cbrt's IEEE 754
// double semantics are the reference implementation here.
func (s Scalar) Cbrt() Scalar {
	return FromFloat64(math.Cbrt(s.ToFloat64()))
}
