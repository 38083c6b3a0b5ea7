// SPDX-License-Identifier: EPL-2.0

// Package ftc implements the FrameTimeCode, an exact signed 64-bit frame
// count split across three single-precision floats so it survives a trip
// through a float-only message system without losing precision.
package ftc

import "math"

// epochBase is the largest integer losslessly representable in a float32.
const epochBase = 1 << 24

// Code is a FrameTimeCode: sign * (epoch*2^24 + frames), frames in [0, 2^24).
type Code struct {
	Sign   float32
	Epoch  float32
	Frames float32
}

// Zero is the canonical zero value.
var Zero = Code{Sign: 1, Epoch: 0, Frames: 0}

// FromFrames splits a signed 64-bit frame count into its canonical form.
func FromFrames(n int64) Code {
	sign := float32(1)
	if n < 0 {
		sign = -1
	}
	abs := n
	if abs < 0 {
		if abs == math.MinInt64 {
			// -MinInt64 overflows back to itself in two's complement;
			// saturate to MaxInt64 rather than emit a Code outside the
			// documented [0, 2^24) frames range.
			abs = math.MaxInt64
		} else {
			abs = -abs
		}
	}
	return Code{
		Sign:   sign,
		Epoch:  float32(abs / epochBase),
		Frames: float32(abs % epochBase),
	}
}

// ToFrames reconstructs the signed 64-bit frame count.
func (c Code) ToFrames() int64 {
	sign := int64(1)
	if c.Sign < 0 {
		sign = -1
	}
	return sign * (int64(c.Epoch)*epochBase + int64(c.Frames))
}

// Add computes a+b, re-normalized.
func Add(a, b Code) Code {
	return FromFrames(saturateAdd(a.ToFrames(), b.ToFrames()))
}

// MultiplyByScalar computes floor(toFrames(a) * s), saturated at +/-(2^63-1).
func MultiplyByScalar(a Code, s float32) Code {
	product := math.Floor(float64(a.ToFrames()) * float64(s))
	return FromFrames(saturateFloat(product))
}

// Compare returns -1, 0, or +1 comparing a and b by their exact frame value.
func Compare(a, b Code) int {
	af, bf := a.ToFrames(), b.ToFrames()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

// Parse validates a 3-float wire list ([sign, epoch, frames]) into a Code.
func Parse(vals [3]float64) (Code, bool) {
	sign := vals[0]
	if sign != 1 && sign != -1 {
		return Code{}, false
	}
	if vals[1] < 0 || vals[2] < 0 || vals[2] >= epochBase {
		return Code{}, false
	}
	return Code{Sign: float32(sign), Epoch: float32(vals[1]), Frames: float32(vals[2])}, true
}

// Emit returns the 3-float wire representation [sign, epoch, frames].
func (c Code) Emit() [3]float32 {
	return [3]float32{c.Sign, c.Epoch, c.Frames}
}

func saturateAdd(a, b int64) int64 {
	sum := a + b
	// overflow occurred if operands share a sign but the result doesn't.
	if (a > 0 && b > 0 && sum < 0) {
		return math.MaxInt64
	}
	if (a < 0 && b < 0 && sum > 0) {
		return math.MinInt64
	}
	return sum
}

func saturateFloat(f float64) int64 {
	if f >= float64(math.MaxInt64) {
		return math.MaxInt64
	}
	if f <= float64(math.MinInt64) {
		return math.MinInt64
	}
	return int64(f)
}
