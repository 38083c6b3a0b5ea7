// SPDX-License-Identifier: EPL-2.0

package ftc

import (
	"math"
	"testing"
)

func TestFromFramesToFramesRoundTrip(t *testing.T) {
	// math.MinInt64 is excluded here: FromFrames saturates it rather than
	// round-tripping exactly, see TestFromFramesSaturatesMinInt64.
	cases := []int64{0, 1, -1, 16777215, 16777216, -16777216, 123456789, -123456789, math.MaxInt64, math.MinInt64 + 1}
	for _, n := range cases {
		c := FromFrames(n)
		if c.Frames < 0 || c.Frames >= epochBase {
			t.Fatalf("FromFrames(%d): frames out of range: %v", n, c.Frames)
		}
		if c.Sign != 1 && c.Sign != -1 {
			t.Fatalf("FromFrames(%d): invalid sign %v", n, c.Sign)
		}
		if got := c.ToFrames(); got != n {
			t.Errorf("FromFrames(%d).ToFrames() = %d, want %d", n, got, n)
		}
	}
}

func TestFromFramesSaturatesMinInt64(t *testing.T) {
	// -math.MinInt64 overflows back to itself in two's complement, so this
	// one input can't round-trip exactly; FromFrames saturates it to
	// MaxInt64 magnitude instead of producing an out-of-range Code.
	c := FromFrames(math.MinInt64)
	if c.Frames < 0 || c.Frames >= epochBase {
		t.Fatalf("FromFrames(MinInt64): frames out of range: %v", c.Frames)
	}
	if c.Sign != -1 {
		t.Fatalf("FromFrames(MinInt64): sign = %v, want -1", c.Sign)
	}
	if got, want := c.ToFrames(), int64(math.MinInt64+1); got != want {
		t.Fatalf("FromFrames(MinInt64).ToFrames() = %d, want %d (saturated)", got, want)
	}
}

func TestZeroCanonicalForm(t *testing.T) {
	if Zero.Sign != 1 || Zero.Epoch != 0 || Zero.Frames != 0 {
		t.Fatalf("Zero is not canonical: %+v", Zero)
	}
	// The negative-zero form must be accepted as equivalent.
	negZero := Code{Sign: -1, Epoch: 0, Frames: 0}
	if negZero.ToFrames() != Zero.ToFrames() {
		t.Fatalf("negative zero does not compare equal to canonical zero")
	}
}

func TestAddCommutativeAssociative(t *testing.T) {
	a := FromFrames(1000)
	b := FromFrames(-250)
	c := FromFrames(999999)

	if Add(a, b) != Add(b, a) {
		t.Errorf("Add is not commutative")
	}
	left := Add(Add(a, b), c)
	right := Add(a, Add(b, c))
	if left != right {
		t.Errorf("Add is not associative: %+v != %+v", left, right)
	}
}

func TestCompareTotalOrder(t *testing.T) {
	a := FromFrames(100)
	b := FromFrames(200)
	if Compare(a, b) != -1 {
		t.Errorf("Compare(100,200) = %d, want -1", Compare(a, b))
	}
	if Compare(b, a) != 1 {
		t.Errorf("Compare(200,100) = %d, want 1", Compare(b, a))
	}
	if Compare(a, a) != 0 {
		t.Errorf("Compare(100,100) = %d, want 0", Compare(a, a))
	}
}

func TestMultiplyByScalarFloorsTowardNegativeInfinity(t *testing.T) {
	a := FromFrames(10)
	got := MultiplyByScalar(a, 0.25) // floor(2.5) = 2
	if got.ToFrames() != 2 {
		t.Errorf("MultiplyByScalar(10, 0.25) = %d, want 2", got.ToFrames())
	}

	neg := FromFrames(-10)
	got = MultiplyByScalar(neg, 0.25) // floor(-2.5) = -3
	if got.ToFrames() != -3 {
		t.Errorf("MultiplyByScalar(-10, 0.25) = %d, want -3", got.ToFrames())
	}
}

func TestEmitParseRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 42, -42, 16777216 * 3} {
		c := FromFrames(n)
		e := c.Emit()
		parsed, ok := Parse([3]float64{float64(e[0]), float64(e[1]), float64(e[2])})
		if !ok {
			t.Fatalf("Parse rejected emitted FTC for %d", n)
		}
		if parsed.ToFrames() != n {
			t.Errorf("round trip for %d produced %d", n, parsed.ToFrames())
		}
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},           // bad sign
		{1, -1, 0},          // negative epoch
		{1, 0, -1},          // negative frames
		{1, 0, epochBase},   // frames out of range
	}
	for _, c := range cases {
		if _, ok := Parse(c); ok {
			t.Errorf("Parse(%v) should have failed", c)
		}
	}
}

func TestAdderBangReplaysLastSum(t *testing.T) {
	adder := NewAdder(FromFrames(5))
	got := adder.Add(FromFrames(10))
	if got.ToFrames() != 15 {
		t.Fatalf("Add(10) with right=5 = %d, want 15", got.ToFrames())
	}
	if adder.Bang().ToFrames() != 15 {
		t.Fatalf("Bang did not replay last sum")
	}
	adder.SetRight(FromFrames(100))
	if adder.Bang().ToFrames() != 15 {
		t.Fatalf("Bang should not recompute on SetRight alone")
	}
}

func TestMultiplierBangReplaysLastProduct(t *testing.T) {
	m := NewMultiplier(0.5)
	got := m.Multiply(FromFrames(10))
	if got.ToFrames() != 5 {
		t.Fatalf("Multiply(10) with scalar=0.5 = %d, want 5", got.ToFrames())
	}
	if m.Bang().ToFrames() != 5 {
		t.Fatalf("Bang did not replay last product")
	}
	m.SetScalar(4)
	if m.Bang().ToFrames() != 5 {
		t.Fatalf("Bang should not recompute on SetScalar alone")
	}
}

func TestComparerBangReplaysLastResult(t *testing.T) {
	c := NewComparer(FromFrames(50))
	if got := c.Compare(FromFrames(10)); got != -1 {
		t.Fatalf("Compare(10) vs right=50 = %d, want -1", got)
	}
	if c.Bang() != -1 {
		t.Fatalf("Bang did not replay last comparison")
	}
}
