// SPDX-License-Identifier: EPL-2.0

// Package loopcycles computes quantized loop-boundary frame times: given
// a clock reading, a loop offset and length, and a safety margin, it
// answers "when does the next (or k-th) loop cycle start?"
package loopcycles

import (
	"errors"
	"sync"

	"github.com/samesimilar/m5-soundfile/anchor"
	"github.com/samesimilar/m5-soundfile/ftc"
)

// ErrNegativeLoopLength is returned when the configured loop length is
// negative.
var ErrNegativeLoopLength = errors.New("loopcycles: loop length must not be negative")

// ErrNonPositiveLoopLength is returned by operations (position, cycle
// count) that require a strictly positive loop length.
var ErrNonPositiveLoopLength = errors.New("loopcycles: loop length must be positive")

// ErrNegativeDuration is returned when LoopsContainingDuration is given a
// negative duration.
var ErrNegativeDuration = errors.New("loopcycles: duration must not be negative")

// Calculator holds the parameters of a loop schedule: where it starts
// relative to the anchor (Offset), how long each cycle is (LoopLength),
// and a constant safety margin added to every computed start.
type Calculator struct {
	mu sync.Mutex

	offset     ftc.Code
	loopLength ftc.Code
	safety     int64
}

// NewCalculator creates a loop calculator with the given offset, loop
// length, and safety margin (in frames).
func NewCalculator(offset, loopLength ftc.Code, safety int64) *Calculator {
	return &Calculator{offset: offset, loopLength: loopLength, safety: safety}
}

// SetOffset updates the loop's offset from the anchor origin.
func (c *Calculator) SetOffset(offset ftc.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = offset
}

// SetLoopLength updates the loop's cycle length.
func (c *Calculator) SetLoopLength(loopLength ftc.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopLength = loopLength
}

// SetSafety updates the constant safety margin added to every computed
// start, in frames.
func (c *Calculator) SetSafety(safety int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.safety = safety
}

// GetStartAt computes the frame time of the next loop boundary at or
// after clock (a frame count, e.g. from an anchor), displaced by
// offsetLoops additional whole cycles, plus the safety margin. If clock
// lands exactly on a boundary, that boundary itself is returned (no
// cycle is skipped); otherwise the next boundary is returned. With a
// non-zero offset the on-boundary result is measured from the offset
// (clock minus offset), while the off-boundary result adds the offset
// back and is the boundary's own frame time.
func (c *Calculator) GetStartAt(clock float64, offsetLoops int64) (ftc.Code, error) {
	c.mu.Lock()
	offset := c.offset
	loopLength := c.loopLength
	safety := c.safety
	c.mu.Unlock()

	offsetFrames := offset.ToFrames()
	loopFrames := loopLength.ToFrames()
	if loopFrames < 0 {
		return ftc.Zero, ErrNegativeLoopLength
	}

	lclock := int64(clock) - offsetFrames

	if loopFrames == 0 {
		return ftc.FromFrames(lclock + safety), nil
	}

	nowFrame := lclock % loopFrames
	if nowFrame < 0 {
		nowFrame += loopFrames // Euclidean remainder for clock < offset
	}
	if nowFrame == 0 {
		return ftc.FromFrames(lclock + offsetLoops*loopFrames + safety), nil
	}

	nextStart := lclock + loopFrames + offsetFrames - nowFrame + offsetLoops*loopFrames + safety
	return ftc.FromFrames(nextStart), nil
}

// GetStart is GetStartAt using the anchor's current elapsed-frame count
// as the clock reading.
func (c *Calculator) GetStart(a *anchor.Anchor, offsetLoops int64) (ftc.Code, error) {
	clock := float64(a.ElapsedFrames())
	return c.GetStartAt(clock, offsetLoops)
}

// Position returns the offset of clock within the current loop cycle
// (clock mod loop length), ignoring the offset and safety margin.
func (c *Calculator) Position(clock float64) (ftc.Code, error) {
	c.mu.Lock()
	loopLength := c.loopLength
	c.mu.Unlock()

	loopFrames := loopLength.ToFrames()
	if loopFrames <= 0 {
		return ftc.Zero, ErrNonPositiveLoopLength
	}
	nowFrame := int64(clock) % loopFrames
	return ftc.FromFrames(nowFrame), nil
}

// LoopsContainingDuration returns how many whole and fractional loop
// cycles fit within duration, at the given loop length.
func LoopsContainingDuration(duration, loopLength ftc.Code) (float64, error) {
	durationFrames := duration.ToFrames()
	if durationFrames < 0 {
		return 0, ErrNegativeDuration
	}
	loopFrames := loopLength.ToFrames()
	if loopFrames <= 0 {
		return 0, ErrNonPositiveLoopLength
	}
	return float64(durationFrames) / float64(loopFrames), nil
}
