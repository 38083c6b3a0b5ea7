// Copyright (c) 2026 Ido Kanner
//
// This source code is licensed under the Eclipse Public License 2.0.
// See the LICENSE file in the root directory of this source tree
// for the full license text.

package soundfile

import (
	"github.com/samesimilar/m5-soundfile/anchor"
	"github.com/samesimilar/m5-soundfile/capture"
	"github.com/samesimilar/m5-soundfile/formats/wav"
	"github.com/samesimilar/m5-soundfile/ftc"
	"github.com/samesimilar/m5-soundfile/host"
	"github.com/samesimilar/m5-soundfile/loopcycles"
	"github.com/samesimilar/m5-soundfile/playback"
	"github.com/samesimilar/m5-soundfile/sound"
)

// Runtime is what a host builds once at attach time and hands to every
// stream, FTC arithmetic object, and cycles calculator it subsequently
// creates: the type registry (WAV registered as the default provider)
// and the anchor registry, both bound to the host's own capabilities.
// There is no global state here — a host builds exactly one Runtime and
// threads it through every object it creates.
type Runtime struct {
	Types   *sound.Registry
	Anchors *anchor.Registry
	Caps    host.Capabilities
}

// NewRuntime creates a Runtime bound to caps, with the WAV codec
// registered as the type table's default (index 0) provider.
func NewRuntime(caps host.Capabilities) *Runtime {
	types := sound.NewRegistry()
	types.Register(wav.New())
	return &Runtime{
		Types:   types,
		Anchors: anchor.NewRegistry(),
		Caps:    caps,
	}
}

// NewPlayback creates a playback stream bound to this runtime's
// capabilities and type table.
func (rt *Runtime) NewPlayback(opts playback.Options) *playback.Stream {
	return playback.New(rt.Caps, rt.Types, opts)
}

// NewCapture creates a capture stream bound to this runtime's
// capabilities and type table.
func (rt *Runtime) NewCapture(opts capture.Options) *capture.Stream {
	return capture.New(rt.Caps, rt.Types, opts)
}

// Anchor resolves (creating if necessary) the named shared time anchor,
// so every caller passing the same name ends up sharing one instant.
func (rt *Runtime) Anchor(name string, rebuildGraph func()) *anchor.Anchor {
	return rt.Anchors.Create(name, rt.Caps.Clock, rebuildGraph)
}

// NewAdder creates an FTC add object with the given initial right-hand
// operand.
func (rt *Runtime) NewAdder(right ftc.Code) *ftc.Adder {
	return ftc.NewAdder(right)
}

// NewMultiplier creates an FTC scalar-multiply object with the given
// initial scalar.
func (rt *Runtime) NewMultiplier(scalar float32) *ftc.Multiplier {
	return ftc.NewMultiplier(scalar)
}

// NewComparer creates an FTC compare object with the given initial
// right-hand operand.
func (rt *Runtime) NewComparer(right ftc.Code) *ftc.Comparer {
	return ftc.NewComparer(right)
}

// NewLoopCycles creates a loop-boundary calculator with the given
// initial offset, loop length, and safety margin.
func (rt *Runtime) NewLoopCycles(offset, loopLength ftc.Code, safety int64) *loopcycles.Calculator {
	return loopcycles.NewCalculator(offset, loopLength, safety)
}
