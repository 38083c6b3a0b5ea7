// SPDX-License-Identifier: EPL-2.0

// Package host defines the capability set the core streaming engine
// requires from its surrounding audio host. The core never talks to the
// host directly; every collaborator crosses this small interface set
// instead of reaching for ad-hoc clock, outlet, or canvas pointers.
package host

import (
	"os"
	"time"
)

// Clock models the host's logical-time subsystem. FramesSince reports
// elapsed frames at the host's audio rate since the given instant.
type Clock interface {
	Now() time.Time
	FramesSince(t time.Time) float64
}

// Files resolves a filename through the host's search path and opens it,
// or creates a new file for writing.
type Files interface {
	Open(name string) (*os.File, error)
	Create(name string) (*os.File, error)
}

// Emitter is the set of outlet-emission primitives a stream needs.
type Emitter interface {
	EmitList(outlet string, vals []float32)
	EmitBang(outlet string)
	EmitFloat(outlet string, v float32)
}

// Scheduler defers a callback to the host's next post-block tick, used so
// outlet emission never happens from inside the realtime block callback
// itself.
type Scheduler interface {
	Defer(fn func())
}

// Logger is the host's error/diagnostic channel.
type Logger interface {
	Errorf(format string, args ...any)
}

// Capabilities bundles everything a stream needs from its host.
type Capabilities struct {
	Clock     Clock
	Files     Files
	Emit      Emitter
	Scheduler Scheduler
	Log       Logger
}
