// SPDX-License-Identifier: EPL-2.0

// Package anchor implements the TimeAnchor: a named, process-wide shared
// origin instant that lets independent streams agree on a common t=0.
package anchor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/samesimilar/m5-soundfile/host"
)

// Anchor is a named shared origin instant.
type Anchor struct {
	mu      sync.Mutex
	name    string
	clock   host.Clock
	started bool
	start   time.Time

	usedInSignalGraph bool
	rebuildGraph       func()
}

// Mark sets the anchor's start instant to the clock's current time,
// overriding any previous lazy-latch. Mirrors m5_time_anchor_mark.
func (a *Anchor) Mark() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.start = a.clock.Now()
	a.started = true
}

// ElapsedFrames returns ceil(framesSince(start)), clamped to >= 0. If the
// anchor has never been started, this call itself latches "now" as t=0,
// so a downstream object begins counting from the moment it first asks
// rather than from whenever the anchor happened to be created.
func (a *Anchor) ElapsedFrames() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		a.start = a.clock.Now()
		a.started = true
	}
	d := a.clock.FramesSince(a.start)
	if d < 0 {
		d = 0
	}
	return uint64(math.Ceil(d))
}

// Name returns the anchor's bound symbol name.
func (a *Anchor) Name() string {
	return a.name
}

// MarkUsedInSignalGraph records that a stream has wired this anchor into
// its realtime block path, so destroying the anchor requires the host to
// rebuild its signal graph.
func (a *Anchor) MarkUsedInSignalGraph() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usedInSignalGraph = true
}

// Registry is the process-wide name -> anchor binding table.
type Registry struct {
	mu    sync.Mutex
	byName map[string]*Anchor
}

// NewRegistry creates an empty anchor registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Anchor)}
}

// Create binds a new anchor to name, or returns the existing one if
// already bound, so that multiple streams referencing the same name
// share one instant and the anchor stays resolvable by name for as
// long as any stream holds a reference to it.
func (r *Registry) Create(name string, clock host.Clock, rebuildGraph func()) *Anchor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok {
		return existing
	}
	a := &Anchor{name: name, clock: clock, rebuildGraph: rebuildGraph}
	r.byName[name] = a
	return a
}

// Lookup resolves a bound anchor by name.
func (r *Registry) Lookup(name string) (*Anchor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("no such time anchor: %s", name)
	}
	return a, nil
}

// Destroy unbinds name and, if the anchor was used in a signal graph,
// requests the host rebuild it.
func (r *Registry) Destroy(name string) {
	r.mu.Lock()
	a, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
	}
	r.mu.Unlock()
	if ok && a.usedInSignalGraph && a.rebuildGraph != nil {
		a.rebuildGraph()
	}
}
