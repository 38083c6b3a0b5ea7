// SPDX-License-Identifier: EPL-2.0

// Package hosttest provides mock host.Capabilities implementations for
// tests, mirroring ik5/audpbx/internal/audiotest/mock.go.
package hosttest

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Clock is a mock host.Clock with a settable, manually-advanced time base
// and a fixed sample rate, so tests can drive exact frame counts without
// sleeping.
type Clock struct {
	mu         sync.Mutex
	now        time.Time
	sampleRate float64
}

// NewClock creates a mock clock starting at the given time with the given
// sample rate (frames per second of logical time).
func NewClock(start time.Time, sampleRate float64) *Clock {
	return &Clock{now: start, sampleRate: sampleRate}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) FramesSince(t time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(t).Seconds() * c.sampleRate
}

// Advance moves the mock clock forward by n frames.
func (c *Clock) Advance(frames float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Duration(frames / c.sampleRate * float64(time.Second)))
}

// Files is a mock host.Files backed by a fixed directory (names are used
// as given when Dir is unset or the name is absolute), so tests can
// exercise "open by search path" without a real host present.
type Files struct {
	Dir string
}

func (f *Files) Open(name string) (*os.File, error) {
	return os.Open(f.resolve(name))
}

func (f *Files) Create(name string) (*os.File, error) {
	return os.Create(f.resolve(name))
}

func (f *Files) resolve(name string) string {
	if f.Dir == "" || os.IsPathSeparator(name[0]) {
		return name
	}
	return f.Dir + string(os.PathSeparator) + name
}

// Emitter records every emission for later assertion.
type Emitter struct {
	mu     sync.Mutex
	Lists  []EmittedList
	Bangs  []string
	Floats []EmittedFloat
}

type EmittedList struct {
	Outlet string
	Vals   []float32
}

type EmittedFloat struct {
	Outlet string
	Val    float32
}

func (e *Emitter) EmitList(outlet string, vals []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]float32, len(vals))
	copy(cp, vals)
	e.Lists = append(e.Lists, EmittedList{Outlet: outlet, Vals: cp})
}

func (e *Emitter) EmitBang(outlet string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Bangs = append(e.Bangs, outlet)
}

func (e *Emitter) EmitFloat(outlet string, v float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Floats = append(e.Floats, EmittedFloat{Outlet: outlet, Val: v})
}

// Scheduler runs deferred callbacks synchronously and immediately, which
// is sufficient for deterministic tests.
type Scheduler struct{}

func (Scheduler) Defer(fn func()) { fn() }

// Logger collects logged error messages for later assertion.
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

func (l *Logger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, fmt.Sprintf(format, args...))
}
