// SPDX-License-Identifier: EPL-2.0

// Package anchor implements TimeAnchor objects: named, process-wide
// shared origin instants that let independent streams agree on a common
// t=0 without any one of them owning the clock.
//
// An anchor latches its start instant lazily, on first ElapsedFrames
// call, unless Mark is called first to latch it explicitly.
package anchor
