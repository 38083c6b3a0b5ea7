// SPDX-License-Identifier: EPL-2.0

// Package playback implements the sample-accurate file playback engine:
// Idle -> Startup -> Startup2 -> Stream, driven by realtime audio
// blocks and backed by a background worker goroutine that owns all
// file I/O. See host.Capabilities for what the engine requires from its
// surrounding audio host, and sound.Registry for how it resolves a
// file's format.
package playback
