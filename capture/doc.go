// SPDX-License-Identifier: EPL-2.0

// Package capture implements the sample-accurate recording engine:
// Idle -> Startup -> StreamJustStarting -> Stream -> Idle2 -> Idle,
// driven by realtime audio blocks and backed by a background worker
// goroutine that owns all file I/O. See host.Capabilities for what the
// engine requires from its surrounding audio host, and sound.Registry
// for how it resolves the file format to write.
package capture
