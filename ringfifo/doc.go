// SPDX-License-Identifier: EPL-2.0

// Package ringfifo provides the bounded byte ring buffer index math
// shared by playback and capture streams. It performs no locking of its
// own; callers hold their stream's mutex for every call.
package ringfifo
