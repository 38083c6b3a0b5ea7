// Copyright (c) 2026 Ido Kanner
//
// This source code is licensed under the Eclipse Public License 2.0.
// See the LICENSE file in the root directory of this source tree
// for the full license text.

// Package soundfile bundles the sample-accurate WAV playback and
// capture engines (packages playback and capture), the FrameTimeCode
// and TimeAnchor primitives they schedule against (packages ftc and
// anchor), and the type-provider registry that resolves a file's
// on-disk format (package sound and formats/wav) into the one-call
// Runtime a host wires up at attach time.
package soundfile
