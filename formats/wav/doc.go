// SPDX-License-Identifier: EPL-2.0

// Package wav provides the WAV sound.Type: canonical little-endian
// RIFF/WAVE and its big-endian RIFX sibling, at any of 16/24/32/64-bit
// PCM or IEEE float sample widths.
package wav
