// SPDX-License-Identifier: EPL-2.0

// Package sound defines the file-type provider contract and the PCM
// sample transfer primitives shared by every provider: a Descriptor
// carrying a file's format, a Registry resolving headers to providers,
// and Decode/Encode helpers for 16/24/32/64-bit PCM at either
// endianness.
package sound
