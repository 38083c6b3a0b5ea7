// SPDX-License-Identifier: EPL-2.0

// Package ftc provides the FrameTimeCode (FTC), the canonical time
// quantity used throughout m5-soundfile: a signed 64-bit frame count
// split into three float32 fields (sign, epoch, frames) so it can cross
// a float-only message boundary without losing precision.
//
//	n := ftc.FromFrames(123456789)
//	back := n.ToFrames() // == 123456789
//
// All arithmetic (Add, MultiplyByScalar) is performed on the 64-bit
// frame count and re-split on return; Compare operates the same way and
// agrees totally with ToFrames ordering.
package ftc
