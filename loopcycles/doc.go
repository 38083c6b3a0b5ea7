// SPDX-License-Identifier: EPL-2.0

// Package loopcycles answers "when does the next loop boundary land?"
// for a quantized loop schedule: a loop length, an offset from the
// anchor origin, and a constant safety margin.
//
//	calc := loopcycles.NewCalculator(ftc.Zero, ftc.FromFrames(48000), 0)
//	start, err := calc.GetStart(myAnchor, 0) // next boundary at or after now
package loopcycles
