// SPDX-License-Identifier: MIT
package tcp

// Sequence numbers live in a 32-bit circular space: a is before b when
// (b - a) mod 2^32 falls in (0, 2^31).

func seqLT(a, b uint32) bool {
	d := b - a
	return d != 0 && d < 1<<31
}

func seqLEQ(a, b uint32) bool {
	return a == b || seqLT(a, b)
}
