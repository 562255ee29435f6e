// SPDX-License-Identifier: MIT

// Package bitint holds the power-of-two helpers used to size FFT
// workspaces. All functions are constant time and allocation free.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, or 1 for
// non-positive input. Subtracting one first keeps exact powers unchanged:
// for 8 the highest set bit of 7 is bit 2, so the result is 1<<3.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// FFTLength returns the transform length needed for a linear (non
// circular) correlation of two sequences of length n: the next power of
// two that holds 2n-1 samples.
func FFTLength(n int) int {
	if n <= 0 {
		return 1
	}
	return NextPowerOfTwo(2*n - 1)
}
