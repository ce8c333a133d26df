// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

// Checksum computes the 16-bit arithmetic sum of data. The protocol sums
// every byte from the A5 start byte through the last data byte inclusive;
// the FF 00 FF preamble and the two checksum bytes are never included.
// Overflow wraps at 16 bits.
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
