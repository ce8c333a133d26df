// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"errors"
	"fmt"
)

// Sentinel errors for the codec and reassembler. Wrapped errors carry
// detail; match with errors.Is.
var (
	ErrPayloadTooLarge  = errors.New("pentair: payload exceeds 255 bytes")
	ErrTruncated        = errors.New("pentair: truncated frame")
	ErrChecksumMismatch = errors.New("pentair: checksum mismatch")
	ErrNoMarker         = errors.New("pentair: frame marker not found")
	ErrBufferOverrun    = errors.New("pentair: reassembly buffer overrun")
	ErrRPMOutOfRange    = errors.New("pentair: rpm outside 450-3450")
	ErrInvalidProgram   = errors.New("pentair: external program must be 0-4")
)

// ChecksumError reports a frame whose transmitted checksum disagrees with
// the checksum computed over its contents.
type ChecksumError struct {
	Got  uint16 // checksum carried by the frame
	Want uint16 // checksum computed over the frame contents
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("pentair: checksum mismatch: frame carries 0x%04X, computed 0x%04X", e.Got, e.Want)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// OverrunError reports that the reassembly buffer exceeded its limit and the
// oldest bytes were dropped. The decoder remains usable.
type OverrunError struct {
	Dropped int // bytes discarded from the front of the buffer
}

func (e *OverrunError) Error() string {
	return fmt.Sprintf("pentair: reassembly buffer overrun: dropped %d bytes", e.Dropped)
}

func (e *OverrunError) Unwrap() error { return ErrBufferOverrun }
