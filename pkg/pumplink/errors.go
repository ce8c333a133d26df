// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumplink

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/aquastat/pkg/pentair"
)

// Sentinel errors for the scheduler. Match with errors.Is.
var (
	// ErrBusy rejects a submission while another command is awaiting its
	// response or retrying. The outstanding command is untouched.
	ErrBusy = errors.New("pumplink: command already in flight")

	// ErrResponseTimeout marks a command whose response never arrived
	// within the deadline, across all permitted attempts.
	ErrResponseTimeout = errors.New("pumplink: response timeout")

	// ErrNoFrame rejects a request with a nil frame.
	ErrNoFrame = errors.New("pumplink: request carries no frame")
)

// CommandError reports a command that failed after exhausting its retries.
type CommandError struct {
	Command  byte // command id of the failed frame
	Attempts int  // sends performed, initial plus retries
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("pumplink: %s (0x%02X) failed after %d attempts: %v",
		pentair.FormatCommand(e.Command), e.Command, e.Attempts, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
