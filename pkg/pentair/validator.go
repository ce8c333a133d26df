// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyBadVersion AnomalyType = iota
	AnomalyLengthMismatch
	AnomalyHighRPM
	AnomalyHighPower
	AnomalyInvalidValue
	AnomalyInvalidClock
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Values a healthy pump never reports. RPM beyond the drive limit or
// implausible power draw usually means line noise that survived the
// checksum, which is only a 16-bit sum.
const (
	maxPlausibleRPM   = MaxRPM
	maxPlausibleWatts = 2800
)

// ValidateFrame checks a decoded frame for anomalies beyond what the
// checksum can catch. Returns a slice of validation errors (empty if the
// frame is clean).
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	if f.Version() != ProtocolVersion {
		errors = append(errors, ValidationError{
			Type:    AnomalyBadVersion,
			Message: fmt.Sprintf("Unexpected protocol version 0x%02X", f.Version()),
			Details: map[string]interface{}{"version": f.Version()},
		})
	}

	switch f.Command() {
	case CmdStatus:
		errors = append(errors, validateStatusResponse(f)...)
	case CmdRemoteControl:
		errors = append(errors, validateControl(f)...)
	case CmdRunStop:
		errors = append(errors, validateRunStop(f)...)
	}

	return errors
}

// validateStatusResponse validates a status response data section
func validateStatusResponse(f *Frame) []ValidationError {
	errors := []ValidationError{}
	data := f.Data()

	// A zero-length status frame is the request itself, not a response.
	if len(data) == 0 {
		return errors
	}

	if len(data) != StatusDataSize {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("Status data length mismatch (%d bytes, expected %d)", len(data), StatusDataSize),
			Details: map[string]interface{}{"length": len(data), "expected": StatusDataSize},
		}}
	}

	if data[statusRun] != RunStarted && data[statusRun] != RunStopped {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid run state 0x%02X (expected 0x0A or 0x04)", data[statusRun]),
			Details: map[string]interface{}{"run": data[statusRun]},
		})
	}

	rpm := uint16(data[statusRPMHi])<<8 | uint16(data[statusRPMLo])
	if rpm > maxPlausibleRPM {
		errors = append(errors, ValidationError{
			Type:    AnomalyHighRPM,
			Message: fmt.Sprintf("High RPM (%d, drive max %d)", rpm, maxPlausibleRPM),
			Details: map[string]interface{}{"rpm": rpm, "max": maxPlausibleRPM},
		})
	}

	watts := uint16(data[statusPowerHi])<<8 | uint16(data[statusPowerLo])
	if watts > maxPlausibleWatts {
		errors = append(errors, ValidationError{
			Type:    AnomalyHighPower,
			Message: fmt.Sprintf("High power draw (%d W, max plausible %d)", watts, maxPlausibleWatts),
			Details: map[string]interface{}{"watts": watts, "max": maxPlausibleWatts},
		})
	}

	hour, minute := data[statusHour], data[statusMinute]
	if hour > 23 || minute > 59 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidClock,
			Message: fmt.Sprintf("Invalid clock %02d:%02d", hour, minute),
			Details: map[string]interface{}{"hour": hour, "minute": minute},
		})
	}

	return errors
}

// validateControl validates a remote/local control frame
func validateControl(f *Frame) []ValidationError {
	data := f.Data()
	if len(data) != 1 {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("Control data length mismatch (%d bytes, expected 1)", len(data)),
			Details: map[string]interface{}{"length": len(data), "expected": 1},
		}}
	}
	if data[0] != ControlRemote && data[0] != ControlLocal {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid control value 0x%02X (expected 0xFF or 0x00)", data[0]),
			Details: map[string]interface{}{"value": data[0]},
		}}
	}
	return nil
}

// validateRunStop validates a run/stop frame
func validateRunStop(f *Frame) []ValidationError {
	data := f.Data()
	if len(data) != 1 {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("Run/stop data length mismatch (%d bytes, expected 1)", len(data)),
			Details: map[string]interface{}{"length": len(data), "expected": 1},
		}}
	}
	if data[0] != RunStarted && data[0] != RunStopped {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid run value 0x%02X (expected 0x0A or 0x04)", data[0]),
			Details: map[string]interface{}{"value": data[0]},
		}}
	}
	return nil
}
