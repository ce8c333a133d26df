// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"fmt"
	"time"
)

// PumpStatus is the last-known pump state, decoded from a status response.
// Valid is false until at least one response has been parsed; Stale marks
// a snapshot whose refresh failed without clearing the last good data.
type PumpStatus struct {
	Valid      bool
	Stale      bool
	Running    bool
	Mode       Mode
	DriveReady bool
	Watts      uint16
	RPM        uint16
	GPM        uint8
	PPC        uint8
	ErrorCode  uint8
	TimerMin   uint8
	ClockHour  uint8
	ClockMin   uint8
	LastUpdate time.Time
}

// ParseStatus decodes the StatusDataSize-byte data section of a status
// response, stamping the snapshot with at.
func ParseStatus(data []byte, at time.Time) (PumpStatus, error) {
	if len(data) != StatusDataSize {
		return PumpStatus{}, fmt.Errorf("pentair: status data is %d bytes, want %d: %w",
			len(data), StatusDataSize, ErrTruncated)
	}
	return PumpStatus{
		Valid:      true,
		Running:    data[statusRun] == RunStarted,
		Mode:       Mode(data[statusMode]),
		DriveReady: data[statusDrive] == DriveReady,
		Watts:      uint16(data[statusPowerHi])<<8 | uint16(data[statusPowerLo]),
		RPM:        uint16(data[statusRPMHi])<<8 | uint16(data[statusRPMLo]),
		GPM:        data[statusGPM],
		PPC:        data[statusPPC],
		ErrorCode:  data[statusError],
		TimerMin:   data[statusTimer],
		ClockHour:  data[statusHour],
		ClockMin:   data[statusMinute],
		LastUpdate: at,
	}, nil
}

// StatusData serializes the snapshot back into the 15-byte wire layout.
// The simulator uses this to answer status queries.
func (s PumpStatus) StatusData() []byte {
	data := make([]byte, StatusDataSize)
	if s.Running {
		data[statusRun] = RunStarted
	} else {
		data[statusRun] = RunStopped
	}
	data[statusMode] = byte(s.Mode)
	if s.DriveReady {
		data[statusDrive] = DriveReady
	}
	data[statusPowerHi] = byte(s.Watts >> 8)
	data[statusPowerLo] = byte(s.Watts)
	data[statusRPMHi] = byte(s.RPM >> 8)
	data[statusRPMLo] = byte(s.RPM)
	data[statusGPM] = s.GPM
	data[statusPPC] = s.PPC
	data[statusError] = s.ErrorCode
	data[statusTimer] = s.TimerMin
	data[statusHour] = s.ClockHour
	data[statusMinute] = s.ClockMin
	return data
}

// Age returns how long ago the snapshot was refreshed, relative to now.
func (s PumpStatus) Age(now time.Time) time.Duration {
	if !s.Valid {
		return 0
	}
	return now.Sub(s.LastUpdate)
}

// String returns a one-line summary.
func (s PumpStatus) String() string {
	if !s.Valid {
		return "status: no data"
	}
	run := "stopped"
	if s.Running {
		run = "running"
	}
	mark := ""
	if s.Stale {
		mark = " [stale]"
	}
	return fmt.Sprintf("%s, %s, %d RPM, %d W, %d GPM, error 0x%02X, clock %02d:%02d%s",
		run, FormatMode(s.Mode), s.RPM, s.Watts, s.GPM, s.ErrorCode, s.ClockHour, s.ClockMin, mark)
}
