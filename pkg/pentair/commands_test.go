// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Command builder Tests
// ============================================================

func TestNewStatusQuery(t *testing.T) {
	f := NewStatusQuery(0x60, 0x20)
	if f.Command() != CmdStatus || len(f.Data()) != 0 {
		t.Errorf("Status query shape wrong: cmd=0x%02X len=%d", f.Command(), len(f.Data()))
	}

	encoded, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	expected := []byte{0xFF, 0x00, 0xFF, 0xA5, 0x00, 0x60, 0x20, 0x07, 0x00, 0x01, 0x2C}
	if !bytes.Equal(encoded, expected) {
		t.Errorf("Wire bytes:\n  expected % X\n  got      % X", expected, encoded)
	}
}

func TestNewControlCommand(t *testing.T) {
	remote := NewControlCommand(0x60, 0x20, true)
	if remote.Command() != CmdRemoteControl || !bytes.Equal(remote.Data(), []byte{0xFF}) {
		t.Errorf("Remote control frame wrong: % X", remote.Data())
	}

	local := NewControlCommand(0x60, 0x20, false)
	if !bytes.Equal(local.Data(), []byte{0x00}) {
		t.Errorf("Local control frame wrong: % X", local.Data())
	}
}

func TestNewRunCommand(t *testing.T) {
	start := NewRunCommand(0x60, 0x20, true)
	if !bytes.Equal(start.Data(), []byte{0x0A}) {
		t.Errorf("Start frame data: % X", start.Data())
	}
	stop := NewRunCommand(0x60, 0x20, false)
	if !bytes.Equal(stop.Data(), []byte{0x04}) {
		t.Errorf("Stop frame data: % X", stop.Data())
	}
}

func TestNewRegisterWrite(t *testing.T) {
	f := NewRegisterWrite(0x60, 0x20, RegSetRPM, 1500)
	want := []byte{0x02, 0xC4, 0x05, 0xDC}
	if !bytes.Equal(f.Data(), want) {
		t.Errorf("Register write data: expected % X, got % X", want, f.Data())
	}

	reg, value, ok := RegisterFromFrame(f)
	if !ok || reg != RegSetRPM || value != 1500 {
		t.Errorf("RegisterFromFrame: reg=0x%04X value=%d ok=%v", uint16(reg), value, ok)
	}
}

func TestNewSetRPM_Range(t *testing.T) {
	tests := []struct {
		rpm  uint16
		want error
	}{
		{449, ErrRPMOutOfRange},
		{450, nil},
		{3450, nil},
		{3451, ErrRPMOutOfRange},
	}

	for _, tt := range tests {
		_, err := NewSetRPM(0x60, 0x20, tt.rpm)
		if !errors.Is(err, tt.want) {
			t.Errorf("NewSetRPM(%d): expected %v, got %v", tt.rpm, tt.want, err)
		}
	}
}

func TestNewProgramSelect(t *testing.T) {
	tests := []struct {
		program int
		value   uint16
	}{
		{0, 0x0000},
		{1, 0x0008},
		{2, 0x0010},
		{3, 0x0018},
		{4, 0x0020},
	}

	for _, tt := range tests {
		f, err := NewProgramSelect(0x60, 0x20, tt.program)
		if err != nil {
			t.Fatalf("NewProgramSelect(%d): %v", tt.program, err)
		}
		reg, value, ok := RegisterFromFrame(f)
		if !ok || reg != RegExternalProgram || value != tt.value {
			t.Errorf("Program %d: reg=0x%04X value=0x%04X", tt.program, uint16(reg), value)
		}
	}

	if _, err := NewProgramSelect(0x60, 0x20, 5); !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("Program 5 should be rejected, got %v", err)
	}
}

func TestNewProgramRPM(t *testing.T) {
	f, err := NewProgramRPM(0x60, 0x20, 3, 2200)
	if err != nil {
		t.Fatalf("NewProgramRPM error: %v", err)
	}
	reg, value, _ := RegisterFromFrame(f)
	if reg != RegProgram3RPM || value != 2200 {
		t.Errorf("Program 3 RPM: reg=0x%04X value=%d", uint16(reg), value)
	}

	if _, err := NewProgramRPM(0x60, 0x20, 0, 2200); !errors.Is(err, ErrInvalidProgram) {
		t.Error("Program 0 has no RPM register")
	}
	if _, err := NewProgramRPM(0x60, 0x20, 1, 100); !errors.Is(err, ErrRPMOutOfRange) {
		t.Error("100 RPM should be rejected")
	}
}

// ============================================================
// Program classification Tests
// ============================================================

func TestSelectsExternalProgram(t *testing.T) {
	progSelect, _ := NewProgramSelect(0x60, 0x20, 1)
	progOff, _ := NewProgramSelect(0x60, 0x20, 0)

	tests := []struct {
		name  string
		frame *Frame
		want  bool
	}{
		{"mode ext program", NewModeCommand(0x60, 0x20, ModeExtProgram1), true},
		{"mode filter", NewModeCommand(0x60, 0x20, ModeFilter), false},
		{"program register select", progSelect, true},
		{"program register off", progOff, false},
		{"rpm register", NewRegisterWrite(0x60, 0x20, RegSetRPM, 1500), false},
		{"status query", NewStatusQuery(0x60, 0x20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectsExternalProgram(tt.frame); got != tt.want {
				t.Errorf("SelectsExternalProgram = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChangesModeAwayFromProgram(t *testing.T) {
	progOff, _ := NewProgramSelect(0x60, 0x20, 0)
	progOn, _ := NewProgramSelect(0x60, 0x20, 2)

	tests := []struct {
		name  string
		frame *Frame
		want  bool
	}{
		{"mode manual", NewModeCommand(0x60, 0x20, ModeManual), true},
		{"mode ext program", NewModeCommand(0x60, 0x20, ModeExtProgram2), false},
		{"program off", progOff, true},
		{"program on", progOn, false},
		{"stop", NewRunCommand(0x60, 0x20, false), true},
		{"start", NewRunCommand(0x60, 0x20, true), false},
		{"local control", NewControlCommand(0x60, 0x20, false), true},
		{"remote control", NewControlCommand(0x60, 0x20, true), false},
		{"status query", NewStatusQuery(0x60, 0x20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChangesModeAwayFromProgram(tt.frame); got != tt.want {
				t.Errorf("ChangesModeAwayFromProgram = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame_CleanStatus(t *testing.T) {
	status := PumpStatus{Running: true, Mode: ModeFilter, DriveReady: true, Watts: 1100, RPM: 2400, ClockHour: 9, ClockMin: 30}
	encoded, _ := Encode(0x20, 0x60, CmdStatus, status.StatusData())
	f, _ := Decode(encoded)

	if errs := ValidateFrame(f); len(errs) != 0 {
		t.Errorf("Clean status flagged: %v", errs)
	}
}

func TestValidateFrame_Anomalies(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want AnomalyType
	}{
		{
			name: "high rpm",
			data: PumpStatus{Running: true, RPM: 5000, Watts: 100}.StatusData(),
			want: AnomalyHighRPM,
		},
		{
			name: "high power",
			data: PumpStatus{Running: true, RPM: 3000, Watts: 4000}.StatusData(),
			want: AnomalyHighPower,
		},
		{
			name: "bad clock",
			data: PumpStatus{Running: false, ClockHour: 25}.StatusData(),
			want: AnomalyInvalidClock,
		},
		{
			name: "short status",
			data: make([]byte, 10),
			want: AnomalyLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, _ := Encode(0x20, 0x60, CmdStatus, tt.data)
			f, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			errs := ValidateFrame(f)
			found := false
			for _, e := range errs {
				if e.Type == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected anomaly %d, got %v", tt.want, errs)
			}
		})
	}
}

func TestValidateFrame_InvalidRunValue(t *testing.T) {
	data := PumpStatus{}.StatusData()
	data[0] = 0x77 // neither started nor stopped
	encoded, _ := Encode(0x20, 0x60, CmdStatus, data)
	f, _ := Decode(encoded)

	errs := ValidateFrame(f)
	if len(errs) == 0 {
		t.Fatal("Invalid run value not flagged")
	}
	if !strings.Contains(errs[0].Message, "0x77") {
		t.Errorf("Message should name the bad value: %s", errs[0].Message)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame_StatusResponse(t *testing.T) {
	status := PumpStatus{Running: true, Mode: ModeExtProgram1, DriveReady: true, Watts: 1250, RPM: 2750, GPM: 45}
	encoded, _ := Encode(0x20, 0x60, CmdStatus, status.StatusData())
	f, _ := Decode(encoded)

	out := FormatFrame(f)
	for _, want := range []string{"STATUS", "RUNNING", "EXT_PROGRAM_1", "2750 RPM", "1250 W", "PUMP(0x60)", "REMOTE(0x20)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Formatted frame missing %q:\n%s", want, out)
		}
	}
}

func TestFormatFrame_RegisterWrite(t *testing.T) {
	f, _ := NewSetRPM(0x60, 0x20, 1500)
	out := FormatFrame(f)
	for _, want := range []string{"WRITE_REGISTER", "SET_RPM", "1500"} {
		if !strings.Contains(out, want) {
			t.Errorf("Formatted frame missing %q:\n%s", want, out)
		}
	}
}

func TestFormatMode_AllValues(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeFilter, "FILTER"},
		{ModeManual, "MANUAL"},
		{ModeSpeed3, "SPEED_3"},
		{ModeFeature1, "FEATURE_1"},
		{ModeExtProgram4, "EXT_PROGRAM_4"},
		{Mode(0x55), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := FormatMode(tt.mode); got != tt.want {
			t.Errorf("FormatMode(0x%02X) = %q, want %q", byte(tt.mode), got, tt.want)
		}
	}
}

func TestFormatHex(t *testing.T) {
	if got := FormatHex([]byte{0xFF, 0x00, 0xA5}); got != "FF 00 A5" {
		t.Errorf("FormatHex = %q", got)
	}
	if got := FormatHex(nil); got != "" {
		t.Errorf("FormatHex(nil) = %q", got)
	}
}

func TestPumpStatus_String(t *testing.T) {
	s := PumpStatus{Valid: true, Running: true, Mode: ModeManual, RPM: 2000, Watts: 900, GPM: 40, LastUpdate: time.Now()}
	out := s.String()
	for _, want := range []string{"running", "MANUAL", "2000 RPM", "900 W"} {
		if !strings.Contains(out, want) {
			t.Errorf("Status string missing %q: %s", want, out)
		}
	}

	if out := (PumpStatus{}).String(); !strings.Contains(out, "no data") {
		t.Errorf("Invalid status string: %s", out)
	}
}
