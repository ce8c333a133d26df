// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"testing"

	"github.com/Thermoquad/aquastat/pkg/pentair"
)

// ============================================================================
// Payload Parsing
// ============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr bool
	}{
		{"fullstart with rpm", `{"command":"fullstart","rpm":2400}`, Command{Name: "fullstart", RPM: 2400}, false},
		{"bare stop", `{"command":"stop"}`, Command{Name: "stop"}, false},
		{"program", `{"command":"program","program":3}`, Command{Name: "program", Program: 3}, false},
		{"missing command field", `{"rpm":2400}`, Command{}, true},
		{"unknown field", `{"command":"start","bogus":1}`, Command{}, true},
		{"not json", `start`, Command{}, true},
		{"empty", ``, Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// RPM Clamping
// ============================================================================

func TestClampRPM(t *testing.T) {
	tests := []struct {
		in   int
		want uint16
	}{
		{0, 450},
		{449, 450},
		{450, 450},
		{2400, 2400},
		{3450, 3450},
		{3451, 3450},
		{99999, 3450},
		{-100, 450},
	}
	for _, tt := range tests {
		if got := ClampRPM(tt.in); got != tt.want {
			t.Errorf("ClampRPM(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// ============================================================================
// Command Plans
// ============================================================================

func TestCommand_Plan(t *testing.T) {
	const pump, src = 0x60, 0x20

	tests := []struct {
		name     string
		cmd      Command
		wantCmds []byte
	}{
		{"fullstart", Command{Name: "fullstart", RPM: 2400},
			[]byte{pentair.CmdRemoteControl, pentair.CmdRunStop, pentair.CmdWriteRegister}},
		{"fullstop", Command{Name: "fullstop"},
			[]byte{pentair.CmdRunStop, pentair.CmdRemoteControl}},
		{"start", Command{Name: "start"}, []byte{pentair.CmdRunStop}},
		{"stop", Command{Name: "stop"}, []byte{pentair.CmdRunStop}},
		{"rpm", Command{Name: "rpm", RPM: 3000}, []byte{pentair.CmdWriteRegister}},
		{"remote", Command{Name: "remote"}, []byte{pentair.CmdRemoteControl}},
		{"local", Command{Name: "local"}, []byte{pentair.CmdRemoteControl}},
		{"query", Command{Name: "query"}, []byte{pentair.CmdStatus}},
		{"program", Command{Name: "program", Program: 2}, []byte{pentair.CmdWriteRegister}},
		{"program off", Command{Name: "program", Program: 0}, []byte{pentair.CmdWriteRegister}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := tt.cmd.Plan(pump, src)
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}
			if len(frames) != len(tt.wantCmds) {
				t.Fatalf("Plan has %d steps, want %d", len(frames), len(tt.wantCmds))
			}
			for i, f := range frames {
				if f.Command() != tt.wantCmds[i] {
					t.Errorf("step %d command = 0x%02X, want 0x%02X", i, f.Command(), tt.wantCmds[i])
				}
				if f.Destination() != pump || f.Source() != src {
					t.Errorf("step %d addressing dst=0x%02X src=0x%02X", i, f.Destination(), f.Source())
				}
			}
		})
	}
}

func TestCommand_Plan_FullStartDetails(t *testing.T) {
	frames, err := Command{Name: "fullstart", RPM: 9000}.Plan(0x60, 0x20)
	if err != nil {
		t.Fatal(err)
	}

	// Step 1 grants remote control.
	if d := frames[0].Data(); len(d) != 1 || d[0] != pentair.ControlRemote {
		t.Errorf("remote step data = % 02X", d)
	}
	// Step 2 starts the motor.
	if d := frames[1].Data(); len(d) != 1 || d[0] != pentair.RunStarted {
		t.Errorf("start step data = % 02X", d)
	}
	// Step 3 writes the clamped speed.
	reg, value, ok := pentair.RegisterFromFrame(frames[2])
	if !ok || reg != pentair.RegSetRPM {
		t.Fatalf("speed step reg = 0x%04X ok=%v", uint16(reg), ok)
	}
	if value != pentair.MaxRPM {
		t.Errorf("rpm 9000 clamped to %d, want %d", value, pentair.MaxRPM)
	}
}

func TestCommand_Plan_Errors(t *testing.T) {
	if _, err := (Command{Name: "reboot"}).Plan(0x60, 0x20); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	if _, err := (Command{Name: "program", Program: 5}).Plan(0x60, 0x20); !errors.Is(err, pentair.ErrInvalidProgram) {
		t.Errorf("Expected ErrInvalidProgram, got %v", err)
	}
}

func TestCommand_Plan_ProgramSelectsRegister(t *testing.T) {
	frames, err := Command{Name: "program", Program: 4}.Plan(0x60, 0x20)
	if err != nil {
		t.Fatal(err)
	}
	reg, value, ok := pentair.RegisterFromFrame(frames[0])
	if !ok || reg != pentair.RegExternalProgram || value != pentair.Program4 {
		t.Errorf("program plan reg=0x%04X value=0x%04X ok=%v", uint16(reg), value, ok)
	}
	if !pentair.SelectsExternalProgram(frames[0]) {
		t.Error("Program plan frame does not arm the repeat")
	}
}
