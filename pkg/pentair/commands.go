// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

// Command builder functions create Frame structs ready for encoding.
// These are convenience wrappers around NewFrame that ensure correct
// data layout per command id. src is the controller's own bus address.

// NewStatusQuery creates a status request frame (0x07, no data).
// The pump answers with a StatusDataSize-byte status response.
func NewStatusQuery(pump, src byte) *Frame {
	return NewFrame(pump, src, CmdStatus, nil)
}

// NewControlCommand creates a remote/local control frame (0x04).
// Remote control must be granted before the pump accepts other commands;
// local returns the pump to front-panel control.
func NewControlCommand(pump, src byte, remote bool) *Frame {
	value := byte(ControlLocal)
	if remote {
		value = ControlRemote
	}
	return NewFrame(pump, src, CmdRemoteControl, []byte{value})
}

// NewRunCommand creates a run/stop frame (0x06).
func NewRunCommand(pump, src byte, start bool) *Frame {
	value := byte(RunStopped)
	if start {
		value = RunStarted
	}
	return NewFrame(pump, src, CmdRunStop, []byte{value})
}

// NewModeCommand creates a set-mode frame (0x05).
func NewModeCommand(pump, src byte, mode Mode) *Frame {
	return NewFrame(pump, src, CmdSetMode, []byte{byte(mode)})
}

// NewRegisterWrite creates a write-register frame (0x01).
// Data layout is [regHi, regLo, valHi, valLo], big-endian.
func NewRegisterWrite(pump, src byte, reg Register, value uint16) *Frame {
	data := []byte{
		byte(reg >> 8), byte(reg),
		byte(value >> 8), byte(value),
	}
	return NewFrame(pump, src, CmdWriteRegister, data)
}

// NewSetRPM creates a write to the direct speed register. The pump drive
// accepts MinRPM through MaxRPM.
func NewSetRPM(pump, src byte, rpm uint16) (*Frame, error) {
	if rpm < MinRPM || rpm > MaxRPM {
		return nil, ErrRPMOutOfRange
	}
	return NewRegisterWrite(pump, src, RegSetRPM, rpm), nil
}

// ProgramValue returns the external-program register value selecting
// program (1-4), or ProgramOff for 0.
func ProgramValue(program int) (uint16, error) {
	if program < 0 || program > 4 {
		return 0, ErrInvalidProgram
	}
	return uint16(program * 8), nil
}

// NewProgramSelect creates a write to the external-program register.
// program 1-4 selects that program; 0 turns external programs off.
// A pump running an external program expects this command re-issued every
// ProgramRepeatInterval or it reverts to local control.
func NewProgramSelect(pump, src byte, program int) (*Frame, error) {
	value, err := ProgramValue(program)
	if err != nil {
		return nil, err
	}
	return NewRegisterWrite(pump, src, RegExternalProgram, value), nil
}

// NewProgramRPM creates a write setting the stored RPM for external
// program 1-4.
func NewProgramRPM(pump, src byte, program int, rpm uint16) (*Frame, error) {
	if program < 1 || program > 4 {
		return nil, ErrInvalidProgram
	}
	if rpm < MinRPM || rpm > MaxRPM {
		return nil, ErrRPMOutOfRange
	}
	return NewRegisterWrite(pump, src, RegProgram1RPM+Register(program-1), rpm), nil
}

// RegisterFromFrame extracts the register address and value from a
// write-register frame. ok is false for any other frame shape.
func RegisterFromFrame(f *Frame) (reg Register, value uint16, ok bool) {
	if f.Command() != CmdWriteRegister || len(f.Data()) != 4 {
		return 0, 0, false
	}
	d := f.Data()
	return Register(uint16(d[0])<<8 | uint16(d[1])), uint16(d[2])<<8 | uint16(d[3]), true
}

// SelectsExternalProgram reports whether the frame selects a running
// external program: either a set-mode command with an external-program
// mode, or a write to the external-program register with a non-zero value.
func SelectsExternalProgram(f *Frame) bool {
	if f.Command() == CmdSetMode && len(f.Data()) == 1 {
		return Mode(f.Data()[0]).IsExternalProgram()
	}
	if reg, value, ok := RegisterFromFrame(f); ok {
		return reg == RegExternalProgram && value != ProgramOff
	}
	return false
}

// ChangesModeAwayFromProgram reports whether the frame moves the pump out
// of external-program operation (a non-program mode, a program-off register
// write, a stop, or a return to local control).
func ChangesModeAwayFromProgram(f *Frame) bool {
	switch f.Command() {
	case CmdSetMode:
		return len(f.Data()) == 1 && !Mode(f.Data()[0]).IsExternalProgram()
	case CmdWriteRegister:
		reg, value, ok := RegisterFromFrame(f)
		return ok && reg == RegExternalProgram && value == ProgramOff
	case CmdRunStop:
		return len(f.Data()) == 1 && f.Data()[0] == RunStopped
	case CmdRemoteControl:
		return len(f.Data()) == 1 && f.Data()[0] == ControlLocal
	}
	return false
}
