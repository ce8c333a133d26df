// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	cmd := FormatCommand(f.Command())

	result := fmt.Sprintf("[%s] %s (0x%02X) %s -> %s len=%d\n",
		timestamp, cmd, f.Command(),
		FormatAddress(f.Source()), FormatAddress(f.Destination()), len(f.Data()))
	result += FormatFrameData(f)

	return result
}

// FormatCommand returns the human-readable name for a command id
func FormatCommand(cmd byte) string {
	switch cmd {
	case CmdWriteRegister:
		return "WRITE_REGISTER"
	case CmdRemoteControl:
		return "REMOTE_CONTROL"
	case CmdSetMode:
		return "SET_MODE"
	case CmdRunStop:
		return "RUN_STOP"
	case CmdStatus:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

// FormatAddress returns an address annotated with its bus range
func FormatAddress(addr byte) string {
	switch {
	case addr == AddressBroadcast:
		return fmt.Sprintf("BROADCAST(0x%02X)", addr)
	case IsControllerAddress(addr):
		return fmt.Sprintf("CONTROLLER(0x%02X)", addr)
	case IsRemoteAddress(addr):
		return fmt.Sprintf("REMOTE(0x%02X)", addr)
	case IsPumpAddress(addr):
		return fmt.Sprintf("PUMP(0x%02X)", addr)
	default:
		return fmt.Sprintf("0x%02X", addr)
	}
}

// FormatMode returns a human-readable mode name
func FormatMode(mode Mode) string {
	switch mode {
	case ModeFilter:
		return "FILTER"
	case ModeManual:
		return "MANUAL"
	case ModeSpeed1, ModeSpeed2, ModeSpeed3, ModeSpeed4:
		return fmt.Sprintf("SPEED_%d", mode-ModeSpeed1+1)
	case ModeFeature1:
		return "FEATURE_1"
	case ModeExtProgram1, ModeExtProgram2, ModeExtProgram3, ModeExtProgram4:
		return fmt.Sprintf("EXT_PROGRAM_%d", mode-ModeExtProgram1+1)
	default:
		return "UNKNOWN"
	}
}

// FormatRegister returns a human-readable register name
func FormatRegister(reg Register) string {
	switch reg {
	case RegSetRPM:
		return "SET_RPM"
	case RegSetGPM:
		return "SET_GPM"
	case RegExternalProgram:
		return "EXT_PROGRAM"
	case RegProgram1RPM, RegProgram2RPM, RegProgram3RPM, RegProgram4RPM:
		return fmt.Sprintf("PROGRAM_%d_RPM", reg-RegProgram1RPM+1)
	default:
		return fmt.Sprintf("0x%04X", uint16(reg))
	}
}

// FormatFrameData formats the data section based on the command id
func FormatFrameData(f *Frame) string {
	data := f.Data()

	switch f.Command() {
	case CmdWriteRegister:
		if reg, value, ok := RegisterFromFrame(f); ok {
			return fmt.Sprintf("  Register: %s (0x%04X), Value: %d (0x%04X)\n",
				FormatRegister(reg), uint16(reg), value, value)
		}
		// A 2-byte data section is the pump echoing the written value back
		if len(data) == 2 {
			value := uint16(data[0])<<8 | uint16(data[1])
			return fmt.Sprintf("  Ack Value: %d (0x%04X)\n", value, value)
		}

	case CmdRemoteControl:
		if len(data) == 1 {
			ctrl := "LOCAL"
			if data[0] == ControlRemote {
				ctrl = "REMOTE"
			}
			return fmt.Sprintf("  Control: %s (0x%02X)\n", ctrl, data[0])
		}

	case CmdSetMode:
		if len(data) == 1 {
			mode := Mode(data[0])
			return fmt.Sprintf("  Mode: %s (0x%02X)\n", FormatMode(mode), data[0])
		}

	case CmdRunStop:
		if len(data) == 1 {
			run := "?"
			switch data[0] {
			case RunStarted:
				run = "START"
			case RunStopped:
				run = "STOP"
			}
			return fmt.Sprintf("  Run: %s (0x%02X)\n", run, data[0])
		}

	case CmdStatus:
		if len(data) == 0 {
			return "  (status request)\n"
		}
		if status, err := ParseStatus(data, f.Timestamp()); err == nil {
			run := "STOPPED"
			if status.Running {
				run = "RUNNING"
			}
			drive := "not ready"
			if status.DriveReady {
				drive = "ready"
			}
			result := fmt.Sprintf("  State: %s, Mode: %s, Drive: %s\n",
				run, FormatMode(status.Mode), drive)
			result += fmt.Sprintf("  Power: %d W, Speed: %d RPM, Flow: %d GPM\n",
				status.Watts, status.RPM, status.GPM)
			result += fmt.Sprintf("  Error: 0x%02X, Timer: %d min, Clock: %02d:%02d\n",
				status.ErrorCode, status.TimerMin, status.ClockHour, status.ClockMin)
			return result
		}
	}

	if len(data) == 0 {
		return "  (no data)\n"
	}
	return fmt.Sprintf("  Data: %s\n", FormatHex(data))
}

// FormatHex renders bytes as space-separated uppercase hex
func FormatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
