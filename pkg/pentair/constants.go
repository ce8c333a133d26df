// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pentair provides a Go implementation of the Pentair-style RS-485
// pump protocol.
//
// The protocol carries framed binary messages between controllers and
// variable-speed pumps on a shared half-duplex bus. This package provides
// frame encoding/decoding, checksum validation, stream reassembly, command
// builders, and status parsing. It performs no I/O; see pkg/pumplink for the
// bus transport and command scheduler.
package pentair

import "time"

// Protocol framing bytes. Every frame begins with the 4-byte marker
// FF 00 FF A5. The A5 byte doubles as the first byte of the checksum span.
const (
	PreambleByte0 = 0xFF
	PreambleByte1 = 0x00
	PreambleByte2 = 0xFF
	StartByte     = 0xA5

	ProtocolVersion = 0x00
)

// Frame layout sizes. A frame is MARKER(4) + VERSION + DST + SRC + CMD +
// LEN + DATA(LEN) + CKSUM(2), so the smallest possible frame is 11 bytes.
const (
	MarkerSize   = 4
	HeaderSize   = 5
	ChecksumSize = 2
	MinFrameSize = MarkerSize + HeaderSize + ChecksumSize
	MaxDataSize  = 255
	MaxFrameSize = MinFrameSize + MaxDataSize
)

// Header byte offsets relative to the start of the marker.
const (
	offVersion = 4
	offDst     = 5
	offSrc     = 6
	offCommand = 7
	offLength  = 8
	offData    = 9
)

// Device address ranges. The bus is multidrop: every device sees every
// frame and filters on the destination byte.
const (
	AddressBroadcast      = 0x0F
	AddressControllerBase = 0x10 // main controllers 0x10-0x1F
	AddressRemoteBase     = 0x20 // remote controllers 0x20-0x2F
	AddressPumpBase       = 0x60 // pumps 0x60-0x6F

	DefaultRemoteAddress = AddressRemoteBase
	DefaultPumpAddress   = AddressPumpBase
)

// IsBroadcastAddress reports whether addr is the broadcast address.
func IsBroadcastAddress(addr byte) bool {
	return addr == AddressBroadcast
}

// IsControllerAddress reports whether addr is a main controller address.
func IsControllerAddress(addr byte) bool {
	return addr >= AddressControllerBase && addr <= AddressControllerBase+0x0F
}

// IsRemoteAddress reports whether addr is a remote controller address.
func IsRemoteAddress(addr byte) bool {
	return addr >= AddressRemoteBase && addr <= AddressRemoteBase+0x0F
}

// IsPumpAddress reports whether addr is a pump address.
func IsPumpAddress(addr byte) bool {
	return addr >= AddressPumpBase && addr <= AddressPumpBase+0x0F
}

// Command identifiers (the CFI byte).
const (
	CmdWriteRegister = 0x01 // data = [regHi, regLo, valHi, valLo]
	CmdRemoteControl = 0x04 // data = [0xFF] remote, [0x00] local
	CmdSetMode       = 0x05 // data = [mode]
	CmdRunStop       = 0x06 // data = [0x0A] start, [0x04] stop
	CmdStatus        = 0x07 // no data; response carries StatusDataSize bytes
)

// Remote-control data values for CmdRemoteControl.
const (
	ControlRemote = 0xFF
	ControlLocal  = 0x00
)

// Run-state values, used both in CmdRunStop data and in the run field of a
// status response.
const (
	RunStarted = 0x0A
	RunStopped = 0x04
)

// DriveReady is the drive-state value reported while the drive is ready.
const DriveReady = 0x02

// Mode represents a pump operating mode for CmdSetMode.
type Mode byte

// Operating mode values
const (
	ModeFilter   Mode = 0x00
	ModeManual   Mode = 0x01
	ModeSpeed1   Mode = 0x02
	ModeSpeed2   Mode = 0x03
	ModeSpeed3   Mode = 0x04
	ModeSpeed4   Mode = 0x05
	ModeFeature1 Mode = 0x06

	ModeExtProgram1 Mode = 0x09
	ModeExtProgram2 Mode = 0x0A
	ModeExtProgram3 Mode = 0x0B
	ModeExtProgram4 Mode = 0x0C
)

// IsExternalProgram reports whether the mode selects an external program.
// External program modes must be re-asserted on a fixed cadence or the pump
// silently drops back to local control.
func (m Mode) IsExternalProgram() bool {
	return m >= ModeExtProgram1 && m <= ModeExtProgram4
}

// Register identifies a pump register for CmdWriteRegister.
type Register uint16

// Pump registers
const (
	RegSetRPM          Register = 0x02C4
	RegSetGPM          Register = 0x02E4
	RegExternalProgram Register = 0x0321

	RegProgram1RPM Register = 0x0327
	RegProgram2RPM Register = 0x0328
	RegProgram3RPM Register = 0x0329
	RegProgram4RPM Register = 0x032A
)

// External-program register values. Writing program n selects n*8; zero
// deselects.
const (
	ProgramOff uint16 = 0x0000
	Program1   uint16 = 0x0008
	Program2   uint16 = 0x0010
	Program3   uint16 = 0x0018
	Program4   uint16 = 0x0020
)

// RPM limits accepted by the pump drive.
const (
	MinRPM = 450
	MaxRPM = 3450
)

// Status response layout. The data section of a status response is
// StatusDataSize bytes, indexed by the status* offsets.
const (
	StatusDataSize = 15

	statusRun     = 0
	statusMode    = 1
	statusDrive   = 2
	statusPowerHi = 3
	statusPowerLo = 4
	statusRPMHi   = 5
	statusRPMLo   = 6
	statusGPM     = 7
	statusPPC     = 8
	statusError   = 10
	statusTimer   = 12
	statusHour    = 13
	statusMinute  = 14
)

// Link timing constants. The program repeat interval is a hard wire-protocol
// deadline: a pump in external-program mode that does not see the command
// re-issued within it reverts to local control.
const (
	ResponseTimeout       = 2000 * time.Millisecond
	StatusPollInterval    = 15000 * time.Millisecond
	ProgramRepeatInterval = 30000 * time.Millisecond
)
