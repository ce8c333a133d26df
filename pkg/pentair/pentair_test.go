// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_Empty(t *testing.T) {
	if sum := Checksum(nil); sum != 0 {
		t.Errorf("Checksum of empty data should be 0, got 0x%04X", sum)
	}
}

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "status query span",
			data:     []byte{0xA5, 0x00, 0x60, 0x20, 0x07, 0x00},
			expected: 0x012C,
		},
		{
			name:     "single byte",
			data:     []byte{0xA5},
			expected: 0x00A5,
		},
		{
			name:     "16-bit wraparound",
			data:     bytes.Repeat([]byte{0xFF}, 258), // 258*255 = 0x100FE
			expected: 0x00FE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := Checksum(tt.data)
			if sum != tt.expected {
				t.Errorf("Checksum mismatch: expected 0x%04X, got 0x%04X", tt.expected, sum)
			}
		})
	}
}

// ============================================================
// Encode Tests
// ============================================================

func TestEncode_StatusQueryVector(t *testing.T) {
	// The canonical frame: status query to pump 0x60 from remote 0x20.
	frame, err := Encode(0x60, 0x20, CmdStatus, nil)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	expected := []byte{0xFF, 0x00, 0xFF, 0xA5, 0x00, 0x60, 0x20, 0x07, 0x00, 0x01, 0x2C}
	if !bytes.Equal(frame, expected) {
		t.Errorf("Encoded frame mismatch:\n  expected % X\n  got      % X", expected, frame)
	}
}

func TestEncode_WithData(t *testing.T) {
	data := []byte{0x02, 0xC4, 0x05, 0xDC} // SET_RPM = 1500
	frame, err := Encode(0x60, 0x20, CmdWriteRegister, data)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	if len(frame) != MinFrameSize+len(data) {
		t.Errorf("Frame length: expected %d, got %d", MinFrameSize+len(data), len(frame))
	}
	if frame[8] != byte(len(data)) {
		t.Errorf("Length byte: expected %d, got %d", len(data), frame[8])
	}

	// Checksum spans A5 through the last data byte.
	sum := Checksum(frame[3 : len(frame)-2])
	carried := uint16(frame[len(frame)-2])<<8 | uint16(frame[len(frame)-1])
	if carried != sum {
		t.Errorf("Checksum: expected 0x%04X, got 0x%04X", sum, carried)
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := Encode(0x60, 0x20, CmdWriteRegister, make([]byte, 256))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncode_MaxPayload(t *testing.T) {
	frame, err := Encode(0x60, 0x20, CmdWriteRegister, make([]byte, 255))
	if err != nil {
		t.Fatalf("255-byte payload should encode: %v", err)
	}
	if len(frame) != MaxFrameSize {
		t.Errorf("Frame length: expected %d, got %d", MaxFrameSize, len(frame))
	}
}

// ============================================================
// Decode Tests
// ============================================================

func TestDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		dst  byte
		src  byte
		cmd  byte
		data []byte
	}{
		{"status query", 0x60, 0x20, CmdStatus, nil},
		{"remote control", 0x60, 0x20, CmdRemoteControl, []byte{0xFF}},
		{"run start", 0x60, 0x20, CmdRunStop, []byte{0x0A}},
		{"register write", 0x60, 0x20, CmdWriteRegister, []byte{0x03, 0x21, 0x00, 0x08}},
		{"broadcast", AddressBroadcast, 0x10, CmdStatus, nil},
		{"status response", 0x20, 0x60, CmdStatus, make([]byte, StatusDataSize)},
		{"max payload", 0x20, 0x60, CmdStatus, bytes.Repeat([]byte{0x5A}, 255)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.dst, tt.src, tt.cmd, tt.data)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}

			frame, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}

			if frame.Destination() != tt.dst {
				t.Errorf("Destination: expected 0x%02X, got 0x%02X", tt.dst, frame.Destination())
			}
			if frame.Source() != tt.src {
				t.Errorf("Source: expected 0x%02X, got 0x%02X", tt.src, frame.Source())
			}
			if frame.Command() != tt.cmd {
				t.Errorf("Command: expected 0x%02X, got 0x%02X", tt.cmd, frame.Command())
			}
			if !bytes.Equal(frame.Data(), tt.data) && len(tt.data) > 0 {
				t.Errorf("Data mismatch: expected % X, got % X", tt.data, frame.Data())
			}
			if frame.Version() != ProtocolVersion {
				t.Errorf("Version: expected 0x%02X, got 0x%02X", ProtocolVersion, frame.Version())
			}
		})
	}
}

func TestDecode_SingleByteCorruption(t *testing.T) {
	// Flipping any byte outside the checksum must produce a checksum
	// mismatch (or a marker failure for the first four bytes).
	encoded, err := Encode(0x60, 0x20, CmdWriteRegister, []byte{0x02, 0xC4, 0x05, 0xDC})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	for i := 0; i < len(encoded)-ChecksumSize; i++ {
		corrupted := make([]byte, len(encoded))
		copy(corrupted, encoded)
		corrupted[i] ^= 0x01

		_, err := Decode(corrupted)
		if err == nil {
			t.Errorf("Byte %d: corruption not detected", i)
			continue
		}
		if i >= MarkerSize {
			// Length-byte corruption may declare a longer frame than the
			// buffer holds; that surfaces as truncation, not checksum.
			if i == offLength {
				if !errors.Is(err, ErrChecksumMismatch) && !errors.Is(err, ErrTruncated) {
					t.Errorf("Byte %d: expected checksum or truncation error, got %v", i, err)
				}
				continue
			}
			if !errors.Is(err, ErrChecksumMismatch) {
				t.Errorf("Byte %d: expected ErrChecksumMismatch, got %v", i, err)
			}
		}
	}
}

func TestDecode_ChecksumErrorDetail(t *testing.T) {
	encoded, _ := Encode(0x60, 0x20, CmdStatus, nil)
	encoded[len(encoded)-1] ^= 0xFF

	_, err := Decode(encoded)
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected *ChecksumError, got %T (%v)", err, err)
	}
	if ce.Want != 0x012C {
		t.Errorf("Computed checksum: expected 0x012C, got 0x%04X", ce.Want)
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Error("ChecksumError should unwrap to ErrChecksumMismatch")
	}
}

func TestDecode_Truncated(t *testing.T) {
	encoded, _ := Encode(0x60, 0x20, CmdWriteRegister, []byte{0x02, 0xC4, 0x05, 0xDC})

	for cut := 1; cut < len(encoded); cut++ {
		_, err := Decode(encoded[:cut])
		if err == nil {
			t.Errorf("Truncation at %d bytes not detected", cut)
			continue
		}
		if cut >= MarkerSize && !errors.Is(err, ErrTruncated) {
			t.Errorf("Cut at %d: expected ErrTruncated, got %v", cut, err)
		}
	}
}

func TestDecode_NoMarker(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A})
	if !errors.Is(err, ErrNoMarker) {
		t.Errorf("Expected ErrNoMarker, got %v", err)
	}
}

func TestDecode_TrailingBytesIgnored(t *testing.T) {
	encoded, _ := Encode(0x60, 0x20, CmdStatus, nil)
	padded := append(append([]byte{}, encoded...), 0xDE, 0xAD, 0xBE, 0xEF)

	frame, err := Decode(padded)
	if err != nil {
		t.Fatalf("Decode with trailing bytes should succeed: %v", err)
	}
	if frame.Command() != CmdStatus {
		t.Errorf("Command: expected 0x%02X, got 0x%02X", CmdStatus, frame.Command())
	}
}

// ============================================================
// Frame accessor Tests
// ============================================================

func TestFrame_IsStatusResponse(t *testing.T) {
	status := PumpStatus{Running: true, RPM: 2400}
	encoded, _ := Encode(0x20, 0x60, CmdStatus, status.StatusData())
	frame, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !frame.IsStatusResponse() {
		t.Error("15-byte status frame should be a status response")
	}

	query := NewStatusQuery(0x60, 0x20)
	if query.IsStatusResponse() {
		t.Error("Zero-data status frame is a request, not a response")
	}
}

func TestFrame_IsBroadcast(t *testing.T) {
	if !NewFrame(AddressBroadcast, 0x10, CmdStatus, nil).IsBroadcast() {
		t.Error("Frame to 0x0F should be broadcast")
	}
	if NewFrame(0x60, 0x10, CmdStatus, nil).IsBroadcast() {
		t.Error("Frame to 0x60 should not be broadcast")
	}
}

func TestAddressRanges(t *testing.T) {
	if !IsBroadcastAddress(0x0F) || IsBroadcastAddress(0x10) {
		t.Error("Broadcast range wrong")
	}
	if !IsControllerAddress(0x10) || !IsControllerAddress(0x1F) || IsControllerAddress(0x20) {
		t.Error("Controller range wrong")
	}
	if !IsRemoteAddress(0x20) || !IsRemoteAddress(0x2F) || IsRemoteAddress(0x30) {
		t.Error("Remote range wrong")
	}
	if !IsPumpAddress(0x60) || !IsPumpAddress(0x6F) || IsPumpAddress(0x70) {
		t.Error("Pump range wrong")
	}
}

// ============================================================
// Status parse Tests
// ============================================================

func TestParseStatus_RoundTrip(t *testing.T) {
	now := time.Now()
	original := PumpStatus{
		Valid:      true,
		Running:    true,
		Mode:       ModeExtProgram2,
		DriveReady: true,
		Watts:      1250,
		RPM:        2750,
		GPM:        45,
		PPC:        0,
		ErrorCode:  0,
		TimerMin:   30,
		ClockHour:  14,
		ClockMin:   5,
		LastUpdate: now,
	}

	parsed, err := ParseStatus(original.StatusData(), now)
	if err != nil {
		t.Fatalf("ParseStatus error: %v", err)
	}
	if parsed != original {
		t.Errorf("Round trip mismatch:\n  expected %+v\n  got      %+v", original, parsed)
	}
}

func TestParseStatus_WrongLength(t *testing.T) {
	_, err := ParseStatus(make([]byte, 14), time.Now())
	if err == nil {
		t.Error("14-byte status data should fail")
	}
}

func TestParseStatus_FieldDecoding(t *testing.T) {
	data := []byte{
		RunStarted,     // run
		byte(ModeManual), // mode
		DriveReady,     // drive
		0x04, 0xE2,     // power = 1250 W
		0x0A, 0xBE,     // rpm = 2750
		45,             // gpm
		0,              // ppc
		0,              // reserved
		0x02,           // error code
		0,              // reserved
		30,             // timer
		14, 5,          // clock
	}

	status, err := ParseStatus(data, time.Now())
	if err != nil {
		t.Fatalf("ParseStatus error: %v", err)
	}
	if !status.Running || status.Mode != ModeManual || !status.DriveReady {
		t.Errorf("State fields wrong: %+v", status)
	}
	if status.Watts != 1250 || status.RPM != 2750 || status.GPM != 45 {
		t.Errorf("Numeric fields wrong: watts=%d rpm=%d gpm=%d", status.Watts, status.RPM, status.GPM)
	}
	if status.ErrorCode != 0x02 || status.TimerMin != 30 || status.ClockHour != 14 || status.ClockMin != 5 {
		t.Errorf("Trailing fields wrong: %+v", status)
	}
}
