package pentair

import (
	"bytes"
	"time"
)

// frameMarker is the 4-byte synchronization sequence that begins every frame.
var frameMarker = []byte{PreambleByte0, PreambleByte1, PreambleByte2, StartByte}

// Frame represents one decoded protocol frame.
type Frame struct {
	version     byte
	destination byte
	source      byte
	command     byte
	data        []byte
	checksum    uint16
	timestamp   time.Time
}

// NewFrame creates a frame ready for encoding. The version is always
// ProtocolVersion; the checksum is computed during Encode.
func NewFrame(destination, source, command byte, data []byte) *Frame {
	return &Frame{
		version:     ProtocolVersion,
		destination: destination,
		source:      source,
		command:     command,
		data:        data,
		timestamp:   time.Now(),
	}
}

// Version returns the protocol version byte.
func (f *Frame) Version() byte { return f.version }

// Destination returns the destination address byte.
func (f *Frame) Destination() byte { return f.destination }

// Source returns the source address byte.
func (f *Frame) Source() byte { return f.source }

// Command returns the command identifier byte.
func (f *Frame) Command() byte { return f.command }

// Data returns the frame's data section. The slice is not copied.
func (f *Frame) Data() []byte { return f.data }

// Checksum returns the frame's 16-bit checksum as carried on the wire.
func (f *Frame) Checksum() uint16 { return f.checksum }

// Timestamp returns the frame's decode (or creation) timestamp.
func (f *Frame) Timestamp() time.Time { return f.timestamp }

// IsBroadcast reports whether the frame is addressed to all devices.
func (f *Frame) IsBroadcast() bool { return f.destination == AddressBroadcast }

// IsStatusResponse reports whether the frame is a status response carrying a
// full status record.
func (f *Frame) IsStatusResponse() bool {
	return f.command == CmdStatus && len(f.data) == StatusDataSize
}

// Encode serializes the frame to wire format.
func (f *Frame) Encode() ([]byte, error) {
	return Encode(f.destination, f.source, f.command, f.data)
}

// Encode builds a complete wire frame: marker, header, data, and big-endian
// checksum. Fails with ErrPayloadTooLarge if data exceeds MaxDataSize bytes.
func Encode(destination, source, command byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, ErrPayloadTooLarge
	}

	frame := make([]byte, 0, MinFrameSize+len(data))
	frame = append(frame, frameMarker...)
	frame = append(frame, ProtocolVersion, destination, source, command, byte(len(data)))
	frame = append(frame, data...)

	// Checksum span: version byte through last data byte, plus the A5 start
	// byte that the marker contributes.
	sum := Checksum(frame[MarkerSize-1 : len(frame)])
	frame = append(frame, byte(sum>>8), byte(sum))

	return frame, nil
}

// Decode parses the frame beginning at buf[0]. The caller must have located
// the 4-byte marker there; bytes past the end of the frame are ignored.
// Returns ErrTruncated when the buffer holds fewer bytes than the declared
// length requires, or a ChecksumError when the transmitted checksum
// disagrees with the computed one.
func Decode(buf []byte) (*Frame, error) {
	if len(buf) < MarkerSize || !bytes.Equal(buf[:MarkerSize], frameMarker) {
		return nil, ErrNoMarker
	}
	if len(buf) < MinFrameSize {
		return nil, ErrTruncated
	}

	dataLen := int(buf[offLength])
	total := MinFrameSize + dataLen
	if len(buf) < total {
		return nil, ErrTruncated
	}

	carried := uint16(buf[total-2])<<8 | uint16(buf[total-1])
	computed := Checksum(buf[MarkerSize-1 : total-ChecksumSize])
	if carried != computed {
		return nil, &ChecksumError{Got: carried, Want: computed}
	}

	data := make([]byte, dataLen)
	copy(data, buf[offData:offData+dataLen])

	return &Frame{
		version:     buf[offVersion],
		destination: buf[offDst],
		source:      buf[offSrc],
		command:     buf[offCommand],
		data:        data,
		checksum:    carried,
		timestamp:   time.Now(),
	}, nil
}
