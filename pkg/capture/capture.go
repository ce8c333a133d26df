// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture reads and writes bus capture files: a CBOR stream of
// timestamped raw byte chunks, one header record followed by data records.
// The same files feed `aquastat replay` and test fixtures.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a capture file's header record.
const Magic = "aquastat-capture"

// FormatVersion is bumped when the record layout changes.
const FormatVersion = 1

// Direction of a captured chunk relative to this host.
type Direction uint8

// Chunk directions
const (
	DirRX Direction = 0
	DirTX Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirRX:
		return "rx"
	case DirTX:
		return "tx"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

// Header is the first record of every capture file.
type Header struct {
	Magic   string `cbor:"magic"`
	Version int    `cbor:"version"`
	Started int64  `cbor:"started"` // unix microseconds
	Port    string `cbor:"port,omitempty"`
}

// Record is one captured chunk. T is microseconds since the capture
// started, so files are position-independent in wall time.
type Record struct {
	T    int64     `cbor:"t"`
	Dir  Direction `cbor:"dir"`
	Data []byte    `cbor:"data"`
}

// At returns the wall-clock time of the record given its file's header.
func (r Record) At(h Header) time.Time {
	return time.UnixMicro(h.Started + r.T)
}

// ErrBadHeader is returned when a file does not start with a capture header.
var ErrBadHeader = errors.New("capture: not a capture file")

// Writer appends capture records to a stream.
type Writer struct {
	enc     *cbor.Encoder
	started time.Time
}

// NewWriter writes the header record and returns a writer whose record
// timestamps are relative to now.
func NewWriter(w io.Writer, port string, now time.Time) (*Writer, error) {
	enc := cbor.NewEncoder(w)
	hdr := Header{
		Magic:   Magic,
		Version: FormatVersion,
		Started: now.UnixMicro(),
		Port:    port,
	}
	if err := enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}
	return &Writer{enc: enc, started: now}, nil
}

// Append records one chunk. Empty chunks are skipped.
func (w *Writer) Append(dir Direction, data []byte, at time.Time) error {
	if len(data) == 0 {
		return nil
	}
	rec := Record{
		T:    at.Sub(w.started).Microseconds(),
		Dir:  dir,
		Data: data,
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("capture: write record: %w", err)
	}
	return nil
}

// Reader iterates the records of a capture stream.
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader validates the header record and positions the reader at the
// first data record.
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if hdr.Magic != Magic {
		return nil, ErrBadHeader
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("capture: unsupported format version %d", hdr.Version)
	}
	return &Reader{dec: dec, header: hdr}, nil
}

// Header returns the file's header record.
func (r *Reader) Header() Header { return r.header }

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: read record: %w", err)
	}
	return rec, nil
}
