// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import "bytes"

// DefaultMaxBuffer bounds the reassembly buffer. A stalled candidate frame
// can hold at most MaxFrameSize bytes, so the default leaves ample room for
// bursty reads on a busy bus.
const DefaultMaxBuffer = 4096

// Decoder reassembles frames from a continuous byte stream. The stream is
// shared with other bus devices, so the decoder tolerates garbage between
// frames, frames split across reads, and coincidental marker bytes inside
// unrelated data.
type Decoder struct {
	buf     []byte
	max     int
	skipped uint64
}

// NewDecoder creates a decoder with the default buffer limit.
func NewDecoder() *Decoder {
	return NewDecoderWithLimit(DefaultMaxBuffer)
}

// NewDecoderWithLimit creates a decoder whose accumulation buffer is bounded
// at max bytes. Limits below MinFrameSize are raised to MinFrameSize.
func NewDecoderWithLimit(max int) *Decoder {
	if max < MinFrameSize {
		max = MinFrameSize
	}
	return &Decoder{buf: make([]byte, 0, max), max: max}
}

// Reset clears the accumulation buffer and counters.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.skipped = 0
}

// Buffered returns the number of bytes awaiting reassembly.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Skipped returns the total number of bytes discarded while hunting for
// frame boundaries.
func (d *Decoder) Skipped() uint64 { return d.skipped }

// Feed appends p to the accumulation buffer and extracts every complete,
// checksum-verified frame now available, in stream order. Checksum failures
// resynchronize the scan one byte past the failed candidate's marker start,
// so a real frame hiding inside a bad candidate is still found. Errors
// (checksum mismatches, buffer overruns) are reported alongside whatever
// frames were recovered; none of them poison the decoder.
func (d *Decoder) Feed(p []byte) ([]*Frame, []error) {
	d.buf = append(d.buf, p...)

	var frames []*Frame
	var errs []error

	pos := 0
	for {
		idx := bytes.Index(d.buf[pos:], frameMarker)
		if idx < 0 {
			// No marker ahead. Keep a tail that could be a partial
			// marker, discard the rest.
			keep := len(d.buf) - (MarkerSize - 1)
			if keep > pos {
				d.skipped += uint64(keep - pos)
				pos = keep
			}
			break
		}

		start := pos + idx
		d.skipped += uint64(idx)
		pos = start

		avail := len(d.buf) - start
		if avail < MinFrameSize {
			break // wait for the rest of the header
		}

		total := MinFrameSize + int(d.buf[start+offLength])
		if avail < total {
			break // wait for the declared data and checksum
		}

		f, err := Decode(d.buf[start : start+total])
		if err != nil {
			errs = append(errs, err)
			d.skipped++
			pos = start + 1
			continue
		}

		frames = append(frames, f)
		pos = start + total
	}

	// Prune consumed bytes.
	if pos > 0 {
		n := copy(d.buf, d.buf[pos:])
		d.buf = d.buf[:n]
	}

	// Bound memory. Dropping from the front may destroy a stalled
	// candidate; the scan recovers at the next marker.
	if len(d.buf) > d.max {
		drop := len(d.buf) - d.max
		n := copy(d.buf, d.buf[drop:])
		d.buf = d.buf[:n]
		d.skipped += uint64(drop)
		errs = append(errs, &OverrunError{Dropped: drop})
	}

	return frames, errs
}

// FeedByte processes a single byte through the reassembler. It returns a
// completed frame, or nil if no frame completed on this byte. At most one
// frame can complete per byte; if the byte also exposed a bad candidate the
// frame wins and the resync is reflected in Skipped.
func (d *Decoder) FeedByte(b byte) (*Frame, error) {
	frames, errs := d.Feed([]byte{b})
	if len(frames) > 0 {
		return frames[0], nil
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return nil, nil
}
