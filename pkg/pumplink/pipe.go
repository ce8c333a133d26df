// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumplink

import (
	"errors"
	"sync"
	"time"
)

// ErrPipeClosed is returned once either end of an in-memory pipe closes.
var ErrPipeClosed = errors.New("pumplink: pipe closed")

// PipeBus is one end of an in-memory half-duplex link. Bytes written to
// one end become readable at the other, with the same bounded-read
// semantics as the serial transport. It backs the pump simulator and the
// engine tests, where two bus owners share a wire without hardware.
type PipeBus struct {
	mu      sync.Mutex
	arrived *sync.Cond
	inbox   []byte
	closed  bool
	peer    *PipeBus

	// ReadTimeout bounds ReadAvailable, mirroring SerialConfig.
	ReadTimeout time.Duration
}

// NewPipe creates a connected pair of in-memory bus ends.
func NewPipe() (*PipeBus, *PipeBus) {
	a := &PipeBus{ReadTimeout: 10 * time.Millisecond}
	b := &PipeBus{ReadTimeout: 10 * time.Millisecond}
	a.arrived = sync.NewCond(&a.mu)
	b.arrived = sync.NewCond(&b.mu)
	a.peer, b.peer = b, a
	return a, b
}

// WriteFrame delivers p to the peer's inbox. There is no turnaround to
// model; the in-memory wire never collides.
func (p *PipeBus) WriteFrame(data []byte) (int, error) {
	// Close marks both ends, so the peer's flag covers ours too.
	peer := p.peer
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return 0, ErrPipeClosed
	}
	peer.inbox = append(peer.inbox, data...)
	peer.arrived.Broadcast()
	return len(data), nil
}

// ReadAvailable returns whatever the peer has written, waiting up to
// ReadTimeout for the first byte. Returns 0, nil on timeout.
func (p *PipeBus) ReadAvailable(buf []byte) (int, error) {
	deadline := time.Now().Add(p.ReadTimeout)

	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.inbox) == 0 {
		if p.closed {
			return 0, ErrPipeClosed
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		// Cond has no deadline wait; poke the waiter periodically.
		timer := time.AfterFunc(remaining, func() {
			p.mu.Lock()
			p.arrived.Broadcast()
			p.mu.Unlock()
		})
		p.arrived.Wait()
		timer.Stop()
	}

	n := copy(buf, p.inbox)
	p.inbox = p.inbox[n:]
	return n, nil
}

// Close shuts down this end; the peer's reads fail afterwards.
func (p *PipeBus) Close() error {
	for _, end := range []*PipeBus{p, p.peer} {
		end.mu.Lock()
		end.closed = true
		end.arrived.Broadcast()
		end.mu.Unlock()
	}
	return nil
}
