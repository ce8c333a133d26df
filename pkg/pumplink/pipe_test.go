// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumplink

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// ============================================================
// Pipe Bus
// ============================================================

func TestPipeRoundTrip(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()

	payload := []byte{0xFF, 0x00, 0xFF, 0xA5, 0x00, 0x60, 0x20, 0x07, 0x00, 0x01, 0x2C}
	n, err := a.WriteFrame(payload)
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("wrote %d bytes, want %d", n, len(payload))
	}

	buf := make([]byte, 64)
	n, err = b.ReadAvailable(buf)
	if err != nil {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("read % X, want % X", buf[:n], payload)
	}
}

func TestPipeReadTimeout(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	b.ReadTimeout = 5 * time.Millisecond

	start := time.Now()
	n, err := b.ReadAvailable(make([]byte, 8))
	if err != nil {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if n != 0 {
		t.Fatalf("read %d bytes from an idle pipe", n)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("timeout read took far longer than ReadTimeout")
	}
}

func TestPipeShortRead(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()

	if _, err := a.WriteFrame([]byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	buf := make([]byte, 2)
	n, err := b.ReadAvailable(buf)
	if err != nil || n != 2 {
		t.Fatalf("first read: n=%d err=%v", n, err)
	}
	if !bytes.Equal(buf, []byte{1, 2}) {
		t.Fatalf("first read got % X", buf)
	}

	n, err = b.ReadAvailable(buf)
	if err != nil || n != 2 {
		t.Fatalf("second read: n=%d err=%v", n, err)
	}
	if !bytes.Equal(buf, []byte{3, 4}) {
		t.Fatalf("second read got % X", buf)
	}
}

func TestPipeClose(t *testing.T) {
	a, b := NewPipe()
	a.Close()

	if _, err := a.WriteFrame([]byte{1}); !errors.Is(err, ErrPipeClosed) {
		t.Fatalf("write after close: %v", err)
	}
	if _, err := b.ReadAvailable(make([]byte, 8)); !errors.Is(err, ErrPipeClosed) {
		t.Fatalf("read after close: %v", err)
	}
}

func TestPipeWakesBlockedReader(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	b.ReadTimeout = time.Second

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 8)
		n, err := b.ReadAvailable(buf)
		if err != nil {
			got <- nil
			return
		}
		got <- buf[:n]
	}()

	time.Sleep(10 * time.Millisecond)
	if _, err := a.WriteFrame([]byte{0xA5}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case data := <-got:
		if !bytes.Equal(data, []byte{0xA5}) {
			t.Fatalf("reader got % X", data)
		}
	case <-time.After(time.Second):
		t.Fatal("reader never woke up")
	}
}
