// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pumplink drives one Pentair-style RS-485 bus: the half-duplex
// serial transport and the command scheduler that owns it. Frame encoding
// and reassembly live in pkg/pentair; pumplink moves bytes and time.
package pumplink

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Bus is the half-duplex transport owned by exactly one logical flow.
// WriteFrame handles the full transmit turnaround; ReadAvailable is a
// bounded-timeout read where zero bytes is a normal outcome. Concurrent
// use is a caller contract violation, not runtime-detected.
type Bus interface {
	WriteFrame(p []byte) (int, error)
	ReadAvailable(p []byte) (int, error)
	Close() error
}

// SerialConfig holds the physical port parameters. The guard intervals
// bracket every transmission while the driver-enable line is asserted, so
// the transceiver is settled before the first start bit and the last stop
// bit has left the wire before the line returns to listen.
type SerialConfig struct {
	Port        string
	Baud        int
	PreTXGuard  time.Duration
	PostTXGuard time.Duration
	ReadTimeout time.Duration
}

// DefaultSerialConfig returns the standard Pentair bus parameters:
// 9600 8N1 with short turnaround guards and a 100 ms bounded read.
func DefaultSerialConfig(port string) SerialConfig {
	return SerialConfig{
		Port:        port,
		Baud:        9600,
		PreTXGuard:  10 * time.Microsecond,
		PostTXGuard: 10 * time.Microsecond,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// SerialBus implements Bus over a physical serial port, using RTS as the
// RS-485 driver-enable line.
type SerialBus struct {
	port serial.Port
	cfg  SerialConfig
}

// OpenSerialBus opens the port in listen mode (driver-enable deasserted).
func OpenSerialBus(cfg SerialConfig) (*SerialBus, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = 9600
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}
	if err := port.SetRTS(false); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to deassert driver-enable on %s: %w", cfg.Port, err)
	}

	return &SerialBus{port: port, cfg: cfg}, nil
}

// WriteFrame performs the transmit turnaround: assert driver-enable, wait
// the pre-transmit guard, write everything, block until the output buffer
// drains, wait the post-transmit guard, deassert. The line is back in
// listen mode when WriteFrame returns, whatever the error.
func (b *SerialBus) WriteFrame(p []byte) (int, error) {
	if err := b.port.SetRTS(true); err != nil {
		return 0, fmt.Errorf("assert driver-enable: %w", err)
	}
	time.Sleep(b.cfg.PreTXGuard)

	n, err := b.port.Write(p)
	if err == nil && n < len(p) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(p))
	}
	if err == nil {
		err = b.port.Drain()
	}

	time.Sleep(b.cfg.PostTXGuard)
	if rtsErr := b.port.SetRTS(false); rtsErr != nil && err == nil {
		err = fmt.Errorf("deassert driver-enable: %w", rtsErr)
	}

	return n, err
}

// ReadAvailable reads whatever arrives within the configured timeout.
// Returns 0, nil when nothing arrived; partial reads are normal.
func (b *SerialBus) ReadAvailable(p []byte) (int, error) {
	return b.port.Read(p)
}

// Close releases the port.
func (b *SerialBus) Close() error {
	return b.port.Close()
}

// ListPorts enumerates the serial ports visible to the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
