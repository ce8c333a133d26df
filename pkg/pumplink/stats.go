// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumplink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/aquastat/pkg/pentair"
)

// Statistics tracks link traffic and error counters. The engine loop
// increments them; TUI, metrics, and the stats ticker read snapshots.
type Statistics struct {
	mu    sync.Mutex
	start time.Time

	framesReceived uint64
	framesSent     uint64
	framesIgnored  uint64
	bytesIn        uint64
	bytesOut       uint64
	checksumErrors uint64
	overruns       uint64
	timeouts       uint64
	retries        uint64
	commandsFailed uint64
	statusUpdates  uint64
}

// StatsSnapshot is a point-in-time copy of the counters with derived rates.
type StatsSnapshot struct {
	Elapsed        time.Duration
	FramesReceived uint64
	FramesSent     uint64
	FramesIgnored  uint64
	BytesIn        uint64
	BytesOut       uint64
	ChecksumErrors uint64
	Overruns       uint64
	Timeouts       uint64
	Retries        uint64
	CommandsFailed uint64
	StatusUpdates  uint64

	FrameRate float64 // received frames/sec
	ErrorRate float64 // link errors/sec
}

// NewStatistics creates a statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{start: time.Now()}
}

func (s *Statistics) addFrameReceived() {
	s.mu.Lock()
	s.framesReceived++
	s.mu.Unlock()
}

func (s *Statistics) addFrameSent(bytes int) {
	s.mu.Lock()
	s.framesSent++
	s.bytesOut += uint64(bytes)
	s.mu.Unlock()
}

func (s *Statistics) addBytesIn(n int) {
	s.mu.Lock()
	s.bytesIn += uint64(n)
	s.mu.Unlock()
}

func (s *Statistics) addFrameIgnored() {
	s.mu.Lock()
	s.framesIgnored++
	s.mu.Unlock()
}

func (s *Statistics) addChecksumError() {
	s.mu.Lock()
	s.checksumErrors++
	s.mu.Unlock()
}

func (s *Statistics) addOverrun() {
	s.mu.Lock()
	s.overruns++
	s.mu.Unlock()
}

func (s *Statistics) addTimeout() {
	s.mu.Lock()
	s.timeouts++
	s.mu.Unlock()
}

func (s *Statistics) addRetry() {
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

func (s *Statistics) addCommandFailed() {
	s.mu.Lock()
	s.commandsFailed++
	s.mu.Unlock()
}

func (s *Statistics) addStatusUpdate() {
	s.mu.Lock()
	s.statusUpdates++
	s.mu.Unlock()
}

// AddBytesIn counts raw bytes read by an external feeder, like the bus
// monitor, which tracks traffic without an engine.
func (s *Statistics) AddBytesIn(n int) { s.addBytesIn(n) }

// AddFrameReceived counts one decoded frame from an external feeder.
func (s *Statistics) AddFrameReceived() { s.addFrameReceived() }

// AddFrameIgnored counts one frame dropped by filtering.
func (s *Statistics) AddFrameIgnored() { s.addFrameIgnored() }

// AddLinkError classifies a reassembly error into its counter.
func (s *Statistics) AddLinkError(err error) {
	switch {
	case errors.Is(err, pentair.ErrChecksumMismatch):
		s.addChecksumError()
	case errors.Is(err, pentair.ErrBufferOverrun):
		s.addOverrun()
	}
}

// Snapshot copies the counters and computes rates.
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.start)
	snap := StatsSnapshot{
		Elapsed:        elapsed,
		FramesReceived: s.framesReceived,
		FramesSent:     s.framesSent,
		FramesIgnored:  s.framesIgnored,
		BytesIn:        s.bytesIn,
		BytesOut:       s.bytesOut,
		ChecksumErrors: s.checksumErrors,
		Overruns:       s.overruns,
		Timeouts:       s.timeouts,
		Retries:        s.retries,
		CommandsFailed: s.commandsFailed,
		StatusUpdates:  s.statusUpdates,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		snap.FrameRate = float64(s.framesReceived) / secs
		errorCount := s.checksumErrors + s.overruns + s.timeouts
		snap.ErrorRate = float64(errorCount) / secs
	}
	return snap
}

// Reset clears all counters and restarts the clock.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = time.Now()
	s.framesReceived = 0
	s.framesSent = 0
	s.framesIgnored = 0
	s.bytesIn = 0
	s.bytesOut = 0
	s.checksumErrors = 0
	s.overruns = 0
	s.timeouts = 0
	s.retries = 0
	s.commandsFailed = 0
	s.statusUpdates = 0
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", snap.Elapsed.Seconds())
	result += fmt.Sprintf("Frames RX:       %8d\n", snap.FramesReceived)
	result += fmt.Sprintf("Frames TX:       %8d\n", snap.FramesSent)
	result += fmt.Sprintf("Bytes In/Out:    %8d / %d\n", snap.BytesIn, snap.BytesOut)
	if snap.FramesIgnored > 0 {
		result += fmt.Sprintf("Ignored (addr):  %8d\n", snap.FramesIgnored)
	}
	if snap.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", snap.ChecksumErrors)
	}
	if snap.Overruns > 0 {
		result += fmt.Sprintf("Buffer Overruns: %8d\n", snap.Overruns)
	}
	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (retries %d, failed %d)\n",
			snap.Timeouts, snap.Retries, snap.CommandsFailed)
	}
	result += fmt.Sprintf("Status Updates:  %8d\n", snap.StatusUpdates)
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "=====================================\n"

	return result
}
