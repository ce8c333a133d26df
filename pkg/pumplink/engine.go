// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumplink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/rs/zerolog"
)

// Config holds the scheduler parameters. The repeat interval is a hard
// wire-protocol deadline: a pump running an external program that does not
// see the selecting command re-issued within it reverts to local control.
type Config struct {
	OwnAddress  byte
	PumpAddress byte

	ResponseTimeout time.Duration
	RetryLimit      int
	PollInterval    time.Duration
	RepeatInterval  time.Duration

	ReadBuffer    int
	MaxReassembly int
}

// DefaultConfig returns the timings the protocol specifies and one retry.
func DefaultConfig() Config {
	return Config{
		OwnAddress:      pentair.DefaultRemoteAddress,
		PumpAddress:     pentair.DefaultPumpAddress,
		ResponseTimeout: pentair.ResponseTimeout,
		RetryLimit:      1,
		PollInterval:    pentair.StatusPollInterval,
		RepeatInterval:  pentair.ProgramRepeatInterval,
		ReadBuffer:      128,
		MaxReassembly:   pentair.DefaultMaxBuffer,
	}
}

// Request is one command submitted to the scheduler. Done, if set, fires
// with nil on acknowledgement or the final error on retry exhaustion.
type Request struct {
	Frame *pentair.Frame
	Done  func(error)
}

// pendingCommand is the single outstanding request the session tracks.
type pendingCommand struct {
	frame    *pentair.Frame
	wire     []byte
	sent     bool
	deadline time.Time
	attempts int
	done     func(error)
	isRepeat bool
}

// Engine is the session state machine for one pump on one bus. It tracks
// at most one outstanding request, enforces response timeout and retry,
// issues the periodic status poll, and re-asserts the external-program
// command on its cadence. All timing is deadline comparison against the
// time passed to Tick, so simulated clocks exercise every path.
type Engine struct {
	cfg   Config
	bus   Bus
	dec   *pentair.Decoder
	log   zerolog.Logger
	stats *Statistics

	// OnStatus fires after each status snapshot update; OnError reports
	// link errors (checksum noise, overruns, timeouts). Set both before
	// Run; they are called without the engine lock held.
	OnStatus func(pentair.PumpStatus)
	OnError  func(error)

	mu           sync.Mutex
	now          time.Time
	pending      *pendingCommand
	pollQueued   bool
	programCmd   *pentair.Frame
	programWire  []byte
	nextRepeat   time.Time
	lastActivity time.Time
	status       pentair.PumpStatus
}

// New creates an engine over bus. The bus is owned by the engine from
// this point; nothing else may read or write it.
func New(bus Bus, cfg Config, log zerolog.Logger) *Engine {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = pentair.ResponseTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = pentair.StatusPollInterval
	}
	if cfg.RepeatInterval <= 0 {
		cfg.RepeatInterval = pentair.ProgramRepeatInterval
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = 128
	}
	if cfg.MaxReassembly <= 0 {
		cfg.MaxReassembly = pentair.DefaultMaxBuffer
	}

	return &Engine{
		cfg:   cfg,
		bus:   bus,
		dec:   pentair.NewDecoderWithLimit(cfg.MaxReassembly),
		log:   log.With().Str("component", "engine").Logger(),
		stats: NewStatistics(),
		now:   time.Now(),
	}
}

// Stats returns the engine's statistics tracker.
func (e *Engine) Stats() *Statistics { return e.stats }

// OwnAddress returns the engine's bus identity.
func (e *Engine) OwnAddress() byte { return e.cfg.OwnAddress }

// PumpAddress returns the configured pump address.
func (e *Engine) PumpAddress() byte { return e.cfg.PumpAddress }

// Submit accepts a command for dispatch on the next tick. While a command
// is outstanding it returns ErrBusy, except for status queries, which
// queue behind the outstanding work. A command that moves the pump out of
// external-program operation disarms the repeat obligation atomically
// with its acceptance.
func (e *Engine) Submit(req Request) error {
	if req.Frame == nil {
		return ErrNoFrame
	}
	wire, err := req.Frame.Encode()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		if isPollFrame(req.Frame) {
			e.pollQueued = true
			return nil
		}
		return ErrBusy
	}

	if pentair.ChangesModeAwayFromProgram(req.Frame) && e.programCmd != nil {
		e.log.Debug().Msg("external-program repeat disarmed by mode change")
		e.programCmd = nil
		e.programWire = nil
	}

	e.pending = &pendingCommand{frame: req.Frame, wire: wire, done: req.Done}
	return nil
}

// CancelProgram disarms the external-program repeat obligation without
// sending anything.
func (e *Engine) CancelProgram() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.programCmd != nil {
		e.log.Debug().Msg("external-program repeat cancelled")
		e.programCmd = nil
		e.programWire = nil
	}
}

// ProgramActive reports whether the external-program repeat is armed.
func (e *Engine) ProgramActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.programCmd != nil
}

// Status returns a read-only snapshot of the last-known pump state.
func (e *Engine) Status() pentair.PumpStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Tick advances all deadlines to now: it dispatches the pending command,
// fires timeout/retry, re-issues the external-program command when due
// (ahead of any queued poll), and enqueues the idle status poll. Must be
// called at a bounded cadence; Run does so after every read.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	var callbacks []func()
	e.tickLocked(now, &callbacks)
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func (e *Engine) tickLocked(now time.Time, callbacks *[]func()) {
	e.now = now
	// The idle-poll clock starts on the first tick, not at construction.
	if e.lastActivity.IsZero() {
		e.lastActivity = now
	}

	if p := e.pending; p != nil {
		switch {
		case !p.sent:
			e.sendLocked(p, now, callbacks)
		case !now.Before(p.deadline):
			e.stats.addTimeout()
			if p.attempts <= e.cfg.RetryLimit {
				e.stats.addRetry()
				e.log.Warn().
					Uint8("command", p.frame.Command()).
					Int("attempt", p.attempts+1).
					Msg("response timeout, retrying")
				e.sendLocked(p, now, callbacks)
			} else {
				e.failPendingLocked(p, callbacks)
			}
		}
		return
	}

	// Idle. The program repeat outranks the poll: its failure has
	// behavioral consequences, the poll's does not.
	if e.programCmd != nil && !now.Before(e.nextRepeat) {
		e.log.Debug().Msg("re-issuing external-program command")
		p := &pendingCommand{frame: e.programCmd, wire: e.programWire, isRepeat: true}
		e.pending = p
		e.sendLocked(p, now, callbacks)
		return
	}

	if e.pollQueued || now.Sub(e.lastActivity) >= e.cfg.PollInterval {
		e.pollQueued = false
		e.lastActivity = now // pushes the next idle poll out one interval
		frame := pentair.NewStatusQuery(e.cfg.PumpAddress, e.cfg.OwnAddress)
		wire, _ := frame.Encode()
		p := &pendingCommand{frame: frame, wire: wire}
		e.pending = p
		e.sendLocked(p, now, callbacks)
	}
}

func (e *Engine) sendLocked(p *pendingCommand, now time.Time, callbacks *[]func()) {
	if _, err := e.bus.WriteFrame(p.wire); err != nil {
		e.log.Error().Err(err).Msg("bus write failed")
		e.reportErrorLocked(err, callbacks)
	} else {
		e.stats.addFrameSent(len(p.wire))
	}
	p.sent = true
	p.attempts++
	p.deadline = now.Add(e.cfg.ResponseTimeout)
}

func (e *Engine) failPendingLocked(p *pendingCommand, callbacks *[]func()) {
	err := &CommandError{Command: p.frame.Command(), Attempts: p.attempts, Err: ErrResponseTimeout}
	e.pending = nil
	e.stats.addCommandFailed()
	e.status.Stale = true

	e.log.Error().
		Uint8("command", p.frame.Command()).
		Int("attempts", p.attempts).
		Msg("command failed, status marked stale")

	if p.isRepeat {
		// The repeat obligation survives a failed attempt; try again after
		// a short back-off rather than a full interval, since the pump may
		// already be close to its revert deadline.
		e.nextRepeat = e.now.Add(e.cfg.ResponseTimeout)
	}

	if p.done != nil {
		done := p.done
		*callbacks = append(*callbacks, func() { done(err) })
	}
	e.reportErrorLocked(err, callbacks)
}

func (e *Engine) reportErrorLocked(err error, callbacks *[]func()) {
	if e.OnError != nil {
		onError := e.OnError
		*callbacks = append(*callbacks, func() { onError(err) })
	}
}

// HandleFrame feeds one decoded frame into the session. Frames not
// addressed to this engine (or broadcast), or not from the configured
// pump, are silently ignored; a shared bus carries other conversations.
func (e *Engine) HandleFrame(f *pentair.Frame) {
	e.mu.Lock()
	var callbacks []func()
	e.handleFrameLocked(f, &callbacks)
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func (e *Engine) handleFrameLocked(f *pentair.Frame, callbacks *[]func()) {
	if f.Destination() != e.cfg.OwnAddress && !f.IsBroadcast() {
		e.stats.addFrameIgnored()
		return
	}
	if f.Source() != e.cfg.PumpAddress {
		e.stats.addFrameIgnored()
		return
	}

	e.stats.addFrameReceived()
	e.lastActivity = e.now

	if f.IsStatusResponse() {
		status, err := pentair.ParseStatus(f.Data(), e.now)
		if err == nil {
			e.status = status
			e.stats.addStatusUpdate()
			if e.OnStatus != nil {
				onStatus := e.OnStatus
				snapshot := status
				*callbacks = append(*callbacks, func() { onStatus(snapshot) })
			}
		}
	}

	// The pump acknowledges by echoing the command id back to us.
	if p := e.pending; p != nil && p.sent && f.Command() == p.frame.Command() {
		e.pending = nil
		e.status.Stale = false

		if pentair.SelectsExternalProgram(p.frame) {
			e.programCmd = p.frame
			e.programWire = p.wire
			e.nextRepeat = e.now.Add(e.cfg.RepeatInterval)
			if !p.isRepeat {
				e.log.Info().Msg("external-program repeat armed")
			}
		}

		if p.done != nil {
			done := p.done
			*callbacks = append(*callbacks, func() { done(nil) })
		}
	}
}

// Run is the single-threaded cooperative loop: bounded read, reassemble,
// handle each frame in arrival order, then tick, until ctx is done. The
// read never blocks longer than the bus's configured timeout, so ticks
// happen at a bounded cadence with or without traffic.
func (e *Engine) Run(ctx context.Context) error {
	buf := make([]byte, e.cfg.ReadBuffer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := e.bus.ReadAvailable(buf)
		if err != nil {
			if errors.Is(err, ErrPipeClosed) {
				return err
			}
			e.log.Error().Err(err).Msg("bus read failed")
			if e.OnError != nil {
				e.OnError(err)
			}
			e.Tick(time.Now())
			continue
		}

		if n > 0 {
			e.stats.addBytesIn(n)
			frames, errs := e.dec.Feed(buf[:n])
			for _, ferr := range errs {
				e.recordLinkError(ferr)
				if e.OnError != nil {
					e.OnError(ferr)
				}
			}
			for _, f := range frames {
				e.HandleFrame(f)
			}
		}

		e.Tick(time.Now())
	}
}

func (e *Engine) recordLinkError(err error) {
	e.stats.AddLinkError(err)
	e.log.Debug().Err(err).Msg("link error")
}

// Do submits frame and waits for its acknowledgement or final failure.
// Convenience for one-shot callers; ErrBusy returns immediately.
func (e *Engine) Do(ctx context.Context, frame *pentair.Frame) error {
	result := make(chan error, 1)
	err := e.Submit(Request{Frame: frame, Done: func(err error) { result <- err }})
	if err != nil {
		return err
	}
	// Status queries queued behind outstanding work never fire Done; the
	// poll path sends its own frame without a callback.
	if isPollFrame(frame) {
		return nil
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isPollFrame reports whether the frame is a plain status query, the one
// request kind that queues instead of returning ErrBusy.
func isPollFrame(f *pentair.Frame) bool {
	return f.Command() == pentair.CmdStatus && len(f.Data()) == 0
}
