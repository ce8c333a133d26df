// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pumpsim models a variable-speed pump as the other end of the
// wire: it answers status queries, acknowledges commands, ramps toward its
// target speed, and reverts to local control when the external-program
// repeat stops arriving. It drives any Bus, so the same model serves
// `aquastat simulate` on a real port and the in-memory pipe in tests.
package pumpsim

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

// Config holds the device model parameters.
type Config struct {
	Address byte

	// RampStep RPM per RampInterval toward the target speed.
	RampStep     uint16
	RampInterval time.Duration

	// RepeatTolerance is how long the pump waits for the external-program
	// command to be re-issued before dropping back to local control.
	RepeatTolerance time.Duration
}

// DefaultConfig models a pump at the default address that ramps 50 RPM per
// 100 ms and tolerates one missed repeat cycle.
func DefaultConfig() Config {
	return Config{
		Address:         pentair.DefaultPumpAddress,
		RampStep:        50,
		RampInterval:    100 * time.Millisecond,
		RepeatTolerance: pentair.ProgramRepeatInterval + 5*time.Second,
	}
}

// Pump is the simulated device. Not goroutine-safe; Run owns it, or a test
// drives HandleFrame and Tick directly.
type Pump struct {
	cfg Config
	dec *pentair.Decoder
	log zerolog.Logger

	remote  bool
	running bool
	mode    pentair.Mode
	err     byte

	targetRPM  uint16
	actualRPM  uint16
	programRPM [4]uint16

	activeProgram int // 1-4, 0 = none
	lastProgram   time.Time
	nextRamp      time.Time
}

// New creates a pump model in local control, stopped, with factory program
// speeds.
func New(cfg Config, log zerolog.Logger) *Pump {
	if cfg.RampStep == 0 {
		cfg.RampStep = 50
	}
	if cfg.RampInterval <= 0 {
		cfg.RampInterval = 100 * time.Millisecond
	}
	if cfg.RepeatTolerance <= 0 {
		cfg.RepeatTolerance = pentair.ProgramRepeatInterval + 5*time.Second
	}
	return &Pump{
		cfg:        cfg,
		dec:        pentair.NewDecoder(),
		log:        log.With().Str("component", "pumpsim").Logger(),
		mode:       pentair.ModeFilter,
		programRPM: [4]uint16{1500, 2350, 2750, 3110},
	}
}

// Remote reports whether the pump accepts bus control.
func (p *Pump) Remote() bool { return p.remote }

// Running reports whether the motor is commanded on.
func (p *Pump) Running() bool { return p.running }

// RPM returns the current (ramping) speed.
func (p *Pump) RPM() uint16 { return p.actualRPM }

// ActiveProgram returns the selected external program, 0 when none.
func (p *Pump) ActiveProgram() int { return p.activeProgram }

// HandleFrame processes one frame addressed to this pump and returns the
// frames to transmit in response. Broadcast frames are acted on but never
// answered; answering a broadcast would collide with every other device.
func (p *Pump) HandleFrame(f *pentair.Frame, now time.Time) []*pentair.Frame {
	if f.Destination() != p.cfg.Address && !f.IsBroadcast() {
		return nil
	}

	handled := true
	switch f.Command() {
	case pentair.CmdRemoteControl:
		if len(f.Data()) == 1 {
			p.remote = f.Data()[0] == pentair.ControlRemote
			p.log.Debug().Bool("remote", p.remote).Msg("control mode set")
		}

	case pentair.CmdRunStop:
		if len(f.Data()) == 1 {
			p.running = f.Data()[0] == pentair.RunStarted
			p.log.Debug().Bool("running", p.running).Msg("run state set")
		}

	case pentair.CmdSetMode:
		if len(f.Data()) == 1 {
			p.applyMode(pentair.Mode(f.Data()[0]), now)
		}

	case pentair.CmdWriteRegister:
		if reg, value, ok := pentair.RegisterFromFrame(f); ok {
			p.writeRegister(reg, value, now)
		}

	case pentair.CmdStatus:
		if f.IsBroadcast() {
			return nil
		}
		return []*pentair.Frame{
			pentair.NewFrame(f.Source(), p.cfg.Address, pentair.CmdStatus, p.status(now).StatusData()),
		}

	default:
		handled = false
	}

	if !handled || f.IsBroadcast() {
		return nil
	}
	// Acknowledge by echoing the command back to the sender.
	return []*pentair.Frame{
		pentair.NewFrame(f.Source(), p.cfg.Address, f.Command(), f.Data()),
	}
}

func (p *Pump) applyMode(mode pentair.Mode, now time.Time) {
	p.mode = mode
	if mode.IsExternalProgram() {
		p.activeProgram = int(mode-pentair.ModeExtProgram1) + 1
		p.targetRPM = p.programRPM[p.activeProgram-1]
		p.running = true
		p.lastProgram = now
		p.log.Debug().Int("program", p.activeProgram).Uint16("rpm", p.targetRPM).Msg("external program selected")
	} else {
		p.activeProgram = 0
	}
}

func (p *Pump) writeRegister(reg pentair.Register, value uint16, now time.Time) {
	switch reg {
	case pentair.RegSetRPM:
		p.targetRPM = value
	case pentair.RegExternalProgram:
		if value == pentair.ProgramOff {
			p.activeProgram = 0
		} else if n := int(value / 8); n >= 1 && n <= 4 {
			p.activeProgram = n
			p.targetRPM = p.programRPM[n-1]
			p.running = true
			p.lastProgram = now
		}
	case pentair.RegProgram1RPM, pentair.RegProgram2RPM, pentair.RegProgram3RPM, pentair.RegProgram4RPM:
		p.programRPM[reg-pentair.RegProgram1RPM] = value
	}
}

// Tick advances the speed ramp and the program-revert deadline to now.
func (p *Pump) Tick(now time.Time) {
	if p.activeProgram != 0 && now.Sub(p.lastProgram) > p.cfg.RepeatTolerance {
		p.log.Info().Int("program", p.activeProgram).Msg("program repeat missed, reverting to local control")
		p.activeProgram = 0
		p.remote = false
		p.running = false
		p.mode = pentair.ModeFilter
	}

	if p.nextRamp.IsZero() {
		p.nextRamp = now.Add(p.cfg.RampInterval)
		return
	}
	for !now.Before(p.nextRamp) {
		p.nextRamp = p.nextRamp.Add(p.cfg.RampInterval)
		p.ramp()
	}
}

func (p *Pump) ramp() {
	target := p.targetRPM
	if !p.running {
		target = 0
	}
	switch {
	case p.actualRPM < target:
		if target-p.actualRPM < p.cfg.RampStep {
			p.actualRPM = target
		} else {
			p.actualRPM += p.cfg.RampStep
		}
	case p.actualRPM > target:
		if p.actualRPM-target < p.cfg.RampStep {
			p.actualRPM = target
		} else {
			p.actualRPM -= p.cfg.RampStep
		}
	}
}

// status derives the full report from the model state. Power rises with
// the cube of speed, flow roughly linearly.
func (p *Pump) status(now time.Time) pentair.PumpStatus {
	rpm := float64(p.actualRPM)
	max := float64(pentair.MaxRPM)
	watts := uint16(1300 * (rpm / max) * (rpm / max) * (rpm / max))
	gpm := byte(110 * rpm / max)

	return pentair.PumpStatus{
		Valid:      true,
		Running:    p.running,
		Mode:       p.mode,
		DriveReady: true,
		Watts:      watts,
		RPM:        p.actualRPM,
		GPM:        gpm,
		ErrorCode:  p.err,
		ClockHour:  byte(now.Hour()),
		ClockMin:   byte(now.Minute()),
		LastUpdate: now,
	}
}

// Run services the bus until ctx is done.
func (p *Pump) Run(ctx context.Context, bus pumplink.Bus) error {
	buf := make([]byte, 128)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := bus.ReadAvailable(buf)
		if err != nil {
			if errors.Is(err, pumplink.ErrPipeClosed) {
				return err
			}
			p.log.Error().Err(err).Msg("bus read failed")
			p.Tick(time.Now())
			continue
		}

		if n > 0 {
			frames, errs := p.dec.Feed(buf[:n])
			for _, ferr := range errs {
				p.log.Debug().Err(ferr).Msg("link error")
			}
			for _, f := range frames {
				for _, resp := range p.HandleFrame(f, time.Now()) {
					wire, err := resp.Encode()
					if err != nil {
						continue
					}
					if _, err := bus.WriteFrame(wire); err != nil {
						p.log.Error().Err(err).Msg("bus write failed")
					}
				}
			}
		}

		p.Tick(time.Now())
	}
}
