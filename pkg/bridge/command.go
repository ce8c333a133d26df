// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Thermoquad/aquastat/pkg/pentair"
)

// Command names accepted on the cmd topic.
const (
	CmdNameFullStart = "fullstart"
	CmdNameFullStop  = "fullstop"
	CmdNameStart     = "start"
	CmdNameStop      = "stop"
	CmdNameRPM       = "rpm"
	CmdNameRemote    = "remote"
	CmdNameLocal     = "local"
	CmdNameQuery     = "query"
	CmdNameProgram   = "program"
)

// Command is one decoded cmd-topic payload.
type Command struct {
	Name    string `json:"command"`
	RPM     int    `json:"rpm,omitempty"`
	Program int    `json:"program,omitempty"`
}

// ErrUnknownCommand is returned for command names the bridge does not know.
var ErrUnknownCommand = errors.New("bridge: unknown command")

// ParseCommand decodes a cmd-topic JSON payload.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("bridge: parse command: %w", err)
	}
	if cmd.Name == "" {
		return Command{}, errors.New("bridge: missing command field")
	}
	return cmd, nil
}

// ClampRPM forces rpm into the range the pump drive accepts.
func ClampRPM(rpm int) uint16 {
	if rpm < pentair.MinRPM {
		return pentair.MinRPM
	}
	if rpm > pentair.MaxRPM {
		return pentair.MaxRPM
	}
	return uint16(rpm)
}

// Plan expands the command into the frame sequence to submit, in order.
// RPM values are clamped rather than rejected; a dashboard slider at zero
// should give the slowest speed, not an error.
func (c Command) Plan(pump, src byte) ([]*pentair.Frame, error) {
	switch c.Name {
	case CmdNameFullStart:
		rpm, err := pentair.NewSetRPM(pump, src, ClampRPM(c.RPM))
		if err != nil {
			return nil, err
		}
		return []*pentair.Frame{
			pentair.NewControlCommand(pump, src, true),
			pentair.NewRunCommand(pump, src, true),
			rpm,
		}, nil

	case CmdNameFullStop:
		return []*pentair.Frame{
			pentair.NewRunCommand(pump, src, false),
			pentair.NewControlCommand(pump, src, false),
		}, nil

	case CmdNameStart:
		return []*pentair.Frame{pentair.NewRunCommand(pump, src, true)}, nil

	case CmdNameStop:
		return []*pentair.Frame{pentair.NewRunCommand(pump, src, false)}, nil

	case CmdNameRPM:
		f, err := pentair.NewSetRPM(pump, src, ClampRPM(c.RPM))
		if err != nil {
			return nil, err
		}
		return []*pentair.Frame{f}, nil

	case CmdNameRemote:
		return []*pentair.Frame{pentair.NewControlCommand(pump, src, true)}, nil

	case CmdNameLocal:
		return []*pentair.Frame{pentair.NewControlCommand(pump, src, false)}, nil

	case CmdNameQuery:
		return []*pentair.Frame{pentair.NewStatusQuery(pump, src)}, nil

	case CmdNameProgram:
		f, err := pentair.NewProgramSelect(pump, src, c.Program)
		if err != nil {
			return nil, err
		}
		return []*pentair.Frame{f}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, c.Name)
	}
}
