// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive pump control TUI",
	Long: `Full-screen console with a live status panel, an event log, and direct
control of the pump.

Key bindings:
  r        start the pump        s        stop the pump
  9        grant remote control  0        return to local control
  1-4      run external program  o        deselect external program
  Tab      focus the RPM field   Enter    apply the entered RPM
  q        quit`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	// The TUI owns the terminal; route logs away from it.
	log := newLogger(cfg).Level(zerolog.Disabled)
	engine := newEngine(bus, cfg, log)

	// Hooks must be in place before Run starts reading them.
	model := newConsoleModel(engine, linkAddrs{own: cfg.Link.OwnAddress, pump: cfg.Link.PumpAddress})
	engine.OnError = model.noteError

	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = engine.Run(engineCtx)
	}()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console failed: %w", err)
	}

	engineCancel()
	<-runDone
	return nil
}
