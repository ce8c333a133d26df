// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/pumpsim"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play the pump side of the wire",
	Long: `Run a simulated pump on the serial port for bench work without
hardware: connect a second host (or a second port on this one, wired
null-modem) and drive it with the normal aquastat verbs.

The model answers status queries, acknowledges commands, ramps toward its
target speed, and reverts to local control when the external-program
repeat stops arriving, the same way the real drive does. The --pump flag
sets the address it answers on.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	log := newLogger(cfg)
	pc := pumpsim.DefaultConfig()
	pc.Address = cfg.Link.PumpAddress
	pump := pumpsim.New(pc, log)

	fmt.Printf("Simulated pump on %s, address 0x%02X; Ctrl+C to exit\n",
		cfg.Serial.Port, pc.Address)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := pump.Run(ctx, bus); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
