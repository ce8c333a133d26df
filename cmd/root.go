// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Connection flag overrides; zero values mean "use the config file"
	portName   string
	baudRate   int
	ownAddress uint8
	pumpAddr   uint8

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "aquastat",
	Short: "Pentair pump RS-485 link driver",
	Long: `Aquastat - drive and monitor a Pentair-style variable-speed pool pump
over its RS-485 bus.

One-shot verbs (status, start, stop, speed, remote, local) open the port,
run a single command exchange, and exit. 'serve' runs the full engine with
the MQTT bridge and the status dashboard; 'console' is an interactive TUI.
'monitor' passively decodes bus traffic; 'simulate' plays the pump side of
the wire for bench work without hardware.

Configuration comes from aquastat.toml (--config) with flags overriding
file values. The MQTT password is never a flag; it is read from the
environment variable named in the config, or prompted interactively, to
avoid leaking credentials in shell history.`,
	Version: "1.2.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default aquastat.toml)")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (default 9600)")
	rootCmd.PersistentFlags().Uint8Var(&ownAddress, "address", 0, "Our bus address (default 0x20)")
	rootCmd.PersistentFlags().Uint8Var(&pumpAddr, "pump", 0, "Pump bus address (default 0x60)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
