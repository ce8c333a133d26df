// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

var (
	monitorShowAll       bool
	monitorStatsInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode and display bus traffic",
	Long: `Passively decode every frame on the bus and print it with timestamp,
addressing, command, and decoded payload.

By default only traffic involving the configured pump is shown; --show-all
prints every device's frames plus link errors and protocol anomalies.
A statistics summary prints on the chosen interval and at exit.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVarP(&monitorShowAll, "show-all", "a", false, "Show all devices, link errors, and anomalies")
	monitorCmd.Flags().DurationVar(&monitorStatsInterval, "stats", 30*time.Second, "Statistics print interval (0 disables)")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("Aquastat - Bus Monitor\n")
	fmt.Printf("Port: %s @ %d baud, pump 0x%02X\n", cfg.Serial.Port, cfg.Serial.Baud, cfg.Link.PumpAddress)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	stats := pumplink.NewStatistics()
	decoder := pentair.NewDecoderWithLimit(cfg.Link.RxBufferLimit)
	buf := make([]byte, 256)

	var nextStats time.Time
	if monitorStatsInterval > 0 {
		nextStats = time.Now().Add(monitorStatsInterval)
	}

	for {
		select {
		case <-sig:
			fmt.Print("\n" + stats.String())
			return nil
		default:
		}

		n, err := bus.ReadAvailable(buf)
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		if n > 0 {
			stats.AddBytesIn(n)
			frames, errs := decoder.Feed(buf[:n])
			for _, ferr := range errs {
				stats.AddLinkError(ferr)
				if monitorShowAll {
					fmt.Printf("[LINK] %v\n", ferr)
				}
			}
			for _, f := range frames {
				printMonitorFrame(f, cfg.Link.PumpAddress, stats)
			}
		}

		if !nextStats.IsZero() && time.Now().After(nextStats) {
			fmt.Print(stats.String())
			nextStats = time.Now().Add(monitorStatsInterval)
		}
	}
}

func printMonitorFrame(f *pentair.Frame, pump byte, stats *pumplink.Statistics) {
	if f.Source() != pump && f.Destination() != pump && !monitorShowAll {
		stats.AddFrameIgnored()
		return
	}
	stats.AddFrameReceived()

	fmt.Print(pentair.FormatFrame(f))

	if monitorShowAll {
		for _, anomaly := range pentair.ValidateFrame(f) {
			fmt.Printf("  [ANOMALY] %s\n", anomaly.Message)
		}
	}
}
