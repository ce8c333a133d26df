// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/pentair"
)

var scanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe the bus for pumps",
	Long: `Send a status query to each pump address (0x60-0x6F) and report
which of them answer.

Pumps do not announce themselves, so the scan is active: one query per
address, then a listen window before moving on. A populated address
answers with its status frame well inside the window; an empty one
stays silent.

Exit codes:
  0 - at least one pump found
  1 - no pumps responded`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 500*time.Millisecond, "Listen window per address")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("Scanning pump addresses 0x%02X-0x%02X (window %v)\n\n",
		pentair.AddressPumpBase, pentair.AddressPumpBase+0x0F, scanTimeout)

	found := 0
	buf := make([]byte, 256)

	for addr := byte(pentair.AddressPumpBase); addr <= pentair.AddressPumpBase+0x0F; addr++ {
		query := pentair.NewStatusQuery(addr, cfg.Link.OwnAddress)
		wire, err := query.Encode()
		if err != nil {
			return err
		}
		if _, err := bus.WriteFrame(wire); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}

		decoder := pentair.NewDecoder()
		deadline := time.Now().Add(scanTimeout)
		answered := false

		for !answered && time.Now().Before(deadline) {
			n, err := bus.ReadAvailable(buf)
			if err != nil {
				return fmt.Errorf("read error: %w", err)
			}
			if n == 0 {
				continue
			}
			frames, _ := decoder.Feed(buf[:n])
			for _, f := range frames {
				if f.Source() != addr || f.Command() != pentair.CmdStatus {
					continue
				}
				answered = true
				found++
				fmt.Printf("0x%02X: pump\n", addr)
				if status, err := pentair.ParseStatus(f.Data(), time.Now()); err == nil {
					fmt.Printf("      %s\n", status)
				}
				break
			}
		}
		if !answered {
			fmt.Printf("0x%02X: no response\n", addr)
		}
	}

	fmt.Printf("\nPumps found: %d\n", found)
	if found == 0 {
		return fmt.Errorf("no pumps responded")
	}
	return nil
}
