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

	"github.com/Thermoquad/aquastat/pkg/capture"
	"github.com/Thermoquad/aquastat/pkg/pentair"
)

var captureQuiet bool

var captureCmd = &cobra.Command{
	Use:   "capture <file>",
	Short: "Record raw bus traffic to a capture file",
	Long: `Record every byte read from the bus into a CBOR capture file for later
replay or fixture use. Frames are decoded and printed as they arrive
unless --quiet is set; decoding never affects what is recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().BoolVarP(&captureQuiet, "quiet", "q", false, "Record without printing frames")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	file, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	defer file.Close()

	writer, err := capture.NewWriter(file, cfg.Serial.Port, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("Capturing %s to %s; Ctrl+C to stop\n", cfg.Serial.Port, args[0])

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	decoder := pentair.NewDecoder()
	buf := make([]byte, 256)
	var chunks, frames int

	for {
		select {
		case <-sig:
			fmt.Printf("\nCaptured %d chunks, %d frames\n", chunks, frames)
			return nil
		default:
		}

		n, err := bus.ReadAvailable(buf)
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		if n == 0 {
			continue
		}

		if err := writer.Append(capture.DirRX, buf[:n], time.Now()); err != nil {
			return err
		}
		chunks++

		decoded, _ := decoder.Feed(buf[:n])
		frames += len(decoded)
		if !captureQuiet {
			for _, f := range decoded {
				fmt.Print(pentair.FormatFrame(f))
			}
		}
	}
}
