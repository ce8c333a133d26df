// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/pentair"
)

var sendListen time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <hex bytes>",
	Short: "Inject a raw frame on the bus",
	Long: `Transmit raw bytes and print whatever comes back within the listen
window.

If the bytes begin with the frame marker (FF 00 FF A5) they are sent
verbatim after a checksum check. Otherwise they are treated as
"CMD [DATA...]" and wrapped into a frame addressed from --address to
--pump with the checksum computed.

Examples:
  aquastat send 07                  # status query to the configured pump
  aquastat send "06 0A"             # start command
  aquastat send FF00FFA5006020070001 2C   # full frame, verbatim`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().DurationVar(&sendListen, "listen", 2*time.Second, "How long to listen for responses")
	rootCmd.AddCommand(sendCmd)
}

func parseHexArgs(args []string) ([]byte, error) {
	joined := strings.Join(args, "")
	joined = strings.ReplaceAll(joined, " ", "")
	joined = strings.ReplaceAll(joined, ":", "")
	data, err := hex.DecodeString(joined)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no bytes to send")
	}
	return data, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := parseHexArgs(args)
	if err != nil {
		return err
	}

	marker := []byte{0xFF, 0x00, 0xFF, 0xA5}
	var wire []byte
	if bytes.HasPrefix(raw, marker) {
		// Verbatim frame: decode first so a bad checksum is a refusal,
		// not noise on the wire.
		if _, err := pentair.Decode(raw); err != nil {
			return fmt.Errorf("refusing to send invalid frame: %w", err)
		}
		wire = raw
	} else {
		frame := pentair.NewFrame(cfg.Link.PumpAddress, cfg.Link.OwnAddress, raw[0], raw[1:])
		wire, err = frame.Encode()
		if err != nil {
			return err
		}
	}

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("TX: %s\n", pentair.FormatHex(wire))
	if _, err := bus.WriteFrame(wire); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	decoder := pentair.NewDecoder()
	buf := make([]byte, 256)
	deadline := time.Now().Add(sendListen)

	for time.Now().Before(deadline) {
		n, err := bus.ReadAvailable(buf)
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		if n == 0 {
			continue
		}
		frames, errs := decoder.Feed(buf[:n])
		for _, ferr := range errs {
			fmt.Printf("[LINK] %v\n", ferr)
		}
		for _, f := range frames {
			fmt.Print(pentair.FormatFrame(f))
		}
	}
	return nil
}
