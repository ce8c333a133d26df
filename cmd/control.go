// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

var (
	speedRPM   uint16
	programRPM uint16
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query and print the pump status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *pumplink.Engine, cfg linkAddrs) error {
			if err := e.Do(ctx, pentair.NewStatusQuery(cfg.pump, cfg.own)); err != nil {
				return err
			}
			if err := waitForStatus(ctx, e); err != nil {
				return err
			}
			fmt.Println(e.Status().String())
			return nil
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Grant remote control and start the pump",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *pumplink.Engine, cfg linkAddrs) error {
			if err := e.Do(ctx, pentair.NewControlCommand(cfg.pump, cfg.own, true)); err != nil {
				return err
			}
			if err := e.Do(ctx, pentair.NewRunCommand(cfg.pump, cfg.own, true)); err != nil {
				return err
			}
			fmt.Println("Pump started")
			return nil
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the pump and return it to local control",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *pumplink.Engine, cfg linkAddrs) error {
			if err := e.Do(ctx, pentair.NewRunCommand(cfg.pump, cfg.own, false)); err != nil {
				return err
			}
			if err := e.Do(ctx, pentair.NewControlCommand(cfg.pump, cfg.own, false)); err != nil {
				return err
			}
			fmt.Println("Pump stopped")
			return nil
		})
	},
}

var speedCmd = &cobra.Command{
	Use:   "speed",
	Short: "Set the pump speed",
	Long:  `Write the direct speed register. The drive accepts 450-3450 RPM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *pumplink.Engine, cfg linkAddrs) error {
			f, err := pentair.NewSetRPM(cfg.pump, cfg.own, speedRPM)
			if err != nil {
				return err
			}
			if err := e.Do(ctx, f); err != nil {
				return err
			}
			fmt.Printf("Speed set to %d RPM\n", speedRPM)
			return nil
		})
	},
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Grant remote (bus) control",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *pumplink.Engine, cfg linkAddrs) error {
			if err := e.Do(ctx, pentair.NewControlCommand(cfg.pump, cfg.own, true)); err != nil {
				return err
			}
			fmt.Println("Remote control granted")
			return nil
		})
	},
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Return the pump to local (front panel) control",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *pumplink.Engine, cfg linkAddrs) error {
			if err := e.Do(ctx, pentair.NewControlCommand(cfg.pump, cfg.own, false)); err != nil {
				return err
			}
			fmt.Println("Local control restored")
			return nil
		})
	},
}

var programCmd = &cobra.Command{
	Use:   "program <1-4|off>",
	Short: "Run an external program, maintaining the repeat cadence",
	Long: `Select an external program and keep re-issuing the selection on the
protocol's repeat cadence. The pump silently reverts to local control if
the repeats stop, so this command stays in the foreground until Ctrl+C,
then deselects the program and returns the pump to local control.

With --rpm the program's stored speed is written first. 'program off'
deselects without staying resident.`,
	Args: cobra.ExactArgs(1),
	RunE: runProgram,
}

func init() {
	speedCmd.Flags().Uint16Var(&speedRPM, "rpm", 0, "Target speed in RPM (450-3450)")
	_ = speedCmd.MarkFlagRequired("rpm")
	programCmd.Flags().Uint16Var(&programRPM, "rpm", 0, "Store this speed for the program first")

	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, speedCmd, remoteCmd, localCmd, programCmd)
}

// linkAddrs carries the two bus addresses every one-shot verb needs.
type linkAddrs struct {
	own  byte
	pump byte
}

// withEngine opens the bus, runs the engine in the background, and calls fn
// with a signal-aware context. The one-shot verbs all share this shape.
func withEngine(fn func(context.Context, *pumplink.Engine, linkAddrs) error) error {
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
	engine := newEngine(bus, cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The engine outlives the signal context so cleanup exchanges (program
	// deselect, local control) still have a running loop behind them.
	engineCtx, engineCancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := engine.Run(engineCtx); err != nil && engineCtx.Err() == nil {
			log.Error().Err(err).Msg("engine stopped")
		}
	}()

	err = fn(ctx, engine, linkAddrs{own: cfg.Link.OwnAddress, pump: cfg.Link.PumpAddress})
	engineCancel()
	<-runDone
	return err
}

// waitForStatus blocks until the engine has a valid snapshot. The status
// response lands through HandleFrame moments after the query's ack.
func waitForStatus(ctx context.Context, e *pumplink.Engine) error {
	// Allow for the engine's own retry before giving up.
	deadline := time.Now().Add(2*pentair.ResponseTimeout + time.Second)
	for !e.Status().Valid {
		if time.Now().After(deadline) {
			return pumplink.ErrResponseTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	return nil
}

func runProgram(cmd *cobra.Command, args []string) error {
	var program int
	if args[0] == "off" {
		program = 0
	} else {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > 4 {
			return fmt.Errorf("program must be 1-4 or off, got %q", args[0])
		}
		program = n
	}

	return withEngine(func(ctx context.Context, e *pumplink.Engine, cfg linkAddrs) error {
		if program == 0 {
			off, err := pentair.NewProgramSelect(cfg.pump, cfg.own, 0)
			if err != nil {
				return err
			}
			if err := e.Do(ctx, off); err != nil {
				return err
			}
			fmt.Println("External program deselected")
			return nil
		}

		if programRPM != 0 {
			f, err := pentair.NewProgramRPM(cfg.pump, cfg.own, program, programRPM)
			if err != nil {
				return err
			}
			if err := e.Do(ctx, f); err != nil {
				return err
			}
			fmt.Printf("Program %d speed stored: %d RPM\n", program, programRPM)
		}

		if err := e.Do(ctx, pentair.NewControlCommand(cfg.pump, cfg.own, true)); err != nil {
			return err
		}
		sel, err := pentair.NewProgramSelect(cfg.pump, cfg.own, program)
		if err != nil {
			return err
		}
		if err := e.Do(ctx, sel); err != nil {
			return err
		}

		fmt.Printf("Running external program %d; Ctrl+C to stop\n", program)

		// The engine re-issues the selection on its cadence while we sit
		// here; leaving would let the pump fall back to local control.
		<-ctx.Done()

		// Clean exit: deselect and hand the pump back. The signal context
		// is spent, so use a short fresh one.
		e.CancelProgram()
		exitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		off, err := pentair.NewProgramSelect(cfg.pump, cfg.own, 0)
		if err != nil {
			return err
		}
		if err := e.Do(exitCtx, off); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: program deselect failed: %v\n", err)
		}
		if err := e.Do(exitCtx, pentair.NewControlCommand(cfg.pump, cfg.own, false)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: local control restore failed: %v\n", err)
		}
		fmt.Println("\nProgram stopped, pump returned to local control")
		return nil
	})
}
