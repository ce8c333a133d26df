// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/bridge"
	"github.com/Thermoquad/aquastat/pkg/dashboard"
	"github.com/Thermoquad/aquastat/pkg/metrics"
	"github.com/Thermoquad/aquastat/pkg/pentair"
)

var servePromptPassword bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with the MQTT bridge and dashboard",
	Long: `Run the pump session as a service: the link engine drives the bus while
the MQTT bridge (if enabled) accepts commands and publishes status, and
the dashboard (if enabled) serves the status page, websocket, and
Prometheus metrics.

Service mode logs JSON unless log.console is set. Shutdown on SIGINT or
SIGTERM announces offline on the LWT topic before disconnecting.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&servePromptPassword, "prompt-password", false, "Prompt for the MQTT password when the environment variable is unset")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	engine := newEngine(bus, cfg, log)
	met := metrics.New()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.New(engine, met, cfg.Dashboard.Listen, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("dashboard stopped")
			}
		}()
	}

	if cfg.MQTT.Enabled {
		password, err := getPassword(cfg, servePromptPassword)
		if err != nil {
			return err
		}
		bc := bridge.Config{
			BrokerURL:         cfg.MQTT.BrokerURL,
			ClientIDPrefix:    cfg.MQTT.ClientIDPrefix,
			DeviceID:          cfg.MQTT.DeviceID,
			Username:          cfg.MQTT.Username,
			Password:          password,
			TopicPrefix:       cfg.MQTT.TopicPrefix,
			PublishInterval:   cfg.MQTT.PublishInterval(),
			ReconnectInterval: cfg.MQTT.ReconnectInterval(),
		}
		br := bridge.New(engine, bc, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := br.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("bridge stopped")
			}
		}()
	}

	engine.OnStatus = func(s pentair.PumpStatus) {
		if dash != nil {
			dash.Publish(s)
		}
	}
	engine.OnError = func(err error) {
		log.Debug().Err(err).Msg("link error")
	}

	// Metrics follow the statistics on a slow tick.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				met.Update(engine.Stats().Snapshot(), engine.Status(), time.Now())
			}
		}
	}()

	log.Info().
		Str("port", cfg.Serial.Port).
		Uint8("pump", cfg.Link.PumpAddress).
		Bool("mqtt", cfg.MQTT.Enabled).
		Bool("dashboard", cfg.Dashboard.Enabled).
		Msg("aquastat serving")

	err = engine.Run(ctx)
	cancel()
	wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
