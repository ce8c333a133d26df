// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/Thermoquad/aquastat/pkg/config"
	"github.com/Thermoquad/aquastat/pkg/logging"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

// loadConfig merges the config file with flag overrides and validates the
// result. Every verb goes through here.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if portName != "" {
		cfg.Serial.Port = portName
	}
	if baudRate != 0 {
		cfg.Serial.Baud = baudRate
	}
	if ownAddress != 0 {
		cfg.Link.OwnAddress = ownAddress
	}
	if pumpAddr != 0 {
		cfg.Link.PumpAddress = pumpAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the logger the verb hands to every component.
func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Console)
}

// openBus opens the configured serial port as a half-duplex bus.
func openBus(cfg config.Config) (*pumplink.SerialBus, error) {
	if cfg.Serial.Port == "" {
		return nil, fmt.Errorf("no serial port: use --port or set serial.port in %s", config.DefaultPath)
	}

	sc := pumplink.SerialConfig{
		Port:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		PreTXGuard:  cfg.Serial.PreTXGuard(),
		PostTXGuard: cfg.Serial.PostTXGuard(),
		ReadTimeout: cfg.Serial.ReadTimeout(),
	}
	return pumplink.OpenSerialBus(sc)
}

// newEngine builds the session engine from the link section.
func newEngine(bus pumplink.Bus, cfg config.Config, log zerolog.Logger) *pumplink.Engine {
	ec := pumplink.Config{
		OwnAddress:      cfg.Link.OwnAddress,
		PumpAddress:     cfg.Link.PumpAddress,
		ResponseTimeout: cfg.Link.ResponseTimeout(),
		RetryLimit:      cfg.Link.RetryLimit,
		PollInterval:    cfg.Link.PollInterval(),
		RepeatInterval:  cfg.Link.RepeatInterval(),
		MaxReassembly:   cfg.Link.RxBufferLimit,
	}
	return pumplink.New(bus, ec, log)
}

// getPassword retrieves the MQTT password from the configured environment
// variable, or prompts the user when promptPassword is set.
func getPassword(cfg config.Config, prompt bool) (string, error) {
	if pw := cfg.MQTT.Password(); pw != "" {
		return pw, nil
	}
	if !prompt {
		return "", nil
	}

	fmt.Fprint(os.Stderr, "MQTT password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
