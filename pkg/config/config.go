// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads and validates the aquastat TOML configuration. One
// loader feeds every surface: CLI flags override the file, the file
// overrides the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Thermoquad/aquastat/pkg/pentair"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "aquastat.toml"

// Durations are carried in the file as integer fields with explicit units
// (_ms, _us) and converted after decode.

// Serial configures the RS-485 port.
type Serial struct {
	Port          string `toml:"port"`
	Baud          int    `toml:"baud"`
	PreTXGuardUS  int64  `toml:"pre_tx_guard_us"`
	PostTXGuardUS int64  `toml:"post_tx_guard_us"`
	ReadTimeoutMS int64  `toml:"read_timeout_ms"`
}

// PreTXGuard returns the pre-transmit guard time.
func (s *Serial) PreTXGuard() time.Duration { return time.Duration(s.PreTXGuardUS) * time.Microsecond }

// PostTXGuard returns the post-transmit guard time.
func (s *Serial) PostTXGuard() time.Duration {
	return time.Duration(s.PostTXGuardUS) * time.Microsecond
}

// ReadTimeout returns the per-read timeout.
func (s *Serial) ReadTimeout() time.Duration { return time.Duration(s.ReadTimeoutMS) * time.Millisecond }

// Link configures the pump session.
type Link struct {
	OwnAddress        byte  `toml:"own_address"`
	PumpAddress       byte  `toml:"pump_address"`
	ResponseTimeoutMS int64 `toml:"response_timeout_ms"`
	RetryLimit        int   `toml:"retry_limit"`
	PollIntervalMS    int64 `toml:"poll_interval_ms"`
	RepeatIntervalMS  int64 `toml:"repeat_interval_ms"`
	RxBufferLimit     int   `toml:"rx_buffer_limit"`
}

// ResponseTimeout returns the command response timeout.
func (l *Link) ResponseTimeout() time.Duration {
	return time.Duration(l.ResponseTimeoutMS) * time.Millisecond
}

// PollInterval returns the idle status poll interval.
func (l *Link) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalMS) * time.Millisecond
}

// RepeatInterval returns the external-program repeat interval.
func (l *Link) RepeatInterval() time.Duration {
	return time.Duration(l.RepeatIntervalMS) * time.Millisecond
}

// MQTT configures the broker bridge. The password never lives in the file;
// it comes from PasswordEnv, a flag, or an interactive prompt.
type MQTT struct {
	Enabled             bool   `toml:"enabled"`
	BrokerURL           string `toml:"broker_url"`
	ClientIDPrefix      string `toml:"client_id_prefix"`
	DeviceID            string `toml:"device_id"`
	Username            string `toml:"username"`
	PasswordEnv         string `toml:"password_env"`
	TopicPrefix         string `toml:"topic_prefix"`
	PublishIntervalMS   int64  `toml:"publish_interval_ms"`
	ReconnectIntervalMS int64  `toml:"reconnect_interval_ms"`
}

// PublishInterval returns the status publish cadence.
func (m *MQTT) PublishInterval() time.Duration {
	return time.Duration(m.PublishIntervalMS) * time.Millisecond
}

// ReconnectInterval returns the minimum spacing between reconnect attempts.
func (m *MQTT) ReconnectInterval() time.Duration {
	return time.Duration(m.ReconnectIntervalMS) * time.Millisecond
}

// Password resolves the MQTT password from the configured environment
// variable. Empty means unset.
func (m *MQTT) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// Dashboard configures the HTTP status listener.
type Dashboard struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Log configures logging for service mode.
type Log struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// Config is the whole aquastat.toml.
type Config struct {
	Serial    Serial    `toml:"serial"`
	Link      Link      `toml:"link"`
	MQTT      MQTT      `toml:"mqtt"`
	Dashboard Dashboard `toml:"dashboard"`
	Log       Log       `toml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Serial: Serial{
			Baud:          9600,
			PreTXGuardUS:  10,
			PostTXGuardUS: 10,
			ReadTimeoutMS: 100,
		},
		Link: Link{
			OwnAddress:        pentair.DefaultRemoteAddress,
			PumpAddress:       pentair.DefaultPumpAddress,
			ResponseTimeoutMS: pentair.ResponseTimeout.Milliseconds(),
			RetryLimit:        1,
			PollIntervalMS:    pentair.StatusPollInterval.Milliseconds(),
			RepeatIntervalMS:  pentair.ProgramRepeatInterval.Milliseconds(),
			RxBufferLimit:     pentair.DefaultMaxBuffer,
		},
		MQTT: MQTT{
			BrokerURL:           "tcp://localhost:1883",
			ClientIDPrefix:      "aquastat",
			DeviceID:            "pump1",
			PasswordEnv:         "AQUASTAT_MQTT_PASSWORD",
			TopicPrefix:         "flexpool",
			PublishIntervalMS:   3000,
			ReconnectIntervalMS: 5000,
		},
		Dashboard: Dashboard{
			Listen: ":8089",
		},
		Log: Log{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads path and merges it over the defaults. A missing file at the
// default path is not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeoutMS <= 0 {
		return fmt.Errorf("serial.read_timeout_ms must be positive, got %d", c.Serial.ReadTimeoutMS)
	}
	if c.Serial.PreTXGuardUS < 0 || c.Serial.PostTXGuardUS < 0 {
		return errors.New("serial guard times must not be negative")
	}

	if !pentair.IsRemoteAddress(c.Link.OwnAddress) && !pentair.IsControllerAddress(c.Link.OwnAddress) {
		return fmt.Errorf("link.own_address 0x%02X is not a controller or remote address", c.Link.OwnAddress)
	}
	if !pentair.IsPumpAddress(c.Link.PumpAddress) {
		return fmt.Errorf("link.pump_address 0x%02X is not a pump address", c.Link.PumpAddress)
	}
	if c.Link.ResponseTimeoutMS <= 0 {
		return fmt.Errorf("link.response_timeout_ms must be positive, got %d", c.Link.ResponseTimeoutMS)
	}
	if c.Link.RetryLimit < 0 {
		return fmt.Errorf("link.retry_limit must not be negative, got %d", c.Link.RetryLimit)
	}
	if c.Link.RepeatIntervalMS <= c.Link.ResponseTimeoutMS {
		return fmt.Errorf("link.repeat_interval_ms %d must exceed response_timeout_ms %d",
			c.Link.RepeatIntervalMS, c.Link.ResponseTimeoutMS)
	}
	if c.Link.RxBufferLimit < pentair.MinFrameSize {
		return fmt.Errorf("link.rx_buffer_limit %d cannot hold a frame", c.Link.RxBufferLimit)
	}

	if c.MQTT.Enabled {
		if c.MQTT.BrokerURL == "" {
			return errors.New("mqtt.broker_url required when mqtt is enabled")
		}
		if !strings.Contains(c.MQTT.BrokerURL, "://") {
			return fmt.Errorf("mqtt.broker_url %q has no scheme (tcp://, ssl://, ws://)", c.MQTT.BrokerURL)
		}
		if c.MQTT.DeviceID == "" {
			return errors.New("mqtt.device_id required when mqtt is enabled")
		}
		if strings.ContainsAny(c.MQTT.DeviceID, "/#+") {
			return fmt.Errorf("mqtt.device_id %q contains topic metacharacters", c.MQTT.DeviceID)
		}
		if c.MQTT.PublishIntervalMS <= 0 {
			return fmt.Errorf("mqtt.publish_interval_ms must be positive, got %d", c.MQTT.PublishIntervalMS)
		}
	}

	if c.Dashboard.Enabled && c.Dashboard.Listen == "" {
		return errors.New("dashboard.listen required when dashboard is enabled")
	}

	return nil
}
