// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge connects a pump session to an MQTT broker: commands in on
// `<prefix>/<deviceId>/cmd`, status JSON out on `<prefix>/<deviceId>/status`,
// retained availability on `<prefix>/<deviceId>/lwt`.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

// Link is the slice of the pump session the bridge drives. *pumplink.Engine
// satisfies it.
type Link interface {
	Submit(pumplink.Request) error
	Status() pentair.PumpStatus
	ProgramActive() bool
	OwnAddress() byte
	PumpAddress() byte
}

// Config holds broker and topic parameters.
type Config struct {
	BrokerURL      string
	ClientIDPrefix string
	DeviceID       string
	Username       string
	Password       string
	TopicPrefix    string

	PublishInterval   time.Duration
	ReconnectInterval time.Duration
}

// DefaultConfig returns the stock topic layout for one device id.
func DefaultConfig(deviceID string) Config {
	return Config{
		BrokerURL:         "tcp://localhost:1883",
		ClientIDPrefix:    "aquastat",
		DeviceID:          deviceID,
		TopicPrefix:       "flexpool",
		PublishInterval:   3 * time.Second,
		ReconnectInterval: 5 * time.Second,
	}
}

// submitRetries bounds how often a Busy rejection is retried before the
// command is dropped with an error log.
const (
	submitRetries    = 8
	submitRetryDelay = 250 * time.Millisecond
)

// Bridge owns the MQTT client and the publish loop.
type Bridge struct {
	cfg     Config
	link    Link
	log     zerolog.Logger
	client  mqtt.Client
	started time.Time

	// lastRemote mirrors the last control-mode command we issued; the
	// status response does not carry it. Written from the MQTT callback
	// goroutine, read from the publish loop.
	lastRemote atomic.Bool
}

// New builds a bridge over link. Connect happens in Run.
func New(link Link, cfg Config, log zerolog.Logger) *Bridge {
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 3 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Bridge{
		cfg:  cfg,
		link: link,
		log:  log.With().Str("component", "bridge").Logger(),
	}
}

func (b *Bridge) topic(leaf string) string {
	return fmt.Sprintf("%s/%s/%s", b.cfg.TopicPrefix, b.cfg.DeviceID, leaf)
}

// Run connects to the broker and publishes status until ctx is done, then
// announces offline and disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(fmt.Sprintf("%s-%s", b.cfg.ClientIDPrefix, b.cfg.DeviceID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(b.cfg.ReconnectInterval).
		SetMaxReconnectInterval(b.cfg.ReconnectInterval).
		SetWill(b.topic("lwt"), `{"online":false}`, 1, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Warn().Err(err).Msg("broker connection lost")
		})
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	b.started = time.Now()
	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("bridge: connect %s: %w", b.cfg.BrokerURL, token.Error())
	}

	ticker := time.NewTicker(b.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.publish(b.topic("lwt"), `{"online":false}`, true)
			b.client.Disconnect(250)
			return ctx.Err()
		case <-ticker.C:
			b.publishStatus()
		}
	}
}

func (b *Bridge) onConnect(c mqtt.Client) {
	b.log.Info().Str("broker", b.cfg.BrokerURL).Msg("connected")

	if token := c.Subscribe(b.topic("cmd"), 1, b.onCommand); token.Wait() && token.Error() != nil {
		b.log.Error().Err(token.Error()).Msg("command subscribe failed")
	}
	b.publish(b.topic("lwt"), `{"online":true}`, true)
	b.publishStatus()
}

func (b *Bridge) publish(topic, payload string, retain bool) {
	if token := b.client.Publish(topic, 1, retain, payload); token.Wait() && token.Error() != nil {
		b.log.Error().Err(token.Error()).Str("topic", topic).Msg("publish failed")
	}
}

// statusPayload is the JSON shape published on the status topic.
type statusPayload struct {
	DeviceID string `json:"deviceId"`
	Valid    bool   `json:"valid"`
	Stale    bool   `json:"stale,omitempty"`
	Running  bool   `json:"running"`
	Remote   bool   `json:"remote"`
	Program  bool   `json:"program"`
	Mode     string `json:"mode"`
	RPM      uint16 `json:"rpm"`
	Watts    uint16 `json:"watts"`
	GPM      uint8  `json:"gpm"`
	Error    uint8  `json:"error"`
	AgeMS    int64  `json:"ageMs"`
	UptimeS  int64  `json:"uptimeS"`
}

func (b *Bridge) publishStatus() {
	data, err := b.statusJSON()
	if err != nil {
		b.log.Error().Err(err).Msg("status marshal failed")
		return
	}
	b.publish(b.topic("status"), string(data), false)
}

func (b *Bridge) statusJSON() ([]byte, error) {
	s := b.link.Status()
	payload := statusPayload{
		DeviceID: b.cfg.DeviceID,
		Valid:    s.Valid,
		Stale:    s.Stale,
		Running:  s.Running,
		Remote:   b.lastRemote.Load(),
		Program:  b.link.ProgramActive(),
		Mode:     pentair.FormatMode(s.Mode),
		RPM:      s.RPM,
		Watts:    s.Watts,
		GPM:      s.GPM,
		Error:    s.ErrorCode,
		AgeMS:    s.Age(time.Now()).Milliseconds(),
		UptimeS:  int64(time.Since(b.started).Seconds()),
	}
	return json.Marshal(payload)
}

func (b *Bridge) onCommand(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		b.log.Warn().Err(err).Str("payload", string(msg.Payload())).Msg("bad command")
		return
	}

	frames, err := cmd.Plan(b.link.PumpAddress(), b.link.OwnAddress())
	if err != nil {
		b.log.Warn().Err(err).Str("command", cmd.Name).Msg("command rejected")
		return
	}

	b.log.Info().Str("command", cmd.Name).Int("steps", len(frames)).Msg("command accepted")
	b.trackRemote(cmd.Name)

	// Steps run off the MQTT callback goroutine; Submit is goroutine-safe
	// and serializes on the engine.
	go b.execute(cmd.Name, frames)
}

// trackRemote updates the mirrored control mode for commands that change
// it. Runs on the MQTT callback goroutine.
func (b *Bridge) trackRemote(name string) {
	switch name {
	case CmdNameRemote, CmdNameFullStart:
		b.lastRemote.Store(true)
	case CmdNameLocal, CmdNameFullStop:
		b.lastRemote.Store(false)
	}
}

// execute submits each step in order, waiting for its acknowledgement.
// Busy rejections are retried with a short delay; command failures abort
// the remaining steps.
func (b *Bridge) execute(name string, frames []*pentair.Frame) {
	for i, f := range frames {
		if err := b.submitStep(f); err != nil {
			b.log.Error().Err(err).Str("command", name).Int("step", i).Msg("command step failed")
			return
		}
	}
	b.publishStatus()
}

func (b *Bridge) submitStep(f *pentair.Frame) error {
	// Status queries queue inside the engine instead of bouncing Busy and
	// may never invoke Done; fire and forget.
	if f.Command() == pentair.CmdStatus && len(f.Data()) == 0 {
		return b.link.Submit(pumplink.Request{Frame: f})
	}

	for attempt := 0; attempt <= submitRetries; attempt++ {
		result := make(chan error, 1)
		err := b.link.Submit(pumplink.Request{Frame: f, Done: func(err error) { result <- err }})
		if errors.Is(err, pumplink.ErrBusy) {
			time.Sleep(submitRetryDelay)
			continue
		}
		if err != nil {
			return err
		}
		select {
		case err := <-result:
			return err
		case <-time.After(30 * time.Second):
			return errors.New("bridge: step result never arrived")
		}
	}
	return pumplink.ErrBusy
}
