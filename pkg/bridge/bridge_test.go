// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeLink struct {
	status pentair.PumpStatus
}

func (l *fakeLink) Submit(req pumplink.Request) error {
	if req.Done != nil {
		req.Done(nil)
	}
	return nil
}
func (l *fakeLink) Status() pentair.PumpStatus { return l.status }
func (l *fakeLink) ProgramActive() bool        { return false }
func (l *fakeLink) OwnAddress() byte           { return 0x20 }
func (l *fakeLink) PumpAddress() byte          { return 0x60 }

func newTestBridge(link Link) *Bridge {
	return New(link, Config{
		DeviceID:    "pump1",
		TopicPrefix: "flexpool",
	}, zerolog.Nop())
}

// ============================================================================
// Status Payload
// ============================================================================

func TestBridge_RemoteTracking(t *testing.T) {
	link := &fakeLink{status: pentair.PumpStatus{
		Valid:      true,
		Running:    true,
		RPM:        2400,
		LastUpdate: time.Now(),
	}}
	b := newTestBridge(link)

	remote := func() bool {
		data, err := b.statusJSON()
		if err != nil {
			t.Fatalf("statusJSON: %v", err)
		}
		var payload struct {
			Remote bool `json:"remote"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return payload.Remote
	}

	if remote() {
		t.Error("Remote reported before any control command")
	}

	tests := []struct {
		command string
		want    bool
	}{
		{CmdNameRemote, true},
		{CmdNameLocal, false},
		{CmdNameFullStart, true},
		{CmdNameFullStop, false},
		{CmdNameStart, false}, // does not touch control mode
	}

	for _, tt := range tests {
		b.trackRemote(tt.command)
		if got := remote(); got != tt.want {
			t.Errorf("after %q: remote = %v, want %v", tt.command, got, tt.want)
		}
	}
}

// Control-mode updates arrive on the MQTT callback goroutine while the
// publish loop reads the payload; both sides must be safe concurrently.
func TestBridge_RemoteTrackingConcurrent(t *testing.T) {
	b := newTestBridge(&fakeLink{status: pentair.PumpStatus{Valid: true, LastUpdate: time.Now()}})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				b.trackRemote(CmdNameRemote)
			} else {
				b.trackRemote(CmdNameLocal)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		if _, err := b.statusJSON(); err != nil {
			t.Fatalf("statusJSON: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
