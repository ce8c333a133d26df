// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/aquastat/pkg/metrics"
	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

type fakeSource struct {
	status pentair.PumpStatus
	stats  *pumplink.Statistics
}

func (f *fakeSource) Status() pentair.PumpStatus  { return f.status }
func (f *fakeSource) Stats() *pumplink.Statistics { return f.stats }

func newTestServer() (*Server, *fakeSource) {
	src := &fakeSource{
		status: pentair.PumpStatus{
			Valid:      true,
			Running:    true,
			Mode:       pentair.ModeExtProgram1,
			RPM:        2400,
			Watts:      950,
			GPM:        72,
			LastUpdate: time.Now(),
		},
		stats: pumplink.NewStatistics(),
	}
	return New(src, metrics.New(), ":0", zerolog.Nop()), src
}

func TestHandleStatus(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got statusJSON
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Valid || !got.Running || got.RPM != 2400 || got.Watts != 950 {
		t.Errorf("snapshot = %+v", got)
	}
	if got.Mode != "EXT_PROGRAM_1" {
		t.Errorf("mode = %q", got.Mode)
	}
}

func TestHandleIndex(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	// Unknown paths are not swallowed by the index handler.
	resp2, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d", resp2.StatusCode)
	}
}

func TestHandleMetrics(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestWebSocketPush(t *testing.T) {
	s, src := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// The handler goroutine registers the client right after the upgrade;
	// give it a moment before publishing.
	time.Sleep(100 * time.Millisecond)
	src.status.RPM = 3000
	s.Publish(src.status)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("no websocket message: %v", err)
	}
	var got statusJSON
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	if got.RPM != 3000 {
		t.Errorf("pushed RPM = %d, want 3000", got.RPM)
	}
}
