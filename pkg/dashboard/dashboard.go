// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dashboard serves the HTTP status surface: one static page, a JSON
// snapshot endpoint, a websocket pushing live status updates, and the
// Prometheus registry.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/aquastat/pkg/metrics"
	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

// StatusSource is the slice of the pump session the dashboard reads.
// *pumplink.Engine satisfies it.
type StatusSource interface {
	Status() pentair.PumpStatus
	Stats() *pumplink.Statistics
}

const (
	writeTimeout  = 5 * time.Second
	pingInterval  = 5 * time.Second
	clientBacklog = 16
)

// Server is the dashboard listener plus the websocket hub.
type Server struct {
	src    StatusSource
	met    *metrics.Metrics
	listen string
	log    zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// New builds the server; metrics may be nil, which disables /metrics.
func New(src StatusSource, met *metrics.Metrics, listen string, log zerolog.Logger) *Server {
	return &Server{
		src:    src,
		met:    met,
		listen: listen,
		log:    log.With().Str("component", "dashboard").Logger(),
		upgrader: websocket.Upgrader{
			// Local operations tool; the page is served from the same
			// listener but curl and LAN dashboards are fine too.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[chan []byte]struct{}),
	}
}

// statusJSON is the /api/status and websocket payload.
type statusJSON struct {
	Valid   bool   `json:"valid"`
	Stale   bool   `json:"stale,omitempty"`
	Running bool   `json:"running"`
	Mode    string `json:"mode"`
	RPM     uint16 `json:"rpm"`
	Watts   uint16 `json:"watts"`
	GPM     uint8  `json:"gpm"`
	Error   uint8  `json:"error"`
	AgeMS   int64  `json:"ageMs"`

	FramesReceived uint64  `json:"framesReceived"`
	ChecksumErrors uint64  `json:"checksumErrors"`
	Timeouts       uint64  `json:"timeouts"`
	FrameRate      float64 `json:"frameRate"`
}

func (s *Server) snapshot() statusJSON {
	status := s.src.Status()
	snap := s.src.Stats().Snapshot()
	return statusJSON{
		Valid:          status.Valid,
		Stale:          status.Stale,
		Running:        status.Running,
		Mode:           pentair.FormatMode(status.Mode),
		RPM:            status.RPM,
		Watts:          status.Watts,
		GPM:            status.GPM,
		Error:          status.ErrorCode,
		AgeMS:          status.Age(time.Now()).Milliseconds(),
		FramesReceived: snap.FramesReceived,
		ChecksumErrors: snap.ChecksumErrors,
		Timeouts:       snap.Timeouts,
		FrameRate:      snap.FrameRate,
	}
}

// Publish pushes a status update to every connected websocket client. Wire
// it to the engine's OnStatus hook. Slow clients drop updates rather than
// blocking the engine.
func (s *Server) Publish(pentair.PumpStatus) {
	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// Handler returns the route mux, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	if s.met != nil {
		mux.Handle("/metrics", s.met.Handler())
	}
	return mux
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket needs unbounded writes
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("listen", s.listen).Msg("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := make(chan []byte, clientBacklog)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
		conn.Close()
		s.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
	}()

	// Reader goroutine only notices disconnects; clients never send.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
