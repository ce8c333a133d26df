// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes link statistics and pump state as Prometheus
// collectors on a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

// Metrics holds the registry and every collector. Update pushes the latest
// statistics snapshot and pump status into them; the dashboard serves the
// registry through Handler.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived prometheus.Counter
	framesSent     prometheus.Counter
	framesIgnored  prometheus.Counter
	bytesIn        prometheus.Counter
	bytesOut       prometheus.Counter
	checksumErrors prometheus.Counter
	overruns       prometheus.Counter
	timeouts       prometheus.Counter
	retries        prometheus.Counter
	commandsFailed prometheus.Counter
	statusUpdates  prometheus.Counter

	pumpRunning   prometheus.Gauge
	pumpRPM       prometheus.Gauge
	pumpWatts     prometheus.Gauge
	pumpGPM       prometheus.Gauge
	pumpErrorCode prometheus.Gauge
	statusAge     prometheus.Gauge

	// counters are monotonic; the snapshot is cumulative, so remember the
	// last pushed values and add deltas
	last pumplink.StatsSnapshot
}

// New builds the collector set on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquastat",
			Name:      name,
			Help:      help,
		})
		m.registry.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aquastat",
			Name:      name,
			Help:      help,
		})
		m.registry.MustRegister(g)
		return g
	}

	m.framesReceived = counter("frames_received_total", "Frames accepted from the pump")
	m.framesSent = counter("frames_sent_total", "Frames transmitted on the bus")
	m.framesIgnored = counter("frames_ignored_total", "Frames dropped by address filtering")
	m.bytesIn = counter("bytes_in_total", "Raw bytes read from the bus")
	m.bytesOut = counter("bytes_out_total", "Raw bytes written to the bus")
	m.checksumErrors = counter("checksum_errors_total", "Frames rejected for checksum mismatch")
	m.overruns = counter("buffer_overruns_total", "Reassembly buffer overruns")
	m.timeouts = counter("response_timeouts_total", "Command response timeouts")
	m.retries = counter("command_retries_total", "Command retransmissions")
	m.commandsFailed = counter("commands_failed_total", "Commands failed after retry exhaustion")
	m.statusUpdates = counter("status_updates_total", "Status responses parsed")

	m.pumpRunning = gauge("pump_running", "1 while the pump reports running")
	m.pumpRPM = gauge("pump_rpm", "Last reported pump speed")
	m.pumpWatts = gauge("pump_watts", "Last reported power draw")
	m.pumpGPM = gauge("pump_gpm", "Last reported flow rate")
	m.pumpErrorCode = gauge("pump_error_code", "Last reported pump error code, 0 = none")
	m.statusAge = gauge("status_age_seconds", "Seconds since the last status update")

	return m
}

// Update pushes the latest snapshot and status into the collectors.
func (m *Metrics) Update(snap pumplink.StatsSnapshot, status pentair.PumpStatus, now time.Time) {
	add := func(c prometheus.Counter, cur, prev uint64) {
		if cur > prev {
			c.Add(float64(cur - prev))
		}
	}
	add(m.framesReceived, snap.FramesReceived, m.last.FramesReceived)
	add(m.framesSent, snap.FramesSent, m.last.FramesSent)
	add(m.framesIgnored, snap.FramesIgnored, m.last.FramesIgnored)
	add(m.bytesIn, snap.BytesIn, m.last.BytesIn)
	add(m.bytesOut, snap.BytesOut, m.last.BytesOut)
	add(m.checksumErrors, snap.ChecksumErrors, m.last.ChecksumErrors)
	add(m.overruns, snap.Overruns, m.last.Overruns)
	add(m.timeouts, snap.Timeouts, m.last.Timeouts)
	add(m.retries, snap.Retries, m.last.Retries)
	add(m.commandsFailed, snap.CommandsFailed, m.last.CommandsFailed)
	add(m.statusUpdates, snap.StatusUpdates, m.last.StatusUpdates)
	m.last = snap

	if status.Valid {
		if status.Running {
			m.pumpRunning.Set(1)
		} else {
			m.pumpRunning.Set(0)
		}
		m.pumpRPM.Set(float64(status.RPM))
		m.pumpWatts.Set(float64(status.Watts))
		m.pumpGPM.Set(float64(status.GPM))
		m.pumpErrorCode.Set(float64(status.ErrorCode))
		m.statusAge.Set(status.Age(now).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
