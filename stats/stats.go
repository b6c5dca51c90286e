// SPDX-License-Identifier: MIT

// Package stats exposes the stack's packet and connection counters as
// Prometheus metrics.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors the TCP engine updates. A nil *Metrics is
// valid and turns every update into a no-op, so tests that don't care
// about counters can pass nothing.
type Metrics struct {
	SegmentsRx      prometheus.Counter
	SegmentsTx      prometheus.Counter
	ChecksumErrors  prometheus.Counter
	SegmentsDropped prometheus.Counter
	ResetsSent      prometheus.Counter
	Retransmits     prometheus.Counter
	ActiveConns     prometheus.Gauge
}

// New registers the stack metrics with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SegmentsRx: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netstack", Subsystem: "tcp", Name: "segments_received_total",
			Help: "TCP segments delivered to the engine.",
		}),
		SegmentsTx: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netstack", Subsystem: "tcp", Name: "segments_sent_total",
			Help: "TCP segments emitted by the engine.",
		}),
		ChecksumErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netstack", Subsystem: "tcp", Name: "checksum_errors_total",
			Help: "Segments dropped for failing pseudo-header checksum validation.",
		}),
		SegmentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netstack", Subsystem: "tcp", Name: "segments_dropped_total",
			Help: "Segments dropped for reasons other than checksum failure.",
		}),
		ResetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netstack", Subsystem: "tcp", Name: "resets_sent_total",
			Help: "RST segments emitted.",
		}),
		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netstack", Subsystem: "tcp", Name: "retransmits_total",
			Help: "Segments retransmitted after RTO expiry.",
		}),
		ActiveConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netstack", Subsystem: "tcp", Name: "active_connections",
			Help: "Connections currently in the active set.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SegmentsRx, m.SegmentsTx, m.ChecksumErrors, m.SegmentsDropped,
			m.ResetsSent, m.Retransmits, m.ActiveConns,
		)
	}
	return m
}

// IncRx bumps the received-segments counter.
func (m *Metrics) IncRx() {
	if m != nil {
		m.SegmentsRx.Inc()
	}
}

// IncTx bumps the sent-segments counter.
func (m *Metrics) IncTx() {
	if m != nil {
		m.SegmentsTx.Inc()
	}
}

// IncChecksumError counts a checksum-failed drop.
func (m *Metrics) IncChecksumError() {
	if m != nil {
		m.ChecksumErrors.Inc()
	}
}

// IncDropped counts a non-checksum drop.
func (m *Metrics) IncDropped() {
	if m != nil {
		m.SegmentsDropped.Inc()
	}
}

// IncReset counts an emitted RST.
func (m *Metrics) IncReset() {
	if m != nil {
		m.ResetsSent.Inc()
	}
}

// IncRetransmit counts a retransmission.
func (m *Metrics) IncRetransmit() {
	if m != nil {
		m.Retransmits.Inc()
	}
}

// ConnOpened notes a connection entering the active set.
func (m *Metrics) ConnOpened() {
	if m != nil {
		m.ActiveConns.Inc()
	}
}

// ConnClosed notes a connection leaving the active set.
func (m *Metrics) ConnClosed() {
	if m != nil {
		m.ActiveConns.Dec()
	}
}
