package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncRx()
	m.IncRx()
	m.IncReset()
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()

	require.Equal(t, 2.0, testutil.ToFloat64(m.SegmentsRx))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ResetsSent))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConns))
}

// A nil Metrics is the no-metrics configuration; every update must be
// safe on it.
func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.IncRx()
	m.IncTx()
	m.IncChecksumError()
	m.IncDropped()
	m.IncReset()
	m.IncRetransmit()
	m.ConnOpened()
	m.ConnClosed()
}
