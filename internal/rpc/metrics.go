package rpc

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for the RPC transport core. All
// methods handle a nil receiver gracefully, matching the nil-safe pattern
// established in internal/rpc/gss/metrics.go, so metrics stay opt-in with
// zero overhead when disabled.
type Metrics struct {
	Requests       *prometheus.CounterVec // labels: outcome=[success,timeout,error]
	RequestLatency prometheus.Histogram
	Retransmits    prometheus.Counter
	Reconnects     prometheus.Counter
	Cwnd           prometheus.Gauge
	DeadMounts     prometheus.Counter
}

var (
	rpcMetricsOnce     sync.Once
	rpcMetricsInstance *Metrics
)

// NewMetrics creates and registers the RPC core's Prometheus metrics. Like
// gss.NewGSSMetrics, it is idempotent via sync.Once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	rpcMetricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nfsmount_rpc_requests_total",
				Help: "Total RPC requests by outcome",
			}, []string{"outcome"}),
			RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "nfsmount_rpc_request_duration_seconds",
				Help:    "RPC round-trip latency",
				Buckets: prometheus.DefBuckets,
			}),
			Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nfsmount_rpc_retransmits_total",
				Help: "Total request retransmissions",
			}),
			Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nfsmount_rpc_reconnects_total",
				Help: "Total socket reconnections",
			}),
			Cwnd: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "nfsmount_rpc_cwnd",
				Help: "Current DGRAM congestion window, scaled by NFS_CWNDSCALE",
			}),
			DeadMounts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nfsmount_rpc_dead_mounts_total",
				Help: "Total mounts declared dead",
			}),
		}

		registerer.MustRegister(m.Requests, m.RequestLatency, m.Retransmits, m.Reconnects, m.Cwnd, m.DeadMounts)
		rpcMetricsInstance = m
	})
	return rpcMetricsInstance
}

func (m *Metrics) RecordRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
	m.RequestLatency.Observe(d.Seconds())
}

func (m *Metrics) RecordRetransmit() {
	if m == nil {
		return
	}
	m.Retransmits.Inc()
}

func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) SetCwnd(v int) {
	if m == nil {
		return
	}
	m.Cwnd.Set(float64(v))
}

func (m *Metrics) RecordDeadMount() {
	if m == nil {
		return
	}
	m.DeadMounts.Inc()
}
