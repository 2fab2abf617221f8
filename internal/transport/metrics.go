package transport

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for the socket/connect-search/reassembly
// layer. All methods handle a nil receiver, matching the pattern established
// in internal/rpc/gss/metrics.go and internal/rpc/metrics.go.
type Metrics struct {
	BytesSent          prometheus.Counter
	BytesReceived      prometheus.Counter
	ReassemblyErrors   prometheus.Counter
	CandidatesSpawned  prometheus.Counter
	CandidatesSelected prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers the transport layer's Prometheus metrics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nfsmount_transport_bytes_sent_total",
				Help: "Total bytes written to candidate sockets",
			}),
			BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nfsmount_transport_bytes_received_total",
				Help: "Total bytes read from candidate sockets",
			}),
			ReassemblyErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nfsmount_transport_reassembly_errors_total",
				Help: "Total STREAM record reassembly failures",
			}),
			CandidatesSpawned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nfsmount_transport_candidates_spawned_total",
				Help: "Total connect-search candidate sockets created",
			}),
			CandidatesSelected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nfsmount_transport_candidates_selected_total",
				Help: "Total connect-search candidates selected as the mount's socket",
			}),
		}

		registerer.MustRegister(m.BytesSent, m.BytesReceived, m.ReassemblyErrors,
			m.CandidatesSpawned, m.CandidatesSelected)
		metricsInstance = m
	})
	return metricsInstance
}

func (m *Metrics) AddBytesSent(n int) {
	if m == nil {
		return
	}
	m.BytesSent.Add(float64(n))
}

func (m *Metrics) AddBytesReceived(n int) {
	if m == nil {
		return
	}
	m.BytesReceived.Add(float64(n))
}

func (m *Metrics) RecordReassemblyError() {
	if m == nil {
		return
	}
	m.ReassemblyErrors.Inc()
}

func (m *Metrics) RecordCandidateSpawned() {
	if m == nil {
		return
	}
	m.CandidatesSpawned.Inc()
}

func (m *Metrics) RecordCandidateSelected() {
	if m == nil {
		return
	}
	m.CandidatesSelected.Inc()
}
