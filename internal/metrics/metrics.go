package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Relay events.
const (
	EventConnectionsOpened   = "connections_opened"
	EventConnectionsClosed   = "connections_closed"
	EventMalformed           = "malformed"
	EventRateLimited         = "rate_limited"
	EventUnknownType         = "unknown_type"
	EventAuthFailed          = "auth_failed"
	EventOffersStored        = "offers_stored"
	EventCandidatesStored    = "candidates_stored"
	EventCandidatesEvicted   = "candidates_evicted"
	EventRelayed             = "relayed"
	EventReplayed            = "replayed"
	EventDroppedNoTarget     = "dropped_no_target"
	EventDroppedBackpressure = "dropped_backpressure"
	EventClosedBackpressure  = "closed_backpressure"
	EventSessionsPurged      = "sessions_purged"
	EventSweepPanics         = "sweep_panics"
)

const namespace = "rendezvous"

// Metrics owns a private Prometheus registry. A nil *Metrics discards
// everything, so components can run without one.
type Metrics struct {
	reg    *prometheus.Registry
	events *prometheus.CounterVec
}

func New() *Metrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Signaling relay event counters.",
	}, []string{"event"})

	reg := prometheus.NewRegistry()
	reg.MustRegister(events)
	return &Metrics{reg: reg, events: events}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.events.WithLabelValues(name).Add(float64(n))
}

// Get reads the current value of one event counter.
func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	var pb dto.Metric
	if err := m.events.WithLabelValues(name).Write(&pb); err != nil {
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}

// GaugeFunc registers a gauge sampled from read on every scrape.
func (m *Metrics) GaugeFunc(name, help string, read func() int) error {
	if m == nil {
		return nil
	}
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(read()) }))
}
