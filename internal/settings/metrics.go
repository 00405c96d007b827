package settings

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts settings lifecycle events. A nil *Metrics records nothing.
type Metrics struct {
	created     *prometheus.CounterVec
	updates     *prometheus.CounterVec
	createRaces *prometheus.CounterVec
}

// NewMetrics registers the settings counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_settings_records_created_total",
			Help: "Settings records created with defaults, by kind.",
		}, []string{"kind"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_settings_updates_total",
			Help: "Settings updates by kind and outcome.",
		}, []string{"kind", "outcome"}),
		createRaces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_settings_create_races_total",
			Help: "Lazy creates that lost the race to a concurrent create.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.updates, m.createRaces)
	}
	return m
}

func (m *Metrics) recordCreated(kind Kind) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) recordRace(kind Kind) {
	if m == nil {
		return
	}
	m.createRaces.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) recordUpdate(kind Kind, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.updates.WithLabelValues(string(kind), outcome).Inc()
}
