package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var lifecycleStates = []string{"idle", "running", "stopped"}

func (m *Manager) initSignalMetrics() {
	m.ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intersection_ticks_total",
			Help: "Total number of scheduler ticks emitted",
		},
		[]string{"intersection"},
	)

	m.phaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intersection_phase_transitions_total",
			Help: "Total number of phases entered, by road and color",
		},
		[]string{"intersection", "road", "color"},
	)

	m.priorityRounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intersection_priority_rounds_total",
			Help: "Sessions that started with a priority round for flagged roads",
		},
		[]string{"intersection"},
	)

	m.lifecycle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intersection_lifecycle_state",
			Help: "1 for the current lifecycle state, 0 otherwise",
		},
		[]string{"intersection", "state"},
	)

	m.remaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intersection_signal_remaining_seconds",
			Help: "Remaining seconds of the current phase per road; 0 while red",
		},
		[]string{"intersection", "road"},
	)

	m.framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intersection_frames_publish_failed_total",
			Help: "Frames that could not be published to the frame bus",
		},
		[]string{"mode"},
	)

	m.registry.MustRegister(m.ticks)
	m.registry.MustRegister(m.phaseTransitions)
	m.registry.MustRegister(m.priorityRounds)
	m.registry.MustRegister(m.lifecycle)
	m.registry.MustRegister(m.remaining)
	m.registry.MustRegister(m.framesDropped)
}

// RecordTick records one emitted tick.
func (m *Manager) RecordTick(intersection string) {
	if !m.enabled {
		return
	}
	m.ticks.WithLabelValues(intersection).Inc()
}

// RecordPhaseTransition records a road entering a green or yellow phase.
func (m *Manager) RecordPhaseTransition(intersection, road, color string) {
	if !m.enabled {
		return
	}
	m.phaseTransitions.WithLabelValues(intersection, road, color).Inc()
}

// RecordPriorityRound records a session starting with flagged roads.
func (m *Manager) RecordPriorityRound(intersection string) {
	if !m.enabled {
		return
	}
	m.priorityRounds.WithLabelValues(intersection).Inc()
}

// SetLifecycle marks state as the current lifecycle state.
func (m *Manager) SetLifecycle(intersection, state string) {
	if !m.enabled {
		return
	}
	for _, s := range lifecycleStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.lifecycle.WithLabelValues(intersection, s).Set(v)
	}
}

// SetRemaining sets the remaining seconds shown for a road.
func (m *Manager) SetRemaining(intersection, road string, seconds int) {
	if !m.enabled {
		return
	}
	m.remaining.WithLabelValues(intersection, road).Set(float64(seconds))
}

// RecordFramePublishFailed records a frame the bus rejected.
func (m *Manager) RecordFramePublishFailed(mode string) {
	if !m.enabled {
		return
	}
	m.framesDropped.WithLabelValues(mode).Inc()
}
