package qrstream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the transfer counters. Use NewMetrics(nil) for an
// unregistered set (tests, one-shot CLI runs).
type Metrics struct {
	Frames       *prometheus.CounterVec // by result
	Sessions     *prometheus.CounterVec // by event
	Solved       prometheus.Gauge
	IntakeDrops  prometheus.Counter
	FramesServed *prometheus.CounterVec // by player mode
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrstream",
			Name:      "frames_total",
			Help:      "Frames fed to the receiver, by result.",
		}, []string{"result"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrstream",
			Name:      "sessions_total",
			Help:      "Receiver session events.",
		}, []string{"event"}),
		Solved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qrstream",
			Name:      "solved_chunks",
			Help:      "Source chunks solved in the session in progress.",
		}),
		IntakeDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrstream",
			Name:      "intake_drops_total",
			Help:      "Frames dropped because the intake ring was full.",
		}),
		FramesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrstream",
			Name:      "player_frames_served_total",
			Help:      "Frame images served by the player.",
		}, []string{"mode"}),
	}
	if reg != nil {
		reg.MustRegister(m.Frames, m.Sessions, m.Solved, m.IntakeDrops, m.FramesServed)
	}
	return m
}

func (m *Metrics) frame(result string)  { m.Frames.WithLabelValues(result).Inc() }
func (m *Metrics) session(event string) { m.Sessions.WithLabelValues(event).Inc() }
