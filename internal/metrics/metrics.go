package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	StrokesTotal       prometheus.Counter
	ImagesTotal        prometheus.Counter
	UndosTotal         prometheus.Counter
	GenerationFailures *prometheus.CounterVec
	QuestsCompleted    prometheus.Counter
	ActiveQuests       prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New registers the collectors on the default registry once.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			StrokesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "storytopia_canvas_strokes_total",
				Help: "Total number of strokes committed to canvas history",
			}),
			ImagesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "storytopia_canvas_images_total",
				Help: "Total number of images inserted onto a canvas",
			}),
			UndosTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "storytopia_canvas_undos_total",
				Help: "Total number of undo operations applied",
			}),
			GenerationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "storytopia_generation_failures_total",
				Help: "Failed calls to the generation service by kind",
			}, []string{"kind"}),
			QuestsCompleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "storytopia_quests_completed_total",
				Help: "Total number of quests played to completion",
			}),
			ActiveQuests: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "storytopia_active_quest_sessions",
				Help: "Current number of live quest sessions",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) RecordStroke() {
	if m == nil || m.StrokesTotal == nil {
		return
	}
	m.StrokesTotal.Inc()
}

func (m *Metrics) RecordImage() {
	if m == nil || m.ImagesTotal == nil {
		return
	}
	m.ImagesTotal.Inc()
}

func (m *Metrics) RecordUndo() {
	if m == nil || m.UndosTotal == nil {
		return
	}
	m.UndosTotal.Inc()
}

func (m *Metrics) RecordGenerationFailure(kind string) {
	if m == nil || m.GenerationFailures == nil {
		return
	}
	m.GenerationFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordQuestCompleted() {
	if m == nil || m.QuestsCompleted == nil {
		return
	}
	m.QuestsCompleted.Inc()
}

func (m *Metrics) QuestStarted() {
	if m == nil || m.ActiveQuests == nil {
		return
	}
	m.ActiveQuests.Inc()
}

func (m *Metrics) QuestEnded() {
	if m == nil || m.ActiveQuests == nil {
		return
	}
	m.ActiveQuests.Dec()
}
