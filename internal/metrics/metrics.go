// Package metrics exposes prometheus instrumentation for the detection
// cascade. The cascade core stays free of metrics calls; callers observe a
// pass from the outside using its PassStats.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trackforge/tld/internal/detect"
)

var (
	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tld",
		Subsystem: "cascade",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of one full detection pass.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	passesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tld",
		Subsystem: "cascade",
		Name:      "passes_total",
		Help:      "Completed detection passes.",
	})

	stageWindows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tld",
		Subsystem: "cascade",
		Name:      "stage_surviving_windows",
		Help:      "Windows surviving each cascade stage in the last pass.",
	}, []string{"stage"})

	detections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tld",
		Subsystem: "cascade",
		Name:      "detections",
		Help:      "Merged detections produced by the last pass.",
	})
)

// ObservePass records one completed detection pass.
func ObservePass(stats detect.PassStats) {
	passesTotal.Inc()
	passDuration.Observe(stats.Duration.Seconds())
	stageWindows.WithLabelValues("grid").Set(float64(stats.GridWindows))
	stageWindows.WithLabelValues("variance").Set(float64(stats.VarianceSurvivors))
	stageWindows.WithLabelValues("ensemble").Set(float64(stats.EnsembleSurvivors))
	stageWindows.WithLabelValues("nn").Set(float64(stats.ConfidentWindows))
	detections.Set(float64(stats.Detections))
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
