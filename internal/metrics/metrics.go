package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docintake_http_requests_total",
	Help: "Total number of requests labelled by route and status",
}, []string{"route", "status"})

var ocrAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docintake_ocr_attempts_total",
	Help: "OCR strategy attempts labelled by strategy and outcome",
}, []string{"strategy", "outcome"})

var ocrExhausted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "docintake_ocr_exhausted_total",
	Help: "OCR runs where every strategy failed to produce usable text",
})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docintake_dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
}, []string{"service"})

var stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docintake_stage_duration_seconds",
	Help:    "Time spent executing a pipeline stage.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
}, []string{"stage", "result"})

var transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docintake_job_transitions_total",
	Help: "Committed job status transitions",
}, []string{"from", "to"})

var extractionFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docintake_extraction_fallbacks_total",
	Help: "Extraction runs that fell through an extractor, labelled by reason",
}, []string{"extractor", "reason"})

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "docintake_queue_depth",
	Help: "Jobs waiting in the in-process advance queue",
})

func ObserveOCRAttempt(strategy, outcome string, elapsed time.Duration) {
	ocrAttempts.WithLabelValues(strategy, outcome).Inc()
	dependencyLatency.WithLabelValues("ocr_" + strategy).Observe(elapsed.Seconds())
}

func IncOCRExhausted() {
	ocrExhausted.Inc()
}

func CaptureExecutionMetrics(service string, elapsed time.Duration) {
	dependencyLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

func ObserveStage(stage, result string, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage, result).Observe(elapsed.Seconds())
}

func IncTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

func IncExtractionFallback(extractor, reason string) {
	extractionFallbacks.WithLabelValues(extractor, reason).Inc()
}

func IncrementQueueDepth() {
	queueDepth.Inc()
}

func DecrementQueueDepth() {
	queueDepth.Dec()
}

var complianceMatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docintake_compliance_matches_total",
	Help: "Compliance asset match attempts labelled by whether an asset cleared the threshold",
}, []string{"matched"})

func IncComplianceMatch(matched bool) {
	if matched {
		complianceMatches.WithLabelValues("true").Inc()
		return
	}
	complianceMatches.WithLabelValues("false").Inc()
}
