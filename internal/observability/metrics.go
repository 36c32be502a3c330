package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	runsStartedTotal   prometheus.Counter
	runsFinishedTotal  *prometheus.CounterVec
	runDurationSeconds prometheus.Histogram
	caseResultsTotal   *prometheus.CounterVec
	judgeFailuresTotal prometheus.Counter

	streamClientsActive  prometheus.Gauge
	uploadRequestsTotal  *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
	uploadLatencySeconds prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used by the API and
// the evaluation run engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		runsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evaluation_runs_started_total",
			Help: "Total number of evaluation runs started.",
		})

		runsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_runs_finished_total",
			Help: "Total number of evaluation runs reaching a terminal status.",
		}, []string{"status"})

		runDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evaluation_run_duration_seconds",
			Help:    "Wall-clock duration of evaluation runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		})

		caseResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_case_results_total",
			Help: "Total number of test case results by outcome.",
		}, []string{"outcome"})

		judgeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evaluation_judge_failures_total",
			Help: "Total number of judge scoring calls that failed after retries.",
		})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "run_stream_clients_active",
			Help: "Number of websocket clients subscribed to run progress streams.",
		})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attachment_uploads_total",
			Help: "Total number of accepted attachment uploads by detected type.",
		}, []string{"type"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attachment_uploads_rejected_total",
			Help: "Total number of rejected attachment uploads by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attachment_upload_latency_seconds",
			Help:    "Latency distribution for attachment uploads.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			runsStartedTotal, runsFinishedTotal, runDurationSeconds,
			caseResultsTotal, judgeFailuresTotal,
			streamClientsActive, uploadRequestsTotal, uploadRejectedTotal, uploadLatencySeconds,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// RunsStarted exposes the counter for started evaluation runs.
func RunsStarted() prometheus.Counter {
	RegisterMetrics()
	return runsStartedTotal
}

// RunsFinished exposes the counter for finished runs labeled by status.
func RunsFinished() *prometheus.CounterVec {
	RegisterMetrics()
	return runsFinishedTotal
}

// RunDuration exposes the run duration histogram.
func RunDuration() prometheus.Histogram {
	RegisterMetrics()
	return runDurationSeconds
}

// CaseResults exposes the counter for test case outcomes.
func CaseResults() *prometheus.CounterVec {
	RegisterMetrics()
	return caseResultsTotal
}

// JudgeFailures exposes the counter for exhausted judge scoring calls.
func JudgeFailures() prometheus.Counter {
	RegisterMetrics()
	return judgeFailuresTotal
}

// StreamClients exposes the gauge for active run stream subscribers.
func StreamClients() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}

// UploadRequests exposes the counter for accepted uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected exposes the counter for rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency exposes the upload latency histogram.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}
