package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research pipeline metrics
	ResearchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aim_research_runs_total",
			Help: "Total number of research pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	ResearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aim_research_duration_seconds",
			Help:    "End-to-end research pipeline duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 90},
		},
	)

	FindingsPerReport = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aim_research_findings",
			Help:    "Number of key findings per research report",
			Buckets: []float64{0, 1, 3, 5, 10, 15, 20, 30},
		},
	)

	// Generative model metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aim_llm_requests_total",
			Help: "Total number of generative model requests",
		},
		[]string{"model", "status"},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aim_llm_request_duration_seconds",
			Help:    "Generative model request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 90},
		},
		[]string{"model"},
	)

	// Report metrics
	ReportsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aim_reports_created_total",
			Help: "Total number of research reports created",
		},
		[]string{"type"},
	)

	ReportTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aim_report_transitions_total",
			Help: "Total number of report status transitions",
		},
		[]string{"from", "to"},
	)

	AssetsLinked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aim_report_assets_linked_total",
			Help: "Total number of archive assets linked to reports",
		},
	)

	// Knowledge base metrics
	KnowledgeEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aim_knowledge_entries_total",
			Help: "Total number of knowledge base entries added",
		},
		[]string{"category", "confidence"},
	)

	// Upload metrics
	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aim_uploads_total",
			Help: "Total number of file uploads",
		},
		[]string{"status"},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aim_upload_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aim_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aim_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aim_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	IdempotentReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aim_http_idempotent_replays_total",
			Help: "Total number of responses replayed from the idempotency cache",
		},
	)
)

// Research outcomes
const (
	OutcomeOK            = "ok"
	OutcomeParseError    = "parse_error"
	OutcomeUpstreamError = "upstream_error"
)

// RecordResearch records one pipeline run
func RecordResearch(outcome string, durationSeconds float64, findings int) {
	ResearchRuns.WithLabelValues(outcome).Inc()
	ResearchDuration.Observe(durationSeconds)
	FindingsPerReport.Observe(float64(findings))
}

// RecordLLMRequest records one generative model call
func RecordLLMRequest(model, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(model, status).Inc()
	LLMDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordHTTPRequest records one served HTTP request
func RecordHTTPRequest(route, method, code string, durationSeconds float64) {
	HTTPRequests.WithLabelValues(route, method, code).Inc()
	HTTPDuration.WithLabelValues(route, method).Observe(durationSeconds)
}

// RecordUpload records an upload attempt
func RecordUpload(status string, size int64) {
	Uploads.WithLabelValues(status).Inc()
	if size > 0 {
		UploadBytes.Observe(float64(size))
	}
}
