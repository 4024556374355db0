// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "lexdraft"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// 起草向导指标
	DraftingInquiryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drafting",
			Name:      "inquiry_total",
			Help:      "Total number of clarification inquiries by outcome",
		},
		[]string{"status"}, // clarify/proceed/fallback/rejected/superseded
	)

	DraftingGenerationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drafting",
			Name:      "generation_total",
			Help:      "Total number of document generations by outcome",
		},
		[]string{"status", "skip_clarification"},
	)

	DraftingGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "drafting",
			Name:      "generation_duration_seconds",
			Help:      "Document generation round-trip in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	DraftingSynthesizedVariables = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drafting",
			Name:      "synthesized_variables_total",
			Help:      "Placeholders found in generated HTML but missing from template variables",
		},
	)

	ActiveWizards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "drafting",
			Name:      "active_wizards",
			Help:      "Current number of open drafting wizards",
		},
	)

	// 模板指标
	TemplateUploadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "template",
			Name:      "upload_total",
			Help:      "Template upload phases by status",
		},
		[]string{"phase", "status"}, // phase: validate/init/put/complete
	)

	// 作用域状态指标
	ScopeActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scope",
			Name:      "active",
			Help:      "Number of initialized UI state scopes",
		},
	)

	// 后端调用指标
	BackendCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_total",
			Help:      "Total number of backend HTTP calls",
		},
		[]string{"endpoint", "status"},
	)

	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Backend HTTP call duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)
)
