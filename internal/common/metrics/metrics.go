// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NLUParseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlu_parse_total",
			Help: "Total number of NLU outputs parsed, by strategy and status",
		},
		[]string{"strategy", "status"},
	)

	NLUParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlu_parse_duration_seconds",
			Help:    "Duration of NLU output parsing in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1},
		},
	)

	ImportanceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "importance_score",
			Help:    "Distribution of importance scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	LongTermPersistTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "longterm_persist_total",
			Help: "Long-term persistence decisions, by result",
		},
		[]string{"result"},
	)

	ContextRouteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_route_total",
			Help: "Context routing decisions, by preset",
		},
		[]string{"preset"},
	)

	ContextTokensSaved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "context_tokens_saved",
			Help:    "Estimated prompt tokens saved versus the full preset",
			Buckets: []float64{0, 100, 300, 500, 800, 1000, 1500},
		},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM requests, by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "llm_request_duration_seconds",
			Help: "Duration of LLM requests in seconds",
		},
		[]string{"purpose"},
	)

	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Human-attention escalations sent, by channel and result",
		},
		[]string{"channel", "result"},
	)
)
