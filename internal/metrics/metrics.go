package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_cache_hits_total",
			Help: "Total number of cache hits by key domain",
		},
		[]string{"domain"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_cache_misses_total",
			Help: "Total number of cache misses by key domain",
		},
		[]string{"domain"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_cache_errors_total",
			Help: "Total number of cache backend errors downgraded to misses",
		},
		[]string{"op"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the sliding-window limiter",
		},
		[]string{"bucket"},
	)

	TurnsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finsight_turns_started_total",
			Help: "Total number of conversational turns accepted into the pipeline",
		},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "finsight_turn_duration_seconds",
			Help: "Duration of a full conversational turn in seconds",
		},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_tool_invocations_total",
			Help: "Total number of model-initiated tool invocations",
		},
		[]string{"tool"},
	)
)
