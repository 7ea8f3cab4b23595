package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relnote"

var (
	// RunsTotal counts finished pipeline runs by terminal status
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline runs by terminal status.",
	}, []string{"status"})

	// TriggersCoalesced counts run triggers dropped because the queue was full
	TriggersCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "triggers_coalesced_total",
		Help:      "Run triggers dropped by the coalescing queue.",
	})

	// ClassificationsTotal counts classified records by deciding stage
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifications_total",
		Help:      "Classified records by stage (rule, model, fallback).",
	}, []string{"by"})

	// GenerationAttempts counts summary generation attempts by audience and result
	GenerationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_attempts_total",
		Help:      "Summary generation attempts by audience and result.",
	}, []string{"audience", "result"})

	// PublishTotal counts publish hook invocations by publisher and result
	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_total",
		Help:      "Publish hook invocations by publisher and result.",
	}, []string{"publisher", "result"})

	// SourceRetries counts provider fetch retries
	SourceRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_retries_total",
		Help:      "Provider fetch retries by reason.",
	}, []string{"reason"})
)
