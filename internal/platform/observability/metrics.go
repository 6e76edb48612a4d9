package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NewslettersIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_newsletters_ingested_total",
		Help: "The total number of newsletters accepted into the queue",
	}, []string{"adapter"})

	NewslettersDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_newsletters_duplicate_total",
		Help: "The total number of newsletters skipped because the message id was already queued",
	}, []string{"adapter"})

	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_webhook_requests_total",
		Help: "The total number of inbound email webhook requests",
	}, []string{"status"})

	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_feed_fetches_total",
		Help: "The total number of feed poll attempts",
	}, []string{"status"})

	PipelineProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_pipeline_processed_total",
		Help: "The total number of newsletters processed by the pipeline",
	}, []string{"status"})

	PipelineBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nutshell_pipeline_backlog_size",
		Help: "Number of unprocessed newsletters in the queue",
	})

	PipelineNewsletterDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nutshell_pipeline_newsletter_duration_seconds",
		Help:    "Duration in seconds to process one newsletter end to end",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	ChunksExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_chunks_extracted_total",
		Help: "The total number of chunk extraction calls by outcome",
	}, []string{"outcome"})

	ComposeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nutshell_compose_fallbacks_total",
		Help: "Total number of direct-parse calls that fell back to chunked extraction",
	})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nutshell_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "task"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_llm_requests_total",
		Help: "Total number of LLM requests",
	}, []string{"model", "task", "status"})

	InsightsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_insights_persisted_total",
		Help: "Total number of insights written to the index by path",
	}, []string{"path"})

	InsightFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nutshell_insight_failures_total",
		Help: "Total number of insights that failed lookup, insert, or merge",
	})

	InsightsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_insights_filtered_total",
		Help: "Total number of insights dropped by the quality filter",
	}, []string{"reason"})

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_embedding_requests_total",
		Help: "Total number of embedding requests",
	}, []string{"provider", "model", "status"})

	EmbeddingTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_embedding_tokens_total",
		Help: "Total number of tokens processed for embeddings",
	}, []string{"provider", "model"})

	EmbeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nutshell_embedding_latency_seconds",
		Help:    "Latency of embedding requests by provider",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider", "model"})

	EmbeddingEstimatedCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_embedding_estimated_cost_millicents_total",
		Help: "Estimated embedding cost in millicents (0.001 cents)",
	}, []string{"provider", "model"})

	EmbeddingProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nutshell_embedding_provider_available",
		Help: "Whether embedding provider is currently available (0=no, 1=yes)",
	}, []string{"provider"})

	EmbeddingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutshell_embedding_fallbacks_total",
		Help: "Total number of embedding fallback events",
	}, []string{"from_provider", "to_provider"})
)
