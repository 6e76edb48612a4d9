package pipeline

import "time"

// Metric status labels. These mirror the terminal queue statuses so the
// processed counter can be joined against queue stats.
const (
	StatusProcessed    = "processed"
	StatusFailed       = "failed"
	StatusSkippedEmpty = "skipped_empty"
)

// Log field constants
const (
	LogFieldCorrelationID = "correlation_id"
	LogFieldMessageID     = "message_id"
	LogFieldSender        = "sender"
	LogFieldStatus        = "status"
)

// Worker defaults
const (
	DefaultPollInterval    = 10 * time.Second
	DefaultBatchSize       = 1
	backlogGaugeInterval   = 30 * time.Second
	reclaimInterval        = 5 * time.Minute
	reclaimStuckAfter      = 15 * time.Minute
	reclaimMaxAttempts     = 3
	maxStoredErrorMsgChars = 500
)
