package ports

import "time"

// IngestMetrics receives ingestion counters.
type IngestMetrics interface {
	IncrementUpdatesCreated()
	IncrementRecord(kind, outcome string)
	IncrementCreated(entity string, created bool)
	ObserveBatch(kind string, start time.Time)
}

// Record outcomes reported through IngestMetrics.IncrementRecord.
const (
	OutcomeIngested = "ingested"
	OutcomeSkipped  = "skipped"
)
