package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventIngest EventType = "ingest"
)

// Event is one analytics record. Search events fill Query and Matches;
// ingest events fill the run fields.
type Event struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query,omitempty"`
	Matches   int       `json:"matches"`
	Failed    bool      `json:"failed,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Archive   string    `json:"archive,omitempty"`
	Status    string    `json:"status,omitempty"`
	Processed int       `json:"processed,omitempty"`
	Skipped   int       `json:"skipped,omitempty"`
	Errors    int       `json:"errors,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
