package pipeline

// State is the phase of the ingestion pipeline.
type State int32

const (
	StateIdle State = iota
	StateWalking
	StateExtracting
	StatePersisting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWalking:
		return "walking"
	case StateExtracting:
		return "extracting"
	case StatePersisting:
		return "persisting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunStatus is how an ingestion run ended.
type RunStatus string

const (
	StatusCommitted    RunStatus = "committed"
	StatusArchiveError RunStatus = "archive_error"
	StatusPersistError RunStatus = "persist_error"
	StatusCancelled    RunStatus = "cancelled"
)
