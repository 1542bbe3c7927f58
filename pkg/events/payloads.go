package events

// Run outcome values carried by RunCompleted.
const (
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// RunStarted is the payload of TypeRunStarted.
type RunStarted struct {
	Model      string   `json:"model"`
	Provider   string   `json:"provider"`
	Strategies []string `json:"strategies"`
	Categories []string `json:"categories"`
	Resume     string   `json:"resume"`

	// MaxAttempts is the attempt budget of one question, when known.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// RunCompleted is the payload of TypeRunCompleted.
type RunCompleted struct {
	Status       string `json:"status"`
	Answered     int    `json:"answered"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	PairsSkipped int    `json:"pairs_skipped"`
	DurationMs   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// Pair is the payload of the pair.* event types.
type Pair struct {
	Strategy string `json:"strategy"`
	Category string `json:"category"`
	// Questions is the number of records in the category, when known.
	Questions int `json:"questions,omitempty"`
	// Reason explains a skipped pair.
	Reason   string `json:"reason,omitempty"`
	Answered int    `json:"answered,omitempty"`
	Failed   int    `json:"failed,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
}

// Attempt is the payload of the attempt.* event types.
type Attempt struct {
	Strategy  string `json:"strategy"`
	Category  string `json:"category"`
	Index     int    `json:"index"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}
