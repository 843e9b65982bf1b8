package model

import "time"

// TickerStat tracks one symbol's activity within the retention window.
type TickerStat struct {
	Symbol    string    `json:"symbol"`
	Mentions  int       `json:"mentions"`
	Sources   []string  `json:"sources"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// SourceStat tracks one configured source's activity within the
// retention window.
type SourceStat struct {
	Source           string  `json:"source"`
	Items            int     `json:"items"`
	AvgScore         float64 `json:"avg_score"`
	AvgComments      float64 `json:"avg_comments"`
	SpeculativeRatio float64 `json:"speculative_ratio"`
}

// SourceStatus describes the lifecycle state of one source's polling
// task.
type SourceStatus string

const (
	SourceOK               SourceStatus = "ok"
	SourceBackoff          SourceStatus = "backoff"
	SourceAuthFailed       SourceStatus = "auth_failed"
	SourceStopped          SourceStatus = "stopped"
	SourceStoppedWithError SourceStatus = "stopped_with_error"
)

// SourceState is the monitor's view of one polling task.
type SourceState struct {
	Source     string       `json:"source"`
	Status     SourceStatus `json:"status"`
	LastPoll   time.Time    `json:"last_poll"`
	ErrorCount int          `json:"error_count"`
}

// MonitorState is a point-in-time view of the whole monitor. Owned by
// the monitor, handed out by value.
type MonitorState struct {
	Active  bool                   `json:"active"`
	Since   time.Time              `json:"since"`
	Sources map[string]SourceState `json:"sources"`
}
