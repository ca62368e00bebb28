package core

import "time"

// RunStatus is the lifecycle state of an embedding run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one invocation of the embedding pipeline.
type Run struct {
	ID           string            `json:"id"`           // Unique identifier for the run
	Tag          string            `json:"tag"`          // Namespace of the run's artifacts
	Dataset      string            `json:"dataset"`      // Path of the input table
	Parameters   map[string]any    `json:"parameters"`   // Resolved options
	Status       RunStatus         `json:"status"`       // running, completed or failed
	Observations int               `json:"observations"` // Rows embedded
	Features     int               `json:"features"`     // Columns in the input table
	Clusters     int               `json:"clusters"`     // HDBSCAN clusters, 0 when not computed
	Noise        int               `json:"noise"`        // HDBSCAN noise points
	Artifacts    map[string]string `json:"artifacts"`    // Artifact name to path
	Error        string            `json:"error"`        // Failure message, if any
	StartedAt    time.Time         `json:"started_at"`   // When the run began
	CompletedAt  time.Time         `json:"completed_at"` // When the run finished, zero while running
}

// Duration returns how long the run took, or 0 while it is still running.
func (r Run) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
