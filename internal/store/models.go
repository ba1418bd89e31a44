package store

import "time"

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Run is one pipeline invocation as recorded in the ledger.
type Run struct {
	ID         string     `json:"id"`
	Request    string     `json:"request"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"` // running, done, failed
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StepEntry is what a run produced for one step. Empty fields are left
// untouched when an entry is recorded again.
type StepEntry struct {
	StepNumber       int    `json:"step_number"`
	Action           string `json:"action"`
	SceneDescription string `json:"scene_description"`
	ImagePath        string `json:"image_path"`
}
