package model

import "time"

// JobState represents the lifecycle of one stage execution.
type JobState string

const (
	JobNew     JobState = "new"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobError   JobState = "error"
)

// Job records one pipeline stage execution. At most one Job per project is
// running at any time.
type Job struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	State     JobState  `json:"state"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
