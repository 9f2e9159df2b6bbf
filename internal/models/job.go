package models

import "time"

// JobType identifies the kind of async work a processing job carries.
type JobType string

const (
	JobTypeMessageAnalysis JobType = "message_analysis"
	JobTypeThreadAnalysis  JobType = "thread_analysis"
)

// ProcessingJob is one queued unit of async work, tied to a message or thread.
// Workers claim a job via the atomic pending -> processing transition; a reaper
// returns orphaned processing jobs older than a timeout back to pending.
type ProcessingJob struct {
	ID            string     `json:"id"`
	Type          JobType    `json:"type"`
	MessageID     string     `json:"message_id,omitempty"`
	ThreadID      string     `json:"thread_id,omitempty"`
	Status        AIStatus   `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
