package model

import (
	"encoding/json"
	"time"

	"youtube-outlier-discovery/internal/domain"
)

type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Job is a unit of queued work. The payload is opaque to the queue.
// Priority convention: lower numbers run sooner; ties go to the older job.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	State       JobState        `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	StallCount  int             `json:"stall_count"`
	LastError   string          `json:"last_error,omitempty"`
	RunAfter    time.Time       `json:"run_after"`
	HeartbeatAt time.Time       `json:"heartbeat_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJob builds a waiting job; a delay pushes it to the delayed state until RunAfter.
func NewJob(id, queue, typ string, payload json.RawMessage, priority, maxAttempts int, delay time.Duration) (*Job, error) {
	if id == "" || queue == "" || typ == "" {
		return nil, domain.ErrInvalidArgument
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	now := time.Now()
	j := &Job{
		ID:          id,
		Queue:       queue,
		Type:        typ,
		Payload:     payload,
		Priority:    priority,
		State:       JobStateWaiting,
		MaxAttempts: maxAttempts,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if delay > 0 {
		j.State = JobStateDelayed
		j.RunAfter = now.Add(delay)
	}
	return j, nil
}

// Retryable reports whether a failed attempt should go back to the queue.
func (j *Job) Retryable() bool { return j.Attempts < j.MaxAttempts }
