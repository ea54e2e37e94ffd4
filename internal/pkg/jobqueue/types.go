package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType names the handler a job is routed to.
type JobType string

const (
	JobTypeSendEmail JobType = "send_email"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job is the JSON document stored under the job key while the job is alive.
// Completed jobs are deleted; permanently failed ones expire with the key TTL.
type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Status    JobStatus              `json:"status"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	LastError string                 `json:"last_error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	StartedAt *time.Time             `json:"started_at,omitempty"`
	RetryAt   *time.Time             `json:"retry_at,omitempty"`
}

// SendEmailJobPayload is one outgoing notification email
type SendEmailJobPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	Kind     string `json:"kind"`
	UserID   uint   `json:"user_id"`
}

// ToMap converts the payload to a map for storage
func (p SendEmailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"to":        p.To,
		"subject":   p.Subject,
		"html_body": p.HTMLBody,
		"kind":      p.Kind,
		"user_id":   p.UserID,
	}
}

// SendEmailJobPayloadFromMap decodes a payload that went through JSON.
func SendEmailJobPayloadFromMap(data map[string]interface{}) (*SendEmailJobPayload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload SendEmailJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (j *Job) start(now time.Time) {
	j.Status = JobStatusProcessing
	j.Attempts++
	j.UpdatedAt = now
	j.StartedAt = &now
	j.RetryAt = nil
}

// fail records a failed attempt and reports whether another one is allowed.
// The next attempt is due after base doubled per previous attempt.
func (j *Job) fail(err error, base time.Duration, now time.Time) bool {
	j.LastError = err.Error()
	j.UpdatedAt = now
	if j.Attempts >= j.MaxTries {
		j.Status = JobStatusFailed
		j.RetryAt = nil
		return false
	}

	due := now.Add(base << (j.Attempts - 1))
	j.Status = JobStatusRetrying
	j.RetryAt = &due
	return true
}

func (j *Job) complete(now time.Time) {
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.LastError = ""
	j.RetryAt = nil
}

// stale reports whether a job sitting in the processing list has not been
// touched for longer than maxAge.
func (j *Job) stale(now time.Time, maxAge time.Duration) bool {
	last := j.UpdatedAt
	if j.StartedAt != nil && j.StartedAt.After(last) {
		last = *j.StartedAt
	}
	return now.Sub(last) > maxAge
}
