// Package scheduler implements the multi-key dispatch loop: it assigns
// per-file generation jobs to eligible API keys, keeps every key inside its
// per-minute budget, fails over on key errors, and aggregates results.
package scheduler

import (
	"context"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of one unit of work.
type JobState string

// Job lifecycle states. A job occupies exactly one state at a time; InFlight
// means exactly one credential is currently processing it.
const (
	JobPending   JobState = "pending"
	JobInFlight  JobState = "in_flight"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job is one unit of work: produce metadata for one file. Jobs are owned
// exclusively by the dispatcher for the lifetime of a run.
type Job struct {
	ID      uuid.UUID
	File    string
	Payload any

	// Attempts counts dispatches of this job, including the one that
	// eventually succeeded.
	Attempts         int
	State            JobState
	TerminalReason   string
	Result           any
	LastCredentialID uuid.UUID
}

// NewJob creates a pending job for one file. The payload travels to the
// generator untouched.
func NewJob(file string, payload any) *Job {
	return &Job{
		ID:      uuid.New(),
		File:    file,
		Payload: payload,
		State:   JobPending,
	}
}

// Request is what the dispatcher hands to the generator for one attempt.
type Request struct {
	File    string
	Payload any
}

// Generator is the external metadata-generation call. Implementations must
// honor ctx cancellation and return a ClassifiedError when the failure class
// is known; unclassified errors are treated as transient.
type Generator interface {
	Generate(ctx context.Context, secret string, req Request) (any, error)
}

// Validator performs the single lightweight probe that decides whether a key
// may enter rotation. It must not retry internally; retry policy belongs to
// the caller.
type Validator interface {
	Validate(ctx context.Context, secret string) error
}
