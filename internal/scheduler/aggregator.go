package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thisnaeem/metagen/internal/keypool"
)

// Progress is a live snapshot of run advancement. Completed never decreases.
type Progress struct {
	Completed   int
	Total       int
	CurrentFile string
}

// JobOutcome is the final record of one job in the report.
type JobOutcome struct {
	JobID        uuid.UUID
	File         string
	Attempts     int
	CredentialID uuid.UUID
	Result       any
	Reason       string
}

// Report is the aggregated result of a run. Every job appears exactly once,
// in either Succeeded or Failed.
type Report struct {
	Succeeded   []JobOutcome
	Failed      []JobOutcome
	Credentials []keypool.Snapshot
	Cancelled   bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// aggregator collects per-job outcomes and publishes progress events. It is a
// passive observer: it never influences scheduling. Completions arrive in
// arbitrary order (whichever call finishes first).
type aggregator struct {
	mu          sync.Mutex
	total       int
	completed   int
	currentFile string
	succeeded   []JobOutcome
	failed      []JobOutcome
	events      chan Progress
}

func newAggregator(total int) *aggregator {
	return &aggregator{
		total:  total,
		events: make(chan Progress, 64),
	}
}

// jobStarted notes the file currently being dispatched and emits progress.
func (a *aggregator) jobStarted(file string) {
	a.mu.Lock()
	a.currentFile = file
	p := a.progressLocked()
	a.mu.Unlock()
	a.emit(p)
}

// jobSettled records a terminal job and emits progress.
func (a *aggregator) jobSettled(job *Job) {
	a.mu.Lock()
	outcome := JobOutcome{
		JobID:        job.ID,
		File:         job.File,
		Attempts:     job.Attempts,
		CredentialID: job.LastCredentialID,
		Result:       job.Result,
		Reason:       job.TerminalReason,
	}
	if job.State == JobSucceeded {
		a.succeeded = append(a.succeeded, outcome)
	} else {
		a.failed = append(a.failed, outcome)
	}
	a.completed++
	p := a.progressLocked()
	a.mu.Unlock()
	a.emit(p)
}

func (a *aggregator) progressLocked() Progress {
	return Progress{
		Completed:   a.completed,
		Total:       a.total,
		CurrentFile: a.currentFile,
	}
}

// emit publishes without blocking the dispatch loop. A slow consumer loses
// intermediate events, not the final state: counters are monotone and the
// channel close signals completion.
func (a *aggregator) emit(p Progress) {
	select {
	case a.events <- p:
	default:
	}
}

// report builds the final report from the collected outcomes.
func (a *aggregator) report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Report{
		Succeeded: append([]JobOutcome(nil), a.succeeded...),
		Failed:    append([]JobOutcome(nil), a.failed...),
	}
}

func (a *aggregator) close() {
	close(a.events)
}
