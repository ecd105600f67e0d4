// Package storage defines how the worker records job runs.
package storage

import (
	"context"
	"time"
)

// Job run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeDisabled  = "disabled"
)

// JobRun is one durable record of a background job execution.
type JobRun struct {
	ID        int64
	Job       string
	Worker    string
	Outcome   string
	Processed int
	Failed    int
	Detail    string
	LastError string
	StartedAt time.Time
	Duration  time.Duration
}

// JobRunStore persists job run records.
type JobRunStore interface {
	RecordJobRun(ctx context.Context, run JobRun) error
	ListJobRuns(ctx context.Context, job string, limit int) ([]JobRun, error)
}
