// Package domain holds the background jobs the worker schedules.
package domain

import (
	"context"
	"time"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

// Job names, also used as health components and run records.
const (
	JobMail      = "mail"
	JobImport    = "import"
	JobDues      = "dues"
	JobReminders = "reminders"
	JobProposals = "proposals"
)

// Actor is recorded as the creator of worker-initiated changes.
const Actor = "worker"

// Result summarizes one job run.
type Result struct {
	Processed int
	Failed    int
	Detail    string
}

// Job is one unit of scheduled background work.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) (Result, error)
}

// AssociationLister lists every association for system jobs.
type AssociationLister interface {
	All(ctx context.Context) ([]association.Association, error)
}
