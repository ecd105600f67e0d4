package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
)

// DuesGenerator creates one month of dues without a caller.
type DuesGenerator interface {
	GenerateDuesSystem(ctx context.Context, associationID string, period contribution.Period) (contribution.GenerateResult, error)
}

// DuesGeneration makes sure every association has the current month's
// dues. Generation skips existing rows, so repeated runs are harmless.
type DuesGeneration struct {
	associations AssociationLister
	dues         DuesGenerator
}

// NewDuesGeneration builds the dues job.
func NewDuesGeneration(associations AssociationLister, dues DuesGenerator) *DuesGeneration {
	return &DuesGeneration{associations: associations, dues: dues}
}

// Name implements Job.
func (j *DuesGeneration) Name() string { return JobDues }

// Run generates dues for the month containing now. One association
// failing does not stop the others.
func (j *DuesGeneration) Run(ctx context.Context, now time.Time) (Result, error) {
	if j == nil || j.associations == nil || j.dues == nil {
		return Result{}, Permanentf("dues generation is not configured")
	}
	assocs, err := j.associations.All(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list associations: %w", err)
	}
	period := contribution.PeriodOf(now)
	var result Result
	var errs []error
	created, credited := 0, decimal.Zero
	for _, assoc := range assocs {
		generated, err := j.dues.GenerateDuesSystem(ctx, assoc.ID, period)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("association %s: %w", assoc.Slug, err))
			continue
		}
		result.Processed++
		created += generated.Created
		credited = credited.Add(generated.CreditApplied)
	}
	result.Detail = fmt.Sprintf("period=%s created=%d credit_applied=%s", period, created, credited.StringFixed(2))
	return result, errors.Join(errs...)
}
