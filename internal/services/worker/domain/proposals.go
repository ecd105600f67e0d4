package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/voting"
)

// ProposalCloser closes proposals whose voting window has ended.
type ProposalCloser interface {
	CloseDueSystem(ctx context.Context, associationID string) ([]voting.Proposal, error)
}

// ProposalClosing freezes the outcome of proposals past their closing time.
type ProposalClosing struct {
	associations AssociationLister
	voting       ProposalCloser
}

// NewProposalClosing builds the proposal job.
func NewProposalClosing(associations AssociationLister, closer ProposalCloser) *ProposalClosing {
	return &ProposalClosing{associations: associations, voting: closer}
}

// Name implements Job.
func (j *ProposalClosing) Name() string { return JobProposals }

// Run closes every due proposal.
func (j *ProposalClosing) Run(ctx context.Context, _ time.Time) (Result, error) {
	if j == nil || j.associations == nil || j.voting == nil {
		return Result{}, Permanentf("proposal closing is not configured")
	}
	assocs, err := j.associations.All(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list associations: %w", err)
	}
	var result Result
	var errs []error
	for _, assoc := range assocs {
		closed, err := j.voting.CloseDueSystem(ctx, assoc.ID)
		result.Processed += len(closed)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("association %s: %w", assoc.Slug, err))
		}
	}
	result.Detail = fmt.Sprintf("closed=%d", result.Processed)
	return result, errors.Join(errs...)
}
