package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
)

const defaultMailBatch = 50

// Deliverer drains the email outbox.
type Deliverer interface {
	Deliver(ctx context.Context, sender mail.Sender, owner string, limit int, ttl time.Duration) (mail.DeliveryReport, error)
}

// MailDelivery sends due outbox messages through the configured sender.
type MailDelivery struct {
	outbox   Deliverer
	sender   mail.Sender
	owner    string
	batch    int
	leaseTTL time.Duration
	observe  func(mail.Attempt)
}

// NewMailDelivery builds the mail job. owner identifies this worker's
// leases; observe, when set, sees every delivery attempt.
func NewMailDelivery(outbox Deliverer, sender mail.Sender, owner string, leaseTTL time.Duration, observe func(mail.Attempt)) *MailDelivery {
	return &MailDelivery{
		outbox:   outbox,
		sender:   sender,
		owner:    strings.TrimSpace(owner),
		batch:    defaultMailBatch,
		leaseTTL: leaseTTL,
		observe:  observe,
	}
}

// Name implements Job.
func (j *MailDelivery) Name() string { return JobMail }

// Run leases one batch and reports the outcomes.
func (j *MailDelivery) Run(ctx context.Context, _ time.Time) (Result, error) {
	if j == nil || j.outbox == nil || j.sender == nil {
		return Result{}, Permanentf("mail delivery is not configured")
	}
	if j.owner == "" {
		return Result{}, Permanentf("mail lease owner is required")
	}
	report, err := j.outbox.Deliver(ctx, j.sender, j.owner, j.batch, j.leaseTTL)
	if j.observe != nil {
		for _, attempt := range report.Attempts {
			j.observe(attempt)
		}
	}
	result := Result{
		Processed: report.Sent,
		Failed:    report.Dead,
		Detail:    fmt.Sprintf("sent=%d retried=%d dead=%d", report.Sent, report.Retried, report.Dead),
	}
	if err != nil {
		return result, fmt.Errorf("deliver mail: %w", err)
	}
	return result, nil
}
