package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	notifications "github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
	"github.com/louisbranch/vvebeheer/internal/services/notifications/render"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
)

const reminderSource = "dues"

// OverdueLister finds members behind on their dues.
type OverdueLister interface {
	OverdueMembers(ctx context.Context, associationID string, asOf time.Time, graceDays int) ([]contribution.Overdue, error)
}

// Dispatcher delivers notification events.
type Dispatcher interface {
	Dispatch(ctx context.Context, event notifications.Event) (notifications.DispatchResult, error)
}

// Reminders notifies linked members whose dues are overdue by more than
// the grace period. Each member is reminded once per newest overdue period.
type Reminders struct {
	associations AssociationLister
	dues         OverdueLister
	dispatcher   Dispatcher
	graceDays    int
}

// NewReminders builds the reminder job.
func NewReminders(associations AssociationLister, dues OverdueLister, dispatcher Dispatcher, graceDays int) *Reminders {
	if graceDays < 0 {
		graceDays = 0
	}
	return &Reminders{associations: associations, dues: dues, dispatcher: dispatcher, graceDays: graceDays}
}

// Name implements Job.
func (j *Reminders) Name() string { return JobReminders }

// Run sends reminders as of now. Members without an account are skipped.
func (j *Reminders) Run(ctx context.Context, now time.Time) (Result, error) {
	if j == nil || j.associations == nil || j.dues == nil || j.dispatcher == nil {
		return Result{}, Permanentf("reminders are not configured")
	}
	assocs, err := j.associations.All(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list associations: %w", err)
	}
	var result Result
	var errs []error
	skipped := 0
	for _, assoc := range assocs {
		overdue, err := j.dues.OverdueMembers(ctx, assoc.ID, now, j.graceDays)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("association %s: %w", assoc.Slug, err))
			continue
		}
		for _, o := range overdue {
			if o.UserID == "" || len(o.Periods) == 0 {
				skipped++
				continue
			}
			if _, err := j.dispatcher.Dispatch(ctx, reminderEvent(assoc.ID, assoc.Name, o)); err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("remind member %s: %w", o.MemberID, err))
				continue
			}
			result.Processed++
		}
	}
	result.Detail = fmt.Sprintf("reminded=%d skipped=%d grace_days=%d", result.Processed, skipped, j.graceDays)
	return result, errors.Join(errs...)
}

func reminderEvent(associationID, associationName string, o contribution.Overdue) notifications.Event {
	periods := make([]string, 0, len(o.Periods))
	for _, period := range o.Periods {
		periods = append(periods, period.String())
	}
	latest := o.Periods[len(o.Periods)-1]
	return notifications.Event{
		Topic:         render.TopicDuesReminder,
		AssociationID: associationID,
		UserID:        o.UserID,
		DedupeKey:     ReminderDedupeKey(o.MemberID, latest),
		Source:        reminderSource,
		Payload: map[string]string{
			"outstanding": o.Outstanding.StringFixed(2),
			"periods":     strings.Join(periods, ", "),
			"association": associationName,
		},
	}
}

// ReminderDedupeKey identifies the reminder for one member and period.
func ReminderDedupeKey(memberID string, period contribution.Period) string {
	return render.TopicDuesReminder + ":" + memberID + ":" + period.String()
}
