package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vvebeheer/internal/services/worker/storage"
)

func TestRecordAndListJobRuns(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	require.NoError(t, store.RecordJobRun(ctx, storage.JobRun{
		Job:       "mail",
		Worker:    "worker-1",
		Outcome:   storage.OutcomeFailed,
		Failed:    1,
		LastError: "smtp unavailable",
		StartedAt: testNow,
		Duration:  1500 * time.Millisecond,
	}))
	require.NoError(t, store.RecordJobRun(ctx, storage.JobRun{
		Job:       "mail",
		Worker:    "worker-1",
		Outcome:   storage.OutcomeSucceeded,
		Processed: 3,
		Detail:    "sent=3 retried=0 dead=0",
		StartedAt: testNow.Add(time.Minute),
	}))
	require.NoError(t, store.RecordJobRun(ctx, storage.JobRun{
		Job:       "dues",
		Worker:    "worker-1",
		Outcome:   storage.OutcomeSucceeded,
		StartedAt: testNow.Add(2 * time.Minute),
	}))

	runs, err := store.ListJobRuns(ctx, "mail", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, storage.OutcomeSucceeded, runs[0].Outcome)
	assert.Equal(t, 3, runs[0].Processed)
	assert.Equal(t, "smtp unavailable", runs[1].LastError)
	assert.Equal(t, 1500*time.Millisecond, runs[1].Duration)
	assert.True(t, runs[1].StartedAt.Equal(testNow))

	all, err := store.ListJobRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "dues", all[0].Job)

	_, err = store.ListJobRuns(ctx, "", 0)
	assert.Error(t, err)
}

func TestRecordJobRunValidation(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	assert.Error(t, store.RecordJobRun(context.Background(), storage.JobRun{}))
	assert.Error(t, store.RecordJobRun(context.Background(), storage.JobRun{Job: "mail", Worker: "w"}))
}
