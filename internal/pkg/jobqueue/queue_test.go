package jobqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueueDefaults(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueueWithClient(nil, tt.workers)

			assert.Equal(t, tt.expectedWorkers, q.workers)
			assert.Equal(t, DefaultMaxTries, q.maxTries)
			assert.False(t, q.IsRunning())
		})
	}
}

func TestJobKeysShareNamespace(t *testing.T) {
	assert.Equal(t, "reportfox:jobs:job:abc", jobKey("abc"))
	for _, k := range []string{pendingKey, processingKey, delayedKey, statsKey} {
		assert.Contains(t, k, keyPrefix)
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail int
}

func (f *fakeSender) Send(to, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, to+"|"+subject)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func fastQueue(client *redis.Client, workers int) *Queue {
	q := NewQueueWithClient(client, workers)
	q.retryDelay = 20 * time.Millisecond
	q.pollInterval = 10 * time.Millisecond
	q.sweepInterval = 50 * time.Millisecond
	return q
}

func TestQueueDeliversEmailAfterRetry(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	sender := &fakeSender{fail: 1}
	q := fastQueue(client, 2)
	q.RegisterHandler(JobTypeSendEmail, EmailHandler(sender))
	q.Start()
	defer q.Stop()

	job, err := q.EnqueueJob(ctx, JobTypeSendEmail, SendEmailJobPayload{
		To:      "user@example.com",
		Subject: "hello",
		Kind:    "plan_activated",
		UserID:  1,
	}.ToMap())
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	// The first attempt fails; the promoted retry delivers.
	assert.True(t, waitFor(func() bool { return sender.count() == 1 }, 5*time.Second))
	assert.True(t, waitFor(func() bool {
		s, err := q.Stats(ctx)
		return err == nil && s.Completed == 1
	}, 2*time.Second))

	_, err = q.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, redis.Nil, "completed jobs are removed")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Enqueued)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.Delayed)
	assert.Zero(t, stats.Failed)
}

func TestJobWithoutHandlerFailsPermanently(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	q := fastQueue(client, 1)
	q.maxTries = 1
	q.Start()
	defer q.Stop()

	job, err := q.EnqueueJob(ctx, "render_pdf", map[string]interface{}{"report_id": 3})
	require.NoError(t, err)

	assert.True(t, waitFor(func() bool {
		s, err := q.Stats(ctx)
		return err == nil && s.Failed == 1
	}, 5*time.Second))

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "no handler")
}

func TestPromoteDueMovesOnlyDueRetries(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	q := NewQueueWithClient(client, 1)
	q.now = func() time.Time { return now }

	require.NoError(t, client.ZAdd(ctx, delayedKey,
		redis.Z{Score: float64(now.Add(-time.Second).UnixMilli()), Member: "due"},
		redis.Z{Score: float64(now.Add(time.Hour).UnixMilli()), Member: "later"},
	).Err())

	n, err := q.promoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := client.LRange(ctx, pendingKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"due"}, pending)

	left, err := client.ZRange(ctx, delayedKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"later"}, left)
}

func TestRecoverStaleRequeuesAbandonedJobs(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	q := NewQueueWithClient(client, 1)
	q.now = func() time.Time { return now }

	old := now.Add(-time.Hour)
	abandoned := &Job{ID: "abandoned", Type: JobTypeSendEmail, MaxTries: 3, UpdatedAt: old}
	abandoned.start(old)
	require.NoError(t, q.save(ctx, abandoned))

	fresh := &Job{ID: "fresh", Type: JobTypeSendEmail, MaxTries: 3}
	fresh.start(now.Add(-time.Minute))
	require.NoError(t, q.save(ctx, fresh))

	require.NoError(t, client.LPush(ctx, processingKey, "abandoned", "fresh", "vanished").Err())

	n, err := q.recoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	processing, err := client.LRange(ctx, processingKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, processing)

	pending, err := client.LRange(ctx, pendingKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"abandoned"}, pending)

	stored, err := q.GetJob(ctx, "abandoned")
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestStopIsIdempotent(t *testing.T) {
	client := newTestRedis(t)

	q := fastQueue(client, 2)
	q.Start()
	q.Start()
	assert.True(t, q.IsRunning())

	q.Stop()
	q.Stop()
	assert.False(t, q.IsRunning())
}

func waitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}
