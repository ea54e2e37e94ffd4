package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ReportFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
)

const (
	keyPrefix     = "reportfox:jobs:"
	pendingKey    = keyPrefix + "pending"
	processingKey = keyPrefix + "processing"
	delayedKey    = keyPrefix + "delayed"
	statsKey      = keyPrefix + "stats"

	DefaultMaxTries = 4
	JobTTL          = 24 * time.Hour

	promoteBatch = 100
)

func jobKey(id string) string {
	return keyPrefix + "job:" + id
}

// promoteScript moves due retries from the delayed set to the pending list.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

var errJobGone = errors.New("job data expired")

// Handler runs one job. A returned error schedules a retry until the job
// runs out of attempts.
type Handler func(ctx context.Context, job *Job) error

// Queue is a Redis-backed job queue. Pending ids live in a list, in-flight
// ids in a processing list and retries in a sorted set scored by due time.
type Queue struct {
	client   *redis.Client
	workers  int
	maxTries int

	retryDelay    time.Duration
	pollInterval  time.Duration
	stuckAfter    time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	handlersMu sync.RWMutex
	handlers   map[JobType]Handler
}

// NewQueue creates a job queue on the shared cache client
func NewQueue(workers int) *Queue {
	return NewQueueWithClient(cache.GetClient(), workers)
}

func NewQueueWithClient(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}

	return &Queue{
		client:        client,
		workers:       workers,
		maxTries:      DefaultMaxTries,
		retryDelay:    30 * time.Second,
		pollInterval:  time.Second,
		stuckAfter:    10 * time.Minute,
		sweepInterval: time.Minute,
		now:           time.Now,
		handlers:      make(map[JobType]Handler),
	}
}

// RegisterHandler sets the handler for a job type
func (q *Queue) RegisterHandler(jobType JobType, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType JobType) (Handler, bool) {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Start launches the workers and the maintenance loop.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.wg.Add(1)
	go q.maintain(ctx)
}

// Stop waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	q.cancel()
	q.wg.Wait()
	q.running = false
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for ctx.Err() == nil {
		job, err := q.dequeue(ctx)
		switch {
		case err == nil:
			// Shutdown must not abort a job halfway through.
			q.process(context.WithoutCancel(ctx), job)
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
		case errors.Is(err, errJobGone):
			log.Warnf("[JobQueue] Worker %d: %v", id, err)
		default:
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (q *Queue) maintain(ctx context.Context) {
	defer q.wg.Done()

	poll := time.NewTicker(q.pollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(q.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if _, err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("[JobQueue] Promoting retries failed: %v", err)
			}
		case <-sweep.C:
			if _, err := q.recoverStale(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("[JobQueue] Recovering stale jobs failed: %v", err)
			}
		}
	}
}

// EnqueueJob stores the job and pushes it onto the pending list.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := q.now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    JobStatusPending,
		Payload:   payload,
		MaxTries:  q.maxTries,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), data, JobTTL)
		pipe.LPush(ctx, pendingKey, job.ID)
		pipe.HIncrBy(ctx, statsKey, "enqueued", 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debugf("[JobQueue] Enqueued job %s (%s)", job.ID, job.Type)
	return job, nil
}

func (q *Queue) dequeue(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT", q.pollInterval).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, id)
	if errors.Is(err, redis.Nil) {
		q.client.LRem(ctx, processingKey, 1, id)
		return nil, fmt.Errorf("%w: %s", errJobGone, id)
	}
	if err != nil {
		q.client.LRem(ctx, processingKey, 1, id)
		return nil, err
	}
	return job, nil
}

func (q *Queue) process(ctx context.Context, job *Job) {
	job.start(q.now())
	if err := q.save(ctx, job); err != nil {
		log.Errorf("[JobQueue] Failed to mark job %s as started: %v", job.ID, err)
	}

	var err error
	if h, ok := q.handler(job.Type); ok {
		err = h(ctx, job)
	} else {
		err = fmt.Errorf("no handler for job type %q", job.Type)
	}

	if err == nil {
		job.complete(q.now())
		_, perr := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, jobKey(job.ID))
			pipe.LRem(ctx, processingKey, 1, job.ID)
			pipe.HIncrBy(ctx, statsKey, string(JobStatusCompleted), 1)
			return nil
		})
		if perr != nil {
			log.Errorf("[JobQueue] Failed to clear completed job %s: %v", job.ID, perr)
		}
		metrics.RecordJob(string(job.Type), string(JobStatusCompleted))
		return
	}

	retry := job.fail(err, q.retryDelay, q.now())
	data, merr := json.Marshal(job)
	if merr != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, merr)
		return
	}

	_, perr := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), data, JobTTL)
		pipe.LRem(ctx, processingKey, 1, job.ID)
		if retry {
			pipe.ZAdd(ctx, delayedKey, redis.Z{Score: float64(job.RetryAt.UnixMilli()), Member: job.ID})
		} else {
			pipe.HIncrBy(ctx, statsKey, string(JobStatusFailed), 1)
		}
		return nil
	})
	if perr != nil {
		log.Errorf("[JobQueue] Failed to record failure of job %s: %v", job.ID, perr)
	}

	if retry {
		log.Warnf("[JobQueue] Job %s (%s) attempt %d/%d failed, retrying at %s: %v",
			job.ID, job.Type, job.Attempts, job.MaxTries, job.RetryAt.Format(time.RFC3339), err)
		metrics.RecordJob(string(job.Type), string(JobStatusRetrying))
		return
	}
	log.Errorf("[JobQueue] Job %s (%s) failed permanently after %d attempts: %v", job.ID, job.Type, job.Attempts, err)
	metrics.RecordJob(string(job.Type), string(JobStatusFailed))
}

func (q *Queue) save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, jobKey(job.ID), data, JobTTL).Err()
}

// promoteDue requeues retries whose due time has passed.
func (q *Queue) promoteDue(ctx context.Context) (int, error) {
	return promoteScript.Run(ctx, q.client, []string{delayedKey, pendingKey},
		q.now().UnixMilli(), promoteBatch).Int()
}

// recoverStale requeues jobs left in the processing list by a worker that
// died mid-job.
func (q *Queue) recoverStale(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	now := q.now()
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Reading job %s failed: %v", id, err)
			}
			q.client.LRem(ctx, processingKey, 1, id)
			continue
		}
		if !job.stale(now, q.stuckAfter) {
			continue
		}

		job.Status = JobStatusPending
		job.LastError = "recovered after worker stall"
		job.UpdatedAt = now
		data, err := json.Marshal(job)
		if err != nil {
			continue
		}
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(id), data, JobTTL)
			pipe.LRem(ctx, processingKey, 1, id)
			pipe.RPush(ctx, pendingKey, id)
			return nil
		})
		if err != nil {
			return recovered, err
		}
		log.Warnf("[JobQueue] Recovered stale job %s (%s)", id, job.Type)
		recovered++
	}
	return recovered, nil
}

// GetJob loads a live job by id. It returns redis.Nil once the job is gone.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// QueueStats is a point-in-time view of the queue.
type QueueStats struct {
	Pending    int64
	Processing int64
	Delayed    int64
	Enqueued   int64
	Completed  int64
	Failed     int64
}

func (q *Queue) Stats(ctx context.Context) (QueueStats, error) {
	var (
		pending, processing, delayed *redis.IntCmd
		counters                     *redis.MapStringStringCmd
	)
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, pendingKey)
		processing = pipe.LLen(ctx, processingKey)
		delayed = pipe.ZCard(ctx, delayedKey)
		counters = pipe.HGetAll(ctx, statsKey)
		return nil
	})
	if err != nil {
		return QueueStats{}, err
	}

	c := counters.Val()
	count := func(field string) int64 {
		n, _ := strconv.ParseInt(c[field], 10, 64)
		return n
	}
	return QueueStats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Enqueued:   count("enqueued"),
		Completed:  count(string(JobStatusCompleted)),
		Failed:     count(string(JobStatusFailed)),
	}, nil
}
