package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

const (
	rolloverLockKey  = "lock:billing:rollover_sweep"
	pruneLockKey     = "lock:billing:webhook_prune"
	scheduledLockTTL = 15 * time.Minute
)

// ManagerConfig holds the schedules of the periodic billing tasks.
type ManagerConfig struct {
	Workers          int
	RolloverSchedule string
	PruneSchedule    string
	WebhookRetention time.Duration
}

// ManagerConfigFromEnv reads JOBQUEUE_WORKERS, BILLING_ROLLOVER_SCHEDULE,
// WEBHOOK_PRUNE_SCHEDULE and WEBHOOK_RETENTION_DAYS.
func ManagerConfigFromEnv() ManagerConfig {
	return ManagerConfig{
		Workers:          env.GetEnvInt("JOBQUEUE_WORKERS", 5),
		RolloverSchedule: env.GetEnv("BILLING_ROLLOVER_SCHEDULE", "@every 10m"),
		PruneSchedule:    env.GetEnv("WEBHOOK_PRUNE_SCHEDULE", "@daily"),
		WebhookRetention: time.Duration(env.GetEnvInt("WEBHOOK_RETENTION_DAYS", 90)) * 24 * time.Hour,
	}
}

// Manager runs the job queue workers and the scheduled billing tasks.
type Manager struct {
	queue   *Queue
	billing *billing.Service
	locker  *redis.Client
	cfg     ManagerConfig

	scheduler *cron.Cron
	entries   map[string]cron.EntryID
	mu        sync.Mutex
	running   bool
}

// NewManager validates the schedules. locker may be nil, in which case
// scheduled tasks run without a cross-process lock.
func NewManager(queue *Queue, svc *billing.Service, locker *redis.Client, cfg ManagerConfig) (*Manager, error) {
	for name, spec := range map[string]string{"rollover": cfg.RolloverSchedule, "prune": cfg.PruneSchedule} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}
	if cfg.WebhookRetention <= 0 {
		return nil, errors.New("webhook retention must be positive")
	}
	return &Manager{
		queue:   queue,
		billing: svc,
		locker:  locker,
		cfg:     cfg,
		entries: make(map[string]cron.EntryID),
	}, nil
}

// Start starts the job queue and the scheduler
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	log.Info("[JobQueue Manager] Starting job queue and scheduled tasks")
	m.scheduler = cron.New()
	tasks := []struct {
		name string
		spec string
		run  func()
	}{
		{"rollover_sweep", m.cfg.RolloverSchedule, m.rolloverTask},
		{"webhook_prune", m.cfg.PruneSchedule, m.pruneTask},
	}
	for _, task := range tasks {
		id, err := m.scheduler.AddFunc(task.spec, task.run)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", task.name, err)
		}
		m.entries[task.name] = id
		log.Infof("[Scheduler] %s scheduled (%s)", task.name, task.spec)
	}

	if m.queue != nil {
		m.queue.Start()
	}
	m.scheduler.Start()
	m.running = true
	return nil
}

// Stop waits for running tasks and stops the workers
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and scheduled tasks...")
	<-m.scheduler.Stop().Done()
	m.entries = make(map[string]cron.EntryID)
	if m.queue != nil {
		m.queue.Stop()
	}
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// NextRun returns the next scheduled time of a task, or zero when unknown.
func (m *Manager) NextRun(name string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.entries[name]
	if !ok || m.scheduler == nil {
		return time.Time{}
	}
	return m.scheduler.Entry(id).Next
}

func (m *Manager) rolloverTask() {
	if _, err := m.RunRolloverSweepOnce(context.Background()); err != nil {
		log.Errorf("[Scheduler] Rollover sweep failed: %v", err)
	}
}

func (m *Manager) pruneTask() {
	if _, err := m.RunWebhookPruneOnce(context.Background()); err != nil {
		log.Errorf("[Scheduler] Webhook prune failed: %v", err)
	}
}

// withLock runs fn under a redis lock. A held lock skips the run; a lock
// that cannot be reached runs fn anyway since the tasks are idempotent.
func (m *Manager) withLock(ctx context.Context, key string, fn func() error) (bool, error) {
	if m.locker == nil {
		return true, fn()
	}

	lock, err := cache.AcquireLock(ctx, m.locker, key, scheduledLockTTL)
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		log.Debugf("[Scheduler] %s held elsewhere, skipping", key)
		return false, nil
	case err != nil:
		log.Warnf("[Scheduler] Could not take %s, running unlocked: %v", key, err)
	default:
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Warnf("[Scheduler] Failed to release %s: %v", key, err)
			}
		}()
	}
	return true, fn()
}

// RunRolloverSweepOnce applies period rollovers to every due subscription.
func (m *Manager) RunRolloverSweepOnce(ctx context.Context) (int, error) {
	var changed int
	_, err := m.withLock(ctx, rolloverLockKey, func() error {
		var err error
		changed, err = m.billing.SweepRollovers(ctx)
		return err
	})
	return changed, err
}

// RunWebhookPruneOnce deletes processed webhook events past retention.
func (m *Manager) RunWebhookPruneOnce(ctx context.Context) (int64, error) {
	var pruned int64
	_, err := m.withLock(ctx, pruneLockKey, func() error {
		var err error
		pruned, err = m.billing.PruneWebhookEvents(ctx, m.cfg.WebhookRetention)
		return err
	})
	return pruned, err
}
