package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
)

const (
	DefaultTrialPeriod   = 7 * 24 * time.Hour
	DefaultBillingPeriod = 30 * 24 * time.Hour
	DefaultGracePeriod   = 72 * time.Hour
	DefaultRenewalWindow = 72 * time.Hour

	maxUpdateAttempts = 3
	rolloverBatchSize = 200
)

// Config holds the timing rules of the subscription lifecycle.
type Config struct {
	TrialPeriod   time.Duration
	BillingPeriod time.Duration

	// GracePeriod delays the write of an unrenewed period's expiry.
	GracePeriod time.Duration

	// RenewalWindow is how long before the period end a payment counts as renewal.
	RenewalWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		TrialPeriod:   DefaultTrialPeriod,
		BillingPeriod: DefaultBillingPeriod,
		GracePeriod:   DefaultGracePeriod,
		RenewalWindow: DefaultRenewalWindow,
	}
}

// ConfigFromEnv reads BILLING_TRIAL_DAYS, BILLING_PERIOD_DAYS and BILLING_GRACE_HOURS.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if d := env.GetEnvInt("BILLING_TRIAL_DAYS", 0); d > 0 {
		cfg.TrialPeriod = time.Duration(d) * 24 * time.Hour
	}
	if d := env.GetEnvInt("BILLING_PERIOD_DAYS", 0); d > 0 {
		cfg.BillingPeriod = time.Duration(d) * 24 * time.Hour
	}
	if h := env.GetEnvInt("BILLING_GRACE_HOURS", -1); h >= 0 {
		cfg.GracePeriod = time.Duration(h) * time.Hour
	}
	return cfg
}

// Service is the transition engine. Every change to a subscription record goes
// through it as a version-checked read-modify-write.
type Service struct {
	repo     Repository
	cfg      Config
	now      func() time.Time
	notifier Notifier
}

type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, cfg: DefaultConfig(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

func (s *Service) Config() Config {
	return s.cfg
}

// transition describes one persisted state change.
type transition struct {
	event     string
	userID    uint
	from      entitlements.Status
	to        entitlements.Status
	plan      entitlements.PlanTier
	periodEnd *time.Time
}

// observe logs and counts a committed transition and queues its notification.
func (s *Service) observe(ctx context.Context, t *transition) {
	if t == nil {
		return
	}
	metrics.RecordTransition(t.event, string(t.from), string(t.to))
	log.Infof("[Billing] %s for user %d: %s -> %s (plan %s)", t.event, t.userID, t.from, t.to, t.plan)

	if kind, ok := notificationFor(t.event); ok {
		s.notify(ctx, Notification{Kind: kind, UserID: t.userID, Plan: t.plan, PeriodEnd: t.periodEnd})
	}
}

type loadFunc func() (*models.Subscription, error)

// mutateFunc changes sub in place and returns the applied event name, or ""
// when the record is left as it is.
type mutateFunc func(sub *models.Subscription, now time.Time) (string, error)

// mutate loads the record, applies fn and writes it back with a version check.
// A lost race reloads and re-evaluates fn against the fresh record.
func (s *Service) mutate(ctx context.Context, repo Repository, load loadFunc, fn mutateFunc) (*models.Subscription, *transition, error) {
	for attempt := 1; ; attempt++ {
		sub, err := load()
		if err != nil {
			return nil, nil, err
		}

		from := sub.Status
		event, err := fn(sub, s.Now())
		if err != nil {
			return nil, nil, err
		}
		if event == "" {
			return sub, nil, nil
		}

		err = repo.UpdateSubscription(ctx, sub)
		if err == nil {
			return sub, &transition{
				event:     event,
				userID:    sub.UserID,
				from:      from,
				to:        sub.Status,
				plan:      sub.Plan,
				periodEnd: sub.CurrentPeriodEnd,
			}, nil
		}
		if !errors.Is(err, ErrConcurrentModification) || attempt >= maxUpdateAttempts {
			return nil, nil, err
		}
		log.Debugf("[Billing] Version conflict on subscription %d during %s, retrying (%d/%d)", sub.ID, event, attempt, maxUpdateAttempts)
	}
}

// update runs mutate outside a transaction and observes the result.
func (s *Service) update(ctx context.Context, load loadFunc, fn mutateFunc) (*models.Subscription, bool, error) {
	sub, t, err := s.mutate(ctx, s.repo, load, fn)
	if err != nil {
		return nil, false, err
	}
	s.observe(ctx, t)
	return sub, t != nil, nil
}

// inTx retries fn in a fresh transaction when it lost a version race.
func (s *Service) inTx(ctx context.Context, fn func(repo Repository) error) error {
	var err error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err = s.repo.Transaction(ctx, fn)
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
	}
	return err
}

func (s *Service) getOrCreate(ctx context.Context, repo Repository, userID uint) (*models.Subscription, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}

	sub, err := repo.GetSubscriptionByUserID(ctx, userID)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return sub, err
	}

	created, stored, err := repo.CreateSubscriptionIfNotExists(ctx, models.NewTrialSubscription(userID, s.Now(), s.cfg.TrialPeriod))
	if err != nil {
		return nil, err
	}
	if created {
		log.Infof("[Billing] Created %s trial subscription for user %d", stored.Plan, userID)
	}
	return stored, nil
}

// GetOrCreateSubscription returns the user's record, materializing a Free
// trial the first time a user is seen.
func (s *Service) GetOrCreateSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	return s.getOrCreate(ctx, s.repo, userID)
}

// Current returns the user's record after applying any due rollover.
func (s *Service) Current(ctx context.Context, userID uint) (*models.Subscription, error) {
	sub, err := s.getOrCreate(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}

	probe := *sub
	if s.rollover(&probe, s.Now()) == "" {
		return sub, nil
	}
	sub, _, err = s.CheckRollover(ctx, userID)
	return sub, err
}

func (s *Service) loadUser(ctx context.Context, userID uint) loadFunc {
	return func() (*models.Subscription, error) {
		return s.getOrCreate(ctx, s.repo, userID)
	}
}

// activate applies a paid-for or granted plan to sub. Period usage restarts
// when the tier changes or a paid period begins.
func (s *Service) activate(sub *models.Subscription, plan entitlements.PlanTier, provider, paymentID, externalID string, now time.Time) {
	if plan.IsPaid() || sub.Plan != plan {
		resetPeriodUsage(&sub.Usage)
	}
	sub.Plan = plan
	sub.Status = entitlements.StatusActive
	if !sub.FeaturesOverridden {
		sub.Features = entitlements.FeaturesFor(plan)
	}

	if plan.IsPaid() {
		start := now
		end := now.Add(s.cfg.BillingPeriod)
		sub.CurrentPeriodStart = &start
		sub.CurrentPeriodEnd = &end
	} else {
		sub.CurrentPeriodStart = nil
		sub.CurrentPeriodEnd = nil
	}
	sub.TrialEndsAt = nil
	sub.CancelledAt = nil
	sub.RenewalSignalAt = nil

	if provider == "" {
		provider = models.PaymentProviderNone
	}
	sub.PaymentProvider = provider
	sub.PaymentID = paymentID
	sub.ExternalSubscriptionID = externalID
}

// expire downgrades sub to Free. An admin feature override ends with it, and
// usage of an ended paid period does not carry into Free.
func expire(sub *models.Subscription) {
	if sub.Plan.IsPaid() {
		resetPeriodUsage(&sub.Usage)
	}
	sub.Status = entitlements.StatusExpired
	sub.Plan = entitlements.PlanFree
	sub.Features = entitlements.FeaturesFor(entitlements.PlanFree)
	sub.FeaturesOverridden = false
	sub.RenewalSignalAt = nil
}

// resetPeriodUsage zeroes the per-period counters. Team members are a head
// count and carry over.
func resetPeriodUsage(u *entitlements.Usage) {
	u.ReportsUsed = 0
	u.APICallsUsed = 0
}

func checkDowngrade(sub *models.Subscription, plan entitlements.PlanTier) error {
	if sub.FeaturesOverridden {
		return nil
	}
	limit := entitlements.FeaturesFor(plan).Limit(entitlements.CounterTeamMembers)
	used := sub.Usage.TeamMembersUsed
	if !entitlements.IsUnlimited(limit) && used > limit {
		return &DowngradeBlockedError{Plan: plan, Counter: entitlements.CounterTeamMembers, Used: used, Limit: limit}
	}
	return nil
}

// ChangePlan applies a self-service plan change. Paid tiers need a payment reference.
func (s *Service) ChangePlan(ctx context.Context, userID uint, req PlanChangeRequested) (*models.Subscription, error) {
	plan, ok := entitlements.ParsePlanTier(string(req.Plan))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, req.Plan)
	}

	provider := normalizeProvider(req.PaymentProvider)
	paymentID := strings.TrimSpace(req.PaymentID)
	externalID := strings.TrimSpace(req.ExternalSubscriptionID)
	if plan.IsPaid() && (provider == "" || provider == models.PaymentProviderNone || (paymentID == "" && externalID == "")) {
		return nil, ErrPaymentRequired
	}

	sub, _, err := s.update(ctx, s.loadUser(ctx, userID), func(sub *models.Subscription, now time.Time) (string, error) {
		if sub.Status == entitlements.StatusInactive {
			return "", invalidTransition(EventPlanChangeRequested, sub.Status)
		}
		if isCurrentActivation(sub, plan, provider, paymentID, externalID, now) {
			return "", nil
		}
		if err := checkDowngrade(sub, plan); err != nil {
			return "", err
		}
		s.activate(sub, plan, provider, paymentID, externalID, now)
		return EventPlanChangeRequested, nil
	})
	return sub, err
}

// isCurrentActivation reports whether sub already holds this plan change. Free
// needs no reference; paid tiers match on the payment or external reference.
func isCurrentActivation(sub *models.Subscription, plan entitlements.PlanTier, provider, paymentID, externalID string, now time.Time) bool {
	if sub.Status != entitlements.StatusActive || sub.Plan != plan || entitlements.IsExpired(sub.Snapshot(), now) {
		return false
	}
	if !plan.IsPaid() {
		return true
	}
	if sub.PaymentProvider != provider {
		return false
	}
	return (paymentID != "" && sub.PaymentID == paymentID) ||
		(externalID != "" && sub.ExternalSubscriptionID == externalID)
}

// Cancel marks an active subscription cancelled. Access continues until the
// current period ends.
func (s *Service) Cancel(ctx context.Context, userID uint) (*models.Subscription, error) {
	sub, _, err := s.update(ctx, s.loadUser(ctx, userID), func(sub *models.Subscription, now time.Time) (string, error) {
		switch sub.Status {
		case entitlements.StatusCancelled:
			return "", nil
		case entitlements.StatusActive:
			sub.Status = entitlements.StatusCancelled
			sub.CancelledAt = &now
			return EventCancellation, nil
		default:
			return "", invalidTransition(EventCancellation, sub.Status)
		}
	})
	return sub, err
}

// IncrementUsage consumes amount units of counter. The increment is a single
// guarded UPDATE, so concurrent callers can never push usage past the limit.
// A transition that changes the limit between the check and the write makes
// the guard miss, and the check runs again on the fresh record.
func (s *Service) IncrementUsage(ctx context.Context, userID uint, counter entitlements.Counter, amount int) (*models.Subscription, error) {
	if amount < 1 {
		return nil, fmt.Errorf("%w: amount must be at least 1", ErrInvalidAmount)
	}
	if counter.Column() == "" {
		return nil, fmt.Errorf("%w: unknown counter %q", ErrInvalidEvent, counter)
	}

	for attempt := 1; ; attempt++ {
		sub, err := s.Current(ctx, userID)
		if err != nil {
			return nil, err
		}

		limit := sub.Features.Limit(counter)
		if !entitlements.CanConsumeN(sub.Snapshot(), counter, amount, s.Now()) {
			metrics.RecordQuotaRejection(string(counter))
			return sub, &QuotaExceededError{Counter: counter, Used: sub.Usage.Get(counter), Limit: limit}
		}

		guard := usageGuardOf(sub)
		ok, err := s.repo.IncrementUsage(ctx, sub.ID, counter, amount, limit, guard)
		if err != nil {
			return nil, err
		}
		fresh, err := s.repo.GetSubscriptionByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			return fresh, nil
		}

		if usageGuardOf(fresh) != guard {
			if attempt >= maxUpdateAttempts {
				return nil, ErrConcurrentModification
			}
			log.Debugf("[Billing] Entitlements of subscription %d changed during %s increment, re-checking (%d/%d)", sub.ID, counter, attempt, maxUpdateAttempts)
			continue
		}
		metrics.RecordQuotaRejection(string(counter))
		return fresh, &QuotaExceededError{Counter: counter, Used: fresh.Usage.Get(counter), Limit: limit}
	}
}

func usageGuardOf(sub *models.Subscription) UsageGuard {
	return UsageGuard{Plan: sub.Plan, Status: sub.Status, Features: sub.Features}
}

// rollover applies the period rules to sub and returns the applied event, or
// "" when nothing is due.
func (s *Service) rollover(sub *models.Subscription, now time.Time) string {
	switch sub.Status {
	case entitlements.StatusTrial:
		if sub.TrialEndsAt != nil && now.After(*sub.TrialEndsAt) {
			expire(sub)
			return EventTrialExpired
		}
	case entitlements.StatusCancelled:
		if sub.CurrentPeriodEnd == nil || now.After(*sub.CurrentPeriodEnd) {
			expire(sub)
			return EventPeriodExpired
		}
	case entitlements.StatusActive:
		end := sub.CurrentPeriodEnd
		if !sub.Plan.IsPaid() || end == nil || !now.After(*end) {
			return ""
		}
		if sub.RenewalSignalAt != nil {
			start := *end
			next := start.Add(s.cfg.BillingPeriod)
			sub.CurrentPeriodStart = &start
			sub.CurrentPeriodEnd = &next
			sub.RenewalSignalAt = nil
			resetPeriodUsage(&sub.Usage)
			return EventPeriodRenewed
		}
		if now.After(end.Add(s.cfg.GracePeriod)) {
			expire(sub)
			return EventPeriodExpired
		}
	}
	return ""
}

// CheckRollover runs the period rollover for one user. It is safe to call
// redundantly and concurrently with the scheduled sweep.
func (s *Service) CheckRollover(ctx context.Context, userID uint) (*models.Subscription, bool, error) {
	load := func() (*models.Subscription, error) {
		return s.repo.GetSubscriptionByUserID(ctx, userID)
	}
	return s.update(ctx, load, func(sub *models.Subscription, now time.Time) (string, error) {
		return s.rollover(sub, now), nil
	})
}

// SweepRollovers checks every record whose period or trial has ended. It
// returns the number of records that changed.
func (s *Service) SweepRollovers(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.RecordRolloverSweep(time.Since(start)) }()

	now := s.Now()
	var lastID uint
	changed, failed := 0, 0
	for {
		batch, err := s.repo.ListRolloverCandidates(ctx, now, lastID, rolloverBatchSize)
		if err != nil {
			return changed, err
		}
		for _, candidate := range batch {
			lastID = candidate.ID
			_, ok, err := s.CheckRollover(ctx, candidate.UserID)
			if err != nil {
				failed++
				log.Errorf("[Billing] Rollover for user %d failed: %v", candidate.UserID, err)
				continue
			}
			if ok {
				changed++
			}
		}
		if len(batch) < rolloverBatchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return changed, err
		}
	}

	if changed > 0 || failed > 0 {
		log.Infof("[Billing] Rollover sweep finished: %d changed, %d failed", changed, failed)
	}
	return changed, nil
}
