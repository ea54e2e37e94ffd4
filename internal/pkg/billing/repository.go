package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	GetSubscriptionByUserID(ctx context.Context, userID uint) (*models.Subscription, error)
	CreateSubscriptionIfNotExists(ctx context.Context, sub *models.Subscription) (bool, *models.Subscription, error)
	FindSubscriptionByExternalID(ctx context.Context, provider, externalID string) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	IncrementUsage(ctx context.Context, subscriptionID uint, counter entitlements.Counter, amount, limit int, guard UsageGuard) (bool, error)
	ListRolloverCandidates(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.Subscription, error)

	FindUserIDByEmail(ctx context.Context, email string) (uint, error)
	UserExists(ctx context.Context, userID uint) (bool, error)
	GetUserEmail(ctx context.Context, userID uint) (string, error)

	CreatePaymentRequest(ctx context.Context, pr *models.PaymentRequest) error
	GetPaymentRequest(ctx context.Context, id uint) (*models.PaymentRequest, error)
	HasPendingPaymentRequest(ctx context.Context, userID uint) (bool, error)
	ListPaymentRequests(ctx context.Context, filter PaymentRequestFilter) ([]models.PaymentRequest, error)
	DecidePaymentRequest(ctx context.Context, id uint, status string, decidedBy uint, reason string, at time.Time) error

	FindActivePlanMapping(ctx context.Context, provider, providerPlanRef string) (*models.BillingPlanMapping, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
	PruneWebhookEvents(ctx context.Context, before time.Time) (int64, error)

	CreateOverride(ctx context.Context, o *models.SubscriptionOverride) error
	ListOverrides(ctx context.Context, userID uint) ([]models.SubscriptionOverride, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetSubscriptionByUserID(ctx context.Context, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// CreateSubscriptionIfNotExists inserts sub unless the user already has a
// record. It returns whether a row was created and the stored record.
func (r *gormRepository) CreateSubscriptionIfNotExists(ctx context.Context, sub *models.Subscription) (bool, *models.Subscription, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(sub)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	stored, err := r.GetSubscriptionByUserID(ctx, sub.UserID)
	if err != nil {
		return false, nil, err
	}
	return tx.RowsAffected > 0, stored, nil
}

func (r *gormRepository) FindSubscriptionByExternalID(ctx context.Context, provider, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("payment_provider = ? AND external_subscription_id = ?", provider, externalID).
		Order("id").
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// UpdateSubscription writes the whole record if nobody changed it since it was
// read. On success sub.Version holds the new version.
func (r *gormRepository) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	expected := sub.Version
	sub.Version = expected + 1

	tx := r.db.WithContext(ctx).Model(sub).
		Where("version = ?", expected).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(sub)
	if tx.Error != nil {
		sub.Version = expected
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		sub.Version = expected
		return ErrConcurrentModification
	}
	return nil
}

// UsageGuard is the entitlement state a usage increment was checked against.
type UsageGuard struct {
	Plan     entitlements.PlanTier
	Status   entitlements.Status
	Features entitlements.FeatureSet
}

// IncrementUsage adds amount to a counter only while the result stays within
// limit and the record still matches guard. It reports false when the write
// was rejected.
func (r *gormRepository) IncrementUsage(ctx context.Context, subscriptionID uint, counter entitlements.Counter, amount, limit int, guard UsageGuard) (bool, error) {
	col := counter.Column()
	if col == "" {
		return false, ErrInvalidEvent
	}

	q := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Where(map[string]interface{}{
			"plan":                      string(guard.Plan),
			"status":                    string(guard.Status),
			"feature_reports_per_month": guard.Features.ReportsPerMonth,
			"feature_team_members":      guard.Features.TeamMembers,
			"feature_api_access":        guard.Features.APIAccess,
		})
	if !entitlements.IsUnlimited(limit) {
		q = q.Where(col+" + ? <= ?", amount, limit)
	}
	tx := q.Updates(map[string]interface{}{
		col:       gorm.Expr(col+" + ?", amount),
		"version": gorm.Expr("version + ?", 1),
	})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ListRolloverCandidates returns records whose period or trial ended before
// now, ordered by id and starting after afterID.
func (r *gormRepository) ListRolloverCandidates(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	q := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Where("(status IN ? AND current_period_end IS NOT NULL AND current_period_end < ?) OR (status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?)",
			[]string{string(entitlements.StatusActive), string(entitlements.StatusCancelled)}, now,
			string(entitlements.StatusTrial), now).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&subs).Error
	return subs, err
}

func (r *gormRepository) FindUserIDByEmail(ctx context.Context, email string) (uint, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("id").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Order("id").
		First(&user).Error
	if err != nil {
		return 0, notFound(err)
	}
	return user.ID, nil
}

func (r *gormRepository) UserExists(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) GetUserEmail(ctx context.Context, userID uint) (string, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Select("id", "email").First(&user, userID).Error; err != nil {
		return "", notFound(err)
	}
	return user.Email, nil
}

func (r *gormRepository) CreatePaymentRequest(ctx context.Context, pr *models.PaymentRequest) error {
	return r.db.WithContext(ctx).Create(pr).Error
}

func (r *gormRepository) GetPaymentRequest(ctx context.Context, id uint) (*models.PaymentRequest, error) {
	var pr models.PaymentRequest
	if err := r.db.WithContext(ctx).First(&pr, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &pr, nil
}

func (r *gormRepository) HasPendingPaymentRequest(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Where("user_id = ? AND status = ?", userID, models.PaymentRequestPending).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) ListPaymentRequests(ctx context.Context, filter PaymentRequestFilter) ([]models.PaymentRequest, error) {
	q := r.db.WithContext(ctx).Model(&models.PaymentRequest{})
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var out []models.PaymentRequest
	err := q.Order("submitted_at DESC, id DESC").Find(&out).Error
	return out, err
}

// DecidePaymentRequest moves a pending request to status. Only one decision
// can win; a request that is no longer pending yields ErrInvalidTransition.
func (r *gormRepository) DecidePaymentRequest(ctx context.Context, id uint, status string, decidedBy uint, reason string, at time.Time) error {
	tx := r.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Where("id = ? AND status = ?", id, models.PaymentRequestPending).
		Updates(map[string]interface{}{
			"status":           status,
			"decided_at":       at,
			"decided_by":       decidedBy,
			"rejection_reason": reason,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		if _, err := r.GetPaymentRequest(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *gormRepository) FindActivePlanMapping(ctx context.Context, provider, providerPlanRef string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_plan_ref = ? AND is_active = ?", provider, providerPlanRef, true).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
		"attempts":         gorm.Expr("attempts + ?", 1),
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// PruneWebhookEvents deletes applied events created before the cutoff.
func (r *gormRepository) PruneWebhookEvents(ctx context.Context, before time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("created_at < ? AND processed_at IS NOT NULL AND processing_error = ?", before, "").
		Delete(&models.BillingWebhookEvent{})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) CreateOverride(ctx context.Context, o *models.SubscriptionOverride) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *gormRepository) ListOverrides(ctx context.Context, userID uint) ([]models.SubscriptionOverride, error) {
	var out []models.SubscriptionOverride
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&out).Error
	return out, err
}
