package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

// CheckPaymentRequest runs the checks of SubmitPaymentRequest that do not
// depend on the uploaded proof, so callers can reject a claim before storing
// anything for it.
func (s *Service) CheckPaymentRequest(ctx context.Context, userID uint, in PaymentRequestInput) error {
	if _, _, err := checkPaymentClaim(in); err != nil {
		return err
	}
	pending, err := s.repo.HasPendingPaymentRequest(ctx, userID)
	if err != nil {
		return err
	}
	if pending {
		return ErrPendingRequestExists
	}
	return nil
}

func checkPaymentClaim(in PaymentRequestInput) (entitlements.PlanTier, string, error) {
	plan, ok := entitlements.ParsePlanTier(string(in.Plan))
	if !ok || !plan.IsPaid() {
		return "", "", fmt.Errorf("%w: %q cannot be bought", ErrInvalidPlan, in.Plan)
	}

	price := entitlements.PlanFor(plan)
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = price.Currency
	}
	if currency != price.Currency || in.AmountCents < price.PriceCents {
		return "", "", fmt.Errorf("%w: %s costs %d %s", ErrInvalidAmount, plan, price.PriceCents, price.Currency)
	}
	return plan, currency, nil
}

// SubmitPaymentRequest records a manual payment claim for admin review. A user
// can have one pending request at a time.
func (s *Service) SubmitPaymentRequest(ctx context.Context, userID uint, in PaymentRequestInput) (*models.PaymentRequest, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}

	plan, currency, err := checkPaymentClaim(in)
	if err != nil {
		return nil, err
	}

	pr := &models.PaymentRequest{
		UserID:               userID,
		Plan:                 plan,
		AmountCents:          in.AmountCents,
		Currency:             currency,
		Method:               strings.TrimSpace(in.Method),
		TransactionIDClaimed: strings.TrimSpace(in.TransactionID),
		ProofRef:             strings.TrimSpace(in.ProofRef),
		Status:               models.PaymentRequestPending,
		SubmittedAt:          s.Now(),
	}
	if err := pr.Validate(); err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(repo Repository) error {
		pending, err := repo.HasPendingPaymentRequest(ctx, userID)
		if err != nil {
			return err
		}
		if pending {
			return ErrPendingRequestExists
		}
		return repo.CreatePaymentRequest(ctx, pr)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Payment request %d submitted by user %d for %s (%d %s)", pr.ID, userID, plan, pr.AmountCents, pr.Currency)
	return pr, nil
}

func (s *Service) GetPaymentRequest(ctx context.Context, id uint) (*models.PaymentRequest, error) {
	return s.repo.GetPaymentRequest(ctx, id)
}

func (s *Service) ListPaymentRequests(ctx context.Context, filter PaymentRequestFilter) ([]models.PaymentRequest, error) {
	if filter.Status != "" {
		switch filter.Status {
		case models.PaymentRequestPending, models.PaymentRequestApproved, models.PaymentRequestRejected:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, filter.Status)
		}
	}
	return s.repo.ListPaymentRequests(ctx, filter)
}

func paymentReference(pr *models.PaymentRequest) string {
	if pr.TransactionIDClaimed != "" {
		return pr.TransactionIDClaimed
	}
	return fmt.Sprintf("payment_request:%d", pr.ID)
}

// ApprovePaymentRequest grants the requested plan. The decision and the
// subscription change commit together; a request that was already decided
// yields ErrInvalidTransition and changes nothing.
func (s *Service) ApprovePaymentRequest(ctx context.Context, requestID, adminID uint) (*models.PaymentRequest, *models.Subscription, error) {
	var (
		pr  *models.PaymentRequest
		sub *models.Subscription
		t   *transition
	)

	err := s.inTx(ctx, func(repo Repository) error {
		current, err := repo.GetPaymentRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if !current.IsPending() {
			return fmt.Errorf("%w: payment request %d is already %s", ErrInvalidTransition, requestID, current.Status)
		}

		if err := repo.DecidePaymentRequest(ctx, requestID, models.PaymentRequestApproved, adminID, "", s.Now()); err != nil {
			return err
		}

		load := func() (*models.Subscription, error) {
			return s.getOrCreate(ctx, repo, current.UserID)
		}
		sub, t, err = s.mutate(ctx, repo, load, func(sub *models.Subscription, now time.Time) (string, error) {
			if sub.Status == entitlements.StatusInactive {
				return "", invalidTransition(EventPaymentApproved, sub.Status)
			}
			s.activate(sub, current.Plan, models.PaymentProviderManual, paymentReference(current), "", now)
			return EventPaymentApproved, nil
		})
		if err != nil {
			return err
		}

		pr, err = repo.GetPaymentRequest(ctx, requestID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	log.Infof("[Billing] Payment request %d approved by admin %d", pr.ID, adminID)
	s.observe(ctx, t)
	s.notify(ctx, Notification{
		Kind:             NotifyPaymentApproved,
		UserID:           pr.UserID,
		Plan:             pr.Plan,
		PeriodEnd:        sub.CurrentPeriodEnd,
		PaymentRequestID: pr.ID,
	})
	return pr, sub, nil
}

// RejectPaymentRequest closes a pending request. The user's subscription is
// never touched.
func (s *Service) RejectPaymentRequest(ctx context.Context, requestID, adminID uint, reason string) (*models.PaymentRequest, error) {
	reason = strings.TrimSpace(reason)
	if err := s.repo.DecidePaymentRequest(ctx, requestID, models.PaymentRequestRejected, adminID, reason, s.Now()); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: payment request %d is no longer pending", ErrInvalidTransition, requestID)
		}
		return nil, err
	}

	pr, err := s.repo.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Payment request %d rejected by admin %d", pr.ID, adminID)
	s.notify(ctx, Notification{
		Kind:             NotifyPaymentRejected,
		UserID:           pr.UserID,
		Plan:             pr.Plan,
		PaymentRequestID: pr.ID,
		Reason:           reason,
	})
	return pr, nil
}
