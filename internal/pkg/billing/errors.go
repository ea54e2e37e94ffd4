package billing

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

var (
	ErrNotFound               = errors.New("billing: not found")
	ErrInvalidTransition      = errors.New("billing: invalid transition")
	ErrSignatureInvalid       = errors.New("billing: webhook signature invalid")
	ErrQuotaExceeded          = errors.New("billing: quota exceeded")
	ErrConcurrentModification = errors.New("billing: concurrent modification")
	ErrInvalidPlan            = errors.New("billing: invalid plan")
	ErrInvalidAmount          = errors.New("billing: invalid amount")
	ErrInvalidEvent           = errors.New("billing: invalid event")
	ErrPendingRequestExists   = errors.New("billing: a pending payment request already exists")
	ErrPaymentRequired        = errors.New("billing: paid plan requires a payment reference")
)

// QuotaExceededError carries the counter state that caused a rejected increment.
type QuotaExceededError struct {
	Counter entitlements.Counter
	Used    int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("billing: quota exceeded for %s (%d of %d used)", e.Counter, e.Used, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

func invalidTransition(event string, from entitlements.Status) error {
	return fmt.Errorf("%w: %s not allowed from %s", ErrInvalidTransition, event, from)
}

// DowngradeBlockedError reports a plan change that the current usage does not fit into.
type DowngradeBlockedError struct {
	Plan    entitlements.PlanTier
	Counter entitlements.Counter
	Used    int
	Limit   int
}

func (e *DowngradeBlockedError) Error() string {
	return fmt.Sprintf("billing: cannot switch to %s, %s uses %d of %d", e.Plan, e.Counter, e.Used, e.Limit)
}

func (e *DowngradeBlockedError) Is(target error) bool {
	return target == ErrInvalidTransition
}
