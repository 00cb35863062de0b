package moderation

import (
	"errors"
	"fmt"
)

// Static errors for the moderation core. Callers branch on these with
// errors.Is / errors.As instead of matching message strings.
var (
	ErrSelfReport             = errors.New("users cannot report themselves")
	ErrReasonTooShort         = errors.New("report reason is too short")
	ErrUnknownCategory        = errors.New("unknown report category")
	ErrUnknownOutcome         = errors.New("unknown resolution outcome")
	ErrUnknownDecision        = errors.New("unknown appeal decision")
	ErrEmptyAppealReason      = errors.New("appeal reason is empty")
	ErrNotEligible            = errors.New("user is not eligible to appeal")
	ErrAlreadySanctioned      = errors.New("user is already suspended or banned")
	ErrDuplicatePendingAppeal = errors.New("user already has a pending appeal")
	ErrAlreadyResolved        = errors.New("report is already resolved")
	ErrAlreadyReviewed        = errors.New("appeal is already reviewed")
)

// RateLimitWindow names which rolling window a denied submission breached.
type RateLimitWindow string

const (
	WindowHourly RateLimitWindow = "hourly"
	WindowDaily  RateLimitWindow = "daily"
)

// RateLimitError - a report submission was denied by the rate limiter.
type RateLimitError struct {
	Window RateLimitWindow // Which rolling window was breached.
	Limit  int64           // The cap of that window.
}

// Error message
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("report rate limit exceeded: %s window allows %d reports", e.Window, e.Limit)
}

// WrapUnknownCategory wraps the error for an unrecognized report category.
func WrapUnknownCategory(category string) error {
	return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
}

// WrapReasonTooShort wraps the error for a reason below the minimum length.
func WrapReasonTooShort(minimum int) error {
	return fmt.Errorf("%w: at least %d characters required", ErrReasonTooShort, minimum)
}

// IsValidation - true for errors caused by malformed input rather than state.
func IsValidation(err error) bool {
	return errors.Is(err, ErrSelfReport) ||
		errors.Is(err, ErrReasonTooShort) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrUnknownOutcome) ||
		errors.Is(err, ErrUnknownDecision) ||
		errors.Is(err, ErrEmptyAppealReason)
}
