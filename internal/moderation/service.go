package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gradewise/moderation-server/internal/metrics"
	"github.com/gradewise/moderation-server/internal/model"
	"github.com/gradewise/moderation-server/internal/storage"
	"gorm.io/gorm"
)

// Service is the moderation core: report intake and resolution, appeal
// lifecycle, and the authoritative standing of every user. All state lives
// in storage; the service itself is safe for concurrent use.
type Service struct {
	db        *storage.Storage
	limiter   *ReportRateLimiter
	policy    SanctionPolicy
	events    *Dispatcher
	metrics   metrics.Metrics
	logger    *slog.Logger
	minReason int
	now       func() time.Time
}

// Options for building a Service.
type Options struct {
	HourlyReportLimit int64
	DailyReportLimit  int64
	MinReasonLength   int
	DefaultSuspension time.Duration
}

// New - a moderation service over the given storage.
func New(db *storage.Storage, events *Dispatcher, m metrics.Metrics, logger *slog.Logger, opts Options) *Service {
	return &Service{
		db:        db,
		limiter:   NewReportRateLimiter(opts.HourlyReportLimit, opts.DailyReportLimit),
		policy:    SanctionPolicy{DefaultSuspension: opts.DefaultSuspension},
		events:    events,
		metrics:   m,
		logger:    logger,
		minReason: opts.MinReasonLength,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SubmitReportInput - arguments for SubmitReport.
type SubmitReportInput struct {
	ReporterID model.UserID
	ReportedID model.UserID
	Category   model.ReportCategory
	Reason     string
}

// SubmitReport - validate and persist a report against another user.
// An unresolved report for the same (reporter, reported) pair is returned
// as-is instead of creating a duplicate. The rate limiter is consulted
// before anything is persisted.
func (s *Service) SubmitReport(ctx context.Context, in SubmitReportInput) (*model.Report, error) {
	if in.ReporterID == in.ReportedID {
		return nil, ErrSelfReport
	}

	if !in.Category.Valid() {
		return nil, WrapUnknownCategory(string(in.Category))
	}

	if len(strings.TrimSpace(in.Reason)) < s.minReason {
		return nil, WrapReasonTooShort(s.minReason)
	}

	if err := s.limiter.CheckAndRecord(in.ReporterID); err != nil {
		s.metrics.LogUserEvent("report_rate_limited", in.ReporterID.ToInt64(), map[string]interface{}{"count": 1})

		return nil, err
	}

	report := &model.Report{
		ReporterID: in.ReporterID,
		ReportedID: in.ReportedID,
		Category:   in.Category,
		Reason:     in.Reason,
	}

	surviving, created, err := s.db.CreateReport(ctx, report)
	if err != nil {
		// Admission and persistence stay coupled: a slot counted for a
		// report row that never committed is handed back.
		s.limiter.Refund(in.ReporterID)

		return nil, fmt.Errorf("creating report: %w", err)
	}

	if !created {
		// Duplicate suppression: the open case absorbs the new submission.
		s.logger.DebugContext(ctx, "duplicate report suppressed",
			slog.Int64("report_id", surviving.ID.ToInt64()),
			slog.Int64("reporter_id", in.ReporterID.ToInt64()),
		)

		return surviving, nil
	}

	s.metrics.LogUserEvent("report_submitted", in.ReportedID.ToInt64(), map[string]interface{}{
		"category": string(in.Category),
		"count":    1,
	})

	return surviving, nil
}

// ResolveReportInput - arguments for ResolveReport.
type ResolveReportInput struct {
	ReportID model.ReportID
	AdminID  model.UserID
	Outcome  model.ReportOutcome
	Notes    string
	// Suspension length for a suspend outcome; the policy default applies
	// when zero.
	SuspensionDuration time.Duration
}

// ResolveReport - close the report and apply the outcome to the reported
// user's moderation record, atomically. Resolving an already-resolved report
// is an idempotent no-op returning the current state. This is the only path
// that moves a user into suspended or banned standing.
func (s *Service) ResolveReport(ctx context.Context, in ResolveReportInput) (*model.Report, error) {
	if !in.Outcome.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutcome, in.Outcome)
	}

	now := s.now()

	report, record, err := s.db.ResolveReport(ctx, in.ReportID, func(report *model.Report, record *model.ModerationRecord) error {
		if report.Resolved {
			return ErrAlreadyResolved
		}

		report.Resolve(in.AdminID, in.Outcome, in.Notes, now)
		s.policy.Apply(record, in.Outcome, in.SuspensionDuration, in.Notes, now)

		return nil
	})

	switch {
	case errors.Is(err, ErrAlreadyResolved):
		// Stale retry: answer with the current state, no side effects.
		s.logger.DebugContext(ctx, "report already resolved",
			slog.Int64("report_id", in.ReportID.ToInt64()),
			slog.Int64("admin_id", in.AdminID.ToInt64()),
		)

		return report, nil
	case err != nil:
		return nil, fmt.Errorf("resolving report %d: %w", in.ReportID, err)
	}

	s.publishResolution(report, record, now)

	s.metrics.LogUserEvent("report_resolved", report.ReportedID.ToInt64(), map[string]interface{}{
		"outcome":    string(in.Outcome),
		"violations": record.ViolationCount,
	})

	return report, nil
}

func (s *Service) publishResolution(report *model.Report, record *model.ModerationRecord, now time.Time) {
	s.events.Publish(Event{
		Name:       EventReportResolved,
		UserID:     report.ReportedID,
		ReportID:   report.ID,
		Outcome:    report.Outcome,
		OccurredAt: now,
	})

	switch record.Status {
	case model.StatusSuspended:
		s.events.Publish(Event{
			Name:       EventUserSuspended,
			UserID:     record.UserID,
			ReportID:   report.ID,
			OccurredAt: now,
		})
	case model.StatusBanned:
		s.events.Publish(Event{
			Name:       EventUserBanned,
			UserID:     record.UserID,
			ReportID:   report.ID,
			OccurredAt: now,
		})
	case model.StatusActive, model.StatusPendingReview:
		// No standing change to announce.
	}
}

// CanAppeal - whether the user may file a new appeal right now. A user with
// no moderation record has nothing to contest and is not eligible. The
// result is advisory: CreateAppeal re-evaluates the same predicate inside
// its transaction.
func (s *Service) CanAppeal(ctx context.Context, userID model.UserID) (bool, error) {
	record, err := s.db.ModerationRecordByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("loading moderation record: %w", err)
	}

	if !record.Status.Appealable() {
		return false, nil
	}

	pending, err := s.db.PendingAppealExists(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking pending appeals: %w", err)
	}

	return !pending, nil
}

// CreateAppeal - file an appeal against the user's current standing. The
// eligibility predicate runs inside the insert transaction, so two
// concurrent calls for one user cannot both leave a pending appeal behind.
func (s *Service) CreateAppeal(ctx context.Context, userID model.UserID, reason string) (*model.Appeal, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyAppealReason
	}

	appeal, err := s.db.CreateAppeal(ctx, model.NewAppeal(userID, reason), func(record *model.ModerationRecord, pendingAppeals int64) error {
		if record == nil || !record.Status.Appealable() {
			return ErrNotEligible
		}

		if pendingAppeals > 0 {
			return ErrDuplicatePendingAppeal
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotEligible) || errors.Is(err, ErrDuplicatePendingAppeal) {
			return nil, err
		}

		return nil, fmt.Errorf("creating appeal: %w", err)
	}

	s.metrics.LogUserEvent("appeal_created", userID.ToInt64(), map[string]interface{}{"count": 1})

	return appeal, nil
}

// ReviewAppealInput - arguments for ReviewAppeal.
type ReviewAppealInput struct {
	AppealID model.AppealID
	AdminID  model.UserID
	Decision model.AppealDecision
	Notes    string
}

// ReviewAppeal - close a pending appeal. Accepting restores the user to
// active standing and clears suspension/ban fields in the same transaction;
// the violation count stays. Reviewing an already-reviewed appeal is an
// idempotent no-op returning the current state.
func (s *Service) ReviewAppeal(ctx context.Context, in ReviewAppealInput) (*model.Appeal, error) {
	if !in.Decision.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecision, in.Decision)
	}

	now := s.now()

	appeal, _, err := s.db.ReviewAppeal(ctx, in.AppealID, func(appeal *model.Appeal, record *model.ModerationRecord) error {
		if appeal.Status.Terminal() {
			return ErrAlreadyReviewed
		}

		appeal.Review(in.AdminID, in.Decision, in.Notes, now)

		if in.Decision == model.DecisionAccept {
			record.ClearSanctions()
		}

		return nil
	})

	switch {
	case errors.Is(err, ErrAlreadyReviewed):
		s.logger.DebugContext(ctx, "appeal already reviewed",
			slog.Int64("appeal_id", in.AppealID.ToInt64()),
			slog.Int64("admin_id", in.AdminID.ToInt64()),
		)

		return appeal, nil
	case err != nil:
		return nil, fmt.Errorf("reviewing appeal %d: %w", in.AppealID, err)
	}

	s.events.Publish(Event{
		Name:       EventAppealReviewed,
		UserID:     appeal.UserID,
		AppealID:   appeal.ID,
		Decision:   in.Decision,
		OccurredAt: now,
	})

	s.metrics.LogUserEvent("appeal_reviewed", appeal.UserID.ToInt64(), map[string]interface{}{
		"decision": string(in.Decision),
	})

	return appeal, nil
}

// FlagForReview - place the user under review without sanctioning them.
// Suspension and ban stay exclusive to report resolution; this transition
// only marks the account for operator attention.
func (s *Service) FlagForReview(ctx context.Context, userID, adminID model.UserID, notes string) (*model.ModerationRecord, error) {
	record, err := s.db.WithModerationRecord(ctx, userID, func(record *model.ModerationRecord) error {
		if record.Status.Sanctioned() {
			return ErrAlreadySanctioned
		}

		record.Status = model.StatusPendingReview
		if notes != "" {
			record.AdminNotes = notes
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySanctioned) {
			return nil, err
		}

		return nil, fmt.Errorf("flagging user %d for review: %w", userID, err)
	}

	s.metrics.LogUserEvent("user_flagged", userID.ToInt64(), map[string]interface{}{
		"admin_id": adminID.ToInt64(),
	})

	return record, nil
}

// UserStanding - the user's moderation record. Users that were never
// moderated get an implicit active-standing view; the stored record itself
// stays lazily created.
func (s *Service) UserStanding(ctx context.Context, userID model.UserID) (*model.ModerationRecord, error) {
	record, err := s.db.ModerationRecordByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NewModerationRecord(userID), nil
	} else if err != nil {
		return nil, fmt.Errorf("loading moderation record: %w", err)
	}

	return record, nil
}
