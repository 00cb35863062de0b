package moderation

import (
	"context"
	"log/slog"
	"time"

	"github.com/gradewise/moderation-server/internal/directory"
	"github.com/gradewise/moderation-server/internal/model"
	"github.com/gradewise/moderation-server/internal/storage"
)

// Read models for operator tooling. These aggregate committed state only;
// the stores in service.go never expose half-applied transitions, so neither
// do these listings.

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// UserSummary is directory enrichment attached to a listing row. Nil when
// the directory has no profile for the user.
type UserSummary struct {
	ID          model.UserID `json:"id"`
	DisplayName string       `json:"display_name"`
	Email       string       `json:"email"`
}

// ReportQueueItem is one row of the unresolved-reports listing.
type ReportQueueItem struct {
	model.Report
	Reporter *UserSummary `json:"reporter,omitempty"`
	Reported *UserSummary `json:"reported,omitempty"`
}

// AppealQueueItem is one row of the pending-appeals listing.
type AppealQueueItem struct {
	model.Appeal
	User *UserSummary `json:"user,omitempty"`
}

// ModeratedUserItem is one row of the moderated-users listing.
type ModeratedUserItem struct {
	model.ModerationRecord
	User *UserSummary `json:"user,omitempty"`
	// True when the suspension window has already passed.
	SuspensionExpired bool `json:"suspension_expired"`
}

// ReviewQueue serves the admin read models, enriched with display data
// from the user directory.
type ReviewQueue struct {
	db     *storage.Storage
	users  directory.Directory
	logger *slog.Logger
	now    func() time.Time
}

// NewReviewQueue - a read-model aggregator over storage and the directory.
func NewReviewQueue(db *storage.Storage, users directory.Directory, logger *slog.Logger) *ReviewQueue {
	return &ReviewQueue{
		db:     db,
		users:  users,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// UnresolvedReports - open reports awaiting an admin decision.
func (q *ReviewQueue) UnresolvedReports(ctx context.Context, page, pageSize int) ([]ReportQueueItem, int64, error) {
	pageSize = clampPageSize(pageSize)

	reports, total, err := q.db.UnresolvedReports(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]ReportQueueItem, 0, len(reports))
	for _, report := range reports {
		items = append(items, ReportQueueItem{
			Report:   report,
			Reporter: q.summary(ctx, report.ReporterID),
			Reported: q.summary(ctx, report.ReportedID),
		})
	}

	return items, total, nil
}

// PendingAppeals - appeals awaiting review.
func (q *ReviewQueue) PendingAppeals(ctx context.Context, page, pageSize int) ([]AppealQueueItem, int64, error) {
	pageSize = clampPageSize(pageSize)

	appeals, total, err := q.db.PendingAppeals(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]AppealQueueItem, 0, len(appeals))
	for _, appeal := range appeals {
		items = append(items, AppealQueueItem{
			Appeal: appeal,
			User:   q.summary(ctx, appeal.UserID),
		})
	}

	return items, total, nil
}

// ModeratedUsers - moderation records, optionally narrowed to pending review.
func (q *ReviewQueue) ModeratedUsers(ctx context.Context, filter storage.ModeratedFilter, page, pageSize int) ([]ModeratedUserItem, int64, error) {
	pageSize = clampPageSize(pageSize)

	records, total, err := q.db.ModeratedUsers(ctx, filter, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	now := q.now()

	items := make([]ModeratedUserItem, 0, len(records))
	for _, record := range records {
		items = append(items, ModeratedUserItem{
			ModerationRecord:  record,
			User:              q.summary(ctx, record.UserID),
			SuspensionExpired: record.SuspensionExpired(now),
		})
	}

	return items, total, nil
}

// summary - best-effort directory lookup; listings degrade to bare IDs when
// the directory cannot answer.
func (q *ReviewQueue) summary(ctx context.Context, id model.UserID) *UserSummary {
	profile, err := q.users.Profile(ctx, id)
	if err != nil {
		if q.logger != nil {
			q.logger.DebugContext(ctx, "directory lookup failed",
				slog.Int64("user_id", id.ToInt64()),
				slog.String("error", err.Error()),
			)
		}

		return nil
	}

	return &UserSummary{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
	}
}

func clampPageSize(pageSize int) int {
	switch {
	case pageSize <= 0:
		return defaultPageSize
	case pageSize > maxPageSize:
		return maxPageSize
	default:
		return pageSize
	}
}
