package moderation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gradewise/moderation-server/internal/config"
	"github.com/gradewise/moderation-server/internal/metrics"
	"github.com/gradewise/moderation-server/internal/model"
	"github.com/gradewise/moderation-server/internal/storage"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStorage(t *testing.T) *storage.Storage {
	t.Helper()

	model.InitHashFunction()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver: "sqlite3",
			// A named in-memory database per test keeps tests isolated
			Connection: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		},
	}

	db, err := storage.New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func testService(t *testing.T, db *storage.Storage, events *Dispatcher) *Service {
	t.Helper()

	if events == nil {
		events = NewDispatcher(testLogger())
	}

	return New(db, events, metrics.NewMetricsFake(), testLogger(), Options{
		// Quotas wide enough that only the rate-limit tests exercise them
		HourlyReportLimit: 100,
		DailyReportLimit:  1000,
		MinReasonLength:   20,
		DefaultSuspension: 7 * 24 * time.Hour,
	})
}

const validReason = "This user sent me threatening messages repeatedly over chat"

func submitReport(t *testing.T, svc *Service, reporter, reported model.UserID) *model.Report {
	t.Helper()

	report, err := svc.SubmitReport(context.Background(), SubmitReportInput{
		ReporterID: reporter,
		ReportedID: reported,
		Category:   model.CategoryHarassment,
		Reason:     validReason,
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	require.False(t, report.Resolved)

	return report
}

func TestSubmitReportValidation(t *testing.T) {
	svc := testService(t, testStorage(t), nil)
	ctx := context.Background()

	testcases := []struct {
		Name     string
		Input    SubmitReportInput
		Expected error
	}{
		{
			Name: "self report",
			Input: SubmitReportInput{
				ReporterID: 1, ReportedID: 1,
				Category: model.CategorySpam, Reason: validReason,
			},
			Expected: ErrSelfReport,
		},
		{
			Name: "reason too short",
			Input: SubmitReportInput{
				ReporterID: 1, ReportedID: 2,
				Category: model.CategorySpam, Reason: "too short",
			},
			Expected: ErrReasonTooShort,
		},
		{
			Name: "padding does not count toward the minimum",
			Input: SubmitReportInput{
				ReporterID: 1, ReportedID: 2,
				Category: model.CategorySpam, Reason: "short          \t\t\t\t\t\t        ",
			},
			Expected: ErrReasonTooShort,
		},
		{
			Name: "unknown category",
			Input: SubmitReportInput{
				ReporterID: 1, ReportedID: 2,
				Category: model.ReportCategory("abuse"), Reason: validReason,
			},
			Expected: ErrUnknownCategory,
		},
	}

	for _, testcase := range testcases {
		t.Run(testcase.Name, func(t *testing.T) {
			report, err := svc.SubmitReport(ctx, testcase.Input)
			require.ErrorIs(t, err, testcase.Expected)
			require.Nil(t, report)
		})
	}
}

func TestDuplicateReportSuppression(t *testing.T) {
	svc := testService(t, testStorage(t), nil)
	ctx := context.Background()

	first := submitReport(t, svc, 1, 2)

	// Second submission against the same open case returns the same report
	second, err := svc.SubmitReport(ctx, SubmitReportInput{
		ReporterID: 1, ReportedID: 2,
		Category: model.CategorySpam, Reason: validReason,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// After resolution a new submission opens a new case
	_, err = svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: first.ID, AdminID: 99,
		Outcome: model.OutcomeNoAction, Notes: "nothing to see here",
	})
	require.NoError(t, err)

	third := submitReport(t, svc, 1, 2)
	require.NotEqual(t, first.ID, third.ID)
}

func TestSubmitReportRateLimited(t *testing.T) {
	db := testStorage(t)
	svc := New(db, NewDispatcher(testLogger()), metrics.NewMetricsFake(), testLogger(), Options{
		HourlyReportLimit: 5,
		DailyReportLimit:  20,
		MinReasonLength:   20,
		DefaultSuspension: 7 * 24 * time.Hour,
	})
	ctx := context.Background()

	// Distinct targets so duplicate suppression stays out of the picture
	for i := 0; i < 5; i++ {
		submitReport(t, svc, 1, model.UserID(10+i))
	}

	report, err := svc.SubmitReport(ctx, SubmitReportInput{
		ReporterID: 1, ReportedID: 42,
		Category: model.CategorySpam, Reason: validReason,
	})
	require.Nil(t, report)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	require.Equal(t, WindowHourly, rateErr.Window)

	// Nothing was persisted for the denied submission
	_, total, listErr := db.UnresolvedReports(ctx, 1, 50)
	require.NoError(t, listErr)
	require.Equal(t, int64(5), total)
}

// A submission that passes admission but never persists must hand its
// quota slot back: the limiter count and the report row commit together
// or not at all.
func TestSubmitReportFailedPersistenceKeepsQuota(t *testing.T) {
	db := testStorage(t)
	svc := New(db, NewDispatcher(testLogger()), metrics.NewMetricsFake(), testLogger(), Options{
		HourlyReportLimit: 5,
		DailyReportLimit:  20,
		MinReasonLength:   20,
		DefaultSuspension: 7 * 24 * time.Hour,
	})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		report, err := svc.SubmitReport(cancelled, SubmitReportInput{
			ReporterID: 1, ReportedID: model.UserID(10 + i),
			Category: model.CategorySpam, Reason: validReason,
		})
		require.Error(t, err)
		require.Nil(t, report)
	}

	// Nothing was persisted by the failed submissions
	_, total, err := db.UnresolvedReports(context.Background(), 1, 50)
	require.NoError(t, err)
	require.Zero(t, total)

	// And none of them consumed quota: a legitimate submission still fits
	submitReport(t, svc, 1, 42)
}

func TestResolveReportSuspend(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report := submitReport(t, svc, 1, 2)

	resolved, err := svc.ResolveReport(ctx, ResolveReportInput{
		ReportID:           report.ID,
		AdminID:            99,
		Outcome:            model.OutcomeSuspend,
		Notes:              "repeated harassment",
		SuspensionDuration: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	require.True(t, resolved.Resolved)
	require.Equal(t, model.OutcomeSuspend, resolved.Outcome)
	require.Equal(t, model.UserID(99), resolved.ResolvedBy)
	require.True(t, resolved.ResolvedAt.Valid)

	record, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusSuspended, record.Status)
	require.Equal(t, 1, record.ViolationCount)
	require.True(t, record.SuspensionStartDate.Valid)
	require.True(t, record.SuspensionEndDate.Valid)
	require.Equal(t,
		record.SuspensionStartDate.Time.Add(7*24*time.Hour),
		record.SuspensionEndDate.Time,
	)
	require.False(t, record.BannedAt.Valid)
}

func TestResolveReportBan(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report := submitReport(t, svc, 1, 2)

	_, err := svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeBan, Notes: "fake account farm",
	})
	require.NoError(t, err)

	record, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusBanned, record.Status)
	require.Equal(t, 1, record.ViolationCount)
	require.True(t, record.BannedAt.Valid)
	require.Equal(t, "fake account farm", record.BanReason)
	require.False(t, record.SuspensionStartDate.Valid)
}

func TestResolveReportNoActionLeavesNoRecord(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report := submitReport(t, svc, 1, 2)

	_, err := svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeNoAction, Notes: "report unfounded",
	})
	require.NoError(t, err)

	// Records are created lazily on the first violation, not on dismissal
	_, err = db.ModerationRecordByUserID(ctx, 2)
	require.Error(t, err)

	// Dismissing a report against an already-moderated user leaves their
	// existing record untouched, updated_at included
	report2 := submitReport(t, svc, 3, 2)
	_, err = svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report2.ID, AdminID: 99,
		Outcome: model.OutcomeWarn, Notes: "warned",
	})
	require.NoError(t, err)

	before, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)

	report3 := submitReport(t, svc, 4, 2)
	_, err = svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report3.ID, AdminID: 99,
		Outcome: model.OutcomeNoAction, Notes: "unfounded",
	})
	require.NoError(t, err)

	after, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, before.ViolationCount, after.ViolationCount)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestResolveReportIdempotent(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report := submitReport(t, svc, 1, 2)

	input := ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeWarn, Notes: "first warning",
	}

	first, err := svc.ResolveReport(ctx, input)
	require.NoError(t, err)
	require.True(t, first.Resolved)

	// A stale retry answers with the current state and applies nothing
	second, err := svc.ResolveReport(ctx, input)
	require.NoError(t, err)
	require.True(t, second.Resolved)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Outcome, second.Outcome)

	record, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, record.ViolationCount)
}

func TestResolveReportUnknownOutcome(t *testing.T) {
	svc := testService(t, testStorage(t), nil)

	_, err := svc.ResolveReport(context.Background(), ResolveReportInput{
		ReportID: 1, AdminID: 99,
		Outcome: model.ReportOutcome("shadowban"),
	})
	require.ErrorIs(t, err, ErrUnknownOutcome)
}

func TestCanAppeal(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	// No moderation record: nothing to contest
	eligible, err := svc.CanAppeal(ctx, 2)
	require.NoError(t, err)
	require.False(t, eligible)

	// Warned but active: still nothing to contest
	report := submitReport(t, svc, 1, 2)
	_, err = svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeWarn, Notes: "warning issued",
	})
	require.NoError(t, err)

	eligible, err = svc.CanAppeal(ctx, 2)
	require.NoError(t, err)
	require.False(t, eligible)

	// Suspended: eligible until an appeal is pending
	report2 := submitReport(t, svc, 3, 2)
	_, err = svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report2.ID, AdminID: 99,
		Outcome: model.OutcomeSuspend, Notes: "enough warnings",
	})
	require.NoError(t, err)

	eligible, err = svc.CanAppeal(ctx, 2)
	require.NoError(t, err)
	require.True(t, eligible)

	_, err = svc.CreateAppeal(ctx, 2, "I believe the suspension is a mistake")
	require.NoError(t, err)

	eligible, err = svc.CanAppeal(ctx, 2)
	require.NoError(t, err)
	require.False(t, eligible)
}

func TestCreateAppealNotEligible(t *testing.T) {
	svc := testService(t, testStorage(t), nil)

	appeal, err := svc.CreateAppeal(context.Background(), 2, "pre-emptive appeal")
	require.ErrorIs(t, err, ErrNotEligible)
	require.Nil(t, appeal)
}

func TestCreateAppealEmptyReason(t *testing.T) {
	svc := testService(t, testStorage(t), nil)

	_, err := svc.CreateAppeal(context.Background(), 2, "   ")
	require.ErrorIs(t, err, ErrEmptyAppealReason)
}

// N concurrent appeal creations for one user must leave exactly one pending
// appeal behind.
func TestCreateAppealSinglePending(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report := submitReport(t, svc, 1, 2)
	_, err := svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeSuspend, Notes: "suspended for harassment",
	})
	require.NoError(t, err)

	const attempts = 8

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := svc.CreateAppeal(ctx, 2, "I believe the suspension is a mistake")

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicatePendingAppeal):
				duplicates++
			}
		}()
	}

	wg.Wait()

	require.Equal(t, 1, created)
	require.Equal(t, attempts-1, duplicates)

	_, total, err := db.PendingAppeals(ctx, 1, 50)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestReviewAppealAccepted(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report := submitReport(t, svc, 1, 2)
	_, err := svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeBan, Notes: "spam ring",
	})
	require.NoError(t, err)

	appeal, err := svc.CreateAppeal(ctx, 2, "account was compromised, now recovered")
	require.NoError(t, err)

	reviewed, err := svc.ReviewAppeal(ctx, ReviewAppealInput{
		AppealID: appeal.ID, AdminID: 99,
		Decision: model.DecisionAccept, Notes: "verified account recovery",
	})
	require.NoError(t, err)
	require.Equal(t, model.AppealAccepted, reviewed.Status)
	require.Equal(t, model.UserID(99), reviewed.ReviewedBy)
	require.True(t, reviewed.ReviewedAt.Valid)

	record, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, record.Status)
	require.False(t, record.BannedAt.Valid)
	require.Empty(t, record.BanReason)
	require.False(t, record.SuspensionStartDate.Valid)

	// Violation history survives an accepted appeal
	require.Equal(t, 1, record.ViolationCount)
}

// Accepting an appeal restores active standing from any appealable status,
// including pending_review.
func TestReviewAppealAcceptedFromPendingReview(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	_, err := svc.FlagForReview(ctx, 2, 99, "multiple low-confidence reports")
	require.NoError(t, err)

	appeal, err := svc.CreateAppeal(ctx, 2, "nothing in my history warrants review")
	require.NoError(t, err)

	_, err = svc.ReviewAppeal(ctx, ReviewAppealInput{
		AppealID: appeal.ID, AdminID: 99,
		Decision: model.DecisionAccept, Notes: "agreed",
	})
	require.NoError(t, err)

	record, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, record.Status)
	require.False(t, record.SuspensionStartDate.Valid)
	require.False(t, record.BannedAt.Valid)
}

func TestReviewAppealRejected(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report := submitReport(t, svc, 1, 2)
	_, err := svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeSuspend, Notes: "harassment",
	})
	require.NoError(t, err)

	appeal, err := svc.CreateAppeal(ctx, 2, "the messages were taken out of context")
	require.NoError(t, err)

	before, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)

	reviewed, err := svc.ReviewAppeal(ctx, ReviewAppealInput{
		AppealID: appeal.ID, AdminID: 99,
		Decision: model.DecisionReject, Notes: "context reviewed, decision stands",
	})
	require.NoError(t, err)
	require.Equal(t, model.AppealRejected, reviewed.Status)

	// Standing unchanged on rejection, and the untouched record was not
	// rewritten: updated_at moves only on mutation
	record, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusSuspended, record.Status)
	require.Equal(t, before.UpdatedAt, record.UpdatedAt)

	// A rejected appeal frees the slot for a new one
	eligible, err := svc.CanAppeal(ctx, 2)
	require.NoError(t, err)
	require.True(t, eligible)
}

func TestReviewAppealIdempotent(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report := submitReport(t, svc, 1, 2)
	_, err := svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeSuspend, Notes: "harassment",
	})
	require.NoError(t, err)

	appeal, err := svc.CreateAppeal(ctx, 2, "the messages were taken out of context")
	require.NoError(t, err)

	input := ReviewAppealInput{
		AppealID: appeal.ID, AdminID: 99,
		Decision: model.DecisionReject, Notes: "decision stands",
	}

	first, err := svc.ReviewAppeal(ctx, input)
	require.NoError(t, err)

	second, err := svc.ReviewAppeal(ctx, input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Status, second.Status)
}

func TestFlagForReview(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	record, err := svc.FlagForReview(ctx, 2, 99, "suspicious grading patterns")
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingReview, record.Status)
	require.Equal(t, "suspicious grading patterns", record.AdminNotes)

	// Sanctioned users cannot be downgraded to pending review
	report := submitReport(t, svc, 1, 3)
	_, err = svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeBan, Notes: "banned",
	})
	require.NoError(t, err)

	_, err = svc.FlagForReview(ctx, 3, 99, "flag attempt")
	require.ErrorIs(t, err, ErrAlreadySanctioned)
}

func TestUserStanding(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	// Never-moderated users read as active
	standing, err := svc.UserStanding(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, standing.Status)
	require.Equal(t, 0, standing.ViolationCount)

	report := submitReport(t, svc, 1, 7)
	_, err = svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeSuspend, Notes: "harassment",
	})
	require.NoError(t, err)

	standing, err = svc.UserStanding(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, model.StatusSuspended, standing.Status)
}

func TestResolutionPublishesEvents(t *testing.T) {
	events := NewDispatcher(testLogger())
	db := testStorage(t)
	svc := testService(t, db, events)
	ctx := context.Background()

	received := make(chan Event, 8)
	events.Subscribe(func(event Event) {
		received <- event
	})

	report := submitReport(t, svc, 1, 2)
	_, err := svc.ResolveReport(ctx, ResolveReportInput{
		ReportID: report.ID, AdminID: 99,
		Outcome: model.OutcomeSuspend, Notes: "harassment",
	})
	require.NoError(t, err)

	events.Wait()
	close(received)

	names := make(map[EventName]Event)
	for event := range received {
		names[event.Name] = event
	}

	require.Contains(t, names, EventReportResolved)
	require.Contains(t, names, EventUserSuspended)
	require.Equal(t, model.UserID(2), names[EventUserSuspended].UserID)
	require.Equal(t, report.ID, names[EventReportResolved].ReportID)
}

// The end-to-end walkthrough: report, suspend, appeal, accept.
func TestModerationScenario(t *testing.T) {
	db := testStorage(t)
	svc := testService(t, db, nil)
	ctx := context.Background()

	report, err := svc.SubmitReport(ctx, SubmitReportInput{
		ReporterID: 1,
		ReportedID: 2,
		Category:   model.CategoryHarassment,
		Reason:     "This user sent me threatening messages repeatedly over chat",
	})
	require.NoError(t, err)
	require.False(t, report.Resolved)

	_, err = svc.ResolveReport(ctx, ResolveReportInput{
		ReportID:           report.ID,
		AdminID:            99,
		Outcome:            model.OutcomeSuspend,
		Notes:              "clear harassment",
		SuspensionDuration: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	record, err := db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusSuspended, record.Status)
	require.Equal(t, 1, record.ViolationCount)
	require.True(t, record.SuspensionEndDate.Valid)

	eligible, err := svc.CanAppeal(ctx, 2)
	require.NoError(t, err)
	require.True(t, eligible)

	appeal, err := svc.CreateAppeal(ctx, 2, "I apologize, it will not happen again")
	require.NoError(t, err)
	require.Equal(t, model.AppealPending, appeal.Status)

	reviewed, err := svc.ReviewAppeal(ctx, ReviewAppealInput{
		AppealID: appeal.ID, AdminID: 99,
		Decision: model.DecisionAccept, Notes: "first offense, accepted",
	})
	require.NoError(t, err)
	require.Equal(t, model.AppealAccepted, reviewed.Status)

	record, err = db.ModerationRecordByUserID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, record.Status)
	require.False(t, record.SuspensionStartDate.Valid)
	require.False(t, record.SuspensionEndDate.Valid)
	require.Equal(t, 1, record.ViolationCount)
}
