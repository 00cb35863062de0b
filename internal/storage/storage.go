package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	config "github.com/gradewise/moderation-server/internal/config"
	"github.com/gradewise/moderation-server/internal/model"
	storage_logger "github.com/gradewise/moderation-server/internal/storage/storage_logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// ModeratedFilter selects which records the moderated-user listing returns.
type ModeratedFilter string

const (
	FilterAll           ModeratedFilter = "all"
	FilterPendingReview ModeratedFilter = "pending_review"
)

type Storage struct {
	db *gorm.DB
}

func New(config *config.Config, logger *slog.Logger) (*Storage, error) {
	dialector, err := createDialector(&config.Database)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(
		dialector,
		&gorm.Config{
			NamingStrategy: schema.NamingStrategy{},
			Logger:         storage_logger.NewGormSlogLogger(logger),
			NowFunc:        func() time.Time { return time.Now().UTC() },
			TranslateError: true,
		})
	if err != nil {
		return nil, err
	}

	// Migrations
	const timeoutSeconds = 15 * 60

	ctx, cancel := context.WithTimeout(context.Background(), timeoutSeconds*time.Second)
	defer cancel()

	if err := db.WithContext(ctx).AutoMigrate(
		&model.ModerationRecord{},
		&model.Report{},
		&model.Appeal{},
	); err != nil {
		return nil, err
	}

	// Under READ COMMITTED, FOR UPDATE has nothing to lock before the first
	// unresolved report for a pair exists, so two racing submissions could
	// both insert. The partial unique index turns the loser's insert into a
	// conflict instead. MySQL has no partial indexes; InnoDB's gap locking
	// on the pair index already serializes that race.
	if dialector.Name() != "mysql" {
		if err := db.WithContext(ctx).Exec(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_open_pair ON reports (reporter_id, reported_id) WHERE NOT resolved",
		).Error; err != nil {
			return nil, err
		}
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent transactions.
	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}

		sqlDB.SetMaxOpenConns(1)
	}

	return &Storage{db: db}, nil
}

// Close - close the database connection
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Status - report whether the database connection is healthy.
func (s *Storage) Status() (string, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return "error", err
	}

	if err := sqlDB.Ping(); err != nil {
		return "error", err
	}

	return "ok", nil
}

// locked - apply a row-level lock to the query where the dialect supports it.
// SQLite has no FOR UPDATE in its grammar; its single-writer model already
// serializes the transactions that matter here.
func (s *Storage) locked(tx *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "sqlite" {
		return tx
	}

	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ModerationRecordByUserID - get the moderation record for the user.
// Returns gorm.ErrRecordNotFound when the user has never been moderated.
func (s *Storage) ModerationRecordByUserID(ctx context.Context, userID model.UserID) (*model.ModerationRecord, error) {
	var record model.ModerationRecord
	if err := s.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

// ReportByID - get the report by ID.
func (s *Storage) ReportByID(ctx context.Context, id model.ReportID) (*model.Report, error) {
	var report model.Report
	if err := s.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, err
	}

	return &report, nil
}

// AppealByID - get the appeal by ID.
func (s *Storage) AppealByID(ctx context.Context, id model.AppealID) (*model.Appeal, error) {
	var appeal model.Appeal
	if err := s.db.WithContext(ctx).First(&appeal, id).Error; err != nil {
		return nil, err
	}

	return &appeal, nil
}

// CreateReport - persist a new report unless an unresolved one already exists
// for the same (reporter, reported) pair. Returns the surviving report and
// whether it was created by this call. The duplicate check and the insert
// share one transaction so concurrent submissions cannot both create a row.
func (s *Storage) CreateReport(ctx context.Context, report *model.Report) (*model.Report, bool, error) {
	created := false
	surviving := report

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Report

		err := s.locked(tx).
			Where("reporter_id = ? AND reported_id = ? AND resolved = ?", report.ReporterID, report.ReportedID, false).
			First(&existing).Error
		if err == nil {
			surviving = &existing

			return nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(report).Error; err != nil {
			return err
		}

		created = true

		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a phantom race: a concurrent transaction inserted the open
		// report for this pair between our lookup and our insert. Surface
		// the row that won, same as the in-transaction duplicate check.
		var existing model.Report
		if lookupErr := s.db.WithContext(ctx).
			Where("reporter_id = ? AND reported_id = ? AND resolved = ?", report.ReporterID, report.ReportedID, false).
			First(&existing).Error; lookupErr == nil {
			return &existing, false, nil
		}

		return nil, false, err
	}

	if err != nil {
		return nil, false, err
	}

	return surviving, created, nil
}

// ResolveReport - load the report and the reported user's moderation record
// under row locks, hand both to fn for mutation, and persist them together.
// The record is created lazily when the user has none yet. If fn returns an
// error the transaction rolls back and the loaded (unmodified) report is
// still returned so callers can answer idempotent retries.
func (s *Storage) ResolveReport(
	ctx context.Context,
	id model.ReportID,
	fn func(report *model.Report, record *model.ModerationRecord) error,
) (*model.Report, *model.ModerationRecord, error) {
	var (
		report model.Report
		record model.ModerationRecord
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.locked(tx).First(&report, id).Error; err != nil {
			return err
		}

		err := s.locked(tx).First(&record, "user_id = ?", report.ReportedID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = *model.NewModerationRecord(report.ReportedID)
		} else if err != nil {
			return err
		}

		before, err := record.Hash()
		if err != nil {
			return err
		}

		if err := fn(&report, &record); err != nil {
			return err
		}

		if err := tx.Save(&report).Error; err != nil {
			return err
		}

		after, err := record.Hash()
		if err != nil {
			return err
		}

		// Only a record fn actually changed is persisted: records are
		// created lazily on the first violation, and an untouched existing
		// record must not advance its updated_at.
		if before == after {
			return nil
		}

		return tx.Save(&record).Error
	})
	if err != nil {
		return &report, &record, err
	}

	return &report, &record, nil
}

// PendingAppealExists - true when the user has an appeal awaiting review.
func (s *Storage) PendingAppealExists(ctx context.Context, userID model.UserID) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Appeal{}).
		Where("user_id = ? AND status = ?", userID, model.AppealPending).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

// CreateAppeal - insert the appeal after fn approved eligibility inside the
// same transaction. The user's moderation record is locked first (nil is
// passed when none exists), which serializes concurrent creations for the
// same user: two racing calls cannot both observe zero pending appeals.
func (s *Storage) CreateAppeal(
	ctx context.Context,
	appeal *model.Appeal,
	fn func(record *model.ModerationRecord, pendingAppeals int64) error,
) (*model.Appeal, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			record    model.ModerationRecord
			recordPtr *model.ModerationRecord
		)

		err := s.locked(tx).First(&record, "user_id = ?", appeal.UserID).Error
		if err == nil {
			recordPtr = &record
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var pending int64
		if err := tx.Model(&model.Appeal{}).
			Where("user_id = ? AND status = ?", appeal.UserID, model.AppealPending).
			Count(&pending).Error; err != nil {
			return err
		}

		if err := fn(recordPtr, pending); err != nil {
			return err
		}

		return tx.Create(appeal).Error
	})
	if err != nil {
		return nil, err
	}

	return appeal, nil
}

// ReviewAppeal - load the appeal and the appellant's moderation record under
// row locks, hand both to fn, and persist them together. As with resolution,
// fn errors roll the transaction back but the loaded appeal is returned.
func (s *Storage) ReviewAppeal(
	ctx context.Context,
	id model.AppealID,
	fn func(appeal *model.Appeal, record *model.ModerationRecord) error,
) (*model.Appeal, *model.ModerationRecord, error) {
	var (
		appeal model.Appeal
		record model.ModerationRecord
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.locked(tx).First(&appeal, id).Error; err != nil {
			return err
		}

		err := s.locked(tx).First(&record, "user_id = ?", appeal.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = *model.NewModerationRecord(appeal.UserID)
		} else if err != nil {
			return err
		}

		before, err := record.Hash()
		if err != nil {
			return err
		}

		if err := fn(&appeal, &record); err != nil {
			return err
		}

		if err := tx.Save(&appeal).Error; err != nil {
			return err
		}

		after, err := record.Hash()
		if err != nil {
			return err
		}

		// A rejection leaves the record untouched; saving it anyway would
		// advance updated_at without a mutation.
		if before == after {
			return nil
		}

		return tx.Save(&record).Error
	})
	if err != nil {
		return &appeal, &record, err
	}

	return &appeal, &record, nil
}

// WithModerationRecord - load (or lazily initialize) the user's moderation
// record under a row lock, hand it to fn for mutation, and persist it.
func (s *Storage) WithModerationRecord(
	ctx context.Context,
	userID model.UserID,
	fn func(record *model.ModerationRecord) error,
) (*model.ModerationRecord, error) {
	var record model.ModerationRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.locked(tx).First(&record, "user_id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = *model.NewModerationRecord(userID)
		} else if err != nil {
			return err
		}

		if err := fn(&record); err != nil {
			return err
		}

		return tx.Save(&record).Error
	})
	if err != nil {
		return &record, err
	}

	return &record, nil
}

// UnresolvedReports - open reports, oldest first, paginated.
func (s *Storage) UnresolvedReports(ctx context.Context, page, pageSize int) ([]model.Report, int64, error) {
	var (
		reports []model.Report
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&model.Report{}).Where("resolved = ?", false)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.
		Order("created_at ASC").
		Offset(pageOffset(page, pageSize)).
		Limit(pageSize).
		Find(&reports).Error; err != nil {
		return nil, 0, err
	}

	return reports, total, nil
}

// PendingAppeals - appeals awaiting review, oldest first, paginated.
func (s *Storage) PendingAppeals(ctx context.Context, page, pageSize int) ([]model.Appeal, int64, error) {
	var (
		appeals []model.Appeal
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&model.Appeal{}).Where("status = ?", model.AppealPending)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.
		Order("created_at ASC").
		Offset(pageOffset(page, pageSize)).
		Limit(pageSize).
		Find(&appeals).Error; err != nil {
		return nil, 0, err
	}

	return appeals, total, nil
}

// ModeratedUsers - moderation records matching the filter, most recently
// updated first, paginated.
func (s *Storage) ModeratedUsers(ctx context.Context, filter ModeratedFilter, page, pageSize int) ([]model.ModerationRecord, int64, error) {
	var (
		records []model.ModerationRecord
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&model.ModerationRecord{})
	if filter == FilterPendingReview {
		query = query.Where("status = ?", model.StatusPendingReview)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.
		Order("updated_at DESC").
		Offset(pageOffset(page, pageSize)).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func pageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}

	return (page - 1) * pageSize
}
