package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/gradewise/moderation-server/internal/config"
	"github.com/gradewise/moderation-server/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testStorage(t *testing.T) *Storage {
	t.Helper()

	model.InitHashFunction()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:     "sqlite3",
			Connection: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		},
	}

	db, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func testReport(reporter, reported model.UserID) *model.Report {
	return &model.Report{
		ReporterID: reporter,
		ReportedID: reported,
		Category:   model.CategorySpam,
		Reason:     "Posts the same promotional link under every assignment",
	}
}

func TestCreateReportDuplicatePair(t *testing.T) {
	db := testStorage(t)
	ctx := context.Background()

	first, created, err := db.CreateReport(ctx, testReport(1, 2))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := db.CreateReport(ctx, testReport(1, 2))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
}

// The open-pair unique index must reject an insert that slips past the
// duplicate lookup, and must stop covering a pair once its report resolves.
func TestOpenReportPairUniqueIndex(t *testing.T) {
	db := testStorage(t)
	ctx := context.Background()

	first, created, err := db.CreateReport(ctx, testReport(1, 2))
	require.NoError(t, err)
	require.True(t, created)

	// A second open report for the pair, inserted without the duplicate
	// lookup, conflicts on the index
	err = db.db.WithContext(ctx).Create(testReport(1, 2)).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// Once the first report resolves it leaves the index, freeing the pair
	require.NoError(t, db.db.WithContext(ctx).
		Model(&model.Report{}).
		Where("id = ?", first.ID).
		Update("resolved", true).Error)

	require.NoError(t, db.db.WithContext(ctx).Create(testReport(1, 2)).Error)
}

func TestCreateReportConcurrentSamePair(t *testing.T) {
	db := testStorage(t)
	ctx := context.Background()

	const attempts = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		errs     []error
		ids      = make(map[model.ReportID]struct{})
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			surviving, created, err := db.CreateReport(ctx, testReport(1, 2))

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, err)

				return
			}

			if created {
				inserted++
			}

			ids[surviving.ID] = struct{}{}
		}()
	}

	wg.Wait()

	// Every submission succeeded and observed the same surviving row
	require.Empty(t, errs)
	require.Equal(t, 1, inserted)
	require.Len(t, ids, 1)
}
