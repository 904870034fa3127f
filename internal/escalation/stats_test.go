package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statsColumns() []string {
	return []string{
		"total_active", "tier1_active", "tier2_active", "tier3_active",
		"resolved_today", "avg_resolution_minutes",
	}
}

func TestAccountStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewStatsRepository(db, 7*24*time.Hour)
	now := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT").
		WithArgs("acct-1", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), now.Add(-7*24*time.Hour)).
		WillReturnRows(sqlmock.NewRows(statsColumns()).
			AddRow(7, 4, 2, 1, 3, 182.5))

	stats, err := repo.AccountStats(context.Background(), "acct-1", now)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalActive)
	assert.Equal(t, [TierCount]int{4, 2, 1}, stats.PerTier)
	assert.Equal(t, 3, stats.ResolvedToday)
	require.NotNil(t, stats.AvgResolutionMinutes)
	assert.InDelta(t, 182.5, *stats.AvgResolutionMinutes, 0.01)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStatsNoResolutions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewStatsRepository(db, 0) // falls back to the default window
	now := time.Now()

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows(statsColumns()).
			AddRow(0, 0, 0, 0, 0, nil))

	stats, err := repo.AccountStats(context.Background(), "acct-2", now)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalActive)
	assert.Nil(t, stats.AvgResolutionMinutes)
}

func TestStartOfDayUTC(t *testing.T) {
	in := time.Date(2026, 3, 14, 23, 59, 59, 0, time.FixedZone("JST", 9*3600))
	got := startOfDayUTC(in)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), got)
}
