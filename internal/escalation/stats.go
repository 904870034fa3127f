package escalation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Stats summarizes escalation load for an account dashboard.
type Stats struct {
	TotalActive          int            `json:"total_active"`
	PerTier              [TierCount]int `json:"per_tier"`
	ResolvedToday        int            `json:"resolved_today"`
	AvgResolutionMinutes *float64       `json:"avg_resolution_minutes"`
	WindowStart          time.Time      `json:"window_start"`
}

// StatsRepository aggregates escalation counts straight from SQL. Reporting
// queries stay on database/sql so the read path is independent of the pgx
// write pool.
type StatsRepository struct {
	db     *sql.DB
	window time.Duration
}

// NewStatsRepository creates a stats repository with a rolling window for the
// resolution-time average.
func NewStatsRepository(db *sql.DB, window time.Duration) *StatsRepository {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &StatsRepository{db: db, window: window}
}

// AccountStats computes the dashboard aggregate for one account at the given
// instant. "Today" is the UTC calendar day containing now.
func (r *StatsRepository) AccountStats(ctx context.Context, accountID string, now time.Time) (*Stats, error) {
	dayStart := startOfDayUTC(now)
	windowStart := now.Add(-r.window)

	const query = `
		SELECT
			COUNT(*) FILTER (WHERE resolved_at IS NULL) AS total_active,
			COUNT(*) FILTER (WHERE resolved_at IS NULL AND tier = 1) AS tier1_active,
			COUNT(*) FILTER (WHERE resolved_at IS NULL AND tier = 2) AS tier2_active,
			COUNT(*) FILTER (WHERE resolved_at IS NULL AND tier = 3) AS tier3_active,
			COUNT(*) FILTER (WHERE resolved_at >= $2) AS resolved_today,
			AVG(EXTRACT(EPOCH FROM (resolved_at - triggered_at)) / 60)
				FILTER (WHERE resolved_at >= $3) AS avg_resolution_minutes
		FROM escalations
		WHERE account_id = $1`

	stats := &Stats{WindowStart: windowStart}
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, accountID, dayStart, windowStart).Scan(
		&stats.TotalActive,
		&stats.PerTier[0], &stats.PerTier[1], &stats.PerTier[2],
		&stats.ResolvedToday,
		&avg,
	)
	if err != nil {
		return nil, fmt.Errorf("escalation: account stats: %w", err)
	}
	if avg.Valid {
		stats.AvgResolutionMinutes = &avg.Float64
	}
	return stats, nil
}

func startOfDayUTC(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
