package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a feedback item does not exist.
var ErrNotFound = errors.New("feedback: item not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads feedback items from the relational database. The feedback
// subsystem owns writes; this store is read-only.
type Store struct {
	db DB
}

// NewStore creates a feedback read store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("feedback: db required")
	}
	return &Store{db: db}
}

const itemColumns = `id, account_id, reporter_id, category, rating, urgent, state, created_at, first_responded_at, resolved_at`

// ListOpen returns all feedback items for an account that are not in a
// terminal lifecycle state, oldest first.
func (s *Store) ListOpen(ctx context.Context, accountID string) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM feedback_items
		WHERE account_id = $1 AND state NOT IN ('resolved', 'archived')
		ORDER BY created_at ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("feedback: list open: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// GetByID fetches a single feedback item scoped to the account.
func (s *Store) GetByID(ctx context.Context, accountID string, id uuid.UUID) (*Item, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM feedback_items
		WHERE account_id = $1 AND id = $2`, accountID, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("feedback: get by id: %w", err)
	}
	return item, nil
}

// CountOpenByReporter returns how many non-terminal items a reporter has
// open with the account. Used for repeat-incident detection.
func (s *Store) CountOpenByReporter(ctx context.Context, accountID, reporterID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM feedback_items
		WHERE account_id = $1 AND reporter_id = $2 AND state NOT IN ('resolved', 'archived')`,
		accountID, reporterID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("feedback: count open by reporter: %w", err)
	}
	return count, nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	var state string
	err := row.Scan(
		&it.ID, &it.AccountID, &it.ReporterID, &it.Category, &it.Rating,
		&it.Urgent, &state, &it.CreatedAt, &it.FirstRespondedAt, &it.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	it.State = LifecycleState(state)
	return &it, nil
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	var result []Item
	for rows.Next() {
		var it Item
		var state string
		err := rows.Scan(
			&it.ID, &it.AccountID, &it.ReporterID, &it.Category, &it.Rating,
			&it.Urgent, &state, &it.CreatedAt, &it.FirstRespondedAt, &it.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("feedback: scan item: %w", err)
		}
		it.State = LifecycleState(state)
		result = append(result, it)
	}
	return result, rows.Err()
}
