package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voxloop/feedback-platform/internal/sla"
)

// ErrNotFound is returned when an escalation record does not exist or is
// already resolved.
var ErrNotFound = errors.New("escalation: record not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns escalation records and breach notices. All idempotency
// guarantees live here as conditional writes so concurrent evaluators
// converge regardless of interleaving.
type Store struct {
	db DB
}

// NewStore creates an escalation store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("escalation: db required")
	}
	return &Store{db: db}
}

const recordColumns = `id, account_id, feedback_id, policy_id, tier, reason, triggered_at, resolved_at, resolution_note`

// OpenTier inserts a new open record for (feedback, tier). Returns false
// when an open record for that tier already exists: the partial unique index
// on (feedback_id, tier) WHERE resolved_at IS NULL makes the insert a no-op,
// which the losing writer must treat as success.
func (s *Store) OpenTier(ctx context.Context, r *Record) (bool, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO escalations (id, account_id, feedback_id, policy_id, tier, reason, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (feedback_id, tier) WHERE resolved_at IS NULL DO NOTHING`,
		r.ID, r.AccountID, r.FeedbackID, r.PolicyID, int(r.Tier), string(r.Reason), r.TriggeredAt,
	)
	if err != nil {
		return false, fmt.Errorf("escalation: open tier: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HighestOpenTier returns the highest tier currently open for a feedback
// item, or 0 when none is open.
func (s *Store) HighestOpenTier(ctx context.Context, feedbackID uuid.UUID) (Tier, error) {
	var tier int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(tier), 0) FROM escalations
		WHERE feedback_id = $1 AND resolved_at IS NULL`, feedbackID,
	).Scan(&tier)
	if err != nil {
		return 0, fmt.Errorf("escalation: highest open tier: %w", err)
	}
	return Tier(tier), nil
}

// CloseAllForFeedback resolves every open record for the feedback item.
// Idempotent: closing an already-closed set affects zero rows.
func (s *Store) CloseAllForFeedback(ctx context.Context, feedbackID uuid.UUID, note string, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE escalations SET resolved_at = $1, resolution_note = $2
		WHERE feedback_id = $3 AND resolved_at IS NULL`,
		now, note, feedbackID,
	)
	if err != nil {
		return 0, fmt.Errorf("escalation: close all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Resolve closes a single record by id, for manual resolution from operator
// tooling. Returns ErrNotFound when no open record matches.
func (s *Store) Resolve(ctx context.Context, accountID string, id uuid.UUID, note string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE escalations SET resolved_at = $1, resolution_note = $2
		WHERE account_id = $3 AND id = $4 AND resolved_at IS NULL`,
		now, note, accountID, id,
	)
	if err != nil {
		return fmt.Errorf("escalation: resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenByAccount returns all open records for an account, newest first.
func (s *Store) ListOpenByAccount(ctx context.Context, accountID string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM escalations
		WHERE account_id = $1 AND resolved_at IS NULL
		ORDER BY triggered_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("escalation: list open by account: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListOpenByFeedback returns open records for one feedback item in tier order.
func (s *Store) ListOpenByFeedback(ctx context.Context, feedbackID uuid.UUID) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM escalations
		WHERE feedback_id = $1 AND resolved_at IS NULL
		ORDER BY tier ASC`, feedbackID)
	if err != nil {
		return nil, fmt.Errorf("escalation: list open by feedback: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MarkBreachNotified records that a breach kind was reported for a feedback
// item, returning false if it was already recorded. The breach detector is
// stateless, so this flag is what suppresses repeat notifications.
func (s *Store) MarkBreachNotified(ctx context.Context, feedbackID uuid.UUID, kind sla.BreachKind) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO breach_notices (feedback_id, kind, notified_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING`,
		feedbackID, string(kind),
	)
	if err != nil {
		return false, fmt.Errorf("escalation: mark breach notified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var result []Record
	for rows.Next() {
		var r Record
		var tier int
		var reason string
		var note *string
		err := rows.Scan(
			&r.ID, &r.AccountID, &r.FeedbackID, &r.PolicyID,
			&tier, &reason, &r.TriggeredAt, &r.ResolvedAt, &note,
		)
		if err != nil {
			return nil, fmt.Errorf("escalation: scan record: %w", err)
		}
		r.Tier = Tier(tier)
		r.Reason = TriggerReason(reason)
		if note != nil {
			r.ResolutionNote = *note
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
