package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Topics routed by the deliverer.
const (
	TopicEmail = "email"
	TopicQueue = "queue"
)

// Message is one pending notification in the outbox.
type Message struct {
	ID          uuid.UUID
	Topic       string
	Payload     []byte
	CreatedAt   time.Time
	DeliveredAt *time.Time
	Attempts    int
	LastError   string
}

// OutboxStore persists notifications in the same database as the escalation
// records, so an alert enqueued for a committed escalation survives a crash
// between write and send.
type OutboxStore struct {
	db DB
}

// NewOutboxStore creates an outbox store.
func NewOutboxStore(db DB) *OutboxStore {
	if db == nil {
		panic("notify: db required")
	}
	return &OutboxStore{db: db}
}

// Enqueue marshals the payload and appends it to the outbox.
func (s *OutboxStore) Enqueue(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal outbox payload: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO notification_outbox (id, topic, payload, created_at)
		VALUES ($1, $2, $3, now())`,
		uuid.New(), topic, body,
	)
	if err != nil {
		return fmt.Errorf("notify: enqueue: %w", err)
	}
	return nil
}

// FetchPending returns up to limit undelivered messages, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, topic, payload, created_at, delivered_at, attempts, COALESCE(last_error, '')
		FROM notification_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: fetch pending: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.CreatedAt, &m.DeliveredAt, &m.Attempts, &m.LastError); err != nil {
			return nil, fmt.Errorf("notify: scan outbox row: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkDelivered stamps a message as sent.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notification_outbox SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("notify: mark delivered: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure; the message stays pending and the
// next deliverer pass retries it.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notification_outbox SET attempts = attempts + 1, last_error = $2
		WHERE id = $1`, id, cause)
	if err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	return nil
}
