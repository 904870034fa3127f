package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/feedback-platform/pkg/logging"
)

type captureEmail struct {
	sent []EmailMessage
	err  error
}

func (c *captureEmail) Send(_ context.Context, msg EmailMessage) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

type captureQueue struct {
	published [][]byte
	err       error
}

func (c *captureQueue) Publish(_ context.Context, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, payload)
	return nil
}

func outboxColumns() []string {
	return []string{"id", "topic", "payload", "created_at", "delivered_at", "attempts", "last_error"}
}

func newTestDeliverer(t *testing.T, email EmailSender, queue QueuePublisher) (*Deliverer, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	d := NewDeliverer(DelivererParams{
		Outbox:    NewOutboxStore(mock),
		Email:     email,
		Queue:     queue,
		Logger:    logging.New("error"),
		Interval:  time.Second,
		BatchSize: 10,
	})
	return d, mock
}

func TestDeliverPendingRoutesByTopic(t *testing.T) {
	email := &captureEmail{}
	queue := &captureQueue{}
	d, mock := newTestDeliverer(t, email, queue)

	emailPayload, _ := json.Marshal(EmailMessage{To: []string{"mgr@example.com"}, Subject: "alert", Body: "body"})
	queuePayload, _ := json.Marshal(QueueEvent{Type: "escalation", AccountID: "acct-1"})
	emailID, queueID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM notification_outbox").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(outboxColumns()).
			AddRow(emailID, TopicEmail, emailPayload, now, nil, 0, "").
			AddRow(queueID, TopicQueue, queuePayload, now, nil, 0, ""))
	mock.ExpectExec("UPDATE notification_outbox SET delivered_at").
		WithArgs(emailID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE notification_outbox SET delivered_at").
		WithArgs(queueID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	delivered, err := d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	require.Len(t, email.sent, 1)
	assert.Equal(t, []string{"mgr@example.com"}, email.sent[0].To)
	require.Len(t, queue.published, 1)
	assert.JSONEq(t, string(queuePayload), string(queue.published[0]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverPendingRecordsFailureAndContinues(t *testing.T) {
	email := &captureEmail{err: errors.New("provider down")}
	queue := &captureQueue{}
	d, mock := newTestDeliverer(t, email, queue)

	emailPayload, _ := json.Marshal(EmailMessage{To: []string{"mgr@example.com"}, Subject: "alert"})
	queuePayload, _ := json.Marshal(QueueEvent{Type: "breach"})
	emailID, queueID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM notification_outbox").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(outboxColumns()).
			AddRow(emailID, TopicEmail, emailPayload, now, nil, 0, "").
			AddRow(queueID, TopicQueue, queuePayload, now, nil, 0, ""))
	mock.ExpectExec("UPDATE notification_outbox SET attempts").
		WithArgs(emailID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE notification_outbox SET delivered_at").
		WithArgs(queueID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	delivered, err := d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	require.Len(t, queue.published, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverPendingUnknownTopicFails(t *testing.T) {
	d, mock := newTestDeliverer(t, &captureEmail{}, &captureQueue{})
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM notification_outbox").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(outboxColumns()).
			AddRow(id, "pager", []byte(`{}`), time.Now(), nil, 2, "old error"))
	mock.ExpectExec("UPDATE notification_outbox SET attempts").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	delivered, err := d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestDeliverPendingEmptyOutbox(t *testing.T) {
	d, mock := newTestDeliverer(t, &captureEmail{}, &captureQueue{})

	mock.ExpectQuery("SELECT (.+) FROM notification_outbox").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(outboxColumns()))

	delivered, err := d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered)
}
