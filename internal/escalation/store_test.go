package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/feedback-platform/internal/sla"
)

func TestStoreOpenTierConditionalWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	rec := Record{
		AccountID:   "acct-1",
		FeedbackID:  uuid.New(),
		PolicyID:    uuid.New(),
		Tier:        TierManager,
		Reason:      ReasonSLABreach,
		TriggeredAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO escalations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	won, err := store.OpenTier(context.Background(), &rec)
	require.NoError(t, err)
	assert.True(t, won)
	assert.NotEqual(t, uuid.Nil, rec.ID)

	// A second writer hits ON CONFLICT DO NOTHING and loses cleanly.
	mock.ExpectExec("INSERT INTO escalations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	won, err = store.OpenTier(context.Background(), &rec)
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreHighestOpenTier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	feedbackID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(feedbackID).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(2))

	tier, err := store.HighestOpenTier(context.Background(), feedbackID)
	require.NoError(t, err)
	assert.Equal(t, TierDirector, tier)
}

func TestStoreCloseAllForFeedback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	feedbackID := uuid.New()
	now := time.Now()

	mock.ExpectExec("UPDATE escalations").
		WithArgs(now, "agent resolved", feedbackID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	closed, err := store.CloseAllForFeedback(context.Background(), feedbackID, "agent resolved", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), closed)

	// Replay closes nothing and stays error-free.
	mock.ExpectExec("UPDATE escalations").
		WithArgs(now, "agent resolved", feedbackID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	closed, err = store.CloseAllForFeedback(context.Background(), feedbackID, "agent resolved", now)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestStoreResolveNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	now := time.Now()

	mock.ExpectExec("UPDATE escalations").
		WithArgs(now, "done", "acct-1", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Resolve(context.Background(), "acct-1", id, "done", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListOpenByAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	now := time.Now()
	note := "waiting on customer"

	mock.ExpectQuery("SELECT (.+) FROM escalations").
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "account_id", "feedback_id", "policy_id", "tier", "reason",
			"triggered_at", "resolved_at", "resolution_note",
		}).
			AddRow(uuid.New(), "acct-1", uuid.New(), uuid.New(), 2, "sla_breach", now, nil, nil).
			AddRow(uuid.New(), "acct-1", uuid.New(), uuid.New(), 1, "critical_rating", now, nil, &note))

	records, err := store.ListOpenByAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, TierDirector, records[0].Tier)
	assert.Equal(t, ReasonSLABreach, records[0].Reason)
	assert.True(t, records[0].Open())
	assert.Equal(t, "waiting on customer", records[1].ResolutionNote)
}

func TestStoreMarkBreachNotified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	feedbackID := uuid.New()

	mock.ExpectExec("INSERT INTO breach_notices").
		WithArgs(feedbackID, "first_response").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	first, err := store.MarkBreachNotified(context.Background(), feedbackID, sla.BreachFirstResponse)
	require.NoError(t, err)
	assert.True(t, first)

	mock.ExpectExec("INSERT INTO breach_notices").
		WithArgs(feedbackID, "first_response").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	first, err = store.MarkBreachNotified(context.Background(), feedbackID, sla.BreachFirstResponse)
	require.NoError(t, err)
	assert.False(t, first)
}
