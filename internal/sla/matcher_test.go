package sla

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/feedback-platform/internal/feedback"
)

func strptr(s string) *string { return &s }

func testItem(category string, rating int) *feedback.Item {
	return &feedback.Item{
		ID:        uuid.New(),
		AccountID: "acct-1",
		Category:  category,
		Rating:    rating,
		State:     feedback.StateOpen,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func activePolicy(name string, scope *string, cond *Condition, rank int) Policy {
	return Policy{
		ID:                   uuid.New(),
		AccountID:            "acct-1",
		Name:                 name,
		ScopeCategory:        scope,
		Condition:            cond,
		PriorityRank:         rank,
		FirstResponseMinutes: 60,
		ResolutionMinutes:    480,
		EscalationMinutes:    [TierCount]int{60, 120, 240},
		Active:               true,
	}
}

func TestMatchExactScopeBeatsWildcard(t *testing.T) {
	// A scoped conditional policy wins over a lower-ranked wildcard fallback.
	policies := []Policy{
		activePolicy("fallback", nil, nil, 0),
		activePolicy("negative-high-rating", strptr("negative"),
			&Condition{Attribute: "rating", Operator: OpGreaterEqual, Threshold: 5}, 10),
	}

	m := NewMatcher(nil)
	got, err := m.Match(policies, testItem("negative", 5))
	require.NoError(t, err)
	assert.Equal(t, "negative-high-rating", got.Name)
}

func TestMatchFallsThroughToWildcard(t *testing.T) {
	policies := []Policy{
		activePolicy("negative-high-rating", strptr("negative"),
			&Condition{Attribute: "rating", Operator: OpGreaterEqual, Threshold: 5}, 10),
		activePolicy("fallback", nil, nil, 1000),
	}

	m := NewMatcher(nil)

	got, err := m.Match(policies, testItem("negative", 2))
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.Name)

	got, err = m.Match(policies, testItem("praise", 5))
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.Name)
}

func TestMatchRespectsPriorityRank(t *testing.T) {
	policies := []Policy{
		activePolicy("low-priority", strptr("complaint"), nil, 50),
		activePolicy("high-priority", strptr("complaint"), nil, 5),
	}

	m := NewMatcher(nil)
	got, err := m.Match(policies, testItem("complaint", 3))
	require.NoError(t, err)
	assert.Equal(t, "high-priority", got.Name)
}

func TestMatchSkipsInactive(t *testing.T) {
	inactive := activePolicy("disabled", strptr("complaint"), nil, 1)
	inactive.Active = false
	policies := []Policy{
		inactive,
		activePolicy("fallback", nil, nil, 1000),
	}

	m := NewMatcher(nil)
	got, err := m.Match(policies, testItem("complaint", 3))
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.Name)
}

func TestMatchInvalidConditionFallsThrough(t *testing.T) {
	// Unknown attribute must not abort matching, only skip the policy.
	policies := []Policy{
		activePolicy("broken", strptr("complaint"),
			&Condition{Attribute: "sentiment_score", Operator: OpGreater, Threshold: 0.5}, 1),
		activePolicy("fallback", nil, nil, 1000),
	}

	m := NewMatcher(nil)
	got, err := m.Match(policies, testItem("complaint", 3))
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.Name)
}

func TestMatchNoFallbackIsConfigError(t *testing.T) {
	policies := []Policy{
		activePolicy("negative-only", strptr("negative"), nil, 1),
	}

	m := NewMatcher(nil)
	_, err := m.Match(policies, testItem("praise", 4))
	assert.ErrorIs(t, err, ErrNoFallbackPolicy)
}

func TestMatchTotalOverRatingsAndCategories(t *testing.T) {
	policies := []Policy{
		activePolicy("negative-severe", strptr("negative"),
			&Condition{Attribute: "rating", Operator: OpLessEqual, Threshold: 2}, 1),
		activePolicy("fallback", nil, nil, 1000),
	}
	m := NewMatcher(nil)

	for _, category := range []string{"negative", "praise", "question", ""} {
		for rating := 0; rating <= 5; rating++ {
			got, err := m.Match(policies, testItem(category, rating))
			require.NoError(t, err, "category=%q rating=%d", category, rating)
			require.NotNil(t, got)
		}
	}
}
