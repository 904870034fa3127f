package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/feedback-platform/internal/feedback"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestComputeElapsed(t *testing.T) {
	item := &feedback.Item{CreatedAt: t0}

	el := ComputeElapsed(item, t0.Add(45*time.Minute))
	assert.Equal(t, 45*time.Minute, el.SinceCreation)
	assert.Nil(t, el.SinceFirstResponse)

	responded := t0.Add(20 * time.Minute)
	item.FirstRespondedAt = &responded
	el = ComputeElapsed(item, t0.Add(45*time.Minute))
	require.NotNil(t, el.SinceFirstResponse)
	assert.Equal(t, 25*time.Minute, *el.SinceFirstResponse)
}

func TestDetectBreaches(t *testing.T) {
	policy := activePolicy("p", nil, nil, 0)
	policy.FirstResponseMinutes = 60
	policy.ResolutionMinutes = 480

	item := &feedback.Item{CreatedAt: t0, State: feedback.StateOpen}

	// Under both thresholds: nothing.
	el := ComputeElapsed(item, t0.Add(59*time.Minute))
	assert.Empty(t, DetectBreaches(&policy, el, item))

	// Threshold is exclusive: exactly at the limit is not a breach.
	el = ComputeElapsed(item, t0.Add(60*time.Minute))
	assert.Empty(t, DetectBreaches(&policy, el, item))

	// Past first-response threshold, unresponded.
	el = ComputeElapsed(item, t0.Add(61*time.Minute))
	assert.Equal(t, []BreachKind{BreachFirstResponse}, DetectBreaches(&policy, el, item))

	// Past both thresholds.
	el = ComputeElapsed(item, t0.Add(500*time.Minute))
	assert.Equal(t, []BreachKind{BreachFirstResponse, BreachResolution}, DetectBreaches(&policy, el, item))

	// Responded items cannot breach first-response.
	responded := t0.Add(10 * time.Minute)
	item.FirstRespondedAt = &responded
	el = ComputeElapsed(item, t0.Add(500*time.Minute))
	assert.Equal(t, []BreachKind{BreachResolution}, DetectBreaches(&policy, el, item))

	// Resolved items cannot breach resolution.
	resolved := t0.Add(490 * time.Minute)
	item.ResolvedAt = &resolved
	el = ComputeElapsed(item, t0.Add(500*time.Minute))
	assert.Empty(t, DetectBreaches(&policy, el, item))
}

func TestPolicyValidate(t *testing.T) {
	valid := activePolicy("ok", nil, nil, 0)
	assert.NoError(t, valid.Validate())

	notIncreasing := valid
	notIncreasing.EscalationMinutes = [TierCount]int{60, 60, 240}
	assert.Error(t, notIncreasing.Validate())

	zeroTier := valid
	zeroTier.EscalationMinutes = [TierCount]int{0, 120, 240}
	assert.Error(t, zeroTier.Validate())

	badChannel := valid
	badChannel.Channels = []Channel{"pigeon"}
	assert.Error(t, badChannel.Validate())

	badCondition := valid
	badCondition.Condition = &Condition{Attribute: "rating", Operator: "~", Threshold: 1}
	assert.Error(t, badCondition.Validate())

	noName := valid
	noName.Name = ""
	assert.Error(t, noName.Validate())
}

func TestConditionEval(t *testing.T) {
	item := testItem("negative", 4)

	tests := []struct {
		op   Operator
		want bool
	}{
		{OpLess, false},
		{OpLessEqual, true},
		{OpGreater, false},
		{OpGreaterEqual, true},
		{OpEqual, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			c := Condition{Attribute: "rating", Operator: tt.op, Threshold: 4}
			got, err := c.Eval(item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	unknown := Condition{Attribute: "mood", Operator: OpEqual, Threshold: 1}
	_, err := unknown.Eval(item)
	assert.Error(t, err)
}

func TestPolicyTierHelpers(t *testing.T) {
	p := activePolicy("p", nil, nil, 0)
	p.RecipientsByTier = [TierCount][]string{{"manager"}, {"director"}, {"exec"}}

	assert.Equal(t, []string{"manager"}, p.Recipients(1))
	assert.Equal(t, []string{"exec"}, p.Recipients(3))
	assert.Nil(t, p.Recipients(0))
	assert.Nil(t, p.Recipients(4))

	assert.Equal(t, 60, p.TierThresholdMinutes(1))
	assert.Equal(t, 240, p.TierThresholdMinutes(3))
	assert.Equal(t, 0, p.TierThresholdMinutes(5))
}
