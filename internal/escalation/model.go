package escalation

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the escalation severity level.
type Tier int

const (
	TierManager   Tier = 1
	TierDirector  Tier = 2
	TierExecutive Tier = 3

	// TierCount is the number of tiers a policy configures.
	TierCount = 3
)

// TriggerReason records why an escalation was opened.
type TriggerReason string

const (
	ReasonSLABreach       TriggerReason = "sla_breach"
	ReasonCriticalRating  TriggerReason = "critical_rating"
	ReasonRepeatIncident  TriggerReason = "repeat_incident"
	ReasonUrgentSentiment TriggerReason = "urgent_sentiment"
)

// Record is one escalation tier event for a feedback item. At most one open
// record may exist per (feedback_id, tier); the store enforces this with a
// conditional write.
type Record struct {
	ID             uuid.UUID
	AccountID      string
	FeedbackID     uuid.UUID
	PolicyID       uuid.UUID
	Tier           Tier
	Reason         TriggerReason
	TriggeredAt    time.Time
	ResolvedAt     *time.Time
	ResolutionNote string
}

// Open reports whether the record is still awaiting resolution.
func (r *Record) Open() bool {
	return r.ResolvedAt == nil
}
