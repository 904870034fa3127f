package feedback

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LifecycleState tracks where a feedback item is in its workflow.
// The feedback-handling subsystem owns transitions; the engine only reads it.
type LifecycleState string

const (
	StateOpen       LifecycleState = "open"
	StateInProgress LifecycleState = "in_progress"
	StateResponded  LifecycleState = "responded"
	StateResolved   LifecycleState = "resolved"
	StateArchived   LifecycleState = "archived"
)

// Terminal reports whether the state ends SLA evaluation for the item.
func (s LifecycleState) Terminal() bool {
	return s == StateResolved || s == StateArchived
}

// Item is a customer feedback entry as seen by the escalation engine.
type Item struct {
	ID               uuid.UUID
	AccountID        string
	ReporterID       string
	Category         string
	Rating           int
	Urgent           bool
	State            LifecycleState
	CreatedAt        time.Time
	FirstRespondedAt *time.Time
	ResolvedAt       *time.Time
}

// Attribute returns the named numeric attribute for policy condition
// evaluation. Unknown attributes are an error so a misconfigured policy
// condition falls through instead of matching silently.
func (i *Item) Attribute(name string) (float64, error) {
	switch name {
	case "rating":
		return float64(i.Rating), nil
	default:
		return 0, fmt.Errorf("feedback: unknown attribute %q", name)
	}
}
