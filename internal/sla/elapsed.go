package sla

import (
	"time"

	"github.com/voxloop/feedback-platform/internal/feedback"
)

// Elapsed holds the age of a feedback item at a given instant.
type Elapsed struct {
	SinceCreation      time.Duration
	SinceFirstResponse *time.Duration // nil until the item has a first response
}

// ComputeElapsed derives elapsed times for an item. Pure function of the
// item's timestamps and the supplied now.
func ComputeElapsed(item *feedback.Item, now time.Time) Elapsed {
	el := Elapsed{SinceCreation: now.Sub(item.CreatedAt)}
	if item.FirstRespondedAt != nil {
		d := now.Sub(*item.FirstRespondedAt)
		el.SinceFirstResponse = &d
	}
	return el
}

// BreachKind identifies which SLA commitment was exceeded.
type BreachKind string

const (
	BreachFirstResponse BreachKind = "first_response"
	BreachResolution    BreachKind = "resolution"
)

// DetectBreaches compares elapsed time against the policy thresholds.
// Stateless: it re-reports on every call, so callers suppress repeats.
func DetectBreaches(p *Policy, el Elapsed, item *feedback.Item) []BreachKind {
	var breaches []BreachKind
	if item.FirstRespondedAt == nil && el.SinceCreation > time.Duration(p.FirstResponseMinutes)*time.Minute {
		breaches = append(breaches, BreachFirstResponse)
	}
	if item.ResolvedAt == nil && el.SinceCreation > time.Duration(p.ResolutionMinutes)*time.Minute {
		breaches = append(breaches, BreachResolution)
	}
	return breaches
}
