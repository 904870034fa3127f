package sla

import (
	"fmt"

	"github.com/google/uuid"
)

// Channel names a notification transport the policy wants alerts on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelQueue Channel = "queue"
)

// Tiers supported by every policy. Tier 1 is manager, 2 director, 3 executive.
const TierCount = 3

// Policy is an SLA rule bundling thresholds, a scope, a condition and the
// recipients to alert per escalation tier.
type Policy struct {
	ID                   uuid.UUID
	AccountID            string
	Name                 string
	ScopeCategory        *string    // nil = wildcard, applies to any category
	Condition            *Condition // nil = always true
	PriorityRank         int        // lower rank is evaluated first
	FirstResponseMinutes int
	ResolutionMinutes    int
	EscalationMinutes    [TierCount]int      // cumulative minutes since creation, strictly increasing
	RecipientsByTier     [TierCount][]string // role identifiers per tier
	Channels             []Channel
	Active               bool
}

// IsFallback reports whether the policy matches every item in its scope set.
func (p *Policy) IsFallback() bool {
	return p.ScopeCategory == nil && p.Condition == nil
}

// Validate checks the structural invariants of a policy.
func (p *Policy) Validate() error {
	if p.AccountID == "" {
		return fmt.Errorf("sla: policy account id required")
	}
	if p.Name == "" {
		return fmt.Errorf("sla: policy name required")
	}
	if p.PriorityRank < 0 {
		return fmt.Errorf("sla: policy priority rank must be non-negative")
	}
	if p.FirstResponseMinutes <= 0 {
		return fmt.Errorf("sla: first response minutes must be positive")
	}
	if p.ResolutionMinutes <= 0 {
		return fmt.Errorf("sla: resolution minutes must be positive")
	}
	prev := 0
	for i, m := range p.EscalationMinutes {
		if m <= prev {
			return fmt.Errorf("sla: escalation minutes must be strictly increasing, tier %d has %d", i+1, m)
		}
		prev = m
	}
	if p.Condition != nil {
		if err := p.Condition.Validate(); err != nil {
			return err
		}
	}
	for _, ch := range p.Channels {
		if ch != ChannelEmail && ch != ChannelQueue {
			return fmt.Errorf("sla: unknown notification channel %q", ch)
		}
	}
	return nil
}

// Recipients returns the role identifiers configured for a tier (1-based).
func (p *Policy) Recipients(tier int) []string {
	if tier < 1 || tier > TierCount {
		return nil
	}
	return p.RecipientsByTier[tier-1]
}

// TierThresholdMinutes returns the cumulative threshold for a tier (1-based).
func (p *Policy) TierThresholdMinutes(tier int) int {
	if tier < 1 || tier > TierCount {
		return 0
	}
	return p.EscalationMinutes[tier-1]
}
