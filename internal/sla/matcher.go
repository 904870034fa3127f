package sla

import (
	"errors"
	"sort"

	"github.com/voxloop/feedback-platform/internal/feedback"
	"github.com/voxloop/feedback-platform/pkg/logging"
)

// ErrNoFallbackPolicy signals a configuration error: no always-true policy
// covered the item, so the account is effectively unmonitored.
var ErrNoFallbackPolicy = errors.New("sla: no fallback policy matched")

// Matcher selects the single applicable policy for a feedback item.
type Matcher struct {
	logger *logging.Logger
}

// NewMatcher creates a policy matcher.
func NewMatcher(logger *logging.Logger) *Matcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Matcher{logger: logger}
}

// Match returns the first active policy whose scope and condition accept the
// item: exact-category policies are considered before wildcard policies, and
// within each group policies are evaluated in ascending priority rank. A
// condition that fails to evaluate is logged and treated as no-match. If
// nothing matches, the fallback invariant is broken and ErrNoFallbackPolicy
// is returned.
func (m *Matcher) Match(policies []Policy, item *feedback.Item) (*Policy, error) {
	exact := make([]*Policy, 0, len(policies))
	wildcard := make([]*Policy, 0, len(policies))
	for i := range policies {
		p := &policies[i]
		if !p.Active {
			continue
		}
		switch {
		case p.ScopeCategory == nil:
			wildcard = append(wildcard, p)
		case *p.ScopeCategory == item.Category:
			exact = append(exact, p)
		}
	}
	byRank := func(group []*Policy) {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].PriorityRank < group[j].PriorityRank
		})
	}
	byRank(exact)
	byRank(wildcard)

	for _, group := range [][]*Policy{exact, wildcard} {
		for _, p := range group {
			if p.Condition == nil {
				return p, nil
			}
			ok, err := p.Condition.Eval(item)
			if err != nil {
				m.logger.Warn("sla: policy condition failed to evaluate, skipping",
					"policy_id", p.ID, "policy", p.Name, "error", err)
				continue
			}
			if ok {
				return p, nil
			}
		}
	}
	return nil, ErrNoFallbackPolicy
}
