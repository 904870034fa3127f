package sla

import (
	"fmt"

	"github.com/voxloop/feedback-platform/internal/feedback"
)

// Operator is a comparison operator in a policy condition.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
)

// Condition compares one numeric feedback attribute against a threshold.
// A nil condition on a policy always evaluates true.
type Condition struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
}

// Validate checks the condition is structurally sound.
func (c *Condition) Validate() error {
	if c.Attribute == "" {
		return fmt.Errorf("sla: condition attribute required")
	}
	switch c.Operator {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpEqual:
		return nil
	default:
		return fmt.Errorf("sla: unknown condition operator %q", c.Operator)
	}
}

// Eval evaluates the condition against a feedback item. Unknown attributes
// or operators are errors; callers treat an erroring condition as no-match.
func (c *Condition) Eval(item *feedback.Item) (bool, error) {
	value, err := item.Attribute(c.Attribute)
	if err != nil {
		return false, err
	}
	switch c.Operator {
	case OpLess:
		return value < c.Threshold, nil
	case OpLessEqual:
		return value <= c.Threshold, nil
	case OpGreater:
		return value > c.Threshold, nil
	case OpGreaterEqual:
		return value >= c.Threshold, nil
	case OpEqual:
		return value == c.Threshold, nil
	default:
		return false, fmt.Errorf("sla: unknown condition operator %q", c.Operator)
	}
}
