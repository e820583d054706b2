package domain

import "time"

// ScreenRuleConfig defines an operator-configured screening rule. Screening
// rules are CEL boolean expressions evaluated per record after scoring; a rule
// that evaluates true appends its reason to the record's explanation. They
// never alter scores or verdicts.
type ScreenRuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is the CEL expression to evaluate. It must return bool.
	Expression string `json:"expression"`

	// Reason is appended to the record's reasons when the expression is true.
	Reason string `json:"reason"`

	// Whether the rule is active
	Enabled bool `json:"enabled"`

	// Audit timestamps
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
