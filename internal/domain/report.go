package domain

import "time"

// RuleFlags holds the five deterministic fraud indicators for one record.
// Produced once per dataset, never mutated after.
type RuleFlags struct {
	DuplicateBeneficiary bool `json:"rule_duplicate_beneficiary"`
	DuplicateAadhaar     bool `json:"rule_duplicate_aadhaar"`
	HighIncome           bool `json:"rule_high_income"`
	MultipleSameDay      bool `json:"rule_multiple_claims"`
	ExcessiveAmount      bool `json:"rule_excessive_amount"`
}

// Count returns the number of flags set (0-5).
func (f RuleFlags) Count() int {
	n := 0
	for _, b := range []bool{
		f.DuplicateBeneficiary,
		f.DuplicateAadhaar,
		f.HighIncome,
		f.MultipleSameDay,
		f.ExcessiveAmount,
	} {
		if b {
			n++
		}
	}
	return n
}

// FlaggedRecord is a claim record carrying its scoring outputs.
type FlaggedRecord struct {
	ClaimRecord
	RuleFlags
	RulesTriggered int      `json:"rules_triggered_count"`
	AnomalyScore   float64  `json:"ml_anomaly_score"`
	FraudScore     float64  `json:"fraud_score"`
	IsFraud        bool     `json:"is_fraud"`
	Reasons        []string `json:"reasons"`
}

// StateCount is one entry of the high-risk state ranking.
type StateCount struct {
	State   string `json:"state"`
	Flagged int    `json:"flagged"`
}

// Summary holds the dataset-level aggregates of a scoring run.
type Summary struct {
	TotalRecords   int          `json:"total_records"`
	FlaggedCount   int          `json:"flagged_count"`
	LeakagePercent float64      `json:"leakage_percent"`
	TotalAmount    float64      `json:"total_amount"`
	FlaggedAmount  float64      `json:"flagged_amount"`
	HighRiskStates []StateCount `json:"high_risk_states"`
}

// Report is the result of one scoring run. It is created once per run and has
// no further lifecycle inside the engine.
type Report struct {
	FileID         string          `json:"file_id,omitempty"`
	Summary        Summary         `json:"summary"`
	FlaggedRecords []FlaggedRecord `json:"flagged_records"`
	TotalRecords   int             `json:"total_records"`
	FlaggedCount   int             `json:"flagged_count"`
	LeakagePercent float64         `json:"leakage_percent"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}
