package scoring

import (
	"fmt"
	"strconv"

	"github.com/opensource-welfare/shikra/internal/domain"
)

// ruleReasons maps a record's triggered rules to human-readable explanations,
// in rule evaluation order, with the anomaly explanation last.
func ruleReasons(rec domain.ClaimRecord, flags domain.RuleFlags, fraudScore float64) []string {
	var reasons []string

	if flags.DuplicateBeneficiary {
		reasons = append(reasons, "Duplicate beneficiary ID detected")
	}
	if flags.DuplicateAadhaar {
		reasons = append(reasons, "Duplicate Aadhaar number detected")
	}
	if flags.HighIncome {
		reasons = append(reasons, fmt.Sprintf("High income (₹%s) for subsidy recipient", groupDigits(rec.Income)))
	}
	if flags.MultipleSameDay {
		reasons = append(reasons, "Multiple claims on same date from same distributor")
	}
	if flags.ExcessiveAmount {
		reasons = append(reasons, fmt.Sprintf("Claim amount (₹%s) exceeds 3x average for state/subsidy type", groupDigits(rec.Amount)))
	}
	if fraudScore > anomalyReasonThreshold {
		reasons = append(reasons, fmt.Sprintf("High ML anomaly score (%.2f)", fraudScore))
	}

	return reasons
}

// groupDigits renders a currency value with thousands separators and no
// decimals, e.g. 1250000 -> "1,250,000".
func groupDigits(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)

	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}

	n := len(s)
	if n <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	out := make([]byte, 0, n+n/3)
	lead := n % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < n; i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}

	if neg {
		return "-" + string(out)
	}
	return string(out)
}
