package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-welfare/shikra/internal/domain"
)

// buildReport computes the dataset-level aggregates and assembles the final
// report. Only flagged records are carried in full; summary figures cover the
// whole dataset. Empty datasets produce vacuous aggregates with leakage 0.
func buildReport(records []domain.ClaimRecord, scored []domain.FlaggedRecord, now time.Time) *domain.Report {
	var (
		totalAmount   float64
		flaggedAmount float64
		flaggedCount  int
	)
	flagged := make([]domain.FlaggedRecord, 0)

	for i := range records {
		totalAmount += records[i].Amount
		if scored[i].IsFraud {
			flaggedCount++
			flaggedAmount += records[i].Amount
			flagged = append(flagged, scored[i])
		}
	}

	// Leakage is the share of disbursed amount attributable to flagged
	// records; defined as 0 when nothing was disbursed.
	leakage := 0.0
	if totalAmount > 0 {
		leakage = flaggedAmount / totalAmount * 100
	}
	leakage = round2(leakage)

	report := &domain.Report{
		Summary: domain.Summary{
			TotalRecords:   len(records),
			FlaggedCount:   flaggedCount,
			LeakagePercent: leakage,
			TotalAmount:    round2(totalAmount),
			FlaggedAmount:  round2(flaggedAmount),
			HighRiskStates: highRiskStates(records, scored, 5),
		},
		FlaggedRecords: flagged,
		TotalRecords:   len(records),
		FlaggedCount:   flaggedCount,
		LeakagePercent: leakage,
		GeneratedAt:    now,
	}
	return report
}

// highRiskStates ranks states by flagged-record count, descending, keeping
// the top limit entries. Ties break by first appearance in dataset order.
func highRiskStates(records []domain.ClaimRecord, scored []domain.FlaggedRecord, limit int) []domain.StateCount {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	var order []string

	for i := range records {
		if !scored[i].IsFraud {
			continue
		}
		state := records[i].LocationState
		if _, ok := counts[state]; !ok {
			firstSeen[state] = i
			order = append(order, state)
		}
		counts[state]++
	}

	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return firstSeen[order[a]] < firstSeen[order[b]]
	})

	if len(order) > limit {
		order = order[:limit]
	}

	ranked := make([]domain.StateCount, len(order))
	for i, state := range order {
		ranked[i] = domain.StateCount{State: state, Flagged: counts[state]}
	}
	return ranked
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
