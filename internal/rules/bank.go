// Package rules provides the deterministic rule bank and the CEL-based
// screening engine.
package rules

import (
	"sync"

	"github.com/opensource-welfare/shikra/internal/domain"
)

// Bank evaluates the five deterministic fraud predicates over a dataset.
// Every predicate is a pure function of the whole dataset: duplicates,
// same-day bursts and excessive amounts all depend on cross-record
// aggregation, not on a single record in isolation.
type Bank struct {
	// HighIncomeThreshold is the income cutoff in currency units.
	HighIncomeThreshold float64

	// ExcessiveMultiplier flags amounts above multiplier x group mean.
	ExcessiveMultiplier float64

	// SameDayLimit is the group size above which same-day claims from one
	// distributor are flagged.
	SameDayLimit int
}

// NewBank creates a rule bank with the reference thresholds.
func NewBank() *Bank {
	return &Bank{
		HighIncomeThreshold: 250000,
		ExcessiveMultiplier: 3.0,
		SameDayLimit:        2,
	}
}

// Evaluate computes the rule flag vector for every record. The five
// predicates are independent and run in parallel; each one writes its own
// column. Deterministic given dataset order and content. An empty dataset
// yields an empty flag vector.
func (b *Bank) Evaluate(records []domain.ClaimRecord) []domain.RuleFlags {
	flags := make([]domain.RuleFlags, len(records))
	if len(records) == 0 {
		return flags
	}

	var wg sync.WaitGroup
	wg.Add(5)

	go func() {
		defer wg.Done()
		for i, hit := range duplicateBeneficiaries(records) {
			flags[i].DuplicateBeneficiary = hit
		}
	}()
	go func() {
		defer wg.Done()
		for i, hit := range duplicateAadhaar(records) {
			flags[i].DuplicateAadhaar = hit
		}
	}()
	go func() {
		defer wg.Done()
		for i, rec := range records {
			flags[i].HighIncome = rec.Income > b.HighIncomeThreshold
		}
	}()
	go func() {
		defer wg.Done()
		for i, hit := range b.multipleSameDay(records) {
			flags[i].MultipleSameDay = hit
		}
	}()
	go func() {
		defer wg.Done()
		for i, hit := range b.excessiveAmounts(records) {
			flags[i].ExcessiveAmount = hit
		}
	}()

	wg.Wait()
	return flags
}

// duplicateBeneficiaries flags every record whose beneficiary ID occurs two
// or more times in the dataset.
func duplicateBeneficiaries(records []domain.ClaimRecord) []bool {
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		counts[rec.BeneficiaryID]++
	}

	hits := make([]bool, len(records))
	for i, rec := range records {
		hits[i] = counts[rec.BeneficiaryID] >= 2
	}
	return hits
}

// duplicateAadhaar flags every record whose Aadhaar number occurs two or more
// times in the dataset.
func duplicateAadhaar(records []domain.ClaimRecord) []bool {
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		counts[rec.Aadhaar]++
	}

	hits := make([]bool, len(records))
	for i, rec := range records {
		hits[i] = counts[rec.Aadhaar] >= 2
	}
	return hits
}

type sameDayKey struct {
	distributorID string
	claimDate     string
}

// multipleSameDay groups records by (distributor, claim date) and flags every
// record in a group larger than the limit.
func (b *Bank) multipleSameDay(records []domain.ClaimRecord) []bool {
	counts := make(map[sameDayKey]int, len(records))
	for _, rec := range records {
		counts[sameDayKey{rec.DistributorID, rec.ClaimDate}]++
	}

	hits := make([]bool, len(records))
	for i, rec := range records {
		hits[i] = counts[sameDayKey{rec.DistributorID, rec.ClaimDate}] > b.SameDayLimit
	}
	return hits
}

type groupKey struct {
	state       string
	subsidyType string
}

// excessiveAmounts flags records whose amount exceeds the multiplier times
// the mean amount of their (state, subsidy type) group. The mean includes the
// record itself, which slightly dilutes the comparison for small groups; this
// matches the reference behavior.
func (b *Bank) excessiveAmounts(records []domain.ClaimRecord) []bool {
	sums := make(map[groupKey]float64, len(records))
	counts := make(map[groupKey]int, len(records))
	for _, rec := range records {
		k := groupKey{rec.LocationState, rec.SubsidyType}
		sums[k] += rec.Amount
		counts[k]++
	}

	hits := make([]bool, len(records))
	for i, rec := range records {
		k := groupKey{rec.LocationState, rec.SubsidyType}
		mean := sums[k] / float64(counts[k])
		hits[i] = rec.Amount > b.ExcessiveMultiplier*mean
	}
	return hits
}
