package rules

import (
	"testing"

	"github.com/opensource-welfare/shikra/internal/domain"
)

func claim(beneficiary, aadhaar string, income, amount float64, state, subsidy, date, distributor string) domain.ClaimRecord {
	return domain.ClaimRecord{
		BeneficiaryID: beneficiary,
		Name:          "Test Beneficiary",
		Aadhaar:       aadhaar,
		Income:        income,
		LocationState: state,
		SubsidyType:   subsidy,
		Amount:        amount,
		ClaimDate:     date,
		DistributorID: distributor,
	}
}

func TestRuleBank(t *testing.T) {
	bank := NewBank()

	t.Run("EmptyDataset", func(t *testing.T) {
		flags := bank.Evaluate(nil)
		if len(flags) != 0 {
			t.Errorf("expected empty flag vector, got %d entries", len(flags))
		}
	})

	t.Run("DuplicateBeneficiary", func(t *testing.T) {
		records := []domain.ClaimRecord{
			claim("BEN1", "111111111111", 50000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST1"),
			claim("BEN1", "222222222222", 60000, 4000, "Bihar", "PM-KISAN", "2024-02-10", "DIST2"),
			claim("BEN2", "333333333333", 70000, 5000, "Bihar", "PM-KISAN", "2024-03-10", "DIST3"),
		}

		flags := bank.Evaluate(records)

		if !flags[0].DuplicateBeneficiary || !flags[1].DuplicateBeneficiary {
			t.Error("expected both BEN1 records flagged as duplicate beneficiary")
		}
		if flags[2].DuplicateBeneficiary {
			t.Error("expected BEN2 not flagged")
		}
	})

	t.Run("DuplicateAadhaar", func(t *testing.T) {
		records := []domain.ClaimRecord{
			claim("BEN1", "AAAAAAAAAAA0", 50000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST1"),
			claim("BEN2", "AAAAAAAAAAA0", 60000, 4000, "Punjab", "MGNREGA", "2024-02-10", "DIST2"),
			claim("BEN3", "333333333333", 70000, 5000, "Bihar", "Pension", "2024-03-10", "DIST3"),
			claim("BEN4", "444444444444", 80000, 2000, "Odisha", "Pension", "2024-03-11", "DIST4"),
		}

		flags := bank.Evaluate(records)

		if !flags[0].DuplicateAadhaar || !flags[1].DuplicateAadhaar {
			t.Error("expected shared Aadhaar records flagged")
		}
		if flags[2].DuplicateAadhaar || flags[3].DuplicateAadhaar {
			t.Error("expected unique Aadhaar records not flagged")
		}
	})

	t.Run("HighIncomeBoundary", func(t *testing.T) {
		records := []domain.ClaimRecord{
			claim("BEN1", "111111111111", 250000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST1"),
			claim("BEN2", "222222222222", 250000.01, 3000, "Bihar", "PM-KISAN", "2024-01-11", "DIST2"),
		}

		flags := bank.Evaluate(records)

		if flags[0].HighIncome {
			t.Error("income exactly at threshold must not be flagged")
		}
		if !flags[1].HighIncome {
			t.Error("income above threshold must be flagged")
		}
	})

	t.Run("MultipleSameDay", func(t *testing.T) {
		records := []domain.ClaimRecord{
			// Three claims from DIST1 on the same date: all flagged.
			claim("BEN1", "111111111111", 50000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST1"),
			claim("BEN2", "222222222222", 50000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST1"),
			claim("BEN3", "333333333333", 50000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST1"),
			// Two claims from DIST2 on the same date: group of 2 stays clean.
			claim("BEN4", "444444444444", 50000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST2"),
			claim("BEN5", "555555555555", 50000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST2"),
			// Same distributor, different date.
			claim("BEN6", "666666666666", 50000, 3000, "Bihar", "PM-KISAN", "2024-01-11", "DIST1"),
		}

		flags := bank.Evaluate(records)

		for i := 0; i < 3; i++ {
			if !flags[i].MultipleSameDay {
				t.Errorf("record %d: expected same-day flag", i)
			}
		}
		for i := 3; i < 6; i++ {
			if flags[i].MultipleSameDay {
				t.Errorf("record %d: expected no same-day flag", i)
			}
		}
	})

	t.Run("ExcessiveAmount", func(t *testing.T) {
		// Group mean is self-inclusive: (1000+1000+1000+13000)/4 = 4000.
		// 13000 > 3*4000 = 12000, so only the outlier is flagged.
		records := []domain.ClaimRecord{
			claim("BEN1", "111111111111", 50000, 1000, "Bihar", "Pension", "2024-01-10", "DIST1"),
			claim("BEN2", "222222222222", 50000, 1000, "Bihar", "Pension", "2024-01-11", "DIST2"),
			claim("BEN3", "333333333333", 50000, 1000, "Bihar", "Pension", "2024-01-12", "DIST3"),
			claim("BEN4", "444444444444", 50000, 13000, "Bihar", "Pension", "2024-01-13", "DIST4"),
		}

		flags := bank.Evaluate(records)

		if flags[0].ExcessiveAmount || flags[1].ExcessiveAmount || flags[2].ExcessiveAmount {
			t.Error("expected normal amounts not flagged")
		}
		if !flags[3].ExcessiveAmount {
			t.Error("expected outlier amount flagged")
		}
	})

	t.Run("ExcessiveAmountGroupsAreIndependent", func(t *testing.T) {
		// Same outlier amount but in a different (state, subsidy) group with a
		// high mean is not flagged.
		records := []domain.ClaimRecord{
			claim("BEN1", "111111111111", 50000, 13000, "Punjab", "Scholarship", "2024-01-10", "DIST1"),
			claim("BEN2", "222222222222", 50000, 12000, "Punjab", "Scholarship", "2024-01-11", "DIST2"),
			claim("BEN3", "333333333333", 50000, 11000, "Punjab", "Scholarship", "2024-01-12", "DIST3"),
		}

		flags := bank.Evaluate(records)

		for i := range flags {
			if flags[i].ExcessiveAmount {
				t.Errorf("record %d: expected no excessive-amount flag", i)
			}
		}
	})

	t.Run("SingleRecordGroup", func(t *testing.T) {
		// A singleton group's mean equals its own amount, so it can never
		// exceed 3x its own mean.
		records := []domain.ClaimRecord{
			claim("BEN1", "111111111111", 50000, 999999, "Goa", "Scholarship", "2024-01-10", "DIST1"),
		}

		flags := bank.Evaluate(records)
		if flags[0].ExcessiveAmount {
			t.Error("singleton group must not self-flag")
		}
	})

	t.Run("FlagCount", func(t *testing.T) {
		records := []domain.ClaimRecord{
			// High income and duplicate Aadhaar.
			claim("BEN1", "AAAAAAAAAAA0", 400000, 3000, "Bihar", "PM-KISAN", "2024-01-10", "DIST1"),
			claim("BEN2", "AAAAAAAAAAA0", 50000, 3000, "Punjab", "MGNREGA", "2024-02-10", "DIST2"),
		}

		flags := bank.Evaluate(records)

		if got := flags[0].Count(); got != 2 {
			t.Errorf("expected 2 rules triggered, got %d", got)
		}
		if got := flags[1].Count(); got != 1 {
			t.Errorf("expected 1 rule triggered, got %d", got)
		}
	})
}

func TestExcessiveMultiplierMonotonicity(t *testing.T) {
	records := []domain.ClaimRecord{
		claim("BEN1", "111111111111", 50000, 1000, "Bihar", "Pension", "2024-01-10", "DIST1"),
		claim("BEN2", "222222222222", 50000, 1500, "Bihar", "Pension", "2024-01-11", "DIST2"),
		claim("BEN3", "333333333333", 50000, 9000, "Bihar", "Pension", "2024-01-12", "DIST3"),
		claim("BEN4", "444444444444", 50000, 20000, "Bihar", "Pension", "2024-01-13", "DIST4"),
	}

	countFlagged := func(multiplier float64) int {
		bank := NewBank()
		bank.ExcessiveMultiplier = multiplier
		flags := bank.Evaluate(records)

		n := 0
		for _, f := range flags {
			if f.ExcessiveAmount {
				n++
			}
		}
		return n
	}

	prev := countFlagged(1.0)
	for _, m := range []float64{1.5, 2.0, 3.0, 5.0, 10.0} {
		cur := countFlagged(m)
		if cur > prev {
			t.Errorf("multiplier %.1f flagged %d records, more than the %d at a stricter multiplier", m, cur, prev)
		}
		prev = cur
	}
}
