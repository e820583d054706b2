package features

import (
	"testing"

	"github.com/opensource-welfare/shikra/internal/domain"
)

func TestLocalEncoder(t *testing.T) {
	t.Run("FirstSeenOrder", func(t *testing.T) {
		enc := NewLocalEncoder()

		if got := enc.Code("Bihar"); got != 0 {
			t.Errorf("first value: expected code 0, got %d", got)
		}
		if got := enc.Code("Punjab"); got != 1 {
			t.Errorf("second value: expected code 1, got %d", got)
		}
		if got := enc.Code("Bihar"); got != 0 {
			t.Errorf("repeated value: expected stable code 0, got %d", got)
		}
		if got := enc.Cardinality(); got != 2 {
			t.Errorf("expected cardinality 2, got %d", got)
		}
	})

	t.Run("RunScoped", func(t *testing.T) {
		first := NewLocalEncoder()
		first.Code("Punjab")
		first.Code("Bihar")

		second := NewLocalEncoder()
		second.Code("Bihar")

		// Codes depend on first-seen order within a run, not on the value.
		if first.Code("Bihar") != 1 || second.Code("Bihar") != 0 {
			t.Error("expected codes scoped to the encoder instance")
		}
	})
}

func TestEncode(t *testing.T) {
	records := []domain.ClaimRecord{
		{BeneficiaryID: "BEN1", Income: 50000, LocationState: "Bihar", SubsidyType: "PM-KISAN", Amount: 3000, DistributorID: "DIST1"},
		{BeneficiaryID: "BEN1", Income: 60000, LocationState: "Punjab", SubsidyType: "Pension", Amount: 2000, DistributorID: "DIST2"},
		{BeneficiaryID: "BEN2", Income: 70000, LocationState: "Bihar", SubsidyType: "PM-KISAN", Amount: 4000, DistributorID: "DIST1"},
	}

	matrix, names := Encode(records)

	if len(matrix) != len(records) {
		t.Fatalf("expected %d rows, got %d", len(records), len(matrix))
	}
	if len(names) != 6 {
		t.Fatalf("expected 6 feature names, got %d", len(names))
	}
	for i, row := range matrix {
		if len(row) != len(names) {
			t.Fatalf("row %d: expected %d columns, got %d", i, len(names), len(row))
		}
	}

	t.Run("NumericPassThrough", func(t *testing.T) {
		if matrix[0][0] != 50000 || matrix[0][1] != 3000 {
			t.Errorf("expected income/amount copied verbatim, got %v", matrix[0][:2])
		}
	})

	t.Run("CategoricalCodes", func(t *testing.T) {
		// Bihar seen first -> 0, Punjab -> 1; row 2 reuses Bihar's code.
		if matrix[0][2] != 0 || matrix[1][2] != 1 || matrix[2][2] != 0 {
			t.Errorf("unexpected state codes: %v %v %v", matrix[0][2], matrix[1][2], matrix[2][2])
		}
		if matrix[0][4] != 0 || matrix[1][4] != 1 || matrix[2][4] != 0 {
			t.Errorf("unexpected distributor codes: %v %v %v", matrix[0][4], matrix[1][4], matrix[2][4])
		}
	})

	t.Run("ClaimFrequency", func(t *testing.T) {
		// BEN1 appears twice, BEN2 once; count includes the record itself.
		if matrix[0][5] != 2 || matrix[1][5] != 2 {
			t.Errorf("expected claim frequency 2 for BEN1 rows, got %v and %v", matrix[0][5], matrix[1][5])
		}
		if matrix[2][5] != 1 {
			t.Errorf("expected claim frequency 1 for BEN2 row, got %v", matrix[2][5])
		}
	})

	t.Run("EmptyDataset", func(t *testing.T) {
		matrix, names := Encode(nil)
		if len(matrix) != 0 {
			t.Errorf("expected empty matrix, got %d rows", len(matrix))
		}
		if len(names) != 6 {
			t.Errorf("expected feature names even for empty input, got %d", len(names))
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		again, _ := Encode(records)
		for i := range matrix {
			for j := range matrix[i] {
				if matrix[i][j] != again[i][j] {
					t.Fatalf("matrix differs at [%d][%d]: %v vs %v", i, j, matrix[i][j], again[i][j])
				}
			}
		}
	})
}
