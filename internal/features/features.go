// Package features turns claim records into the numeric feature matrix
// consumed by the anomaly model.
package features

import (
	"github.com/opensource-welfare/shikra/internal/domain"
)

// FeatureNames lists the matrix columns in their fixed order.
var FeatureNames = []string{
	"income",
	"amount",
	"state_code",
	"subsidy_code",
	"distributor_code",
	"claim_frequency",
}

// LocalEncoder assigns integer codes to categorical values by first-seen
// order. Codes are scoped to a single scoring run: re-encoding a different
// dataset can legitimately assign different codes to the same value. No
// vocabulary is persisted across runs.
type LocalEncoder struct {
	codes map[string]int
}

// NewLocalEncoder creates an empty encoder for one scoring run.
func NewLocalEncoder() *LocalEncoder {
	return &LocalEncoder{codes: make(map[string]int)}
}

// Code returns the code for a value, assigning the next code on first sight.
func (e *LocalEncoder) Code(value string) int {
	if code, ok := e.codes[value]; ok {
		return code
	}
	code := len(e.codes)
	e.codes[value] = code
	return code
}

// Cardinality returns the number of distinct values seen so far.
func (e *LocalEncoder) Cardinality() int {
	return len(e.codes)
}

// Encode builds the feature matrix for a dataset: one row per record, columns
// as in FeatureNames. Claim frequency is the count of records sharing the
// record's beneficiary ID across the whole dataset, itself included. Pure
// function of the input; single-record and single-category datasets are valid.
func Encode(records []domain.ClaimRecord) ([][]float64, []string) {
	states := NewLocalEncoder()
	subsidies := NewLocalEncoder()
	distributors := NewLocalEncoder()

	freq := make(map[string]int, len(records))
	for _, rec := range records {
		freq[rec.BeneficiaryID]++
	}

	matrix := make([][]float64, len(records))
	for i, rec := range records {
		matrix[i] = []float64{
			rec.Income,
			rec.Amount,
			float64(states.Code(rec.LocationState)),
			float64(subsidies.Code(rec.SubsidyType)),
			float64(distributors.Code(rec.DistributorID)),
			float64(freq[rec.BeneficiaryID]),
		}
	}

	return matrix, FeatureNames
}
