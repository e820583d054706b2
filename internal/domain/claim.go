// Package domain defines the core types and interfaces for Shikra.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord indicates a claim record that violates the engine's input
// invariants. Scoring fails atomically when any record is invalid.
var ErrInvalidRecord = errors.New("invalid claim record")

// ClaimRecord is one subsidy disbursement entry for a beneficiary.
// Records are immutable once ingested by the scoring engine.
type ClaimRecord struct {
	BeneficiaryID string  `json:"beneficiary_id"`
	Name          string  `json:"name"`
	Aadhaar       string  `json:"aadhaar"`
	Income        float64 `json:"income"`
	LocationState string  `json:"location_state"`
	SubsidyType   string  `json:"subsidy_type"`
	Amount        float64 `json:"amount"`
	ClaimDate     string  `json:"claim_date"` // YYYY-MM-DD
	DistributorID string  `json:"distributor_id"`
}

// ClaimDateLayout is the wire format for claim dates.
const ClaimDateLayout = "2006-01-02"

/// Validate checks the record invariants: all nine fields populated, income
// non-negative, amount positive, claim date parseable.
func (r *ClaimRecord) Validate() error {
	switch {
	case r.BeneficiaryID == "":
		return fmt.Errorf("%w: beneficiary_id is empty", ErrInvalidRecord)
	case r.Name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidRecord)
	case r.Aadhaar == "":
		return fmt.Errorf("%w: aadhaar is empty", ErrInvalidRecord)
	case r.Income < 0:
		return fmt.Errorf("%w: income %.2f is negative", ErrInvalidRecord, r.Income)
	case r.LocationState == "":
		return fmt.Errorf("%w: location_state is empty", ErrInvalidRecord)
	case r.SubsidyType == "":
		return fmt.Errorf("%w: subsidy_type is empty", ErrInvalidRecord)
	case r.Amount <= 0:
		return fmt.Errorf("%w: amount %.2f is not positive", ErrInvalidRecord, r.Amount)
	case r.DistributorID == "":
		return fmt.Errorf("%w: distributor_id is empty", ErrInvalidRecord)
	}

	if _, err := time.Parse(ClaimDateLayout, r.ClaimDate); err != nil {
		return fmt.Errorf("%w: claim_date %q is not a valid date", ErrInvalidRecord, r.ClaimDate)
	}

	return nil
}

// Dataset is an ordered batch of claim records. Order is preserved end-to-end;
// record index identity correlates per-record outputs across pipeline stages.
type Dataset struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Records   []ClaimRecord `json:"records"`
	CreatedAt time.Time     `json:"createdAt"`
}

// DatasetInfo is the listing view of a stored dataset.
type DatasetInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TotalRows int       `json:"totalRows"`
	CreatedAt time.Time `json:"createdAt"`
	HasReport bool      `json:"hasReport"`
}
