package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransferKind tags the direction of a settlement money movement and carries
// the memo text the banking API shows on statements.
type TransferKind string

const (
	TransferRefund TransferKind = "REFUND"
	TransferVenue  TransferKind = "VENUE_TRANSFER"
)

// Memo renders the statement text for a transfer of this kind.
func (k TransferKind) Memo(campaignTitle string) string {
	switch k {
	case TransferRefund:
		return fmt.Sprintf("Cinemoa refund: %s did not reach its funding goal", campaignTitle)
	case TransferVenue:
		return fmt.Sprintf("Cinemoa screening payout: %s", campaignTitle)
	default:
		return fmt.Sprintf("Cinemoa transfer: %s", campaignTitle)
	}
}

// TransferOutcome is the execution state of one TransferRecord.
type TransferOutcome string

const (
	TransferPending   TransferOutcome = "PENDING"
	TransferSucceeded TransferOutcome = "SUCCEEDED"
	TransferFailed    TransferOutcome = "FAILED"
)

// TransferRecord is the persistent work item for one beneficiary of a
// settled campaign. Records are never deleted; every record either reaches a
// terminal outcome or stays visibly PENDING for operators.
type TransferRecord struct {
	ID             uint64
	CampaignID     string
	Kind           TransferKind
	Beneficiary    string
	DestAccount    string
	Amount         decimal.Decimal
	IdempotencyKey string
	Outcome        TransferOutcome
	Attempts       int
	NextAttemptAt  time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IdempotencyKey derives the deterministic key guaranteeing at-most-once
// execution per (campaign, kind, beneficiary) across arbitrary retries.
func IdempotencyKey(campaignID string, kind TransferKind, beneficiary string) string {
	return fmt.Sprintf("transfer:%s:%s:%s", campaignID, kind, beneficiary)
}

// NewTransferRecord builds a PENDING record due for immediate execution.
func NewTransferRecord(campaignID string, kind TransferKind, beneficiary, destAccount string, amount decimal.Decimal, now time.Time) *TransferRecord {
	return &TransferRecord{
		CampaignID:     campaignID,
		Kind:           kind,
		Beneficiary:    beneficiary,
		DestAccount:    destAccount,
		Amount:         amount,
		IdempotencyKey: IdempotencyKey(campaignID, kind, beneficiary),
		Outcome:        TransferPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
