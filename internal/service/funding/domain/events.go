package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Events published to downstream collaborators (notification, scoring,
// media). Delivery is at-least-once; consumers must be idempotent, which is
// why every event carries a unique EventID.

// AccountCreationRequested asks the banking collaborator to provision a
// virtual account for a newly created campaign.
type AccountCreationRequested struct {
	EventID      string    `json:"eventId"`
	CampaignID   string    `json:"campaignId"`
	VenueAccount string    `json:"venueAccount"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// ScoreUpdateRequested signals the scoring collaborator that the seat count
// of a campaign changed. Only the trigger point lives here; the scoring
// algorithm itself is out of process.
type ScoreUpdateRequested struct {
	EventID        string    `json:"eventId"`
	CampaignID     string    `json:"campaignId"`
	FilledSeats    int64     `json:"filledSeats"`
	RemainingSeats int64     `json:"remainingSeats"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TransferSummary is the per-record slice of a settlement outcome event.
type TransferSummary struct {
	Kind           TransferKind    `json:"kind"`
	Beneficiary    string          `json:"beneficiary"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Outcome        TransferOutcome `json:"outcome"`
}

// SettlementOutcome announces the terminal state of a campaign together
// with the transfer work it produced.
type SettlementOutcome struct {
	EventID    string            `json:"eventId"`
	CampaignID string            `json:"campaignId"`
	Status     Status            `json:"status"`
	Transfers  []TransferSummary `json:"transfers"`
	SettledAt  time.Time         `json:"settledAt"`
}

// TransferFailedEvent surfaces a transfer that exhausted its retries or was
// rejected outright, for manual remediation.
type TransferFailedEvent struct {
	EventID        string       `json:"eventId"`
	CampaignID     string       `json:"campaignId"`
	Kind           TransferKind `json:"kind"`
	Beneficiary    string       `json:"beneficiary"`
	IdempotencyKey string       `json:"idempotencyKey"`
	Reason         string       `json:"reason"`
	FailedAt       time.Time    `json:"failedAt"`
}
