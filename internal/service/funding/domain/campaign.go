package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusOpen      Status = "OPEN"      // accepting holds and payments
	StatusSettling  Status = "SETTLING"  // deadline reached, outcome being computed
	StatusSucceeded Status = "SUCCEEDED" // terminal, money moves to the venue
	StatusFailed    Status = "FAILED"    // terminal, backers are refunded
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Campaign is the aggregate root of a funding round for one group screening.
// TargetAmount of zero means the campaign succeeds on seat count alone;
// OutcomeRule, when set, overrides the default threshold with a per-campaign
// CEL expression.
type Campaign struct {
	ID           string
	Title        string
	TargetSeats  int64
	TargetAmount decimal.Decimal
	SeatPrice    decimal.Decimal
	StartsAt     time.Time
	EndsAt       time.Time
	Status       Status
	VenueAccount string
	OutcomeRule  string

	// OutcomePublishedAt is the settlement-outcome announcement claim. Nil on
	// a terminal campaign means the outcome event still has to go out.
	OutcomePublishedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCampaign(id, title string, targetSeats int64, seatPrice, targetAmount decimal.Decimal, startsAt, endsAt time.Time, venueAccount string) (*Campaign, error) {
	if id == "" || venueAccount == "" {
		return nil, ErrInvalidCampaign
	}
	if targetSeats <= 0 || !endsAt.After(startsAt) {
		return nil, ErrInvalidCampaign
	}
	now := time.Now().UTC()
	return &Campaign{
		ID:           id,
		Title:        title,
		TargetSeats:  targetSeats,
		TargetAmount: targetAmount,
		SeatPrice:    seatPrice,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
		Status:       StatusOpen,
		VenueAccount: venueAccount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// WindowOpen reports whether the campaign still accepts holds and payments.
func (c *Campaign) WindowOpen(now time.Time) bool {
	return c.Status == StatusOpen && !now.Before(c.StartsAt) && now.Before(c.EndsAt)
}

// Due reports whether the funding deadline has passed for an OPEN campaign.
func (c *Campaign) Due(now time.Time) bool {
	return c.Status == StatusOpen && !now.Before(c.EndsAt)
}

// FilledSeats derives the number of claimed seats from a counter snapshot.
func (c *Campaign) FilledSeats(remaining int64) int64 {
	return c.TargetSeats - remaining
}

// AmountBased reports whether success is measured in money, not seats.
func (c *Campaign) AmountBased() bool {
	return c.TargetAmount.IsPositive()
}
