package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a backer's confirmed contribution: a hold that was paid before
// its TTL elapsed. The refund fan-out on campaign failure reads these rows.
type Payment struct {
	ID            uint64
	CampaignID    string
	UserID        string
	Amount        decimal.Decimal
	RefundAccount string
	PaidAt        time.Time
}
