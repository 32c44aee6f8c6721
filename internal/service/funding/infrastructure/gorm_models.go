package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// CampaignModel is the MySQL row behind domain.Campaign.
type CampaignModel struct {
	ID           string          `gorm:"primaryKey;size:64"`
	Title        string          `gorm:"size:255"`
	TargetSeats  int64           `gorm:"not null"`
	TargetAmount decimal.Decimal `gorm:"type:decimal(18,2)"`
	SeatPrice    decimal.Decimal `gorm:"type:decimal(18,2)"`
	StartsAt     time.Time       `gorm:"index"`
	EndsAt       time.Time       `gorm:"index:idx_campaigns_status_ends_at,priority:2"`
	Status       string          `gorm:"size:16;index:idx_campaigns_status_ends_at,priority:1"`
	VenueAccount string          `gorm:"size:128"`
	OutcomeRule  string          `gorm:"size:512"`

	OutcomePublishedAt *time.Time `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CampaignModel) TableName() string { return "campaigns" }

// PaymentModel is a confirmed backer contribution.
type PaymentModel struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	CampaignID    string          `gorm:"size:64;uniqueIndex:idx_payments_campaign_user,priority:1"`
	UserID        string          `gorm:"size:64;uniqueIndex:idx_payments_campaign_user,priority:2"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2)"`
	RefundAccount string          `gorm:"size:128"`
	PaidAt        time.Time
}

func (PaymentModel) TableName() string { return "payments" }

// TransferRecordModel is the persistent settlement work queue. The unique
// idempotency key index is what makes record creation replay-safe.
type TransferRecordModel struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	CampaignID     string          `gorm:"size:64;index"`
	Kind           string          `gorm:"size:16"`
	Beneficiary    string          `gorm:"size:64"`
	DestAccount    string          `gorm:"size:128"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,2)"`
	IdempotencyKey string          `gorm:"size:255;uniqueIndex"`
	Outcome        string          `gorm:"size:16;index:idx_transfers_outcome_next,priority:1"`
	Attempts       int
	NextAttemptAt  time.Time `gorm:"index:idx_transfers_outcome_next,priority:2"`
	LastError      string    `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (TransferRecordModel) TableName() string { return "transfer_records" }
