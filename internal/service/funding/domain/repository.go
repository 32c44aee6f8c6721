package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CampaignRepository persists campaign aggregates. Status transitions go
// through TransitionStatus so every move is a guarded compare-and-set on the
// campaign's own row; that row is the per-campaign serialization point for
// overlapping scheduler ticks.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *Campaign) error
	FindByID(ctx context.Context, id string) (*Campaign, error)

	// FindDue returns OPEN campaigns whose deadline has passed.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Campaign, error)

	// FindSettling returns campaigns stuck mid-settlement, so a restart can
	// resume them.
	FindSettling(ctx context.Context, limit int) ([]*Campaign, error)

	// TransitionStatus moves id from one status to another and reports
	// whether this call performed the transition. A false result with a nil
	// error means another actor got there first.
	TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error)

	// FindUnannounced returns terminal campaigns whose settlement outcome
	// has not been published yet.
	FindUnannounced(ctx context.Context, limit int) ([]*Campaign, error)

	// MarkOutcomeAnnounced claims the announcement of id. False with a nil
	// error means another actor holds or already completed the claim.
	MarkOutcomeAnnounced(ctx context.Context, id string, at time.Time) (bool, error)

	// ClearOutcomeAnnouncement releases a claim whose publish failed, so a
	// later sweep retries the announcement.
	ClearOutcomeAnnouncement(ctx context.Context, id string) error
}

// PaymentRepository persists confirmed backer contributions.
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	ListByCampaign(ctx context.Context, campaignID string) ([]*Payment, error)
	TotalByCampaign(ctx context.Context, campaignID string) (decimal.Decimal, error)
}

// TransferRecordRepository is the persistent settlement work queue.
type TransferRecordRepository interface {
	// CreateIfAbsent inserts the record unless one with the same idempotency
	// key already exists; re-creation is a silent no-op.
	CreateIfAbsent(ctx context.Context, record *TransferRecord) error

	// ListPendingDue returns PENDING records whose next attempt time has
	// passed, oldest first.
	ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*TransferRecord, error)

	ListByCampaign(ctx context.Context, campaignID string) ([]*TransferRecord, error)

	// CountNonTerminal reports how many records of a campaign are still
	// PENDING. Zero means settlement is complete.
	CountNonTerminal(ctx context.Context, campaignID string) (int64, error)

	Update(ctx context.Context, record *TransferRecord) error
}
