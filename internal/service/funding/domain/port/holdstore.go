package port

import (
	"context"
	"time"
)

// AcquireResult is the outcome code of the atomic acquire script.
type AcquireResult int

const (
	AcquireOK AcquireResult = iota + 1
	AcquireSoldOut
	AcquireAlreadyHolding
)

// ReleaseResult is the outcome code of the atomic release script.
type ReleaseResult int

const (
	ReleaseOK ReleaseResult = iota + 1
	ReleaseNotHolding
)

// SeatHoldStore is the shared key-value store owning the remaining-seat
// counter and the per-user hold markers. Every method that touches the
// counter is a single atomic operation on the store side; callers never
// read-then-write. The counter in the store is the only source of truth;
// no in-process copy is authoritative.
type SeatHoldStore interface {
	// InitCampaign seeds the counter with the full seat target and clears
	// any holder state left from a previous run.
	InitCampaign(ctx context.Context, campaignID string, targetSeats int64) error

	// Acquire atomically checks the holder set, conditionally decrements the
	// counter and writes the TTL hold marker.
	Acquire(ctx context.Context, campaignID, userID string, ttl time.Duration) (AcquireResult, error)

	// Release atomically removes the hold and increments the counter exactly
	// once, even when racing a concurrent expiry.
	Release(ctx context.Context, campaignID, userID string) (ReleaseResult, error)

	// Reconcile is the compensating increment for an expired hold. It
	// increments only if the user was still in the holder set, so replayed
	// notifications are no-ops. It returns whether an increment happened and
	// the counter value after the call.
	Reconcile(ctx context.Context, campaignID, userID string) (reconciled bool, remaining int64, err error)

	// Confirm drops the hold of a paying user without incrementing the
	// counter: the seat is sold, not returned to the pool.
	Confirm(ctx context.Context, campaignID, userID string) (bool, error)

	// Restore is the compensation for a Confirm whose follow-up persistence
	// failed: it re-establishes the holder membership and the TTL key without
	// touching the counter, returning the user to the pre-confirm state.
	Restore(ctx context.Context, campaignID, userID string, ttl time.Duration) error

	Remaining(ctx context.Context, campaignID string) (int64, error)
	ActiveHoldCount(ctx context.Context, campaignID string) (int64, error)

	// SubscribeExpirations delivers raw expired-key names. Delivery is
	// at-least-once at best; consumers must treat each key idempotently.
	SubscribeExpirations(ctx context.Context) (<-chan string, error)
}
