package domain

import (
	"errors"
	"fmt"
)

var (
	// Seat-hold misuse: user-correctable, surfaced synchronously, never retried.
	ErrAlreadyHolding   = errors.New("user already holds a seat for this campaign")
	ErrNoRemainingSeats = errors.New("no remaining seats for this campaign")
	ErrNotHolding       = errors.New("user holds no seat for this campaign")

	// Window guard violation. Always wrapped with the OperationContext message.
	ErrCampaignClosed = errors.New("campaign closed")

	// Transfer execution failures.
	ErrTransferTransient = errors.New("transient transfer failure")
	ErrTransferPermanent = errors.New("permanent transfer failure")

	// Internal consistency failure. Indicates a store-protocol bug; always
	// fatal-logged, never silently corrected.
	ErrInvariantViolation = errors.New("seat accounting invariant violated")

	ErrCampaignNotFound = errors.New("campaign not found")
	ErrInvalidCampaign  = errors.New("invalid campaign definition")
)

// ClosedError wraps ErrCampaignClosed with the operation-specific message.
func ClosedError(op OperationContext) error {
	return fmt.Errorf("%w: %s", ErrCampaignClosed, op.ClosedMessage())
}
