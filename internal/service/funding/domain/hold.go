package domain

import (
	"fmt"
	"strings"
	"time"
)

// SeatHold is a temporary per-user claim on exactly one seat. The store
// enforces at most one active hold per (campaign, user); the hold auto
// releases when its TTL elapses without confirmation.
type SeatHold struct {
	CampaignID string
	UserID     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

const holdKeyPrefix = "seat:"

// HoldKey renders the store key whose expiry drives reconciliation.
func HoldKey(campaignID, userID string) string {
	return fmt.Sprintf("%s%s:%s", holdKeyPrefix, campaignID, userID)
}

// ParseHoldKey extracts (campaignID, userID) from a hold key. Keys that do
// not match the seat:<campaignID>:<userID> shape report ok=false; expiry
// notifications for unrelated keys are ignored upstream.
func ParseHoldKey(key string) (campaignID, userID string, ok bool) {
	rest, found := strings.CutPrefix(key, holdKeyPrefix)
	if !found {
		return "", "", false
	}
	campaignID, userID, found = strings.Cut(rest, ":")
	if !found || campaignID == "" || userID == "" {
		return "", "", false
	}
	return campaignID, userID, true
}
