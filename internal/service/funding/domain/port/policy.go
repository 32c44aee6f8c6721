package port

import (
	"context"

	"github.com/shopspring/decimal"

	"cinemoa/internal/service/funding/domain"
)

// OutcomePolicy decides whether a campaign met its goal at the deadline
// instant. The default policy compares seats (or the collected amount for
// amount-based campaigns); campaigns may carry their own rule expression.
type OutcomePolicy interface {
	Succeeded(ctx context.Context, campaign *domain.Campaign, filledSeats int64, collected decimal.Decimal) (bool, error)
}
