package port

import (
	"context"

	"cinemoa/internal/service/funding/domain"
)

// EventPublisher fans lifecycle and settlement outcomes out to downstream
// collaborators. Fire-and-forget from the caller's perspective: a publish
// failure is logged, never propagated into the money path.
type EventPublisher interface {
	PublishAccountCreationRequested(ctx context.Context, event *domain.AccountCreationRequested) error
	PublishScoreUpdateRequested(ctx context.Context, event *domain.ScoreUpdateRequested) error
	PublishSettlementOutcome(ctx context.Context, event *domain.SettlementOutcome) error
	PublishTransferFailed(ctx context.Context, event *domain.TransferFailedEvent) error
}
