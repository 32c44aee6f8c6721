package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cinemoa/internal/pkg/clock"
	"cinemoa/internal/pkg/logger"
	"cinemoa/internal/service/funding/domain"
	"cinemoa/internal/service/funding/domain/port"
)

// LifecycleService drives the campaign state machine
// OPEN -> SETTLING -> SUCCEEDED | FAILED. Each transition is a guarded
// compare-and-set on the campaign row, so overlapping scheduler ticks and
// process restarts resolve to exactly one settlement per campaign.
type LifecycleService struct {
	campaigns  domain.CampaignRepository
	payments   domain.PaymentRepository
	store      port.SeatHoldStore
	policy     port.OutcomePolicy
	settlement *SettlementService
	events     port.EventPublisher
	clock      clock.Clock
	tracer     trace.Tracer
}

func NewLifecycleService(campaigns domain.CampaignRepository, payments domain.PaymentRepository, store port.SeatHoldStore, policy port.OutcomePolicy, settlement *SettlementService, events port.EventPublisher, clk clock.Clock, tracer trace.Tracer) *LifecycleService {
	return &LifecycleService{
		campaigns:  campaigns,
		payments:   payments,
		store:      store,
		policy:     policy,
		settlement: settlement,
		events:     events,
		clock:      clk,
		tracer:     tracer,
	}
}

// CreateCampaign persists a new campaign, seeds the seat counter and asks
// the banking collaborator for a virtual account.
func (s *LifecycleService) CreateCampaign(ctx context.Context, campaign *domain.Campaign) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.CreateCampaign", trace.WithAttributes(
		attribute.String("campaign.id", campaign.ID),
	))
	defer span.End()

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "persist campaign")
	}
	if err := s.store.InitCampaign(ctx, campaign.ID, campaign.TargetSeats); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "seed seat counter")
	}

	event := &domain.AccountCreationRequested{
		EventID:      uuid.NewString(),
		CampaignID:   campaign.ID,
		VenueAccount: campaign.VenueAccount,
		RequestedAt:  s.clock.Now(),
	}
	if err := s.events.PublishAccountCreationRequested(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("campaign_id", campaign.ID).Msg("failed to publish account creation request")
	}
	return nil
}

// Campaign returns a campaign together with its live remaining-seat count.
func (s *LifecycleService) Campaign(ctx context.Context, campaignID string) (*domain.Campaign, int64, error) {
	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return nil, 0, err
	}
	remaining, err := s.store.Remaining(ctx, campaignID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "read seat counter")
	}
	return campaign, remaining, nil
}

// CheckWindowOpen is the operation guard for the payment/refund request
// path: a tagged operation against a closed window is rejected with the
// context-specific message.
func (s *LifecycleService) CheckWindowOpen(ctx context.Context, campaignID string, op domain.OperationContext) error {
	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if !campaign.WindowOpen(s.clock.Now()) {
		return domain.ClosedError(op)
	}
	return nil
}

// Settle moves a due campaign through SETTLING to its terminal state and
// triggers settlement exactly once. Safe to re-invoke at any point: every
// step is either a guarded transition or idempotent by key.
func (s *LifecycleService) Settle(ctx context.Context, campaignID string) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Settle", trace.WithAttributes(
		attribute.String("campaign.id", campaignID),
	))
	defer span.End()

	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if campaign.Status.Terminal() {
		span.AddEvent("campaign already terminal")
		return nil
	}

	if campaign.Status == domain.StatusOpen {
		if !campaign.Due(s.clock.Now()) {
			return nil
		}
		moved, err := s.campaigns.TransitionStatus(ctx, campaignID, domain.StatusOpen, domain.StatusSettling)
		if err != nil {
			span.RecordError(err)
			return errors.Wrap(err, "transition to settling")
		}
		if !moved {
			// Another tick beat us to it; it owns this settling pass.
			span.AddEvent("settling owned by concurrent tick")
			return nil
		}
		campaign.Status = domain.StatusSettling
	}

	// From here the campaign is SETTLING: no new holds, counter frozen
	// except for expiring holds draining out.
	remaining, err := s.store.Remaining(ctx, campaignID)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "read seat counter")
	}
	if remaining < 0 || remaining > campaign.TargetSeats {
		invariantViolations.Inc()
		logger.Ctx(ctx).Error().
			Int64("remaining", remaining).
			Int64("target_seats", campaign.TargetSeats).
			Str("campaign_id", campaignID).
			Msg("FATAL: seat counter out of range at settlement")
		return domain.ErrInvariantViolation
	}

	collected, err := s.payments.TotalByCampaign(ctx, campaignID)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "sum collected amount")
	}

	succeeded, err := s.policy.Succeeded(ctx, campaign, campaign.FilledSeats(remaining), collected)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "evaluate outcome policy")
	}

	target := domain.StatusFailed
	if succeeded {
		target = domain.StatusSucceeded
	}
	span.SetAttributes(attribute.String("campaign.outcome", string(target)))

	// Transfer records exist before the terminal flip, so a crash between
	// the two steps resumes cleanly: the records are keyed idempotently and
	// the campaign is still SETTLING for the next tick to pick up.
	if _, err := s.settlement.Prepare(ctx, campaign, succeeded); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "prepare settlement")
	}

	moved, err := s.campaigns.TransitionStatus(ctx, campaignID, domain.StatusSettling, target)
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(err, "transition to %s", target)
	}
	if !moved {
		span.AddEvent("terminal transition owned by concurrent tick")
		return nil
	}
	campaign.Status = target
	settlementsTotal.WithLabelValues(string(target)).Inc()

	if err := s.AnnounceOutcome(ctx, campaign); err != nil {
		// The announcement claim is still open on the campaign row; the
		// scheduler's sweep retries it next tick.
		logger.Ctx(ctx).Error().Err(err).Str("campaign_id", campaignID).Msg("settlement outcome not announced yet")
	}

	if err := s.settlement.ExecuteCampaign(ctx, campaign); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement execution incomplete")
		// Records stay PENDING; the scheduler retry path owns them now.
		logger.Ctx(ctx).Error().Err(err).Str("campaign_id", campaignID).Msg("settlement execution incomplete, retries scheduled")
	}
	return nil
}

// AnnounceOutcome publishes the settlement outcome of a terminal campaign.
// The announcement claim is a compare-and-set on the campaign row, so under
// overlapping ticks only one publisher goes out; a terminal campaign whose
// claim is still empty (crash before the publish, or a failed publish) is
// picked up by the scheduler's announcement sweep.
func (s *LifecycleService) AnnounceOutcome(ctx context.Context, campaign *domain.Campaign) error {
	claimed, err := s.campaigns.MarkOutcomeAnnounced(ctx, campaign.ID, s.clock.Now())
	if err != nil {
		return errors.Wrap(err, "claim outcome announcement")
	}
	if !claimed {
		return nil
	}

	release := func() {
		if clearErr := s.campaigns.ClearOutcomeAnnouncement(ctx, campaign.ID); clearErr != nil {
			logger.Ctx(ctx).Error().Err(clearErr).Str("campaign_id", campaign.ID).Msg("could not release outcome announcement claim")
		}
	}

	records, err := s.settlement.transfers.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		release()
		return errors.Wrap(err, "list transfer records")
	}
	summaries := make([]domain.TransferSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, domain.TransferSummary{
			Kind:           r.Kind,
			Beneficiary:    r.Beneficiary,
			Amount:         r.Amount,
			IdempotencyKey: r.IdempotencyKey,
			Outcome:        r.Outcome,
		})
	}
	event := &domain.SettlementOutcome{
		EventID:    uuid.NewString(),
		CampaignID: campaign.ID,
		Status:     campaign.Status,
		Transfers:  summaries,
		SettledAt:  s.clock.Now(),
	}
	if err := s.events.PublishSettlementOutcome(ctx, event); err != nil {
		release()
		return errors.Wrap(err, "publish settlement outcome")
	}
	return nil
}
