package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cinemoa/internal/pkg/clock"
	"cinemoa/internal/pkg/logger"
	"cinemoa/internal/service/funding/domain"
	"cinemoa/internal/service/funding/domain/port"
)

// HoldService is the seat hold manager: atomic acquire/release over the
// store plus the expiry-notification consumer that keeps the remaining-seat
// counter honest. All cross-goroutine coordination happens inside the store;
// this service holds no counter state of its own.
type HoldService struct {
	store     port.SeatHoldStore
	campaigns domain.CampaignRepository
	payments  domain.PaymentRepository
	events    port.EventPublisher
	holdTTL   time.Duration
	clock     clock.Clock
	tracer    trace.Tracer
}

func NewHoldService(store port.SeatHoldStore, campaigns domain.CampaignRepository, payments domain.PaymentRepository, events port.EventPublisher, holdTTL time.Duration, clk clock.Clock, tracer trace.Tracer) *HoldService {
	return &HoldService{
		store:     store,
		campaigns: campaigns,
		payments:  payments,
		events:    events,
		holdTTL:   holdTTL,
		clock:     clk,
		tracer:    tracer,
	}
}

// Acquire claims one seat for the user. The conditional decrement and the
// hold marker write are one indivisible store operation, so concurrent
// acquirers can never observe a half-applied hold or drive the counter
// negative.
func (s *HoldService) Acquire(ctx context.Context, campaignID, userID string) (*domain.SeatHold, error) {
	ctx, span := s.tracer.Start(ctx, "hold.Acquire", trace.WithAttributes(
		attribute.String("campaign.id", campaignID),
	))
	defer span.End()

	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := s.clock.Now()
	if !campaign.WindowOpen(now) {
		return nil, domain.ClosedError(domain.OpPayment)
	}

	result, err := s.store.Acquire(ctx, campaignID, userID, s.holdTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store acquire failed")
		return nil, err
	}

	switch result {
	case port.AcquireOK:
		holdsAcquired.Inc()
		span.AddEvent("seat held")
		s.publishScoreUpdate(ctx, campaign)
		return &domain.SeatHold{
			CampaignID: campaignID,
			UserID:     userID,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.holdTTL),
		}, nil
	case port.AcquireAlreadyHolding:
		holdsRejected.WithLabelValues("already_holding").Inc()
		return nil, domain.ErrAlreadyHolding
	case port.AcquireSoldOut:
		holdsRejected.WithLabelValues("sold_out").Inc()
		return nil, domain.ErrNoRemainingSeats
	default:
		return nil, domain.ErrInvariantViolation
	}
}

// Release gives the seat back before the TTL elapses. Safe to race against
// store-driven expiry: the store increments the counter exactly once no
// matter which path wins. Allowed while the campaign is SETTLING, where a
// release is indistinguishable from an early expiry; only terminal
// campaigns freeze their holds.
func (s *HoldService) Release(ctx context.Context, campaignID, userID string) error {
	ctx, span := s.tracer.Start(ctx, "hold.Release", trace.WithAttributes(
		attribute.String("campaign.id", campaignID),
	))
	defer span.End()

	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if campaign.Status.Terminal() {
		return domain.ClosedError(domain.OpRefund)
	}

	result, err := s.store.Release(ctx, campaignID, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if result == port.ReleaseNotHolding {
		return domain.ErrNotHolding
	}

	holdsReleased.Inc()
	s.publishScoreUpdate(ctx, campaign)
	return nil
}

// ConfirmPayment converts an active hold into a confirmed contribution. The
// hold marker is dropped without returning the seat to the pool, and the
// payment row becomes the basis for a refund should the campaign fail.
func (s *HoldService) ConfirmPayment(ctx context.Context, campaignID, userID, refundAccount string, amount decimal.Decimal) error {
	ctx, span := s.tracer.Start(ctx, "hold.ConfirmPayment", trace.WithAttributes(
		attribute.String("campaign.id", campaignID),
	))
	defer span.End()

	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	now := s.clock.Now()
	if !campaign.WindowOpen(now) {
		return domain.ClosedError(domain.OpPayment)
	}

	confirmed, err := s.store.Confirm(ctx, campaignID, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !confirmed {
		return domain.ErrNotHolding
	}

	payment := &domain.Payment{
		CampaignID:    campaignID,
		UserID:        userID,
		Amount:        amount,
		RefundAccount: refundAccount,
		PaidAt:        now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment row failed after seat confirm")
		// Put the hold back so the seat is neither sold nor leaked and the
		// caller can retry the payment against a live hold.
		if restoreErr := s.store.Restore(ctx, campaignID, userID, s.holdTTL); restoreErr != nil {
			invariantViolations.Inc()
			logger.Ctx(ctx).Error().Err(restoreErr).
				Str("campaign_id", campaignID).
				Str("user_id", userID).
				Msg("FATAL: could not restore hold after failed payment persistence")
		}
		return err
	}
	span.AddEvent("payment confirmed")
	return nil
}

// RunExpiryListener consumes the store's expired-key stream until ctx is
// cancelled. One dedicated goroutine runs this loop for the whole process.
func (s *HoldService) RunExpiryListener(ctx context.Context) error {
	keys, err := s.store.SubscribeExpirations(ctx)
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Msg("hold expiry listener started")
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("hold expiry listener shutting down")
			return ctx.Err()
		case key, ok := <-keys:
			if !ok {
				return nil
			}
			s.OnExpiry(ctx, key)
		}
	}
}

// OnExpiry handles one expired-key notification. Keys that are not seat
// holds are ignored. The increment is a compensating action guarded by the
// holder-set membership, so replayed or late notifications (including one
// racing an explicit Release) can never double-increment.
func (s *HoldService) OnExpiry(ctx context.Context, key string) {
	campaignID, userID, ok := domain.ParseHoldKey(key)
	if !ok {
		return
	}

	ctx, span := s.tracer.Start(ctx, "hold.OnExpiry", trace.WithAttributes(
		attribute.String("campaign.id", campaignID),
	))
	defer span.End()

	reconciled, remaining, err := s.store.Reconcile(ctx, campaignID, userID)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("failed to reconcile expired hold")
		return
	}
	if !reconciled {
		// Explicit release or payment won the race; nothing to give back.
		span.AddEvent("stale expiry ignored")
		return
	}

	holdsExpired.Inc()

	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("campaign_id", campaignID).Msg("expired hold for unknown campaign")
		return
	}
	if remaining < 0 || remaining > campaign.TargetSeats {
		invariantViolations.Inc()
		logger.Ctx(ctx).Error().
			Int64("remaining", remaining).
			Int64("target_seats", campaign.TargetSeats).
			Str("campaign_id", campaignID).
			Msg("FATAL: seat counter out of range after expiry reconciliation")
		return
	}
	s.publishScoreUpdate(ctx, campaign)
}

// publishScoreUpdate emits the scoring trigger. Best-effort: a publish
// failure must never fail the seat operation that caused it.
func (s *HoldService) publishScoreUpdate(ctx context.Context, campaign *domain.Campaign) {
	remaining, err := s.store.Remaining(ctx, campaign.ID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("campaign_id", campaign.ID).Msg("could not read counter for score update")
		return
	}
	event := &domain.ScoreUpdateRequested{
		EventID:        uuid.NewString(),
		CampaignID:     campaign.ID,
		FilledSeats:    campaign.FilledSeats(remaining),
		RemainingSeats: remaining,
		UpdatedAt:      s.clock.Now(),
	}
	if err := s.events.PublishScoreUpdateRequested(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("campaign_id", campaign.ID).Msg("failed to publish score update")
	}
}
