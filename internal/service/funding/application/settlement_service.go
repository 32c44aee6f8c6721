package application

import (
	"context"
	"time"

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

// SettlementConfig bounds the retry behaviour of transfer execution.
type SettlementConfig struct {
	MaxAttempts     int
	TransferTimeout time.Duration
	BackoffBase     time.Duration
	SourceAccount   string
}

// SettlementService moves money as a consequence of a campaign's terminal
// state: the collected total to the venue on success, per-backer refunds on
// failure. Every movement is keyed by a deterministic idempotency key, so
// retries never double-transfer.
type SettlementService struct {
	transfers domain.TransferRecordRepository
	payments  domain.PaymentRepository
	campaigns domain.CampaignRepository
	gateway   port.TransferGateway
	events    port.EventPublisher
	cfg       SettlementConfig
	clock     clock.Clock
	tracer    trace.Tracer
}

func NewSettlementService(transfers domain.TransferRecordRepository, payments domain.PaymentRepository, campaigns domain.CampaignRepository, gateway port.TransferGateway, events port.EventPublisher, cfg SettlementConfig, clk clock.Clock, tracer trace.Tracer) *SettlementService {
	return &SettlementService{
		transfers: transfers,
		payments:  payments,
		campaigns: campaigns,
		gateway:   gateway,
		events:    events,
		cfg:       cfg,
		clock:     clk,
		tracer:    tracer,
	}
}

// Prepare creates the transfer work for a settled campaign: one venue
// transfer on success, one refund per confirmed payment on failure.
// CreateIfAbsent makes re-preparation after a crash a no-op.
func (s *SettlementService) Prepare(ctx context.Context, campaign *domain.Campaign, succeeded bool) ([]*domain.TransferRecord, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Prepare", trace.WithAttributes(
		attribute.String("campaign.id", campaign.ID),
		attribute.Bool("campaign.succeeded", succeeded),
	))
	defer span.End()

	now := s.clock.Now()
	var records []*domain.TransferRecord

	if succeeded {
		total, err := s.payments.TotalByCampaign(ctx, campaign.ID)
		if err != nil {
			return nil, errors.Wrap(err, "sum campaign payments")
		}
		records = append(records, domain.NewTransferRecord(
			campaign.ID, domain.TransferVenue, campaign.VenueAccount, campaign.VenueAccount, total, now,
		))
	} else {
		payments, err := s.payments.ListByCampaign(ctx, campaign.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list campaign payments")
		}
		for _, p := range payments {
			records = append(records, domain.NewTransferRecord(
				campaign.ID, domain.TransferRefund, p.UserID, p.RefundAccount, p.Amount, now,
			))
		}
	}

	for _, record := range records {
		if err := s.transfers.CreateIfAbsent(ctx, record); err != nil {
			return nil, errors.Wrapf(err, "create transfer record %s", record.IdempotencyKey)
		}
	}
	span.SetAttributes(attribute.Int("transfer.count", len(records)))
	return records, nil
}

// ExecuteCampaign runs every still-pending record of a campaign once.
func (s *SettlementService) ExecuteCampaign(ctx context.Context, campaign *domain.Campaign) error {
	records, err := s.transfers.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.Outcome != domain.TransferPending {
			continue
		}
		s.Execute(ctx, campaign, record)
	}
	return nil
}

// Execute performs one transfer attempt and persists the resulting record
// state. A record already SUCCEEDED is never re-sent; transient failures
// stay PENDING with backoff until the attempt budget runs out; permanent
// rejections go terminal immediately. No path drops the record.
func (s *SettlementService) Execute(ctx context.Context, campaign *domain.Campaign, record *domain.TransferRecord) {
	ctx, span := s.tracer.Start(ctx, "settlement.Execute", trace.WithAttributes(
		attribute.String("campaign.id", record.CampaignID),
		attribute.String("transfer.kind", string(record.Kind)),
		attribute.String("transfer.idempotency_key", record.IdempotencyKey),
	))
	defer span.End()

	if record.Outcome != domain.TransferPending {
		span.AddEvent("record already terminal")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout)
	defer cancel()

	result, err := s.gateway.Transfer(callCtx, port.TransferRequest{
		IdempotencyKey: record.IdempotencyKey,
		SourceAccount:  s.cfg.SourceAccount,
		DestAccount:    record.DestAccount,
		Amount:         record.Amount,
		Memo:           record.Kind.Memo(campaign.Title),
	})

	now := s.clock.Now()
	record.Attempts++
	record.UpdatedAt = now

	switch {
	case err != nil:
		// Network trouble or timeout: transient, counted toward the budget.
		span.RecordError(err)
		record.LastError = err.Error()
		if record.Attempts >= s.cfg.MaxAttempts {
			record.Outcome = domain.TransferFailed
			transferAttempts.WithLabelValues(string(record.Kind), "exhausted").Inc()
			span.SetStatus(codes.Error, "retry budget exhausted")
			s.publishTransferFailed(ctx, record, "retry budget exhausted: "+err.Error())
		} else {
			record.NextAttemptAt = now.Add(s.backoff(record.Attempts))
			transferAttempts.WithLabelValues(string(record.Kind), "transient").Inc()
			logger.Ctx(ctx).Warn().Err(err).
				Str("idempotency_key", record.IdempotencyKey).
				Int("attempts", record.Attempts).
				Time("next_attempt_at", record.NextAttemptAt).
				Msg("transient transfer failure, will retry")
		}

	case result.Status == port.TransferStatusFailed:
		// Explicit rejection (invalid account etc.): permanent, no retry.
		record.Outcome = domain.TransferFailed
		record.LastError = result.Reason
		transferAttempts.WithLabelValues(string(record.Kind), "permanent").Inc()
		span.SetStatus(codes.Error, "permanent rejection")
		s.publishTransferFailed(ctx, record, result.Reason)

	case result.Status == port.TransferStatusSucceeded:
		record.Outcome = domain.TransferSucceeded
		record.LastError = ""
		transferAttempts.WithLabelValues(string(record.Kind), "succeeded").Inc()
		span.AddEvent("transfer succeeded")

	default:
		// The bank accepted the request but has not finished it; keep the
		// record PENDING and let the scheduler ask again.
		record.NextAttemptAt = now.Add(s.backoff(record.Attempts))
		transferAttempts.WithLabelValues(string(record.Kind), "pending").Inc()
	}

	if err := s.transfers.Update(ctx, record); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).
			Str("idempotency_key", record.IdempotencyKey).
			Msg("failed to persist transfer record state")
	}
}

// RetryPending drives the persistent work queue: every PENDING record past
// its next attempt time gets one more execution.
func (s *SettlementService) RetryPending(ctx context.Context, limit int) error {
	now := s.clock.Now()
	records, err := s.transfers.ListPendingDue(ctx, now, limit)
	if err != nil {
		return err
	}
	for _, record := range records {
		campaign, err := s.campaignFor(ctx, record)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("campaign_id", record.CampaignID).Msg("pending transfer for unknown campaign")
			continue
		}
		s.Execute(ctx, campaign, record)
	}
	return nil
}

// Complete reports whether every transfer record of the campaign reached a
// terminal outcome.
func (s *SettlementService) Complete(ctx context.Context, campaignID string) (bool, error) {
	open, err := s.transfers.CountNonTerminal(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return open == 0, nil
}

func (s *SettlementService) campaignFor(ctx context.Context, record *domain.TransferRecord) (*domain.Campaign, error) {
	return s.campaigns.FindByID(ctx, record.CampaignID)
}

func (s *SettlementService) backoff(attempts int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

func (s *SettlementService) publishTransferFailed(ctx context.Context, record *domain.TransferRecord, reason string) {
	event := &domain.TransferFailedEvent{
		EventID:        uuid.NewString(),
		CampaignID:     record.CampaignID,
		Kind:           record.Kind,
		Beneficiary:    record.Beneficiary,
		IdempotencyKey: record.IdempotencyKey,
		Reason:         reason,
		FailedAt:       s.clock.Now(),
	}
	if err := s.events.PublishTransferFailed(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("idempotency_key", record.IdempotencyKey).Msg("failed to publish transfer-failed event")
	}
}
