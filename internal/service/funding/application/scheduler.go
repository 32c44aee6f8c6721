package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemoa/internal/pkg/clock"
	"cinemoa/internal/pkg/logger"
	"cinemoa/internal/service/funding/domain"
)

const scanBatchSize = 100

// Scheduler is the single periodic driver of time-based state: each tick it
// pushes due campaigns through the lifecycle and retries the pending
// transfer queue. It holds no state of its own; everything it needs
// survives restarts in MySQL and Redis.
type Scheduler struct {
	campaigns  domain.CampaignRepository
	lifecycle  *LifecycleService
	settlement *SettlementService
	interval   time.Duration
	clock      clock.Clock
	tracer     trace.Tracer
}

func NewScheduler(campaigns domain.CampaignRepository, lifecycle *LifecycleService, settlement *SettlementService, interval time.Duration, clk clock.Clock, tracer trace.Tracer) *Scheduler {
	return &Scheduler{
		campaigns:  campaigns,
		lifecycle:  lifecycle,
		settlement: settlement,
		interval:   interval,
		clock:      clk,
		tracer:     tracer,
	}
}

// Run ticks until ctx is cancelled. Errors inside a tick are logged and the
// loop keeps going; a sick dependency must not stop deadline processing for
// every other campaign.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("settlement scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("settlement scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick is one full scheduler pass. Exported so tests and operational
// tooling can drive the scheduler without the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "scheduler.Tick")
	defer func() {
		schedulerTickDuration.Observe(time.Since(started).Seconds())
		span.End()
	}()

	now := s.clock.Now()

	due, err := s.campaigns.FindDue(ctx, now, scanBatchSize)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("failed to scan due campaigns")
	} else {
		for _, campaign := range due {
			if err := s.lifecycle.Settle(ctx, campaign.ID); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("campaign_id", campaign.ID).Msg("failed to settle due campaign")
			}
		}
		span.SetAttributes(attribute.Int("campaigns.due", len(due)))
	}

	// Campaigns caught mid-settlement by a crash or a lost race resume here.
	settling, err := s.campaigns.FindSettling(ctx, scanBatchSize)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("failed to scan settling campaigns")
	} else {
		for _, campaign := range settling {
			if err := s.lifecycle.Settle(ctx, campaign.ID); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("campaign_id", campaign.ID).Msg("failed to resume settling campaign")
			}
		}
	}

	// Terminal campaigns whose outcome event never went out (crash between
	// the terminal flip and the publish, or a broker outage) get re-announced.
	unannounced, err := s.campaigns.FindUnannounced(ctx, scanBatchSize)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("failed to scan unannounced campaigns")
	} else {
		for _, campaign := range unannounced {
			if err := s.lifecycle.AnnounceOutcome(ctx, campaign); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("campaign_id", campaign.ID).Msg("failed to announce settlement outcome")
			}
		}
	}

	if err := s.settlement.RetryPending(ctx, scanBatchSize); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("failed to retry pending transfers")
	}
}
