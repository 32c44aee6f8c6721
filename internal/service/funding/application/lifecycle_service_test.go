package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cinemoa/internal/pkg/clock"
	"cinemoa/internal/service/funding/domain"
)

type lifecycleFixture struct {
	campaigns  *fakeCampaignRepo
	payments   *fakePaymentRepo
	store      *fakeHoldStore
	transfers  *fakeTransferRepo
	gateway    *fakeGateway
	events     *fakeEventPublisher
	settlement *SettlementService
	lifecycle  *LifecycleService
}

func newLifecycleFixture(t *testing.T, campaign *domain.Campaign) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		campaigns: newFakeCampaignRepo(campaign),
		payments:  newFakePaymentRepo(),
		store:     newFakeHoldStore(),
		transfers: newFakeTransferRepo(),
		gateway:   newFakeGateway(),
		events:    newFakeEventPublisher(),
	}
	if err := f.store.InitCampaign(context.Background(), campaign.ID, campaign.TargetSeats); err != nil {
		t.Fatalf("init campaign: %v", err)
	}
	clk := clock.NewFixed(testNow)
	cfg := SettlementConfig{MaxAttempts: 3, TransferTimeout: time.Second, BackoffBase: 30 * time.Second, SourceAccount: "acct-platform"}
	f.settlement = NewSettlementService(f.transfers, f.payments, f.campaigns, f.gateway, f.events, cfg, clk, testTracer())
	f.lifecycle = NewLifecycleService(f.campaigns, f.payments, f.store, seatThresholdPolicy{}, f.settlement, f.events, clk, testTracer())
	return f
}

// confirmBackers drives n users through hold and payment directly against
// the store, leaving the counter and the payment rows as a real campaign
// would at its deadline.
func (f *lifecycleFixture) confirmBackers(t *testing.T, campaignID string, n int, amount decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		userID := fmt.Sprintf("u%d", i)
		if _, err := f.store.Acquire(ctx, campaignID, userID, time.Minute); err != nil {
			t.Fatalf("acquire %s: %v", userID, err)
		}
		if _, err := f.store.Confirm(ctx, campaignID, userID); err != nil {
			t.Fatalf("confirm %s: %v", userID, err)
		}
		if err := f.payments.Create(ctx, &domain.Payment{
			CampaignID:    campaignID,
			UserID:        userID,
			Amount:        amount,
			RefundAccount: "acct-" + userID,
			PaidAt:        testNow,
		}); err != nil {
			t.Fatalf("create payment %s: %v", userID, err)
		}
	}
}

func dueCampaign(id string, targetSeats int64) *domain.Campaign {
	c := openCampaign(id, targetSeats)
	c.StartsAt = testNow.Add(-48 * time.Hour)
	c.EndsAt = testNow.Add(-time.Minute)
	return c
}

func TestLifecycleSettleSucceeded(t *testing.T) {
	ctx := context.Background()
	campaign := dueCampaign("c1", 10)
	f := newLifecycleFixture(t, campaign)
	f.confirmBackers(t, "c1", 10, decimal.NewFromInt(15))

	if err := f.lifecycle.Settle(ctx, "c1"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if got := f.campaigns.status("c1"); got != domain.StatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", got)
	}

	venue := f.transfers.byKind(domain.TransferVenue)
	if len(venue) != 1 {
		t.Fatalf("venue transfers = %d, want 1", len(venue))
	}
	if want := decimal.NewFromInt(150); !venue[0].Amount.Equal(want) {
		t.Errorf("venue amount = %s, want %s", venue[0].Amount, want)
	}
	if venue[0].Outcome != domain.TransferSucceeded {
		t.Errorf("venue outcome = %s, want SUCCEEDED", venue[0].Outcome)
	}
	if refunds := f.transfers.byKind(domain.TransferRefund); len(refunds) != 0 {
		t.Errorf("refunds = %d, want 0", len(refunds))
	}

	if got := f.events.outcomeCount(); got != 1 {
		t.Fatalf("outcome events = %d, want 1", got)
	}
	if got := f.events.outcomes[0].Status; got != domain.StatusSucceeded {
		t.Errorf("outcome event status = %s, want SUCCEEDED", got)
	}
}

func TestLifecycleSettleFailed(t *testing.T) {
	ctx := context.Background()
	campaign := dueCampaign("c1", 10)
	f := newLifecycleFixture(t, campaign)
	f.confirmBackers(t, "c1", 7, decimal.NewFromInt(15))

	if err := f.lifecycle.Settle(ctx, "c1"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if got := f.campaigns.status("c1"); got != domain.StatusFailed {
		t.Errorf("status = %s, want FAILED", got)
	}

	refunds := f.transfers.byKind(domain.TransferRefund)
	if len(refunds) != 7 {
		t.Fatalf("refunds = %d, want one per confirmed payment (7)", len(refunds))
	}
	for _, r := range refunds {
		if !r.Amount.Equal(decimal.NewFromInt(15)) {
			t.Errorf("refund %s amount = %s, want 15", r.Beneficiary, r.Amount)
		}
		if r.DestAccount != "acct-"+r.Beneficiary {
			t.Errorf("refund %s routed to %s", r.Beneficiary, r.DestAccount)
		}
	}
	if venue := f.transfers.byKind(domain.TransferVenue); len(venue) != 0 {
		t.Errorf("venue transfers = %d, want 0", len(venue))
	}
	if got := f.gateway.totalCalls(); got != 7 {
		t.Errorf("gateway calls = %d, want 7", got)
	}
}

func TestLifecycleSettleIdempotent(t *testing.T) {
	ctx := context.Background()
	campaign := dueCampaign("c1", 10)
	f := newLifecycleFixture(t, campaign)
	f.confirmBackers(t, "c1", 10, decimal.NewFromInt(15))

	for i := 0; i < 3; i++ {
		if err := f.lifecycle.Settle(ctx, "c1"); err != nil {
			t.Fatalf("settle #%d: %v", i+1, err)
		}
	}

	key := domain.IdempotencyKey("c1", domain.TransferVenue, campaign.VenueAccount)
	if got := f.gateway.callCount(key); got != 1 {
		t.Errorf("venue transfer sent %d times, want 1", got)
	}
	if got := f.events.outcomeCount(); got != 1 {
		t.Errorf("outcome events = %d, want 1", got)
	}
	if got := f.campaigns.status("c1"); got != domain.StatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", got)
	}
}

func TestLifecycleSettleNotDue(t *testing.T) {
	ctx := context.Background()
	campaign := openCampaign("c1", 10) // ends an hour after testNow
	f := newLifecycleFixture(t, campaign)

	if err := f.lifecycle.Settle(ctx, "c1"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := f.campaigns.status("c1"); got != domain.StatusOpen {
		t.Errorf("status = %s, want OPEN", got)
	}
	if got := f.events.outcomeCount(); got != 0 {
		t.Errorf("outcome events = %d, want 0", got)
	}
}

func TestLifecycleSettleResumesSettling(t *testing.T) {
	ctx := context.Background()
	campaign := dueCampaign("c1", 10)
	campaign.Status = domain.StatusSettling // crashed mid-settlement last run
	f := newLifecycleFixture(t, campaign)
	f.confirmBackers(t, "c1", 10, decimal.NewFromInt(15))

	if err := f.lifecycle.Settle(ctx, "c1"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := f.campaigns.status("c1"); got != domain.StatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", got)
	}
	if got := f.events.outcomeCount(); got != 1 {
		t.Errorf("outcome events = %d, want 1", got)
	}
}

func TestLifecycleSettleConcurrentTicks(t *testing.T) {
	ctx := context.Background()
	campaign := dueCampaign("c1", 10)
	f := newLifecycleFixture(t, campaign)
	f.confirmBackers(t, "c1", 10, decimal.NewFromInt(15))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.lifecycle.Settle(ctx, "c1"); err != nil {
				t.Errorf("settle: %v", err)
			}
		}()
	}
	wg.Wait()

	key := domain.IdempotencyKey("c1", domain.TransferVenue, campaign.VenueAccount)
	if got := f.gateway.callCount(key); got != 1 {
		t.Errorf("venue transfer sent %d times under concurrent ticks, want 1", got)
	}
	if got := f.events.outcomeCount(); got != 1 {
		t.Errorf("outcome events = %d, want exactly 1", got)
	}
}

func TestLifecycleOutcomeAnnouncementSurvivesPublishFailure(t *testing.T) {
	ctx := context.Background()
	campaign := dueCampaign("c1", 10)
	f := newLifecycleFixture(t, campaign)
	f.confirmBackers(t, "c1", 10, decimal.NewFromInt(15))

	// The broker is down while the campaign settles.
	f.events.failNextOutcome(errors.New("kafka: broker not available"))
	if err := f.lifecycle.Settle(ctx, "c1"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Money still moved; the announcement claim is back open.
	if got := f.campaigns.status("c1"); got != domain.StatusSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED", got)
	}
	if got := f.events.outcomeCount(); got != 0 {
		t.Fatalf("outcome events = %d, want 0 while the broker is down", got)
	}
	if at := f.campaigns.announcedAt("c1"); at != nil {
		t.Fatal("announcement claim not released after failed publish")
	}

	// The next sweep re-announces, once.
	stored, err := f.campaigns.FindByID(ctx, "c1")
	if err != nil {
		t.Fatalf("find campaign: %v", err)
	}
	if err := f.lifecycle.AnnounceOutcome(ctx, stored); err != nil {
		t.Fatalf("announce outcome: %v", err)
	}
	if err := f.lifecycle.AnnounceOutcome(ctx, stored); err != nil {
		t.Fatalf("repeat announce outcome: %v", err)
	}
	if got := f.events.outcomeCount(); got != 1 {
		t.Errorf("outcome events = %d, want exactly 1 after recovery", got)
	}
	if f.events.outcomes[0].Status != domain.StatusSucceeded {
		t.Errorf("announced status = %s, want SUCCEEDED", f.events.outcomes[0].Status)
	}
	if len(f.events.outcomes[0].Transfers) != 1 {
		t.Errorf("announced transfers = %d, want 1", len(f.events.outcomes[0].Transfers))
	}
}

func TestLifecycleSettleCounterOutOfRange(t *testing.T) {
	ctx := context.Background()
	campaign := dueCampaign("c1", 10)
	f := newLifecycleFixture(t, campaign)

	// Corrupt the counter past the seat target.
	f.store.mu.Lock()
	f.store.counters["c1"] = 11
	f.store.mu.Unlock()

	err := f.lifecycle.Settle(ctx, "c1")
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("err = %v, want ErrInvariantViolation", err)
	}
	// The campaign stays SETTLING for operators rather than guessing an
	// outcome from a corrupt counter.
	if got := f.campaigns.status("c1"); got != domain.StatusSettling {
		t.Errorf("status = %s, want SETTLING", got)
	}
}

func TestLifecycleCheckWindowOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*domain.Campaign)
		op      domain.OperationContext
		wantErr bool
	}{
		{"open window accepts payment", func(*domain.Campaign) {}, domain.OpPayment, false},
		{"open window accepts refund", func(*domain.Campaign) {}, domain.OpRefund, false},
		{"ended campaign rejects payment", func(c *domain.Campaign) { c.EndsAt = testNow.Add(-time.Minute) }, domain.OpPayment, true},
		{"ended campaign rejects refund", func(c *domain.Campaign) { c.EndsAt = testNow.Add(-time.Minute) }, domain.OpRefund, true},
		{"settling campaign rejects payment", func(c *domain.Campaign) { c.Status = domain.StatusSettling }, domain.OpPayment, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			campaign := openCampaign("c1", 10)
			tt.mutate(campaign)
			f := newLifecycleFixture(t, campaign)

			err := f.lifecycle.CheckWindowOpen(ctx, "c1", tt.op)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, domain.ErrCampaignClosed) {
				t.Fatalf("err = %v, want ErrCampaignClosed", err)
			}
			if want := tt.op.ClosedMessage(); !containsMessage(err, want) {
				t.Errorf("err %q does not carry the %s message %q", err, tt.op, want)
			}
		})
	}
}

func TestLifecycleCampaignSnapshot(t *testing.T) {
	ctx := context.Background()
	campaign := openCampaign("c1", 10)
	f := newLifecycleFixture(t, campaign)
	f.confirmBackers(t, "c1", 4, decimal.NewFromInt(15))

	got, remaining, err := f.lifecycle.Campaign(ctx, "c1")
	if err != nil {
		t.Fatalf("campaign: %v", err)
	}
	if got.ID != "c1" {
		t.Errorf("id = %s", got.ID)
	}
	if remaining != 6 {
		t.Errorf("remaining = %d, want 6", remaining)
	}
	if got.FilledSeats(remaining) != 4 {
		t.Errorf("filled = %d, want 4", got.FilledSeats(remaining))
	}

	if _, _, err := f.lifecycle.Campaign(ctx, "missing"); !errors.Is(err, domain.ErrCampaignNotFound) {
		t.Errorf("err = %v, want ErrCampaignNotFound", err)
	}
}

func TestLifecycleCreateCampaign(t *testing.T) {
	ctx := context.Background()
	placeholder := openCampaign("seed", 1)
	f := newLifecycleFixture(t, placeholder)

	campaign, err := domain.NewCampaign("c2", "Anime Marathon", 25, decimal.NewFromInt(12), decimal.Zero, testNow, testNow.Add(72*time.Hour), "acct-venue-2")
	if err != nil {
		t.Fatalf("new campaign: %v", err)
	}
	if err := f.lifecycle.CreateCampaign(ctx, campaign); err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	stored, err := f.campaigns.FindByID(ctx, "c2")
	if err != nil {
		t.Fatalf("find created campaign: %v", err)
	}
	if stored.Status != domain.StatusOpen {
		t.Errorf("status = %s, want OPEN", stored.Status)
	}
	remaining, _ := f.store.Remaining(ctx, "c2")
	if remaining != 25 {
		t.Errorf("seeded counter = %d, want 25", remaining)
	}
	if len(f.events.accountRequests) != 1 {
		t.Fatalf("account creation requests = %d, want 1", len(f.events.accountRequests))
	}
	if f.events.accountRequests[0].VenueAccount != "acct-venue-2" {
		t.Errorf("account request venue = %s", f.events.accountRequests[0].VenueAccount)
	}
}
