package application

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"cinemoa/internal/service/funding/domain"
	"cinemoa/internal/service/funding/domain/port"
)

func testTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("test")
}

// seatThresholdPolicy reproduces the default outcome rule without CEL.
type seatThresholdPolicy struct{}

func (seatThresholdPolicy) Succeeded(_ context.Context, c *domain.Campaign, filled int64, collected decimal.Decimal) (bool, error) {
	if c.AmountBased() {
		return collected.GreaterThanOrEqual(c.TargetAmount), nil
	}
	return filled >= c.TargetSeats, nil
}

// fakeHoldStore mirrors the Redis store's atomic semantics behind one
// mutex: each method is one indivisible operation, like one Lua script.
type fakeHoldStore struct {
	mu       sync.Mutex
	targets  map[string]int64
	counters map[string]int64
	holders  map[string]map[string]bool
	expiry   chan string
}

func newFakeHoldStore() *fakeHoldStore {
	return &fakeHoldStore{
		targets:  make(map[string]int64),
		counters: make(map[string]int64),
		holders:  make(map[string]map[string]bool),
		expiry:   make(chan string, 64),
	}
}

func (s *fakeHoldStore) InitCampaign(_ context.Context, campaignID string, targetSeats int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[campaignID] = targetSeats
	s.counters[campaignID] = targetSeats
	s.holders[campaignID] = make(map[string]bool)
	return nil
}

func (s *fakeHoldStore) Acquire(_ context.Context, campaignID, userID string, _ time.Duration) (port.AcquireResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holders[campaignID][userID] {
		return port.AcquireAlreadyHolding, nil
	}
	if s.counters[campaignID] <= 0 {
		return port.AcquireSoldOut, nil
	}
	s.counters[campaignID]--
	s.holders[campaignID][userID] = true
	return port.AcquireOK, nil
}

func (s *fakeHoldStore) Release(_ context.Context, campaignID, userID string) (port.ReleaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holders[campaignID][userID] {
		return port.ReleaseNotHolding, nil
	}
	delete(s.holders[campaignID], userID)
	s.counters[campaignID]++
	return port.ReleaseOK, nil
}

func (s *fakeHoldStore) Reconcile(_ context.Context, campaignID, userID string) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holders[campaignID][userID] {
		return false, s.counters[campaignID], nil
	}
	delete(s.holders[campaignID], userID)
	s.counters[campaignID]++
	return true, s.counters[campaignID], nil
}

func (s *fakeHoldStore) Confirm(_ context.Context, campaignID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holders[campaignID][userID] {
		return false, nil
	}
	delete(s.holders[campaignID], userID)
	return true, nil
}

func (s *fakeHoldStore) Restore(_ context.Context, campaignID, userID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[campaignID][userID] = true
	return nil
}

func (s *fakeHoldStore) Remaining(_ context.Context, campaignID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[campaignID], nil
}

func (s *fakeHoldStore) ActiveHoldCount(_ context.Context, campaignID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.holders[campaignID])), nil
}

func (s *fakeHoldStore) SubscribeExpirations(context.Context) (<-chan string, error) {
	return s.expiry, nil
}

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

func newFakeCampaignRepo(campaigns ...*domain.Campaign) *fakeCampaignRepo {
	repo := &fakeCampaignRepo{campaigns: make(map[string]*domain.Campaign)}
	for _, c := range campaigns {
		copied := *c
		repo.campaigns[c.ID] = &copied
	}
	return repo
}

func (r *fakeCampaignRepo) Create(_ context.Context, campaign *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *campaign
	r.campaigns[campaign.ID] = &copied
	return nil
}

func (r *fakeCampaignRepo) FindByID(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	copied := *campaign
	return &copied, nil
}

func (r *fakeCampaignRepo) FindDue(_ context.Context, now time.Time, limit int) ([]*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.Campaign
	for _, c := range r.campaigns {
		if c.Status == domain.StatusOpen && !now.Before(c.EndsAt) && len(due) < limit {
			copied := *c
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (r *fakeCampaignRepo) FindSettling(_ context.Context, limit int) ([]*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var settling []*domain.Campaign
	for _, c := range r.campaigns {
		if c.Status == domain.StatusSettling && len(settling) < limit {
			copied := *c
			settling = append(settling, &copied)
		}
	}
	return settling, nil
}

func (r *fakeCampaignRepo) TransitionStatus(_ context.Context, id string, from, to domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return false, domain.ErrCampaignNotFound
	}
	if campaign.Status != from {
		return false, nil
	}
	campaign.Status = to
	return true, nil
}

func (r *fakeCampaignRepo) FindUnannounced(_ context.Context, limit int) ([]*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Campaign
	for _, c := range r.campaigns {
		if c.Status.Terminal() && c.OutcomePublishedAt == nil && len(out) < limit {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) MarkOutcomeAnnounced(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return false, domain.ErrCampaignNotFound
	}
	if campaign.OutcomePublishedAt != nil {
		return false, nil
	}
	stamped := at
	campaign.OutcomePublishedAt = &stamped
	return true, nil
}

func (r *fakeCampaignRepo) ClearOutcomeAnnouncement(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	campaign.OutcomePublishedAt = nil
	return nil
}

func (r *fakeCampaignRepo) announcedAt(id string) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id].OutcomePublishedAt
}

func (r *fakeCampaignRepo) status(id string) domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id].Status
}

type fakePaymentRepo struct {
	mu        sync.Mutex
	payments  []*domain.Payment
	createErr error
}

func newFakePaymentRepo(payments ...*domain.Payment) *fakePaymentRepo {
	return &fakePaymentRepo{payments: payments}
}

func (r *fakePaymentRepo) failNextCreate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

func (r *fakePaymentRepo) Create(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		err := r.createErr
		r.createErr = nil
		return err
	}
	copied := *payment
	copied.ID = uint64(len(r.payments) + 1)
	r.payments = append(r.payments, &copied)
	return nil
}

func (r *fakePaymentRepo) ListByCampaign(_ context.Context, campaignID string) ([]*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Payment
	for _, p := range r.payments {
		if p.CampaignID == campaignID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) TotalByCampaign(_ context.Context, campaignID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, p := range r.payments {
		if p.CampaignID == campaignID {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

type fakeTransferRepo struct {
	mu      sync.Mutex
	records map[string]*domain.TransferRecord
}

func newFakeTransferRepo() *fakeTransferRepo {
	return &fakeTransferRepo{records: make(map[string]*domain.TransferRecord)}
}

func (r *fakeTransferRepo) CreateIfAbsent(_ context.Context, record *domain.TransferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.IdempotencyKey]; exists {
		return nil
	}
	copied := *record
	copied.ID = uint64(len(r.records) + 1)
	r.records[record.IdempotencyKey] = &copied
	return nil
}

func (r *fakeTransferRepo) ListPendingDue(_ context.Context, now time.Time, limit int) ([]*domain.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.TransferRecord
	for _, rec := range r.records {
		if rec.Outcome == domain.TransferPending && !now.Before(rec.NextAttemptAt) && len(due) < limit {
			copied := *rec
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (r *fakeTransferRepo) ListByCampaign(_ context.Context, campaignID string) ([]*domain.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TransferRecord
	for _, rec := range r.records {
		if rec.CampaignID == campaignID {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeTransferRepo) CountNonTerminal(_ context.Context, campaignID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, rec := range r.records {
		if rec.CampaignID == campaignID && rec.Outcome == domain.TransferPending {
			count++
		}
	}
	return count, nil
}

func (r *fakeTransferRepo) Update(_ context.Context, record *domain.TransferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.records[record.IdempotencyKey]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	existing.Outcome = record.Outcome
	existing.Attempts = record.Attempts
	existing.NextAttemptAt = record.NextAttemptAt
	existing.LastError = record.LastError
	existing.UpdatedAt = record.UpdatedAt
	return nil
}

func (r *fakeTransferRepo) byKind(kind domain.TransferKind) []*domain.TransferRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TransferRecord
	for _, rec := range r.records {
		if rec.Kind == kind {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out
}

type fakeEventPublisher struct {
	mu              sync.Mutex
	scoreUpdates    []*domain.ScoreUpdateRequested
	accountRequests []*domain.AccountCreationRequested
	outcomes        []*domain.SettlementOutcome
	failures        []*domain.TransferFailedEvent
	outcomeErr      error
}

func newFakeEventPublisher() *fakeEventPublisher { return &fakeEventPublisher{} }

func (p *fakeEventPublisher) PublishAccountCreationRequested(_ context.Context, e *domain.AccountCreationRequested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountRequests = append(p.accountRequests, e)
	return nil
}

func (p *fakeEventPublisher) PublishScoreUpdateRequested(_ context.Context, e *domain.ScoreUpdateRequested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scoreUpdates = append(p.scoreUpdates, e)
	return nil
}

func (p *fakeEventPublisher) failNextOutcome(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomeErr = err
}

func (p *fakeEventPublisher) PublishSettlementOutcome(_ context.Context, e *domain.SettlementOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outcomeErr != nil {
		err := p.outcomeErr
		p.outcomeErr = nil
		return err
	}
	p.outcomes = append(p.outcomes, e)
	return nil
}

func (p *fakeEventPublisher) PublishTransferFailed(_ context.Context, e *domain.TransferFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, e)
	return nil
}

func (p *fakeEventPublisher) outcomeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outcomes)
}

// fakeGateway scripts the banking API's answers per idempotency key and
// counts how often each key is actually sent.
type fakeGateway struct {
	mu      sync.Mutex
	results map[string][]gatewayAnswer
	calls   map[string]int
	fallbackStatus port.TransferStatus
}

type gatewayAnswer struct {
	result port.TransferResult
	err    error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		results:        make(map[string][]gatewayAnswer),
		calls:          make(map[string]int),
		fallbackStatus: port.TransferStatusSucceeded,
	}
}

func (g *fakeGateway) script(key string, answers ...gatewayAnswer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[key] = answers
}

func (g *fakeGateway) Transfer(_ context.Context, req port.TransferRequest) (port.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[req.IdempotencyKey]++
	if answers := g.results[req.IdempotencyKey]; len(answers) > 0 {
		answer := answers[0]
		g.results[req.IdempotencyKey] = answers[1:]
		return answer.result, answer.err
	}
	return port.TransferResult{Status: g.fallbackStatus}, nil
}

func (g *fakeGateway) callCount(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[key]
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.calls {
		total += n
	}
	return total
}
