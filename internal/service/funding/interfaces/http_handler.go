package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"cinemoa/internal/pkg/logger"
	"cinemoa/internal/service/funding/application"
	"cinemoa/internal/service/funding/domain"
)

const serviceName = "funding-engine"

// FundingHandler exposes the hold and payment paths over HTTP. It stays
// thin: decode, delegate to the application services, map errors to status
// codes.
type FundingHandler struct {
	holds     *application.HoldService
	lifecycle *application.LifecycleService
}

func NewFundingHandler(holds *application.HoldService, lifecycle *application.LifecycleService) *FundingHandler {
	return &FundingHandler{holds: holds, lifecycle: lifecycle}
}

// RegisterRoutes wires all routes onto the ServeMux.
func (h *FundingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /campaigns", h.createCampaign)
	mux.HandleFunc("GET /campaigns/{id}", h.getCampaign)
	mux.HandleFunc("POST /campaigns/{id}/hold", h.acquireHold)
	mux.HandleFunc("POST /campaigns/{id}/release", h.releaseHold)
	mux.HandleFunc("POST /campaigns/{id}/pay", h.confirmPayment)
}

type createCampaignRequest struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	TargetSeats  int64  `json:"targetSeats"`
	SeatPrice    string `json:"seatPrice"`
	TargetAmount string `json:"targetAmount"`
	StartsAt     string `json:"startsAt"`
	EndsAt       string `json:"endsAt"`
	VenueAccount string `json:"venueAccount"`
}

func (h *FundingHandler) createCampaign(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "api.CreateCampaign")
	defer span.End()

	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	startsAt, err1 := time.Parse(time.RFC3339, req.StartsAt)
	endsAt, err2 := time.Parse(time.RFC3339, req.EndsAt)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "timestamps must be RFC3339")
		return
	}
	seatPrice, err := decimal.NewFromString(req.SeatPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seat price")
		return
	}
	targetAmount := decimal.Zero
	if req.TargetAmount != "" {
		if targetAmount, err = decimal.NewFromString(req.TargetAmount); err != nil {
			writeError(w, http.StatusBadRequest, "invalid target amount")
			return
		}
	}

	campaign, err := domain.NewCampaign(req.ID, req.Title, req.TargetSeats, seatPrice, targetAmount, startsAt, endsAt, req.VenueAccount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.lifecycle.CreateCampaign(ctx, campaign); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to create campaign")
		writeError(w, http.StatusInternalServerError, "could not create campaign")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": campaign.ID, "status": string(campaign.Status)})
}

func (h *FundingHandler) getCampaign(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "api.GetCampaign")
	defer span.End()

	campaign, remaining, err := h.lifecycle.Campaign(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             campaign.ID,
		"title":          campaign.Title,
		"status":         string(campaign.Status),
		"targetSeats":    campaign.TargetSeats,
		"remainingSeats": remaining,
		"filledSeats":    campaign.FilledSeats(remaining),
		"seatPrice":      campaign.SeatPrice.String(),
		"startsAt":       campaign.StartsAt.Format(time.RFC3339),
		"endsAt":         campaign.EndsAt.Format(time.RFC3339),
	})
}

type seatRequest struct {
	UserID        string `json:"userId"`
	RefundAccount string `json:"refundAccount,omitempty"`
	Amount        string `json:"amount,omitempty"`
}

func (h *FundingHandler) acquireHold(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "api.AcquireHold")
	defer span.End()

	var req seatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	hold, err := h.holds.Acquire(ctx, r.PathValue("id"), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"campaignId": hold.CampaignID,
		"userId":     hold.UserID,
		"expiresAt":  hold.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *FundingHandler) releaseHold(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "api.ReleaseHold")
	defer span.End()

	var req seatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := h.holds.Release(ctx, r.PathValue("id"), req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (h *FundingHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "api.ConfirmPayment")
	defer span.End()

	var req seatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "a positive amount is required")
		return
	}

	if err := h.holds.ConfirmPayment(ctx, r.PathValue("id"), req.UserID, req.RefundAccount, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}

func (h *FundingHandler) start(r *http.Request, spanName string) (context.Context, trace.Span) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return otel.Tracer(serviceName).Start(ctx, spanName)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCampaignNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyHolding), errors.Is(err, domain.ErrNotHolding):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNoRemainingSeats):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrCampaignClosed):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
