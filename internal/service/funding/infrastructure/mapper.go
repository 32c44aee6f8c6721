package infrastructure

import (
	"cinemoa/internal/service/funding/domain"
)

func toDomainCampaign(m *CampaignModel) *domain.Campaign {
	return &domain.Campaign{
		ID:           m.ID,
		Title:        m.Title,
		TargetSeats:  m.TargetSeats,
		TargetAmount: m.TargetAmount,
		SeatPrice:    m.SeatPrice,
		StartsAt:     m.StartsAt,
		EndsAt:       m.EndsAt,
		Status:             domain.Status(m.Status),
		VenueAccount:       m.VenueAccount,
		OutcomeRule:        m.OutcomeRule,
		OutcomePublishedAt: m.OutcomePublishedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func toCampaignModel(c *domain.Campaign) *CampaignModel {
	return &CampaignModel{
		ID:           c.ID,
		Title:        c.Title,
		TargetSeats:  c.TargetSeats,
		TargetAmount: c.TargetAmount,
		SeatPrice:    c.SeatPrice,
		StartsAt:     c.StartsAt,
		EndsAt:       c.EndsAt,
		Status:             string(c.Status),
		VenueAccount:       c.VenueAccount,
		OutcomeRule:        c.OutcomeRule,
		OutcomePublishedAt: c.OutcomePublishedAt,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func toDomainPayment(m *PaymentModel) *domain.Payment {
	return &domain.Payment{
		ID:            m.ID,
		CampaignID:    m.CampaignID,
		UserID:        m.UserID,
		Amount:        m.Amount,
		RefundAccount: m.RefundAccount,
		PaidAt:        m.PaidAt,
	}
}

func toPaymentModel(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:            p.ID,
		CampaignID:    p.CampaignID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		RefundAccount: p.RefundAccount,
		PaidAt:        p.PaidAt,
	}
}

func toDomainTransferRecord(m *TransferRecordModel) *domain.TransferRecord {
	return &domain.TransferRecord{
		ID:             m.ID,
		CampaignID:     m.CampaignID,
		Kind:           domain.TransferKind(m.Kind),
		Beneficiary:    m.Beneficiary,
		DestAccount:    m.DestAccount,
		Amount:         m.Amount,
		IdempotencyKey: m.IdempotencyKey,
		Outcome:        domain.TransferOutcome(m.Outcome),
		Attempts:       m.Attempts,
		NextAttemptAt:  m.NextAttemptAt,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toTransferRecordModel(r *domain.TransferRecord) *TransferRecordModel {
	return &TransferRecordModel{
		ID:             r.ID,
		CampaignID:     r.CampaignID,
		Kind:           string(r.Kind),
		Beneficiary:    r.Beneficiary,
		DestAccount:    r.DestAccount,
		Amount:         r.Amount,
		IdempotencyKey: r.IdempotencyKey,
		Outcome:        string(r.Outcome),
		Attempts:       r.Attempts,
		NextAttemptAt:  r.NextAttemptAt,
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
