package infrastructure

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cinemoa/internal/service/funding/domain"
)

// GormPaymentRepository is the MySQL implementation of
// domain.PaymentRepository.
type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	model := toPaymentModel(payment)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	payment.ID = model.ID
	return nil
}

func (r *GormPaymentRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*domain.Payment, error) {
	var models []PaymentModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("paid_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	payments := make([]*domain.Payment, 0, len(models))
	for i := range models {
		payments = append(payments, toDomainPayment(&models[i]))
	}
	return payments, nil
}

func (r *GormPaymentRepository) TotalByCampaign(ctx context.Context, campaignID string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Select("SUM(amount)").
		Where("campaign_id = ?", campaignID).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
