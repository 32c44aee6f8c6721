package infrastructure

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cinemoa/internal/service/funding/domain"
)

// GormTransferRepository is the MySQL implementation of
// domain.TransferRecordRepository.
type GormTransferRepository struct {
	db *gorm.DB
}

func NewGormTransferRepository(db *gorm.DB) *GormTransferRepository {
	return &GormTransferRepository{db: db}
}

// CreateIfAbsent relies on the unique idempotency-key index: a conflicting
// insert is swallowed, never an error, so settlement preparation can replay.
func (r *GormTransferRepository) CreateIfAbsent(ctx context.Context, record *domain.TransferRecord) error {
	model := toTransferRecordModel(record)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	record.ID = model.ID
	return nil
}

func (r *GormTransferRepository) ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*domain.TransferRecord, error) {
	var models []TransferRecordModel
	err := r.db.WithContext(ctx).
		Where("outcome = ? AND next_attempt_at <= ?", string(domain.TransferPending), now).
		Order("next_attempt_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainTransferRecords(models), nil
}

func (r *GormTransferRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*domain.TransferRecord, error) {
	var models []TransferRecordModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainTransferRecords(models), nil
}

func (r *GormTransferRepository) CountNonTerminal(ctx context.Context, campaignID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&TransferRecordModel{}).
		Where("campaign_id = ? AND outcome = ?", campaignID, string(domain.TransferPending)).
		Count(&count).Error
	return count, err
}

func (r *GormTransferRepository) Update(ctx context.Context, record *domain.TransferRecord) error {
	return r.db.WithContext(ctx).
		Model(&TransferRecordModel{}).
		Where("idempotency_key = ?", record.IdempotencyKey).
		Updates(map[string]interface{}{
			"outcome":         string(record.Outcome),
			"attempts":        record.Attempts,
			"next_attempt_at": record.NextAttemptAt,
			"last_error":      record.LastError,
			"updated_at":      record.UpdatedAt,
		}).Error
}

func toDomainTransferRecords(models []TransferRecordModel) []*domain.TransferRecord {
	records := make([]*domain.TransferRecord, 0, len(models))
	for i := range models {
		records = append(records, toDomainTransferRecord(&models[i]))
	}
	return records
}
