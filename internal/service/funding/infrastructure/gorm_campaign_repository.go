package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"cinemoa/internal/service/funding/domain"
)

// GormCampaignRepository is the MySQL implementation of
// domain.CampaignRepository.
type GormCampaignRepository struct {
	db *gorm.DB
}

func NewGormCampaignRepository(db *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: db}
}

func (r *GormCampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	return r.db.WithContext(ctx).Create(toCampaignModel(campaign)).Error
}

func (r *GormCampaignRepository) FindByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var model CampaignModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, err
	}
	return toDomainCampaign(&model), nil
}

func (r *GormCampaignRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Campaign, error) {
	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND ends_at <= ?", string(domain.StatusOpen), now).
		Order("ends_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainCampaigns(models), nil
}

func (r *GormCampaignRepository) FindSettling(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.StatusSettling)).
		Order("ends_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainCampaigns(models), nil
}

// TransitionStatus is a compare-and-set on the status column. The WHERE
// clause on the current status serializes concurrent transitions through
// the campaign's own row.
func (r *GormCampaignRepository) TransitionStatus(ctx context.Context, id string, from, to domain.Status) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormCampaignRepository) FindUnannounced(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND outcome_published_at IS NULL",
			[]string{string(domain.StatusSucceeded), string(domain.StatusFailed)}).
		Order("ends_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainCampaigns(models), nil
}

// MarkOutcomeAnnounced is the same compare-and-set shape as TransitionStatus,
// with the NULL announcement column as the guard.
func (r *GormCampaignRepository) MarkOutcomeAnnounced(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND outcome_published_at IS NULL", id).
		Update("outcome_published_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormCampaignRepository) ClearOutcomeAnnouncement(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ?", id).
		Update("outcome_published_at", nil).Error
}

func toDomainCampaigns(models []CampaignModel) []*domain.Campaign {
	campaigns := make([]*domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, toDomainCampaign(&models[i]))
	}
	return campaigns
}
