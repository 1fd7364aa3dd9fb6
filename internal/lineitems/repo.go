package lineitems

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
)

// Repository handles line item persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.QuoteLineItem) error
	Update(ctx context.Context, item *models.QuoteLineItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error)
	ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a line item repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.QuoteLineItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) Update(ctx context.Context, item *models.QuoteLineItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.QuoteLineItem{}).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error) {
	var item models.QuoteLineItem
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error) {
	var items []models.QuoteLineItem
	if err := r.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
