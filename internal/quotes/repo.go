package quotes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/pagination"
)

// Repository handles quote persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, quote *models.Quote) error
	Update(ctx context.Context, quote *models.Quote) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	FindByAccessToken(ctx context.Context, token string) (*models.Quote, error)
	List(ctx context.Context, query ListQuery) ([]models.Quote, *pagination.Cursor, error)
	CreateResponse(ctx context.Context, response *models.QuoteResponse) error
	DeleteLineItems(ctx context.Context, quoteID uuid.UUID) error
	DeleteResponses(ctx context.Context, quoteID uuid.UUID) error
	Delete(ctx context.Context, quoteID uuid.UUID) error
}

// ListQuery configures quote list queries.
type ListQuery struct {
	Status *enums.QuoteStatus
	Params pagination.Params
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a quote repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *repository) Update(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Save(quote).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("id = ?", id).
		First(&quote).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &quote, nil
}

func (r *repository) FindByAccessToken(ctx context.Context, token string) (*models.Quote, error) {
	if token == "" {
		return nil, nil
	}
	var quote models.Quote
	if err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("access_token = ?", token).
		First(&quote).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &quote, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Quote, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(query.Params.Limit)

	q := r.db.WithContext(ctx).Model(&models.Quote{})
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}

	cursor, err := pagination.ParseCursor(query.Params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var quotes []models.Quote
	if err := q.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(query.Params.Limit)).
		Find(&quotes).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(quotes) > limit {
		quotes = quotes[:limit]
		last := quotes[len(quotes)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return quotes, next, nil
}

func (r *repository) CreateResponse(ctx context.Context, response *models.QuoteResponse) error {
	return r.db.WithContext(ctx).Create(response).Error
}

func (r *repository) DeleteLineItems(ctx context.Context, quoteID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Delete(&models.QuoteLineItem{}).Error
}

func (r *repository) DeleteResponses(ctx context.Context, quoteID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Delete(&models.QuoteResponse{}).Error
}

func (r *repository) Delete(ctx context.Context, quoteID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", quoteID).
		Delete(&models.Quote{}).Error
}
