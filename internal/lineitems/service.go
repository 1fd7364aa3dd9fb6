package lineitems

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stonebridge-contracting/stonebridge-backend/internal/quotes"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type totalsRecomputer interface {
	RecomputeTotals(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error)
}

// Service owns line item mutations. Every successful write triggers the
// owning quote's totals recomputation so persisted totals never stay stale.
type Service interface {
	Create(ctx context.Context, quoteID uuid.UUID, input CreateLineItemInput) (*models.QuoteLineItem, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateLineItemInput) (*models.QuoteLineItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error)
}

// CreateLineItemInput captures the staff-supplied fields for a new line item.
type CreateLineItemInput struct {
	Category           string
	Description        *string
	Quantity           decimal.Decimal
	Unit               *string
	UnitPrice          decimal.Decimal
	DiscountPercentage *decimal.Decimal
	DiscountAmount     *decimal.Decimal
}

// UpdateLineItemInput applies a partial edit. Nil fields are untouched.
type UpdateLineItemInput struct {
	Category           *string
	Description        *string
	Quantity           *decimal.Decimal
	Unit               *string
	UnitPrice          *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	DiscountAmount     *decimal.Decimal
}

type service struct {
	tx         txRunner
	repo       Repository
	quotesRepo quotes.Repository
	recompute  totalsRecomputer
	logg       *logger.Logger
}

// NewService builds the line item service. The recomputer is mandatory: line
// item writes without a totals recomputation would leave quote totals stale.
func NewService(
	tx txRunner,
	repo Repository,
	quotesRepo quotes.Repository,
	recompute totalsRecomputer,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("line item repository required")
	}
	if quotesRepo == nil {
		return nil, fmt.Errorf("quote repository required")
	}
	if recompute == nil {
		return nil, fmt.Errorf("totals recomputer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:         tx,
		repo:       repo,
		quotesRepo: quotesRepo,
		recompute:  recompute,
		logg:       logg,
	}, nil
}

func (s *service) Create(ctx context.Context, quoteID uuid.UUID, input CreateLineItemInput) (*models.QuoteLineItem, error) {
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	if err := validateNonNegative("quantity", &input.Quantity); err != nil {
		return nil, err
	}
	if err := validateNonNegative("unit_price", &input.UnitPrice); err != nil {
		return nil, err
	}
	if err := validateNonNegative("discount_percentage", input.DiscountPercentage); err != nil {
		return nil, err
	}
	if err := validateNonNegative("discount_amount", input.DiscountAmount); err != nil {
		return nil, err
	}

	item := &models.QuoteLineItem{
		QuoteID:     quoteID,
		Category:    category,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
	}
	if input.Unit != nil && strings.TrimSpace(*input.Unit) != "" {
		item.Unit = strings.TrimSpace(*input.Unit)
	} else {
		item.Unit = "unit"
	}
	if input.DiscountPercentage != nil {
		item.DiscountPercentage = *input.DiscountPercentage
	}
	if input.DiscountAmount != nil {
		item.DiscountAmount = *input.DiscountAmount
	}
	item.TotalPrice = quotes.LineItemTotal(item.Quantity, item.UnitPrice, item.DiscountPercentage, item.DiscountAmount)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		quote, err := s.loadMutableQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, item); err != nil {
			return err
		}
		return s.markStale(ctx, tx, quote)
	})
	if err != nil {
		return nil, err
	}

	s.recomputeOwner(ctx, quoteID)
	return item, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateLineItemInput) (*models.QuoteLineItem, error) {
	if err := validateNonNegative("quantity", input.Quantity); err != nil {
		return nil, err
	}
	if err := validateNonNegative("unit_price", input.UnitPrice); err != nil {
		return nil, err
	}
	if err := validateNonNegative("discount_percentage", input.DiscountPercentage); err != nil {
		return nil, err
	}
	if err := validateNonNegative("discount_amount", input.DiscountAmount); err != nil {
		return nil, err
	}

	var updated *models.QuoteLineItem
	var quoteID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "line item not found")
		}
		quoteID = item.QuoteID

		quote, err := s.loadMutableQuote(ctx, tx, item.QuoteID)
		if err != nil {
			return err
		}

		if input.Category != nil {
			category := strings.TrimSpace(*input.Category)
			if category == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "category is required")
			}
			item.Category = category
		}
		if input.Description != nil {
			item.Description = input.Description
		}
		if input.Quantity != nil {
			item.Quantity = *input.Quantity
		}
		if input.Unit != nil && strings.TrimSpace(*input.Unit) != "" {
			item.Unit = strings.TrimSpace(*input.Unit)
		}
		if input.UnitPrice != nil {
			item.UnitPrice = *input.UnitPrice
		}
		if input.DiscountPercentage != nil {
			item.DiscountPercentage = *input.DiscountPercentage
		}
		if input.DiscountAmount != nil {
			item.DiscountAmount = *input.DiscountAmount
		}
		item.TotalPrice = quotes.LineItemTotal(item.Quantity, item.UnitPrice, item.DiscountPercentage, item.DiscountAmount)

		if err := repo.Update(ctx, item); err != nil {
			return err
		}
		updated = item
		return s.markStale(ctx, tx, quote)
	})
	if err != nil {
		return nil, err
	}

	s.recomputeOwner(ctx, quoteID)
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	var quoteID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "line item not found")
		}
		quoteID = item.QuoteID

		quote, err := s.loadMutableQuote(ctx, tx, item.QuoteID)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.markStale(ctx, tx, quote)
	})
	if err != nil {
		return err
	}

	s.recomputeOwner(ctx, quoteID)
	return nil
}

func (s *service) List(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error) {
	return s.repo.ListByQuote(ctx, quoteID)
}

func (s *service) loadMutableQuote(ctx context.Context, tx *gorm.DB, quoteID uuid.UUID) (*models.Quote, error) {
	quote, err := s.quotesRepo.WithTx(tx).FindByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	if quote.Status == enums.QuoteStatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "accepted quotes are frozen")
	}
	return quote, nil
}

// markStale flags the owning quote inside the mutation transaction so the
// read path can repair totals if the post-commit recompute fails.
func (s *service) markStale(ctx context.Context, tx *gorm.DB, quote *models.Quote) error {
	quote.TotalsStale = true
	return s.quotesRepo.WithTx(tx).Update(ctx, quote)
}

func (s *service) recomputeOwner(ctx context.Context, quoteID uuid.UUID) {
	if _, err := s.recompute.RecomputeTotals(ctx, quoteID); err != nil {
		s.logg.Error(s.logg.WithQuoteID(ctx, quoteID.String()), "recomputing quote totals after line item write", err)
	}
}

func validateNonNegative(field string, value *decimal.Decimal) error {
	if value != nil && value.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be non-negative", field))
	}
	return nil
}
