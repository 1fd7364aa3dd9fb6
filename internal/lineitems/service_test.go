package lineitems

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stonebridge-contracting/stonebridge-backend/internal/quotes"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/pagination"
)

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRepo struct {
	createFn func(ctx context.Context, item *models.QuoteLineItem) error
	updateFn func(ctx context.Context, item *models.QuoteLineItem) error
	deleteFn func(ctx context.Context, id uuid.UUID) error
	findFn   func(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error)
	listFn   func(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error)
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) Create(ctx context.Context, item *models.QuoteLineItem) error {
	if s.createFn != nil {
		return s.createFn(ctx, item)
	}
	return nil
}
func (s *stubRepo) Update(ctx context.Context, item *models.QuoteLineItem) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, item)
	}
	return nil
}
func (s *stubRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}
func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return nil, nil
}
func (s *stubRepo) ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error) {
	if s.listFn != nil {
		return s.listFn(ctx, quoteID)
	}
	return nil, nil
}

type stubQuotesRepo struct {
	quote   *models.Quote
	updates int
}

func (s *stubQuotesRepo) WithTx(tx *gorm.DB) quotes.Repository { return s }
func (s *stubQuotesRepo) Create(ctx context.Context, quote *models.Quote) error {
	return nil
}
func (s *stubQuotesRepo) Update(ctx context.Context, quote *models.Quote) error {
	s.updates++
	return nil
}
func (s *stubQuotesRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	return s.quote, nil
}
func (s *stubQuotesRepo) FindByAccessToken(ctx context.Context, token string) (*models.Quote, error) {
	return nil, nil
}
func (s *stubQuotesRepo) List(ctx context.Context, query quotes.ListQuery) ([]models.Quote, *pagination.Cursor, error) {
	return nil, nil, nil
}
func (s *stubQuotesRepo) CreateResponse(ctx context.Context, response *models.QuoteResponse) error {
	return nil
}
func (s *stubQuotesRepo) DeleteLineItems(ctx context.Context, quoteID uuid.UUID) error { return nil }
func (s *stubQuotesRepo) DeleteResponses(ctx context.Context, quoteID uuid.UUID) error { return nil }
func (s *stubQuotesRepo) Delete(ctx context.Context, quoteID uuid.UUID) error          { return nil }

type stubRecomputer struct {
	calls []uuid.UUID
	err   error
}

func (s *stubRecomputer) RecomputeTotals(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	s.calls = append(s.calls, quoteID)
	return nil, s.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, repo Repository, quotesRepo quotes.Repository, recompute *stubRecomputer) Service {
	t.Helper()
	if recompute == nil {
		recompute = &stubRecomputer{}
	}
	svc, err := NewService(stubTx{}, repo, quotesRepo, recompute, quietLogger())
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreateRejectsNegativeQuantity(t *testing.T) {
	quoteID := uuid.New()
	quotesRepo := &stubQuotesRepo{quote: &models.Quote{ID: quoteID, Status: enums.QuoteStatusDraft}}
	svc := newTestService(t, &stubRepo{}, quotesRepo, nil)

	_, err := svc.Create(context.Background(), quoteID, CreateLineItemInput{
		Category:  "labor",
		Quantity:  dec("-1"),
		UnitPrice: dec("10"),
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed.Message() != "quantity must be non-negative" {
		t.Fatalf("error must name the offending field, got %q", typed.Message())
	}
}

func TestCreateRejectsMissingCategory(t *testing.T) {
	quoteID := uuid.New()
	svc := newTestService(t, &stubRepo{}, &stubQuotesRepo{}, nil)

	_, err := svc.Create(context.Background(), quoteID, CreateLineItemInput{
		Quantity:  dec("1"),
		UnitPrice: dec("10"),
	})
	if err == nil {
		t.Fatal("expected validation error for missing category")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsFrozenQuote(t *testing.T) {
	quoteID := uuid.New()
	quotesRepo := &stubQuotesRepo{quote: &models.Quote{ID: quoteID, Status: enums.QuoteStatusAccepted}}
	svc := newTestService(t, &stubRepo{}, quotesRepo, nil)

	_, err := svc.Create(context.Background(), quoteID, CreateLineItemInput{
		Category:  "labor",
		Quantity:  dec("1"),
		UnitPrice: dec("10"),
	})
	if err == nil {
		t.Fatal("expected state conflict for frozen quote")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCreateComputesTotalAndRecomputes(t *testing.T) {
	quoteID := uuid.New()
	quotesRepo := &stubQuotesRepo{quote: &models.Quote{ID: quoteID, Status: enums.QuoteStatusDraft}}
	recompute := &stubRecomputer{}
	var created *models.QuoteLineItem
	repo := &stubRepo{
		createFn: func(ctx context.Context, item *models.QuoteLineItem) error {
			created = item
			return nil
		},
	}
	svc := newTestService(t, repo, quotesRepo, recompute)

	item, err := svc.Create(context.Background(), quoteID, CreateLineItemInput{
		Category:  "materials",
		Quantity:  dec("2"),
		UnitPrice: dec("100"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("item not persisted")
	}
	if !item.TotalPrice.Equal(dec("200")) {
		t.Fatalf("expected total 200, got %s", item.TotalPrice)
	}
	if len(recompute.calls) != 1 || recompute.calls[0] != quoteID {
		t.Fatalf("totals recompute not triggered for owner, calls %v", recompute.calls)
	}
	if quotesRepo.updates != 1 {
		t.Fatalf("stale flag not written, updates %d", quotesRepo.updates)
	}
}

func TestUpdateRecomputesOwnerTotals(t *testing.T) {
	quoteID := uuid.New()
	itemID := uuid.New()
	quotesRepo := &stubQuotesRepo{quote: &models.Quote{ID: quoteID, Status: enums.QuoteStatusSent}}
	recompute := &stubRecomputer{}
	repo := &stubRepo{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error) {
			return &models.QuoteLineItem{
				ID:        itemID,
				QuoteID:   quoteID,
				Category:  "labor",
				Quantity:  dec("1"),
				UnitPrice: dec("50"),
			}, nil
		},
	}
	svc := newTestService(t, repo, quotesRepo, recompute)

	qty := dec("3")
	item, err := svc.Update(context.Background(), itemID, UpdateLineItemInput{Quantity: &qty})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !item.TotalPrice.Equal(dec("150")) {
		t.Fatalf("expected total 150, got %s", item.TotalPrice)
	}
	if len(recompute.calls) != 1 {
		t.Fatal("totals recompute not triggered")
	}
}

func TestDeleteRecomputesOwnerTotals(t *testing.T) {
	quoteID := uuid.New()
	itemID := uuid.New()
	quotesRepo := &stubQuotesRepo{quote: &models.Quote{ID: quoteID, Status: enums.QuoteStatusDraft}}
	recompute := &stubRecomputer{}
	repo := &stubRepo{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error) {
			return &models.QuoteLineItem{ID: itemID, QuoteID: quoteID}, nil
		},
	}
	svc := newTestService(t, repo, quotesRepo, recompute)

	if err := svc.Delete(context.Background(), itemID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recompute.calls) != 1 || recompute.calls[0] != quoteID {
		t.Fatal("totals recompute not triggered after delete")
	}
}

func TestDeleteMissingItem(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, &stubQuotesRepo{}, nil)

	err := svc.Delete(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected not found")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
