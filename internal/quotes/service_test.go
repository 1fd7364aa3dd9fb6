package quotes

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/config"
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
	createFn         func(ctx context.Context, quote *models.Quote) error
	updateFn         func(ctx context.Context, quote *models.Quote) error
	findByIDFn       func(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	findByTokenFn    func(ctx context.Context, token string) (*models.Quote, error)
	createResponseFn func(ctx context.Context, response *models.QuoteResponse) error
	deleteItemsFn    func(ctx context.Context, quoteID uuid.UUID) error
	deleteRespFn     func(ctx context.Context, quoteID uuid.UUID) error
	deleteFn         func(ctx context.Context, quoteID uuid.UUID) error
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) Create(ctx context.Context, quote *models.Quote) error {
	if s.createFn != nil {
		return s.createFn(ctx, quote)
	}
	return nil
}
func (s *stubRepo) Update(ctx context.Context, quote *models.Quote) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, quote)
	}
	return nil
}
func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (s *stubRepo) FindByAccessToken(ctx context.Context, token string) (*models.Quote, error) {
	if s.findByTokenFn != nil {
		return s.findByTokenFn(ctx, token)
	}
	return nil, nil
}
func (s *stubRepo) List(ctx context.Context, query ListQuery) ([]models.Quote, *pagination.Cursor, error) {
	return nil, nil, nil
}
func (s *stubRepo) CreateResponse(ctx context.Context, response *models.QuoteResponse) error {
	if s.createResponseFn != nil {
		return s.createResponseFn(ctx, response)
	}
	return nil
}
func (s *stubRepo) DeleteLineItems(ctx context.Context, quoteID uuid.UUID) error {
	if s.deleteItemsFn != nil {
		return s.deleteItemsFn(ctx, quoteID)
	}
	return nil
}
func (s *stubRepo) DeleteResponses(ctx context.Context, quoteID uuid.UUID) error {
	if s.deleteRespFn != nil {
		return s.deleteRespFn(ctx, quoteID)
	}
	return nil
}
func (s *stubRepo) Delete(ctx context.Context, quoteID uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, quoteID)
	}
	return nil
}

type stubMailer struct {
	calls int
	err   error
}

func (s *stubMailer) Send(ctx context.Context, to, subject, body string) error {
	s.calls++
	return s.err
}

type stubChat struct {
	calls int
	err   error
}

func (s *stubChat) CreateConversation(ctx context.Context, quoteNumber, customerName, customerEmail string) error {
	s.calls++
	return s.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, repo Repository, mail *stubMailer, chat *stubChat) Service {
	t.Helper()
	if mail == nil {
		mail = &stubMailer{}
	}
	if chat == nil {
		chat = &stubChat{}
	}
	svc, err := NewService(stubTx{}, repo, mail, chat, quietLogger(), config.QuotesConfig{Currency: "usd", ValidityDays: 30})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func TestCreateQuoteRejectsSplitNotSummingTo100(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, nil, nil)

	down := decimal.NewFromInt(50)
	milestone := decimal.NewFromInt(40)
	final := decimal.NewFromInt(30)

	_, err := svc.Create(context.Background(), CreateQuoteInput{
		CustomerName:          "Dana Fields",
		DownPaymentPercentage: &down,
		MilestonePercentage:   &milestone,
		FinalPercentage:       &final,
	})
	if err == nil {
		t.Fatal("expected validation error for split not summing to 100")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateQuoteDefaults(t *testing.T) {
	var created *models.Quote
	repo := &stubRepo{
		createFn: func(ctx context.Context, quote *models.Quote) error {
			created = quote
			return nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	quote, err := svc.Create(context.Background(), CreateQuoteInput{CustomerName: "Dana Fields"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("quote was not persisted")
	}
	if quote.Status != enums.QuoteStatusDraft {
		t.Fatalf("expected draft status, got %s", quote.Status)
	}
	if quote.AccessToken == "" {
		t.Fatal("access token not generated")
	}
	if quote.QuoteNumber == "" {
		t.Fatal("quote number not generated")
	}
	if !quote.DownPaymentPercentage.Add(quote.MilestonePercentage).Add(quote.FinalPercentage).Equal(decimal.NewFromInt(100)) {
		t.Fatal("default split does not sum to 100")
	}
	if quote.ValidUntil == nil {
		t.Fatal("valid until not set")
	}
}

func TestUpdateRejectsAcceptedQuote(t *testing.T) {
	id := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, got uuid.UUID) (*models.Quote, error) {
			return &models.Quote{ID: id, Status: enums.QuoteStatusAccepted}, nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	name := "New Name"
	_, err := svc.Update(context.Background(), id, UpdateQuoteInput{CustomerName: &name})
	if err == nil {
		t.Fatal("expected state conflict for accepted quote")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSendRequiresCustomerContact(t *testing.T) {
	id := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, got uuid.UUID) (*models.Quote, error) {
			return &models.Quote{ID: id, Status: enums.QuoteStatusDraft, CustomerName: "Dana Fields"}, nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	_, err := svc.Send(context.Background(), id)
	if err == nil {
		t.Fatal("expected validation error for missing email")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendTransitionsDraftAndNotifies(t *testing.T) {
	id := uuid.New()
	var saved *models.Quote
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, got uuid.UUID) (*models.Quote, error) {
			return &models.Quote{
				ID:            id,
				QuoteNumber:   "Q-20250810-AB12CD",
				Status:        enums.QuoteStatusDraft,
				CustomerName:  "Dana Fields",
				CustomerEmail: "dana@example.com",
			}, nil
		},
		updateFn: func(ctx context.Context, quote *models.Quote) error {
			saved = quote
			return nil
		},
	}
	mail := &stubMailer{}
	chat := &stubChat{}
	svc := newTestService(t, repo, mail, chat)

	quote, err := svc.Send(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Status != enums.QuoteStatusSent {
		t.Fatalf("expected sent, got %s", quote.Status)
	}
	if saved == nil || saved.SentAt == nil {
		t.Fatal("sent_at not persisted")
	}
	if mail.calls != 1 {
		t.Fatalf("expected one email, got %d", mail.calls)
	}
	if chat.calls != 1 {
		t.Fatalf("expected one conversation, got %d", chat.calls)
	}
}

func TestSendNotificationFailureDoesNotBlockTransition(t *testing.T) {
	id := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, got uuid.UUID) (*models.Quote, error) {
			return &models.Quote{
				ID:            id,
				Status:        enums.QuoteStatusDraft,
				CustomerName:  "Dana Fields",
				CustomerEmail: "dana@example.com",
			}, nil
		},
	}
	mail := &stubMailer{err: errors.New("smtp down")}
	chat := &stubChat{err: errors.New("chat down")}
	svc := newTestService(t, repo, mail, chat)

	quote, err := svc.Send(context.Background(), id)
	if err != nil {
		t.Fatalf("notification failures must not fail the transition: %v", err)
	}
	if quote.Status != enums.QuoteStatusSent {
		t.Fatalf("expected sent, got %s", quote.Status)
	}
}

func TestSendDeclinedResetsToSent(t *testing.T) {
	id := uuid.New()
	declinedAt := time.Now().Add(-time.Hour)
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, got uuid.UUID) (*models.Quote, error) {
			return &models.Quote{
				ID:            id,
				Status:        enums.QuoteStatusDeclined,
				CustomerName:  "Dana Fields",
				CustomerEmail: "dana@example.com",
				RespondedAt:   &declinedAt,
				ViewedAt:      &declinedAt,
			}, nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	quote, err := svc.Send(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Status != enums.QuoteStatusSent {
		t.Fatalf("expected sent, got %s", quote.Status)
	}
	if quote.RespondedAt != nil || quote.ViewedAt != nil {
		t.Fatal("re-send should reset response and view timestamps")
	}
}

func TestSendRejectsViewedQuote(t *testing.T) {
	id := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, got uuid.UUID) (*models.Quote, error) {
			return &models.Quote{
				ID:            id,
				Status:        enums.QuoteStatusViewed,
				CustomerName:  "Dana Fields",
				CustomerEmail: "dana@example.com",
			}, nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	if _, err := svc.Send(context.Background(), id); err == nil {
		t.Fatal("expected state conflict when re-sending a viewed quote")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRecordViewTransitionsOnce(t *testing.T) {
	firstView := time.Now().Add(-time.Hour).UTC()
	quote := &models.Quote{
		ID:          uuid.New(),
		Status:      enums.QuoteStatusViewed,
		AccessToken: "tok",
		ViewedAt:    &firstView,
	}
	updates := 0
	repo := &stubRepo{
		findByTokenFn: func(ctx context.Context, token string) (*models.Quote, error) {
			return quote, nil
		},
		updateFn: func(ctx context.Context, q *models.Quote) error {
			updates++
			return nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	got, err := svc.RecordView(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ViewedAt == nil || !got.ViewedAt.Equal(firstView) {
		t.Fatal("repeated view must not move viewed_at")
	}
	if updates != 0 {
		t.Fatalf("repeated view should not persist, got %d updates", updates)
	}
}

func TestRecordViewMarksSentQuote(t *testing.T) {
	quote := &models.Quote{ID: uuid.New(), Status: enums.QuoteStatusSent, AccessToken: "tok"}
	repo := &stubRepo{
		findByTokenFn: func(ctx context.Context, token string) (*models.Quote, error) {
			return quote, nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	got, err := svc.RecordView(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != enums.QuoteStatusViewed {
		t.Fatalf("expected viewed, got %s", got.Status)
	}
	if got.ViewedAt == nil {
		t.Fatal("viewed_at not set")
	}
}

func TestRecordViewDraftHiddenFromPublic(t *testing.T) {
	repo := &stubRepo{
		findByTokenFn: func(ctx context.Context, token string) (*models.Quote, error) {
			return &models.Quote{ID: uuid.New(), Status: enums.QuoteStatusDraft, AccessToken: "tok"}, nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	if _, err := svc.RecordView(context.Background(), "tok"); err == nil {
		t.Fatal("expected not found for draft quote")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordResponseDeclineFinalizes(t *testing.T) {
	quote := &models.Quote{ID: uuid.New(), Status: enums.QuoteStatusViewed, AccessToken: "tok"}
	var response *models.QuoteResponse
	repo := &stubRepo{
		findByTokenFn: func(ctx context.Context, token string) (*models.Quote, error) {
			return quote, nil
		},
		createResponseFn: func(ctx context.Context, r *models.QuoteResponse) error {
			response = r
			return nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	msg := "went with another contractor"
	got, err := svc.RecordResponse(context.Background(), "tok", RespondInput{
		Action:      enums.QuoteResponseActionDeclined,
		Message:     &msg,
		RequesterIP: "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != enums.QuoteStatusDeclined {
		t.Fatalf("expected declined, got %s", got.Status)
	}
	if got.RespondedAt == nil {
		t.Fatal("responded_at not set")
	}
	if response == nil || response.Action != enums.QuoteResponseActionDeclined {
		t.Fatal("response row not recorded")
	}
}

func TestRecordResponseAcceptLeavesStatusForConfirmation(t *testing.T) {
	quote := &models.Quote{ID: uuid.New(), Status: enums.QuoteStatusViewed, AccessToken: "tok"}
	repo := &stubRepo{
		findByTokenFn: func(ctx context.Context, token string) (*models.Quote, error) {
			return quote, nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	got, err := svc.RecordResponse(context.Background(), "tok", RespondInput{
		Action:      enums.QuoteResponseActionAccepted,
		RequesterIP: "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != enums.QuoteStatusViewed {
		t.Fatalf("acceptance must not finalize status before payment, got %s", got.Status)
	}
	if got.RespondedAt == nil {
		t.Fatal("responded_at not set")
	}
}

func TestRecordResponseTerminalRejected(t *testing.T) {
	for _, status := range []enums.QuoteStatus{enums.QuoteStatusAccepted, enums.QuoteStatusDeclined} {
		repo := &stubRepo{
			findByTokenFn: func(ctx context.Context, token string) (*models.Quote, error) {
				return &models.Quote{ID: uuid.New(), Status: status, AccessToken: "tok"}, nil
			},
		}
		svc := newTestService(t, repo, nil, nil)

		_, err := svc.RecordResponse(context.Background(), "tok", RespondInput{
			Action: enums.QuoteResponseActionAccepted,
		})
		if err == nil {
			t.Fatalf("expected state conflict for %s quote", status)
		}
		if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
			t.Fatalf("expected state conflict for %s, got %v", status, err)
		}
	}
}

func TestGetRecomputesStaleTotals(t *testing.T) {
	id := uuid.New()
	var saved *models.Quote
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, got uuid.UUID) (*models.Quote, error) {
			return &models.Quote{
				ID:          id,
				Status:      enums.QuoteStatusDraft,
				TotalsStale: true,
				TaxRate:     decimal.NewFromInt(10),
				LineItems: []models.QuoteLineItem{
					{Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(100)},
					{Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)},
				},
			}, nil
		},
		updateFn: func(ctx context.Context, q *models.Quote) error {
			saved = q
			return nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	got, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Total.Equal(decimal.NewFromInt(275)) {
		t.Fatalf("stale totals not recomputed on read, total %s", got.Total)
	}
	if got.TotalsStale {
		t.Fatal("stale flag not cleared")
	}
	if saved == nil {
		t.Fatal("recomputed totals not persisted")
	}
}

func TestDeleteCascadesInOrder(t *testing.T) {
	id := uuid.New()
	var order []string
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, got uuid.UUID) (*models.Quote, error) {
			return &models.Quote{ID: id, Status: enums.QuoteStatusDraft}, nil
		},
		deleteItemsFn: func(ctx context.Context, quoteID uuid.UUID) error {
			order = append(order, "line_items")
			return nil
		},
		deleteRespFn: func(ctx context.Context, quoteID uuid.UUID) error {
			order = append(order, "responses")
			return nil
		},
		deleteFn: func(ctx context.Context, quoteID uuid.UUID) error {
			order = append(order, "quote")
			return nil
		},
	}
	svc := newTestService(t, repo, nil, nil)

	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != "line_items" || order[1] != "responses" || order[2] != "quote" {
		t.Fatalf("cascade order wrong: %v", order)
	}
}
