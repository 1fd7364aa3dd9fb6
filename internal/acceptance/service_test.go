package acceptance

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/stonebridge-contracting/stonebridge-backend/internal/invoices"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/payments"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/projects"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/quotes"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/config"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/pagination"
	pkgstripe "github.com/stonebridge-contracting/stonebridge-backend/pkg/stripe"
)

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubQuotesRepo struct {
	quote    *models.Quote
	updateFn func(ctx context.Context, quote *models.Quote) error
}

func (s *stubQuotesRepo) WithTx(tx *gorm.DB) quotes.Repository { return s }
func (s *stubQuotesRepo) Create(ctx context.Context, quote *models.Quote) error {
	return nil
}
func (s *stubQuotesRepo) Update(ctx context.Context, quote *models.Quote) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, quote)
	}
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

type stubProjectsRepo struct {
	byID       map[uuid.UUID]*models.Project
	byQuote    map[uuid.UUID]*models.Project
	createFn   func(ctx context.Context, project *models.Project) error
	updated    []*models.Project
	createdRow *models.Project
}

func (s *stubProjectsRepo) WithTx(tx *gorm.DB) projects.Repository { return s }
func (s *stubProjectsRepo) Create(ctx context.Context, project *models.Project) error {
	if s.createFn != nil {
		return s.createFn(ctx, project)
	}
	project.ID = uuid.New()
	s.createdRow = project
	return nil
}
func (s *stubProjectsRepo) Update(ctx context.Context, project *models.Project) error {
	s.updated = append(s.updated, project)
	return nil
}
func (s *stubProjectsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.byID[id], nil
}
func (s *stubProjectsRepo) FindByOriginQuote(ctx context.Context, quoteID uuid.UUID) (*models.Project, error) {
	return s.byQuote[quoteID], nil
}

type stubInvoicesRepo struct {
	byRef    map[string]*models.Invoice
	createFn func(ctx context.Context, invoice *models.Invoice) error
	created  *models.Invoice
}

func (s *stubInvoicesRepo) WithTx(tx *gorm.DB) invoices.Repository { return s }
func (s *stubInvoicesRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	if s.createFn != nil {
		return s.createFn(ctx, invoice)
	}
	invoice.ID = uuid.New()
	s.created = invoice
	return nil
}
func (s *stubInvoicesRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return nil, nil
}
func (s *stubInvoicesRepo) FindByPaymentReference(ctx context.Context, ref string) (*models.Invoice, error) {
	return s.byRef[ref], nil
}
func (s *stubInvoicesRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Invoice, error) {
	return nil, nil
}

type stubPaymentsRepo struct {
	byInvoice map[uuid.UUID]*models.Payment
	created   *models.Payment
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) payments.Repository { return s }
func (s *stubPaymentsRepo) Create(ctx context.Context, payment *models.Payment) error {
	payment.ID = uuid.New()
	s.created = payment
	return nil
}
func (s *stubPaymentsRepo) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Payment, error) {
	return s.byInvoice[invoiceID], nil
}
func (s *stubPaymentsRepo) FindByPaymentReference(ctx context.Context, ref string) (*models.Payment, error) {
	return nil, nil
}

type stubAuthorizer struct {
	createFn   func(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*pkgstripe.Authorization, error)
	retrieveFn func(ctx context.Context, id string) (*pkgstripe.Authorization, error)
}

func (s *stubAuthorizer) CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*pkgstripe.Authorization, error) {
	if s.createFn != nil {
		return s.createFn(ctx, amountCents, currency, metadata)
	}
	return &pkgstripe.Authorization{ID: "pi_test", ClientSecret: "cs_test"}, nil
}

func (s *stubAuthorizer) RetrieveAuthorization(ctx context.Context, id string) (*pkgstripe.Authorization, error) {
	if s.retrieveFn != nil {
		return s.retrieveFn(ctx, id)
	}
	return nil, errors.New("not configured")
}

type stubMailer struct {
	calls int
}

func (s *stubMailer) Send(ctx context.Context, to, subject, body string) error {
	s.calls++
	return nil
}

type fixture struct {
	quotesRepo   *stubQuotesRepo
	projectsRepo *stubProjectsRepo
	invoicesRepo *stubInvoicesRepo
	paymentsRepo *stubPaymentsRepo
	authorizer   *stubAuthorizer
	mailer       *stubMailer
	svc          Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		quotesRepo:   &stubQuotesRepo{},
		projectsRepo: &stubProjectsRepo{byID: map[uuid.UUID]*models.Project{}, byQuote: map[uuid.UUID]*models.Project{}},
		invoicesRepo: &stubInvoicesRepo{byRef: map[string]*models.Invoice{}},
		paymentsRepo: &stubPaymentsRepo{byInvoice: map[uuid.UUID]*models.Payment{}},
		authorizer:   &stubAuthorizer{},
		mailer:       &stubMailer{},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(stubTx{}, f.quotesRepo, f.projectsRepo, f.invoicesRepo, f.paymentsRepo, f.authorizer, f.mailer, nil, logg, config.QuotesConfig{Currency: "usd"})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	f.svc = svc
	return f
}

func sentQuote() *models.Quote {
	return &models.Quote{
		ID:                    uuid.New(),
		QuoteNumber:           "Q-20250810-AB12CD",
		Status:                enums.QuoteStatusSent,
		CustomerName:          "Dana Fields",
		CustomerEmail:         "dana@example.com",
		Total:                 decimal.NewFromInt(1000),
		DownPaymentPercentage: decimal.NewFromInt(30),
	}
}

func settled(ref string, amountCents int64, metadata map[string]string) *pkgstripe.Authorization {
	return &pkgstripe.Authorization{
		ID:          ref,
		Status:      stripego.PaymentIntentStatusSucceeded,
		AmountCents: amountCents,
		Currency:    "usd",
		Metadata:    metadata,
	}
}

func TestInitiateAcceptanceComputesDownPayment(t *testing.T) {
	f := newFixture(t)
	quote := sentQuote()
	f.quotesRepo.quote = quote

	var gotCents int64
	var gotMeta map[string]string
	f.authorizer.createFn = func(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*pkgstripe.Authorization, error) {
		gotCents = amountCents
		gotMeta = metadata
		return &pkgstripe.Authorization{ID: "pi_123", ClientSecret: "cs_123"}, nil
	}

	handle, err := f.svc.InitiateAcceptance(context.Background(), quote.ID, CustomerInfo{Name: "Dana Fields", Email: "dana@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCents != 30000 {
		t.Fatalf("expected 30000 cents, got %d", gotCents)
	}
	if !handle.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected amount 300, got %s", handle.Amount)
	}
	if handle.ClientSecret != "cs_123" {
		t.Fatalf("client secret not returned")
	}
	if gotMeta[metaQuoteID] != quote.ID.String() {
		t.Fatal("quote linkage missing from metadata")
	}
	if gotMeta[metaProjectID] == "" {
		t.Fatal("project linkage missing from metadata")
	}
	if f.projectsRepo.createdRow == nil || f.projectsRepo.createdRow.Status != enums.ProjectStatusPendingPayment {
		t.Fatal("pending project not created")
	}
}

func TestInitiateAcceptanceReusesExistingProject(t *testing.T) {
	f := newFixture(t)
	quote := sentQuote()
	f.quotesRepo.quote = quote
	existing := &models.Project{ID: uuid.New(), OriginQuoteID: quote.ID, Status: enums.ProjectStatusPendingPayment}
	f.projectsRepo.byQuote[quote.ID] = existing

	var gotMeta map[string]string
	f.authorizer.createFn = func(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*pkgstripe.Authorization, error) {
		gotMeta = metadata
		return &pkgstripe.Authorization{ID: "pi_123", ClientSecret: "cs_123"}, nil
	}

	if _, err := f.svc.InitiateAcceptance(context.Background(), quote.ID, CustomerInfo{Name: "Dana", Email: "dana@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.projectsRepo.createdRow != nil {
		t.Fatal("must not create a second project for the quote")
	}
	if gotMeta[metaProjectID] != existing.ID.String() {
		t.Fatal("existing project not linked in metadata")
	}
}

func TestInitiateAcceptanceProviderFailure(t *testing.T) {
	f := newFixture(t)
	quote := sentQuote()
	f.quotesRepo.quote = quote
	f.authorizer.createFn = func(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*pkgstripe.Authorization, error) {
		return nil, errors.New("processor unreachable")
	}

	_, err := f.svc.InitiateAcceptance(context.Background(), quote.ID, CustomerInfo{Name: "Dana", Email: "dana@example.com"})
	if err == nil {
		t.Fatal("expected provider error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodePaymentProvider {
		t.Fatalf("expected payment provider error, got %v", err)
	}
	if f.invoicesRepo.created != nil || f.paymentsRepo.created != nil {
		t.Fatal("provider failure must not persist financial records")
	}
}

func TestInitiateAcceptanceRejectsDraft(t *testing.T) {
	f := newFixture(t)
	quote := sentQuote()
	quote.Status = enums.QuoteStatusDraft
	f.quotesRepo.quote = quote

	_, err := f.svc.InitiateAcceptance(context.Background(), quote.ID, CustomerInfo{Name: "Dana", Email: "dana@example.com"})
	if err == nil {
		t.Fatal("expected state conflict")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestConfirmPaymentNotSettled(t *testing.T) {
	f := newFixture(t)
	f.authorizer.retrieveFn = func(ctx context.Context, id string) (*pkgstripe.Authorization, error) {
		return &pkgstripe.Authorization{ID: id, Status: stripego.PaymentIntentStatusRequiresPaymentMethod}, nil
	}

	_, err := f.svc.ConfirmPayment(context.Background(), "pi_123", "webhook")
	if err == nil {
		t.Fatal("expected not settled error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodePaymentNotSettled {
		t.Fatalf("expected payment not settled, got %v", err)
	}
}

func TestConfirmPaymentCreatesTripleOnce(t *testing.T) {
	f := newFixture(t)
	quote := sentQuote()
	f.quotesRepo.quote = quote
	project := &models.Project{ID: uuid.New(), OriginQuoteID: quote.ID, Status: enums.ProjectStatusPendingPayment}
	f.projectsRepo.byID[project.ID] = project

	f.authorizer.retrieveFn = func(ctx context.Context, id string) (*pkgstripe.Authorization, error) {
		return settled(id, 30000, map[string]string{
			metaQuoteID:   quote.ID.String(),
			metaProjectID: project.ID.String(),
		}), nil
	}

	result, err := f.svc.ConfirmPayment(context.Background(), "pi_123", "webhook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Duplicate {
		t.Fatal("first confirmation must not be a duplicate")
	}
	if result.Invoice == nil || result.Invoice.Type != enums.InvoiceTypeDownPayment {
		t.Fatal("down payment invoice not created")
	}
	if result.Invoice.Status != enums.InvoiceStatusPaid {
		t.Fatalf("invoice must be paid, got %s", result.Invoice.Status)
	}
	if !result.Invoice.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("invoice amount must come from the processor, got %s", result.Invoice.Amount)
	}
	if result.Payment == nil || result.Payment.ExternalPaymentReference != "pi_123" {
		t.Fatal("payment ledger entry not created")
	}
	if result.Project.Status != enums.ProjectStatusActive {
		t.Fatalf("project not activated, got %s", result.Project.Status)
	}
	if quote.Status != enums.QuoteStatusAccepted {
		t.Fatalf("quote not accepted, got %s", quote.Status)
	}
	if quote.RespondedAt == nil {
		t.Fatal("responded_at not set")
	}
	if f.mailer.calls != 1 {
		t.Fatalf("expected welcome notification, got %d", f.mailer.calls)
	}
}

func TestConfirmPaymentDuplicateShortCircuits(t *testing.T) {
	f := newFixture(t)
	project := &models.Project{ID: uuid.New(), Status: enums.ProjectStatusActive}
	ref := "pi_123"
	invoice := &models.Invoice{ID: uuid.New(), ProjectID: project.ID, ExternalPaymentReference: &ref}
	payment := &models.Payment{ID: uuid.New(), InvoiceID: invoice.ID, ExternalPaymentReference: ref}
	f.projectsRepo.byID[project.ID] = project
	f.invoicesRepo.byRef[ref] = invoice
	f.paymentsRepo.byInvoice[invoice.ID] = payment

	f.authorizer.retrieveFn = func(ctx context.Context, id string) (*pkgstripe.Authorization, error) {
		return settled(id, 30000, nil), nil
	}

	creates := 0
	f.invoicesRepo.createFn = func(ctx context.Context, inv *models.Invoice) error {
		creates++
		return nil
	}

	result, err := f.svc.ConfirmPayment(context.Background(), ref, "webhook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected duplicate short-circuit")
	}
	if result.Invoice.ID != invoice.ID {
		t.Fatal("must return the existing invoice")
	}
	if result.Payment.ID != payment.ID {
		t.Fatal("must return the existing payment")
	}
	if creates != 0 {
		t.Fatalf("duplicate confirmation must not insert, got %d creates", creates)
	}
}

func TestConfirmPaymentOrphanedWhenNoProjectLinkage(t *testing.T) {
	f := newFixture(t)
	f.authorizer.retrieveFn = func(ctx context.Context, id string) (*pkgstripe.Authorization, error) {
		return settled(id, 30000, map[string]string{}), nil
	}

	_, err := f.svc.ConfirmPayment(context.Background(), "pi_123", "webhook")
	if err == nil {
		t.Fatal("expected orphaned payment error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeOrphanedPayment {
		t.Fatalf("expected orphaned payment, got %v", err)
	}
	if f.invoicesRepo.created != nil {
		t.Fatal("orphaned payment must not create records")
	}
}

func TestConfirmPaymentOrphanedWhenProjectMissing(t *testing.T) {
	f := newFixture(t)
	f.authorizer.retrieveFn = func(ctx context.Context, id string) (*pkgstripe.Authorization, error) {
		return settled(id, 30000, map[string]string{metaProjectID: uuid.NewString()}), nil
	}

	_, err := f.svc.ConfirmPayment(context.Background(), "pi_123", "webhook")
	if err == nil {
		t.Fatal("expected orphaned payment error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeOrphanedPayment {
		t.Fatalf("expected orphaned payment, got %v", err)
	}
}

func TestConfirmPaymentLostRaceReturnsWinner(t *testing.T) {
	f := newFixture(t)
	quote := sentQuote()
	f.quotesRepo.quote = quote
	project := &models.Project{ID: uuid.New(), OriginQuoteID: quote.ID, Status: enums.ProjectStatusPendingPayment}
	f.projectsRepo.byID[project.ID] = project

	ref := "pi_123"
	winner := &models.Invoice{ID: uuid.New(), ProjectID: project.ID, ExternalPaymentReference: &ref}
	winnerPayment := &models.Payment{ID: uuid.New(), InvoiceID: winner.ID, ExternalPaymentReference: ref}
	f.paymentsRepo.byInvoice[winner.ID] = winnerPayment

	f.authorizer.retrieveFn = func(ctx context.Context, id string) (*pkgstripe.Authorization, error) {
		return settled(id, 30000, map[string]string{metaProjectID: project.ID.String()}), nil
	}

	// The guard read sees nothing, the insert hits the unique index: the
	// concurrent winner committed in between.
	f.invoicesRepo.createFn = func(ctx context.Context, inv *models.Invoice) error {
		f.invoicesRepo.byRef[ref] = winner
		return errors.New(`duplicate key value violates unique constraint "uq_invoices_payment_reference"`)
	}

	result, err := f.svc.ConfirmPayment(context.Background(), ref, "webhook")
	if err != nil {
		t.Fatalf("loser must resolve to the winner's records: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("lost race must be reported as duplicate")
	}
	if result.Invoice.ID != winner.ID {
		t.Fatal("loser must return the winner's invoice")
	}
	if result.Payment.ID != winnerPayment.ID {
		t.Fatal("loser must return the winner's payment")
	}
}

func TestConfirmPaymentIdempotentAcrossRetries(t *testing.T) {
	f := newFixture(t)
	quote := sentQuote()
	f.quotesRepo.quote = quote
	project := &models.Project{ID: uuid.New(), OriginQuoteID: quote.ID, Status: enums.ProjectStatusPendingPayment}
	f.projectsRepo.byID[project.ID] = project

	f.authorizer.retrieveFn = func(ctx context.Context, id string) (*pkgstripe.Authorization, error) {
		return settled(id, 30000, map[string]string{metaProjectID: project.ID.String()}), nil
	}

	creates := 0
	f.invoicesRepo.createFn = func(ctx context.Context, inv *models.Invoice) error {
		creates++
		inv.ID = uuid.New()
		f.invoicesRepo.byRef["pi_123"] = inv
		f.paymentsRepo.byInvoice[inv.ID] = &models.Payment{ID: uuid.New(), InvoiceID: inv.ID, ExternalPaymentReference: "pi_123"}
		return nil
	}

	first, err := f.svc.ConfirmPayment(context.Background(), "pi_123", "webhook")
	if err != nil {
		t.Fatalf("first confirmation failed: %v", err)
	}
	second, err := f.svc.ConfirmPayment(context.Background(), "pi_123", "webhook")
	if err != nil {
		t.Fatalf("second confirmation failed: %v", err)
	}
	if creates != 1 {
		t.Fatalf("expected exactly one invoice insert, got %d", creates)
	}
	if !second.Duplicate {
		t.Fatal("second confirmation must short-circuit")
	}
	if first.Invoice.ID != second.Invoice.ID {
		t.Fatal("both confirmations must resolve to the same invoice")
	}
}
