package acceptance

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stonebridge-contracting/stonebridge-backend/internal/invoices"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/payments"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/projects"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/quotes"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/config"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/metrics"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/security"
	pkgstripe "github.com/stonebridge-contracting/stonebridge-backend/pkg/stripe"
)

// Authorization metadata keys. The metadata must be sufficient to
// reconstruct the quote, the split percentage, and the project linkage when
// the confirmation callback arrives.
const (
	metaQuoteID   = "quote_id"
	metaProjectID = "project_id"
	metaDownPct   = "down_payment_percentage"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentAuthorizer interface {
	CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*pkgstripe.Authorization, error)
	RetrieveAuthorization(ctx context.Context, id string) (*pkgstripe.Authorization, error)
}

type notificationSender interface {
	Send(ctx context.Context, toAddress, subject, body string) error
}

// Service drives a customer acceptance through payment authorization and the
// idempotent confirmation that yields exactly one project, invoice, and
// payment per external payment reference.
type Service interface {
	InitiateAcceptance(ctx context.Context, quoteID uuid.UUID, info CustomerInfo) (*AuthorizationHandle, error)
	ConfirmPayment(ctx context.Context, externalPaymentReference, source string) (*ConfirmationResult, error)
}

// CustomerInfo is the contact data submitted with an acceptance.
type CustomerInfo struct {
	Name  string
	Email string
}

// AuthorizationHandle is handed to the customer-facing payment UI.
type AuthorizationHandle struct {
	AuthorizationID string
	ClientSecret    string
	Amount          decimal.Decimal
	Currency        string
}

// ConfirmationResult is the project/invoice/payment triple for a confirmed
// payment. Duplicate marks the idempotent short-circuit path.
type ConfirmationResult struct {
	Project   *models.Project
	Invoice   *models.Invoice
	Payment   *models.Payment
	Duplicate bool
}

type service struct {
	tx           txRunner
	quotesRepo   quotes.Repository
	projectsRepo projects.Repository
	invoicesRepo invoices.Repository
	paymentsRepo payments.Repository
	authorizer   paymentAuthorizer
	mail         notificationSender
	stats        *metrics.PaymentMetrics
	logg         *logger.Logger
	cfg          config.QuotesConfig
}

// NewService builds the acceptance coordinator. Metrics may be nil.
func NewService(
	tx txRunner,
	quotesRepo quotes.Repository,
	projectsRepo projects.Repository,
	invoicesRepo invoices.Repository,
	paymentsRepo payments.Repository,
	authorizer paymentAuthorizer,
	mail notificationSender,
	stats *metrics.PaymentMetrics,
	logg *logger.Logger,
	cfg config.QuotesConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if quotesRepo == nil {
		return nil, fmt.Errorf("quote repository required")
	}
	if projectsRepo == nil {
		return nil, fmt.Errorf("project repository required")
	}
	if invoicesRepo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if paymentsRepo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("payment authorizer required")
	}
	if mail == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:           tx,
		quotesRepo:   quotesRepo,
		projectsRepo: projectsRepo,
		invoicesRepo: invoicesRepo,
		paymentsRepo: paymentsRepo,
		authorizer:   authorizer,
		mail:         mail,
		stats:        stats,
		logg:         logg,
		cfg:          cfg,
	}, nil
}

// InitiateAcceptance validates the acceptance, ensures the project record
// exists for the quote, and requests a payment authorization for the down
// payment amount. Nothing financial is persisted; a processor failure leaves
// no partial state.
func (s *service) InitiateAcceptance(ctx context.Context, quoteID uuid.UUID, info CustomerInfo) (*AuthorizationHandle, error) {
	if strings.TrimSpace(info.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	email := strings.TrimSpace(info.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is invalid")
	}

	quote, err := s.quotesRepo.FindByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	if quote.Status != enums.QuoteStatusSent && quote.Status != enums.QuoteStatusViewed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("quote in status %q cannot be accepted", quote.Status))
	}
	if !quote.Total.GreaterThan(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote total must be positive")
	}

	downAmount := quote.Total.
		Mul(quote.DownPaymentPercentage).
		Div(decimal.NewFromInt(100)).
		Round(2)
	amountCents := downAmount.Mul(decimal.NewFromInt(100)).IntPart()
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "down payment amount must be positive")
	}

	project, err := s.ensureProject(ctx, quote)
	if err != nil {
		return nil, err
	}

	auth, err := s.authorizer.CreateAuthorization(ctx, amountCents, s.currency(), map[string]string{
		metaQuoteID:   quote.ID.String(),
		metaProjectID: project.ID.String(),
		metaDownPct:   quote.DownPaymentPercentage.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, "creating payment authorization")
	}

	return &AuthorizationHandle{
		AuthorizationID: auth.ID,
		ClientSecret:    auth.ClientSecret,
		Amount:          downAmount,
		Currency:        s.currency(),
	}, nil
}

// ConfirmPayment is the idempotent settlement path. Invoked for the same
// reference any number of times, it yields exactly one invoice and payment;
// the storage-level unique index is the final arbiter under concurrency.
func (s *service) ConfirmPayment(ctx context.Context, externalPaymentReference, source string) (*ConfirmationResult, error) {
	ref := strings.TrimSpace(externalPaymentReference)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	ctx = s.logg.WithPaymentReference(ctx, ref)

	start := time.Now()
	result, err := s.confirm(ctx, ref, source)
	s.stats.ObserveDuration(source, time.Since(start))
	if err != nil {
		s.stats.IncFailure(source, string(pkgerrors.As(err).Code()))
		return nil, err
	}
	if result.Duplicate {
		s.stats.IncDuplicate(source)
	} else {
		s.stats.IncConfirmed(source)
	}
	return result, nil
}

func (s *service) confirm(ctx context.Context, ref, source string) (*ConfirmationResult, error) {
	auth, err := s.authorizer.RetrieveAuthorization(ctx, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, "retrieving payment authorization")
	}
	if !auth.Settled() {
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotSettled, fmt.Sprintf("authorization %s is not settled (status %s)", ref, auth.Status))
	}

	// Read-path idempotency check; the unique index below closes its race
	// window.
	if existing, err := s.invoicesRepo.FindByPaymentReference(ctx, ref); err != nil {
		return nil, err
	} else if existing != nil {
		s.logg.Info(ctx, "duplicate payment confirmation short-circuited")
		return s.resolveExisting(ctx, existing)
	}

	project, err := s.resolveProject(ctx, auth)
	if err != nil {
		return nil, err
	}

	number, err := generateInvoiceNumber(time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating invoice number")
	}

	amount := decimal.NewFromInt(auth.AmountCents).Div(decimal.NewFromInt(100)).Round(2)
	currency := auth.Currency
	if currency == "" {
		currency = s.currency()
	}
	now := time.Now().UTC()

	invoice := &models.Invoice{
		ProjectID:                project.ID,
		QuoteID:                  project.OriginQuoteID,
		Number:                   number,
		Type:                     enums.InvoiceTypeDownPayment,
		Status:                   enums.InvoiceStatusPaid,
		Amount:                   amount,
		Currency:                 currency,
		ExternalPaymentReference: &ref,
		PaidAt:                   &now,
	}
	payment := &models.Payment{
		ExternalPaymentReference: ref,
		Amount:                   amount,
		Currency:                 currency,
		PaidAt:                   now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.invoicesRepo.WithTx(tx).Create(ctx, invoice); err != nil {
			return err
		}
		payment.InvoiceID = invoice.ID
		if err := s.paymentsRepo.WithTx(tx).Create(ctx, payment); err != nil {
			return err
		}

		project.Status = enums.ProjectStatusActive
		if err := s.projectsRepo.WithTx(tx).Update(ctx, project); err != nil {
			return err
		}

		quote, err := s.quotesRepo.WithTx(tx).FindByID(ctx, project.OriginQuoteID)
		if err != nil {
			return err
		}
		if quote == nil {
			return pkgerrors.New(pkgerrors.CodeOrphanedPayment, "settled payment references a missing quote")
		}
		quote.Status = enums.QuoteStatusAccepted
		if quote.RespondedAt == nil {
			quote.RespondedAt = &now
		}
		return s.quotesRepo.WithTx(tx).Update(ctx, quote)
	})
	if err != nil {
		if db.IsUniqueViolation(err, models.InvoicePaymentReferenceConstraint) {
			// Lost the race with a concurrent confirmation; the winner's
			// records are the result.
			s.logg.Info(ctx, "concurrent payment confirmation resolved to existing invoice")
			winner, readErr := s.invoicesRepo.FindByPaymentReference(ctx, ref)
			if readErr != nil {
				return nil, readErr
			}
			if winner != nil {
				return s.resolveExisting(ctx, winner)
			}
		}
		if pkgerrors.As(err).Code() == pkgerrors.CodeOrphanedPayment {
			s.stats.IncOrphaned()
			s.logg.Error(ctx, "orphaned payment requires manual reconciliation", err)
		}
		return nil, err
	}

	s.sendWelcome(ctx, project.OriginQuoteID)

	return &ConfirmationResult{
		Project: project,
		Invoice: invoice,
		Payment: payment,
	}, nil
}

// ensureProject creates the pending project for the quote, reusing an
// existing one; the unique origin quote index resolves concurrent initiates.
func (s *service) ensureProject(ctx context.Context, quote *models.Quote) (*models.Project, error) {
	project, err := s.projectsRepo.FindByOriginQuote(ctx, quote.ID)
	if err != nil {
		return nil, err
	}
	if project != nil {
		return project, nil
	}

	project = &models.Project{
		OriginQuoteID: quote.ID,
		Name:          fmt.Sprintf("%s — %s", quote.CustomerName, quote.QuoteNumber),
		Status:        enums.ProjectStatusPendingPayment,
		Budget:        quote.Total,
	}
	if err := s.projectsRepo.Create(ctx, project); err != nil {
		if db.IsUniqueViolation(err, projects.ProjectOriginQuoteConstraint) {
			return s.projectsRepo.FindByOriginQuote(ctx, quote.ID)
		}
		return nil, err
	}
	return project, nil
}

// resolveProject locates the project embedded in the authorization metadata.
// A settled payment that cannot be linked is surfaced for manual
// reconciliation, never repaired with fabricated records.
func (s *service) resolveProject(ctx context.Context, auth *pkgstripe.Authorization) (*models.Project, error) {
	raw := auth.Metadata[metaProjectID]
	if raw == "" {
		return nil, s.orphaned(ctx, "settled payment carries no project linkage")
	}
	projectID, err := uuid.Parse(raw)
	if err != nil {
		return nil, s.orphaned(ctx, fmt.Sprintf("settled payment carries malformed project id %q", raw))
	}
	project, err := s.projectsRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, s.orphaned(ctx, fmt.Sprintf("settled payment references missing project %s", projectID))
	}
	return project, nil
}

func (s *service) orphaned(ctx context.Context, msg string) error {
	err := pkgerrors.New(pkgerrors.CodeOrphanedPayment, msg)
	s.stats.IncOrphaned()
	s.logg.Error(ctx, "orphaned payment requires manual reconciliation", err)
	return err
}

func (s *service) resolveExisting(ctx context.Context, invoice *models.Invoice) (*ConfirmationResult, error) {
	project, err := s.projectsRepo.FindByID(ctx, invoice.ProjectID)
	if err != nil {
		return nil, err
	}
	payment, err := s.paymentsRepo.FindByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	return &ConfirmationResult{
		Project:   project,
		Invoice:   invoice,
		Payment:   payment,
		Duplicate: true,
	}, nil
}

func (s *service) sendWelcome(ctx context.Context, quoteID uuid.UUID) {
	quote, err := s.quotesRepo.FindByID(ctx, quoteID)
	if err != nil || quote == nil || strings.TrimSpace(quote.CustomerEmail) == "" {
		return
	}
	subject := "Welcome to your Stonebridge project"
	body := fmt.Sprintf("Hi %s, your down payment for quote %s is confirmed and your project is underway.", quote.CustomerName, quote.QuoteNumber)
	if err := s.mail.Send(ctx, quote.CustomerEmail, subject, body); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("welcome notification failed: %v", err))
	}
}

func (s *service) currency() string {
	if s.cfg.Currency != "" {
		return s.cfg.Currency
	}
	return "usd"
}

func generateInvoiceNumber(now time.Time) (string, error) {
	suffix, err := security.GenerateReferenceSuffix(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix), nil
}
