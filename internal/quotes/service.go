package quotes

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/config"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/pagination"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notificationSender interface {
	Send(ctx context.Context, toAddress, subject, body string) error
}

type conversationStarter interface {
	CreateConversation(ctx context.Context, quoteNumber, customerName, customerEmail string) error
}

// Service owns quote creation, totals, and the lifecycle state machine.
type Service interface {
	Create(ctx context.Context, input CreateQuoteInput) (*models.Quote, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateQuoteInput) (*models.Quote, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	List(ctx context.Context, query ListQuery) ([]models.Quote, *pagination.Cursor, error)
	RecomputeTotals(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Send(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	RecordView(ctx context.Context, accessToken string) (*models.Quote, error)
	RecordResponse(ctx context.Context, accessToken string, input RespondInput) (*models.Quote, error)
}

// CreateQuoteInput captures the staff-supplied fields for a new quote.
type CreateQuoteInput struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone *string
	SiteAddress   *string

	DiscountPercentage *decimal.Decimal
	DiscountAmount     *decimal.Decimal
	TaxRate            *decimal.Decimal
	TaxAmount          *decimal.Decimal
	IsManualTax        bool

	DownPaymentPercentage *decimal.Decimal
	MilestonePercentage   *decimal.Decimal
	FinalPercentage       *decimal.Decimal
}

// UpdateQuoteInput applies a partial staff edit. Nil fields are untouched.
type UpdateQuoteInput struct {
	CustomerName  *string
	CustomerEmail *string
	CustomerPhone *string
	SiteAddress   *string

	DiscountPercentage *decimal.Decimal
	DiscountAmount     *decimal.Decimal
	TaxRate            *decimal.Decimal
	TaxAmount          *decimal.Decimal
	IsManualTax        *bool

	DownPaymentPercentage *decimal.Decimal
	MilestonePercentage   *decimal.Decimal
	FinalPercentage       *decimal.Decimal
}

// RespondInput is the customer's answer submitted through the public surface.
type RespondInput struct {
	Action      enums.QuoteResponseAction
	Message     *string
	RequesterIP string
}

type service struct {
	tx   txRunner
	repo Repository
	mail notificationSender
	chat conversationStarter
	logg *logger.Logger
	cfg  config.QuotesConfig
}

// NewService builds the quote service.
func NewService(
	tx txRunner,
	repo Repository,
	mail notificationSender,
	chat conversationStarter,
	logg *logger.Logger,
	cfg config.QuotesConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("quote repository required")
	}
	if mail == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if chat == nil {
		return nil, fmt.Errorf("conversation starter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:   tx,
		repo: repo,
		mail: mail,
		chat: chat,
		logg: logg,
		cfg:  cfg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateQuoteInput) (*models.Quote, error) {
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer_name is required")
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer_email is invalid")
		}
	}
	if err := validateNonNegative("discount_percentage", input.DiscountPercentage); err != nil {
		return nil, err
	}
	if err := validateNonNegative("discount_amount", input.DiscountAmount); err != nil {
		return nil, err
	}
	if err := validateNonNegative("tax_rate", input.TaxRate); err != nil {
		return nil, err
	}
	if err := validateNonNegative("tax_amount", input.TaxAmount); err != nil {
		return nil, err
	}

	down, milestone, final, err := resolvePaymentSplit(
		input.DownPaymentPercentage, input.MilestonePercentage, input.FinalPercentage,
		defaultDownPaymentPct, defaultMilestonePct, defaultFinalPct,
	)
	if err != nil {
		return nil, err
	}

	token, err := security.GenerateAccessToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating access token")
	}
	number, err := generateQuoteNumber(time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating quote number")
	}

	quote := &models.Quote{
		QuoteNumber:           number,
		Status:                enums.QuoteStatusDraft,
		AccessToken:           token,
		CustomerName:          name,
		CustomerEmail:         strings.TrimSpace(input.CustomerEmail),
		CustomerPhone:         input.CustomerPhone,
		SiteAddress:           input.SiteAddress,
		IsManualTax:           input.IsManualTax,
		DownPaymentPercentage: down,
		MilestonePercentage:   milestone,
		FinalPercentage:       final,
	}
	if input.DiscountPercentage != nil {
		quote.DiscountPercentage = *input.DiscountPercentage
	}
	if input.DiscountAmount != nil {
		quote.DiscountAmount = *input.DiscountAmount
	}
	if input.TaxRate != nil {
		quote.TaxRate = *input.TaxRate
	}
	if input.TaxAmount != nil {
		quote.TaxAmount = *input.TaxAmount
	}
	if s.cfg.ValidityDays > 0 {
		validUntil := time.Now().UTC().AddDate(0, 0, s.cfg.ValidityDays)
		quote.ValidUntil = &validUntil
	}

	ComputeTotals(nil, overridesFrom(quote)).Apply(quote)

	if err := s.repo.Create(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateQuoteInput) (*models.Quote, error) {
	var updated *models.Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		quote, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if quote == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
		}
		if quote.Status == enums.QuoteStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "accepted quotes are frozen")
		}

		if input.CustomerName != nil {
			name := strings.TrimSpace(*input.CustomerName)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "customer_name is required")
			}
			quote.CustomerName = name
		}
		if input.CustomerEmail != nil {
			email := strings.TrimSpace(*input.CustomerEmail)
			if email != "" {
				if _, err := mail.ParseAddress(email); err != nil {
					return pkgerrors.New(pkgerrors.CodeValidation, "customer_email is invalid")
				}
			}
			quote.CustomerEmail = email
		}
		if input.CustomerPhone != nil {
			quote.CustomerPhone = input.CustomerPhone
		}
		if input.SiteAddress != nil {
			quote.SiteAddress = input.SiteAddress
		}

		if err := validateNonNegative("discount_percentage", input.DiscountPercentage); err != nil {
			return err
		}
		if err := validateNonNegative("discount_amount", input.DiscountAmount); err != nil {
			return err
		}
		if err := validateNonNegative("tax_rate", input.TaxRate); err != nil {
			return err
		}
		if err := validateNonNegative("tax_amount", input.TaxAmount); err != nil {
			return err
		}
		if input.DiscountPercentage != nil {
			quote.DiscountPercentage = *input.DiscountPercentage
		}
		if input.DiscountAmount != nil {
			quote.DiscountAmount = *input.DiscountAmount
		}
		if input.TaxRate != nil {
			quote.TaxRate = *input.TaxRate
		}
		if input.TaxAmount != nil {
			quote.TaxAmount = *input.TaxAmount
		}
		if input.IsManualTax != nil {
			quote.IsManualTax = *input.IsManualTax
		}

		down, milestone, final, err := resolvePaymentSplit(
			input.DownPaymentPercentage, input.MilestonePercentage, input.FinalPercentage,
			quote.DownPaymentPercentage, quote.MilestonePercentage, quote.FinalPercentage,
		)
		if err != nil {
			return err
		}
		quote.DownPaymentPercentage = down
		quote.MilestonePercentage = milestone
		quote.FinalPercentage = final

		ComputeTotals(quote.LineItems, overridesFrom(quote)).Apply(quote)
		quote.TotalsStale = false

		if err := repo.Update(ctx, quote); err != nil {
			return err
		}
		updated = quote
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	quote, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	return s.freshenTotals(ctx, quote), nil
}

func (s *service) List(ctx context.Context, query ListQuery) ([]models.Quote, *pagination.Cursor, error) {
	return s.repo.List(ctx, query)
}

// RecomputeTotals reloads the quote's line items, derives the monetary
// breakdown, and persists it. Line item mutations call this after every
// successful write.
func (s *service) RecomputeTotals(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	quote, err := s.repo.FindByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}

	ComputeTotals(quote.LineItems, overridesFrom(quote)).Apply(quote)
	quote.TotalsStale = false

	if err := s.repo.Update(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// Delete removes the quote and its children as an explicit ordered cascade
// inside one transaction so partial failure cannot orphan children.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		quote, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if quote == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
		}

		if err := repo.DeleteLineItems(ctx, id); err != nil {
			return err
		}
		if err := repo.DeleteResponses(ctx, id); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
}

func (s *service) Send(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	quote, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	if quote.Status != enums.QuoteStatusDraft && quote.Status != enums.QuoteStatusDeclined {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot send quote in status %q", quote.Status))
	}
	if strings.TrimSpace(quote.CustomerName) == "" || strings.TrimSpace(quote.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name and email are required to send a quote")
	}

	now := time.Now().UTC()
	quote.Status = enums.QuoteStatusSent
	quote.SentAt = &now
	quote.ViewedAt = nil
	quote.RespondedAt = nil

	if err := s.repo.Update(ctx, quote); err != nil {
		return nil, err
	}

	// Notifications are best-effort; failures never roll back the transition.
	var sideEffects error
	subject := fmt.Sprintf("Your quote %s from Stonebridge Contracting", quote.QuoteNumber)
	body := fmt.Sprintf("Hi %s, your quote %s is ready for review.", quote.CustomerName, quote.QuoteNumber)
	if err := s.mail.Send(ctx, quote.CustomerEmail, subject, body); err != nil {
		sideEffects = multierr.Append(sideEffects, fmt.Errorf("send email: %w", err))
	}
	if err := s.chat.CreateConversation(ctx, quote.QuoteNumber, quote.CustomerName, quote.CustomerEmail); err != nil {
		sideEffects = multierr.Append(sideEffects, fmt.Errorf("create conversation: %w", err))
	}
	if sideEffects != nil {
		s.logg.Warn(s.logg.WithQuoteID(ctx, quote.ID.String()), fmt.Sprintf("quote send notifications failed: %v", sideEffects))
	}

	return quote, nil
}

// RecordView marks the quote viewed when the customer first opens it.
// Repeated views are idempotent.
func (s *service) RecordView(ctx context.Context, accessToken string) (*models.Quote, error) {
	quote, err := s.findPublic(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if quote.Status == enums.QuoteStatusSent {
		now := time.Now().UTC()
		quote.Status = enums.QuoteStatusViewed
		if quote.ViewedAt == nil {
			quote.ViewedAt = &now
		}
		if err := s.repo.Update(ctx, quote); err != nil {
			return nil, err
		}
	}

	return s.freshenTotals(ctx, quote), nil
}

// RecordResponse persists the customer's decision. A decline finalizes the
// quote; an acceptance only records the response and leaves the status to be
// finalized by payment confirmation.
func (s *service) RecordResponse(ctx context.Context, accessToken string, input RespondInput) (*models.Quote, error) {
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action must be accepted or declined")
	}

	quote, err := s.findPublic(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if quote.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("quote is already %s", quote.Status))
	}
	if quote.ValidUntil != nil && time.Now().UTC().After(*quote.ValidUntil) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quote validity period has expired")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		response := &models.QuoteResponse{
			QuoteID:     quote.ID,
			Action:      input.Action,
			RequesterIP: &input.RequesterIP,
			Message:     input.Message,
		}
		if err := repo.CreateResponse(ctx, response); err != nil {
			return err
		}

		now := time.Now().UTC()
		quote.RespondedAt = &now
		if input.Action == enums.QuoteResponseActionDeclined {
			quote.Status = enums.QuoteStatusDeclined
		}
		return repo.Update(ctx, quote)
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *service) findPublic(ctx context.Context, accessToken string) (*models.Quote, error) {
	quote, err := s.repo.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	// Draft quotes are not reachable through the public surface.
	if quote == nil || quote.Status == enums.QuoteStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	return quote, nil
}

// freshenTotals recomputes on read when persisted totals were flagged stale,
// so a failed recompute after a line item write is repaired on next access.
func (s *service) freshenTotals(ctx context.Context, quote *models.Quote) *models.Quote {
	if !quote.TotalsStale {
		return quote
	}

	ComputeTotals(quote.LineItems, overridesFrom(quote)).Apply(quote)
	quote.TotalsStale = false

	if err := s.repo.Update(ctx, quote); err != nil {
		s.logg.Error(s.logg.WithQuoteID(ctx, quote.ID.String()), "persisting recomputed totals on read", err)
	}
	return quote
}

func overridesFrom(quote *models.Quote) TotalsOverrides {
	return TotalsOverrides{
		DiscountPercentage: quote.DiscountPercentage,
		DiscountAmount:     quote.DiscountAmount,
		TaxRate:            quote.TaxRate,
		TaxAmount:          quote.TaxAmount,
		IsManualTax:        quote.IsManualTax,
	}
}

var (
	defaultDownPaymentPct = decimal.NewFromInt(30)
	defaultMilestonePct   = decimal.NewFromInt(40)
	defaultFinalPct       = decimal.NewFromInt(30)
)

func resolvePaymentSplit(down, milestone, final *decimal.Decimal, curDown, curMilestone, curFinal decimal.Decimal) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	d, m, f := curDown, curMilestone, curFinal
	if down != nil {
		d = *down
	}
	if milestone != nil {
		m = *milestone
	}
	if final != nil {
		f = *final
	}
	if d.IsNegative() || m.IsNegative() || f.IsNegative() {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, pkgerrors.New(pkgerrors.CodeValidation, "payment percentages must be non-negative")
	}
	if !d.Add(m).Add(f).Equal(oneHundred) {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, pkgerrors.New(pkgerrors.CodeValidation, "payment percentages must sum to 100")
	}
	return d, m, f, nil
}

func validateNonNegative(field string, value *decimal.Decimal) error {
	if value != nil && value.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be non-negative", field))
	}
	return nil
}

func generateQuoteNumber(now time.Time) (string, error) {
	suffix, err := security.GenerateReferenceSuffix(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Q-%s-%s", now.Format("20060102"), suffix), nil
}
