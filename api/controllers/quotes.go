package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stonebridge-contracting/stonebridge-backend/api/responses"
	"github.com/stonebridge-contracting/stonebridge-backend/api/validators"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/quotes"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/pagination"
)

type createQuoteRequest struct {
	CustomerName  string  `json:"customer_name" validate:"required,min=1,max=120"`
	CustomerEmail string  `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone *string `json:"customer_phone" validate:"omitempty,max=32"`
	SiteAddress   *string `json:"site_address" validate:"omitempty,max=500"`

	DiscountPercentage *string `json:"discount_percentage"`
	DiscountAmount     *string `json:"discount_amount"`
	TaxRate            *string `json:"tax_rate"`
	TaxAmount          *string `json:"tax_amount"`
	IsManualTax        bool    `json:"is_manual_tax"`

	DownPaymentPercentage *string `json:"down_payment_percentage"`
	MilestonePercentage   *string `json:"milestone_percentage"`
	FinalPercentage       *string `json:"final_percentage"`
}

type updateQuoteRequest struct {
	CustomerName  *string `json:"customer_name" validate:"omitempty,min=1,max=120"`
	CustomerEmail *string `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone *string `json:"customer_phone" validate:"omitempty,max=32"`
	SiteAddress   *string `json:"site_address" validate:"omitempty,max=500"`

	DiscountPercentage *string `json:"discount_percentage"`
	DiscountAmount     *string `json:"discount_amount"`
	TaxRate            *string `json:"tax_rate"`
	TaxAmount          *string `json:"tax_amount"`
	IsManualTax        *bool   `json:"is_manual_tax"`

	DownPaymentPercentage *string `json:"down_payment_percentage"`
	MilestonePercentage   *string `json:"milestone_percentage"`
	FinalPercentage       *string `json:"final_percentage"`
}

// QuoteCreate handles staff quote creation.
func QuoteCreate(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createQuoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newStaffQuoteResponse(quote))
	}
}

func (b createQuoteRequest) toInput() (quotes.CreateQuoteInput, error) {
	input := quotes.CreateQuoteInput{
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		CustomerPhone: b.CustomerPhone,
		SiteAddress:   b.SiteAddress,
		IsManualTax:   b.IsManualTax,
	}

	var err error
	if input.DiscountPercentage, err = validators.ParseOptionalDecimal("discount_percentage", b.DiscountPercentage); err != nil {
		return input, err
	}
	if input.DiscountAmount, err = validators.ParseOptionalDecimal("discount_amount", b.DiscountAmount); err != nil {
		return input, err
	}
	if input.TaxRate, err = validators.ParseOptionalDecimal("tax_rate", b.TaxRate); err != nil {
		return input, err
	}
	if input.TaxAmount, err = validators.ParseOptionalDecimal("tax_amount", b.TaxAmount); err != nil {
		return input, err
	}
	if input.DownPaymentPercentage, err = validators.ParseOptionalDecimal("down_payment_percentage", b.DownPaymentPercentage); err != nil {
		return input, err
	}
	if input.MilestonePercentage, err = validators.ParseOptionalDecimal("milestone_percentage", b.MilestonePercentage); err != nil {
		return input, err
	}
	if input.FinalPercentage, err = validators.ParseOptionalDecimal("final_percentage", b.FinalPercentage); err != nil {
		return input, err
	}
	return input, nil
}

func (b updateQuoteRequest) toInput() (quotes.UpdateQuoteInput, error) {
	input := quotes.UpdateQuoteInput{
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		CustomerPhone: b.CustomerPhone,
		SiteAddress:   b.SiteAddress,
		IsManualTax:   b.IsManualTax,
	}

	var err error
	if input.DiscountPercentage, err = validators.ParseOptionalDecimal("discount_percentage", b.DiscountPercentage); err != nil {
		return input, err
	}
	if input.DiscountAmount, err = validators.ParseOptionalDecimal("discount_amount", b.DiscountAmount); err != nil {
		return input, err
	}
	if input.TaxRate, err = validators.ParseOptionalDecimal("tax_rate", b.TaxRate); err != nil {
		return input, err
	}
	if input.TaxAmount, err = validators.ParseOptionalDecimal("tax_amount", b.TaxAmount); err != nil {
		return input, err
	}
	if input.DownPaymentPercentage, err = validators.ParseOptionalDecimal("down_payment_percentage", b.DownPaymentPercentage); err != nil {
		return input, err
	}
	if input.MilestonePercentage, err = validators.ParseOptionalDecimal("milestone_percentage", b.MilestonePercentage); err != nil {
		return input, err
	}
	if input.FinalPercentage, err = validators.ParseOptionalDecimal("final_percentage", b.FinalPercentage); err != nil {
		return input, err
	}
	return input, nil
}

// QuoteUpdate handles staff quote edits.
func QuoteUpdate(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := quoteIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateQuoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newStaffQuoteResponse(quote))
	}
}

// QuoteDetail returns one quote with its line items and fresh totals.
func QuoteDetail(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := quoteIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if quote == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found"))
			return
		}
		responses.WriteSuccess(w, newStaffQuoteResponse(quote))
	}
}

type quoteListResponse struct {
	Quotes     []staffQuoteResponse `json:"quotes"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// QuoteList returns a cursor-paginated page of quotes, optionally filtered by
// status.
func QuoteList(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := quotes.ListQuery{
			Params: pagination.Params{
				Limit:  limit,
				Cursor: r.URL.Query().Get("cursor"),
			},
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, parseErr := enums.ParseQuoteStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter"))
				return
			}
			query.Status = &status
		}

		page, next, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := quoteListResponse{Quotes: make([]staffQuoteResponse, 0, len(page))}
		for i := range page {
			resp.Quotes = append(resp.Quotes, newStaffQuoteResponse(&page[i]))
		}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

// QuoteDelete removes a quote with its line items and responses.
func QuoteDelete(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := quoteIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// QuoteSend transitions a quote to sent and dispatches customer notifications.
func QuoteSend(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := quoteIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Send(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newStaffQuoteResponse(quote))
	}
}

// QuoteRecomputeTotals forces a totals recalculation from the line items.
func QuoteRecomputeTotals(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := quoteIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.RecomputeTotals(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newStaffQuoteResponse(quote))
	}
}

func quoteIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "quoteId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid quote identifier")
	}
	return id, nil
}

type staffQuoteResponse struct {
	ID          uuid.UUID `json:"id"`
	QuoteNumber string    `json:"quote_number"`
	Status      string    `json:"status"`
	AccessToken string    `json:"access_token"`

	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	CustomerPhone *string `json:"customer_phone,omitempty"`
	SiteAddress   *string `json:"site_address,omitempty"`

	Subtotal           string `json:"subtotal"`
	DiscountPercentage string `json:"discount_percentage"`
	DiscountAmount     string `json:"discount_amount"`
	DiscountedSubtotal string `json:"discounted_subtotal"`
	TaxRate            string `json:"tax_rate"`
	TaxAmount          string `json:"tax_amount"`
	IsManualTax        bool   `json:"is_manual_tax"`
	Total              string `json:"total"`

	DownPaymentPercentage string `json:"down_payment_percentage"`
	MilestonePercentage   string `json:"milestone_percentage"`
	FinalPercentage       string `json:"final_percentage"`

	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	ViewedAt    *time.Time `json:"viewed_at,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`

	LineItems []lineItemResponse `json:"line_items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newStaffQuoteResponse(quote *models.Quote) staffQuoteResponse {
	if quote == nil {
		return staffQuoteResponse{}
	}
	return staffQuoteResponse{
		ID:          quote.ID,
		QuoteNumber: quote.QuoteNumber,
		Status:      string(quote.Status),
		AccessToken: quote.AccessToken,

		CustomerName:  quote.CustomerName,
		CustomerEmail: quote.CustomerEmail,
		CustomerPhone: quote.CustomerPhone,
		SiteAddress:   quote.SiteAddress,

		Subtotal:           quote.Subtotal.StringFixed(2),
		DiscountPercentage: quote.DiscountPercentage.String(),
		DiscountAmount:     quote.DiscountAmount.StringFixed(2),
		DiscountedSubtotal: quote.DiscountedSubtotal.StringFixed(2),
		TaxRate:            quote.TaxRate.String(),
		TaxAmount:          quote.TaxAmount.StringFixed(2),
		IsManualTax:        quote.IsManualTax,
		Total:              quote.Total.StringFixed(2),

		DownPaymentPercentage: quote.DownPaymentPercentage.String(),
		MilestonePercentage:   quote.MilestonePercentage.String(),
		FinalPercentage:       quote.FinalPercentage.String(),

		ValidUntil:  quote.ValidUntil,
		SentAt:      quote.SentAt,
		ViewedAt:    quote.ViewedAt,
		RespondedAt: quote.RespondedAt,

		LineItems: newLineItemResponses(quote.LineItems),

		CreatedAt: quote.CreatedAt,
		UpdatedAt: quote.UpdatedAt,
	}
}
