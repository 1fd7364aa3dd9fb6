package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stonebridge-contracting/stonebridge-backend/api/middleware"
	"github.com/stonebridge-contracting/stonebridge-backend/api/responses"
	"github.com/stonebridge-contracting/stonebridge-backend/api/validators"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/acceptance"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/quotes"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
)

// PublicQuoteFetch resolves a quote by its access token, recording the first
// view. Draft quotes stay invisible on this surface.
func PublicQuoteFetch(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "accessToken")
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "access token required"))
			return
		}

		quote, err := svc.RecordView(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPublicQuoteResponse(quote))
	}
}

type publicRespondRequest struct {
	Action        string  `json:"action" validate:"required,oneof=accepted declined"`
	Message       *string `json:"message" validate:"omitempty,max=2000"`
	CustomerName  string  `json:"customer_name" validate:"omitempty,min=1,max=120"`
	CustomerEmail string  `json:"customer_email" validate:"omitempty,email"`
}

type publicRespondResponse struct {
	Quote   publicQuoteResponse    `json:"quote"`
	Payment *publicPaymentResponse `json:"payment,omitempty"`
}

type publicPaymentResponse struct {
	AuthorizationID string `json:"authorization_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

// PublicQuoteRespond records the customer's decision. An acceptance also opens
// the down payment authorization and returns the client secret for the
// payment UI; the quote only becomes accepted once that payment settles.
func PublicQuoteRespond(svc quotes.Service, acceptanceSvc acceptance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "accessToken")
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "access token required"))
			return
		}

		var body publicRespondRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action, err := enums.ParseQuoteResponseAction(body.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid response action"))
			return
		}

		quote, err := svc.RecordResponse(r.Context(), token, quotes.RespondInput{
			Action:      action,
			Message:     body.Message,
			RequesterIP: middleware.ClientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := publicRespondResponse{Quote: newPublicQuoteResponse(quote)}

		if action == enums.QuoteResponseActionAccepted {
			info := acceptance.CustomerInfo{Name: body.CustomerName, Email: body.CustomerEmail}
			if info.Name == "" {
				info.Name = quote.CustomerName
			}
			if info.Email == "" {
				info.Email = quote.CustomerEmail
			}

			handle, err := acceptanceSvc.InitiateAcceptance(r.Context(), quote.ID, info)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			resp.Payment = &publicPaymentResponse{
				AuthorizationID: handle.AuthorizationID,
				ClientSecret:    handle.ClientSecret,
				Amount:          handle.Amount.StringFixed(2),
				Currency:        handle.Currency,
			}
		}

		responses.WriteSuccess(w, resp)
	}
}

// publicSource labels confirmations arriving from the customer's browser.
const publicSource = "public"

type publicConfirmRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required,min=1,max=255"`
}

type publicConfirmResponse struct {
	Status        string `json:"status"`
	Duplicate     bool   `json:"duplicate"`
	InvoiceNumber string `json:"invoice_number"`
	ProjectName   string `json:"project_name"`
}

// PublicPaymentConfirm lets the payment UI confirm immediately after the
// processor redirects back, instead of waiting for the webhook. Both paths
// funnel into the same idempotent confirmation.
func PublicPaymentConfirm(repo quotes.Repository, acceptanceSvc acceptance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "accessToken")
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "access token required"))
			return
		}

		var body publicConfirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := repo.FindByAccessToken(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if quote == nil || quote.Status == enums.QuoteStatusDraft {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found"))
			return
		}

		result, err := acceptanceSvc.ConfirmPayment(r.Context(), body.PaymentReference, publicSource)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Invoice == nil || result.Invoice.QuoteID != quote.ID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "payment does not belong to this quote"))
			return
		}

		responses.WriteSuccess(w, publicConfirmResponse{
			Status:        "confirmed",
			Duplicate:     result.Duplicate,
			InvoiceNumber: result.Invoice.Number,
			ProjectName:   result.Project.Name,
		})
	}
}

type publicQuoteResponse struct {
	ID          uuid.UUID `json:"id"`
	QuoteNumber string    `json:"quote_number"`
	Status      string    `json:"status"`

	CustomerName string  `json:"customer_name"`
	SiteAddress  *string `json:"site_address,omitempty"`

	Subtotal           string `json:"subtotal"`
	DiscountPercentage string `json:"discount_percentage"`
	DiscountAmount     string `json:"discount_amount"`
	DiscountedSubtotal string `json:"discounted_subtotal"`
	TaxRate            string `json:"tax_rate"`
	TaxAmount          string `json:"tax_amount"`
	Total              string `json:"total"`

	DownPaymentPercentage string `json:"down_payment_percentage"`
	MilestonePercentage   string `json:"milestone_percentage"`
	FinalPercentage       string `json:"final_percentage"`

	ValidUntil *time.Time `json:"valid_until,omitempty"`

	LineItems []lineItemResponse `json:"line_items"`
}

func newPublicQuoteResponse(quote *models.Quote) publicQuoteResponse {
	if quote == nil {
		return publicQuoteResponse{}
	}
	return publicQuoteResponse{
		ID:          quote.ID,
		QuoteNumber: quote.QuoteNumber,
		Status:      string(quote.Status),

		CustomerName: quote.CustomerName,
		SiteAddress:  quote.SiteAddress,

		Subtotal:           quote.Subtotal.StringFixed(2),
		DiscountPercentage: quote.DiscountPercentage.String(),
		DiscountAmount:     quote.DiscountAmount.StringFixed(2),
		DiscountedSubtotal: quote.DiscountedSubtotal.StringFixed(2),
		TaxRate:            quote.TaxRate.String(),
		TaxAmount:          quote.TaxAmount.StringFixed(2),
		Total:              quote.Total.StringFixed(2),

		DownPaymentPercentage: quote.DownPaymentPercentage.String(),
		MilestonePercentage:   quote.MilestonePercentage.String(),
		FinalPercentage:       quote.FinalPercentage.String(),

		ValidUntil: quote.ValidUntil,

		LineItems: newLineItemResponses(quote.LineItems),
	}
}
