package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stonebridge-contracting/stonebridge-backend/api/responses"
	"github.com/stonebridge-contracting/stonebridge-backend/api/validators"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/lineitems"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db/models"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
)

type createLineItemRequest struct {
	Category           string  `json:"category" validate:"required,min=1,max=120"`
	Description        *string `json:"description" validate:"omitempty,max=1000"`
	Quantity           string  `json:"quantity" validate:"required"`
	Unit               *string `json:"unit" validate:"omitempty,max=32"`
	UnitPrice          string  `json:"unit_price" validate:"required"`
	DiscountPercentage *string `json:"discount_percentage"`
	DiscountAmount     *string `json:"discount_amount"`
}

type updateLineItemRequest struct {
	Category           *string `json:"category" validate:"omitempty,min=1,max=120"`
	Description        *string `json:"description" validate:"omitempty,max=1000"`
	Quantity           *string `json:"quantity"`
	Unit               *string `json:"unit" validate:"omitempty,max=32"`
	UnitPrice          *string `json:"unit_price"`
	DiscountPercentage *string `json:"discount_percentage"`
	DiscountAmount     *string `json:"discount_amount"`
}

// LineItemCreate adds a line item to a quote and refreshes the quote totals.
func LineItemCreate(svc lineitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quoteID, err := quoteIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createLineItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := lineitems.CreateLineItemInput{
			Category:    body.Category,
			Description: body.Description,
			Unit:        body.Unit,
		}
		if input.Quantity, err = validators.ParseDecimal("quantity", body.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.UnitPrice, err = validators.ParseDecimal("unit_price", body.UnitPrice); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.DiscountPercentage, err = validators.ParseOptionalDecimal("discount_percentage", body.DiscountPercentage); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.DiscountAmount, err = validators.ParseOptionalDecimal("discount_amount", body.DiscountAmount); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Create(r.Context(), quoteID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLineItemResponse(item))
	}
}

// LineItemUpdate edits a line item and refreshes the quote totals.
func LineItemUpdate(svc lineitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := lineItemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateLineItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := lineitems.UpdateLineItemInput{
			Category:    body.Category,
			Description: body.Description,
			Unit:        body.Unit,
		}
		if input.Quantity, err = validators.ParseOptionalDecimal("quantity", body.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.UnitPrice, err = validators.ParseOptionalDecimal("unit_price", body.UnitPrice); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.DiscountPercentage, err = validators.ParseOptionalDecimal("discount_percentage", body.DiscountPercentage); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.DiscountAmount, err = validators.ParseOptionalDecimal("discount_amount", body.DiscountAmount); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLineItemResponse(item))
	}
}

// LineItemDelete removes a line item and refreshes the quote totals.
func LineItemDelete(svc lineitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := lineItemIDParam(r)
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

// LineItemList returns a quote's line items ordered by creation.
func LineItemList(svc lineitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quoteID, err := quoteIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.List(r.Context(), quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"line_items": newLineItemResponses(items)})
	}
}

func lineItemIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "lineItemId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid line item identifier")
	}
	return id, nil
}

type lineItemResponse struct {
	ID                 uuid.UUID `json:"id"`
	QuoteID            uuid.UUID `json:"quote_id"`
	Category           string    `json:"category"`
	Description        *string   `json:"description,omitempty"`
	Quantity           string    `json:"quantity"`
	Unit               string    `json:"unit"`
	UnitPrice          string    `json:"unit_price"`
	DiscountPercentage string    `json:"discount_percentage"`
	DiscountAmount     string    `json:"discount_amount"`
	TotalPrice         string    `json:"total_price"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func newLineItemResponse(item *models.QuoteLineItem) lineItemResponse {
	if item == nil {
		return lineItemResponse{}
	}
	return lineItemResponse{
		ID:                 item.ID,
		QuoteID:            item.QuoteID,
		Category:           item.Category,
		Description:        item.Description,
		Quantity:           item.Quantity.String(),
		Unit:               item.Unit,
		UnitPrice:          item.UnitPrice.StringFixed(2),
		DiscountPercentage: item.DiscountPercentage.String(),
		DiscountAmount:     item.DiscountAmount.StringFixed(2),
		TotalPrice:         item.TotalPrice.StringFixed(2),
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
	}
}

func newLineItemResponses(items []models.QuoteLineItem) []lineItemResponse {
	out := make([]lineItemResponse, 0, len(items))
	for i := range items {
		out = append(out, newLineItemResponse(&items[i]))
	}
	return out
}
