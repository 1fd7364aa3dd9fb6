package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
)

// InvoicePaymentReferenceConstraint names the unique index that arbitrates
// duplicate payment confirmations.
const InvoicePaymentReferenceConstraint = "uq_invoices_payment_reference"

// Invoice bills a portion of a project back to the customer. At most one
// invoice may carry a given external payment reference.
type Invoice struct {
	ID                       uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID                uuid.UUID           `gorm:"column:project_id;type:uuid;not null;index"`
	QuoteID                  uuid.UUID           `gorm:"column:quote_id;type:uuid;not null;index"`
	Number                   string              `gorm:"column:number;not null;uniqueIndex:uq_invoices_number"`
	Type                     enums.InvoiceType   `gorm:"column:type;type:invoice_type;not null"`
	Status                   enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'unpaid'"`
	Amount                   decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency                 string              `gorm:"column:currency;not null;default:'usd'"`
	ExternalPaymentReference *string             `gorm:"column:external_payment_reference;uniqueIndex:uq_invoices_payment_reference"`
	PaidAt                   *time.Time          `gorm:"column:paid_at"`
	CreatedAt                time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
