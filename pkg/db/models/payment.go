package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is a ledger entry for a successful transfer against an invoice.
type Payment struct {
	ID                       uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID                uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null;index"`
	ExternalPaymentReference string          `gorm:"column:external_payment_reference;not null"`
	Amount                   decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency                 string          `gorm:"column:currency;not null;default:'usd'"`
	PaidAt                   time.Time       `gorm:"column:paid_at;not null"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
}
