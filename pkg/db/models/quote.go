package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
)

// Quote is a priced proposal sent to a customer. Monetary fields are derived
// from the line items and override fields and persisted as fixed-point
// decimals, never recomputed from floats on read.
type Quote struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QuoteNumber string            `gorm:"column:quote_number;not null;uniqueIndex:uq_quotes_number"`
	Status      enums.QuoteStatus `gorm:"column:status;type:quote_status;not null;default:'draft'"`
	AccessToken string            `gorm:"column:access_token;not null;uniqueIndex:uq_quotes_access_token"`

	CustomerName  string  `gorm:"column:customer_name;not null"`
	CustomerEmail string  `gorm:"column:customer_email;not null"`
	CustomerPhone *string `gorm:"column:customer_phone"`
	SiteAddress   *string `gorm:"column:site_address"`

	Subtotal           decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	DiscountPercentage decimal.Decimal `gorm:"column:discount_percentage;type:numeric(5,2);not null;default:0"`
	DiscountAmount     decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	DiscountedSubtotal decimal.Decimal `gorm:"column:discounted_subtotal;type:numeric(12,2);not null;default:0"`
	TaxRate            decimal.Decimal `gorm:"column:tax_rate;type:numeric(8,4);not null;default:0"`
	TaxAmount          decimal.Decimal `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	IsManualTax        bool            `gorm:"column:is_manual_tax;not null;default:false"`
	Total              decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	TotalsStale        bool            `gorm:"column:totals_stale;not null;default:false"`

	DownPaymentPercentage decimal.Decimal `gorm:"column:down_payment_percentage;type:numeric(5,2);not null;default:30"`
	MilestonePercentage   decimal.Decimal `gorm:"column:milestone_percentage;type:numeric(5,2);not null;default:40"`
	FinalPercentage       decimal.Decimal `gorm:"column:final_percentage;type:numeric(5,2);not null;default:30"`

	ValidUntil  *time.Time `gorm:"column:valid_until"`
	SentAt      *time.Time `gorm:"column:sent_at"`
	ViewedAt    *time.Time `gorm:"column:viewed_at"`
	RespondedAt *time.Time `gorm:"column:responded_at"`

	LineItems []QuoteLineItem `gorm:"foreignKey:QuoteID"`
	Responses []QuoteResponse `gorm:"foreignKey:QuoteID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
