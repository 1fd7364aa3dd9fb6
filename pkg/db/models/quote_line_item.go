package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteLineItem is one priced unit of work or material within a quote.
// TotalPrice is derived (quantity x unit price less the item discount) and
// kept in sync by the line item service on every mutation.
type QuoteLineItem struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QuoteID            uuid.UUID       `gorm:"column:quote_id;type:uuid;not null;index"`
	Category           string          `gorm:"column:category;not null"`
	Description        *string         `gorm:"column:description"`
	Quantity           decimal.Decimal `gorm:"column:quantity;type:numeric(10,2);not null"`
	Unit               string          `gorm:"column:unit;not null;default:'unit'"`
	UnitPrice          decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	DiscountPercentage decimal.Decimal `gorm:"column:discount_percentage;type:numeric(5,2);not null;default:0"`
	DiscountAmount     decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	TotalPrice         decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null;default:0"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
