package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
)

// QuoteResponse records the customer's decision metadata for a quote.
type QuoteResponse struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QuoteID     uuid.UUID                 `gorm:"column:quote_id;type:uuid;not null;index"`
	Action      enums.QuoteResponseAction `gorm:"column:action;type:quote_response_action;not null"`
	RequesterIP *string                   `gorm:"column:requester_ip"`
	Message     *string                   `gorm:"column:message"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
