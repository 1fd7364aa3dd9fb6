package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/enums"
)

// Project is the execution record spawned from an accepted quote. The unique
// origin quote index guarantees at most one project per quote.
type Project struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OriginQuoteID uuid.UUID           `gorm:"column:origin_quote_id;type:uuid;not null;uniqueIndex:uq_projects_origin_quote"`
	Name          string              `gorm:"column:name;not null"`
	Status        enums.ProjectStatus `gorm:"column:status;type:project_status;not null;default:'pending_payment'"`
	Budget        decimal.Decimal     `gorm:"column:budget;type:numeric(12,2);not null;default:0"`
	StartDate     *time.Time          `gorm:"column:start_date"`
	EndDate       *time.Time          `gorm:"column:end_date"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
