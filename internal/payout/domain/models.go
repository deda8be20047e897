package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type BatchStatus string

const (
	BatchStatusScheduled BatchStatus = "scheduled"
	BatchStatusPaid      BatchStatus = "paid"
)

// PayoutBatch groups a consultant's settled, not-yet-paid earnings into one
// transfer. Totals are net amounts; platform and processing fees were
// already carved out at charge time.
type PayoutBatch struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID `gorm:"not null;index" json:"organization_id"`
	ConsultantID     snowflake.ID `gorm:"not null;index" json:"consultant_id"`
	TotalAmount      int64        `gorm:"not null" json:"total_amount"`
	TransactionCount int64        `gorm:"not null" json:"transaction_count"`
	Currency         string       `gorm:"type:text;not null" json:"currency"`
	Status           BatchStatus  `gorm:"type:text;not null" json:"status"`
	PayoutDate       time.Time    `gorm:"not null" json:"payout_date"`
	PaidAt           *time.Time   `json:"paid_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PayoutBatch) TableName() string { return "payout_batches" }
