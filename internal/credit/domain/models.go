package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type LotStatus string

const (
	LotStatusActive   LotStatus = "active"
	LotStatusDepleted LotStatus = "depleted"
	LotStatusExpired  LotStatus = "expired"
	LotStatusRefunded LotStatus = "refunded"
)

// CreditLot is a batch of consultation credits from a single package
// purchase. BillingRef points back at the originating transaction by its
// public reference only; the lot never owns the transaction. The unique
// index on BillingRef is what makes credit granting exactly-once.
type CreditLot struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID `gorm:"not null;index" json:"organization_id"`
	ClientID         snowflake.ID `gorm:"not null;index" json:"client_id"`
	PackageID        snowflake.ID `gorm:"not null" json:"package_id"`
	BillingRef       string       `gorm:"type:text;not null;uniqueIndex:ux_credit_lots_billing_ref" json:"billing_ref"`
	CreditsAdded     int64        `gorm:"not null" json:"credits_added"`
	CreditsUsed      int64        `gorm:"not null;default:0" json:"credits_used"`
	CreditsRemaining int64        `gorm:"not null" json:"credits_remaining"`
	Status           LotStatus    `gorm:"type:text;not null" json:"status"`
	PurchaseDate     time.Time    `gorm:"not null" json:"purchase_date"`
	ExpiryDate       *time.Time   `json:"expiry_date,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CreditLot) TableName() string { return "credit_lots" }

// CreditPackage defines a purchasable bundle of consultation credits.
type CreditPackage struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index" json:"organization_id"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	Credits    int64        `gorm:"not null" json:"credits"`
	Price      int64        `gorm:"not null" json:"price"`
	Currency   string       `gorm:"type:text;not null" json:"currency"`
	ExpiryDays int          `gorm:"not null;default:0" json:"expiry_days"`
	Active     bool         `gorm:"not null;default:TRUE" json:"active"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CreditPackage) TableName() string { return "credit_packages" }
