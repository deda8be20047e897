package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Client is the consulting client aggregate. The credit summary counters
// live on this row; Version guards every summary read-modify-write.
type Client struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	Name              string            `gorm:"not null" json:"name"`
	Email             string            `gorm:"not null" json:"email"`
	GatewayCustomerID string            `gorm:"type:text" json:"-"`
	Currency          string            `gorm:"type:text" json:"currency,omitempty"`

	AvailableCredits      int64 `gorm:"not null;default:0" json:"available_credits"`
	TotalCreditsPurchased int64 `gorm:"not null;default:0" json:"total_credits_purchased"`
	TotalCreditsUsed      int64 `gorm:"not null;default:0" json:"total_credits_used"`
	TotalSpent            int64 `gorm:"not null;default:0" json:"total_spent"`
	TotalConsultations    int64 `gorm:"not null;default:0" json:"total_consultations"`

	TrialEligible  bool       `gorm:"not null;default:TRUE" json:"trial_eligible"`
	TrialUsed      bool       `gorm:"not null;default:FALSE" json:"trial_used"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`

	Version   int64             `gorm:"not null;default:0" json:"-"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

// SummaryDelta is applied to the client summary under a version CAS.
// Available is clamped at zero by the repository when Clamp is set.
type SummaryDelta struct {
	Available        int64
	CreditsPurchased int64
	CreditsUsed      int64
	Spent            int64
	Consultations    int64
	Clamp            bool
	MarkTrialUsed    bool
}
