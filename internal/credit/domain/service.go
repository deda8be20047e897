package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	EligibilityMethodFreeTrial = "free_trial"
	EligibilityMethodCredits   = "credits"
	EligibilityMethodPayment   = "payment"
)

type GrantRequest struct {
	OrgID      snowflake.ID
	ClientID   snowflake.ID
	PackageID  snowflake.ID
	BillingRef string
	// AmountSpent feeds the lifetime totalSpent counter, minor units.
	AmountSpent int64
}

type GrantResult struct {
	CreditsAdded int64
	LotID        snowflake.ID
}

type DeductRequest struct {
	OrgID          snowflake.ID
	ClientID       snowflake.ID
	ConsultationID snowflake.ID
}

type ClawbackRequest struct {
	OrgID      snowflake.ID
	ClientID   snowflake.ID
	BillingRef string
}

type ClawbackResult struct {
	CreditsRemoved int64
	AlreadyDone    bool
}

type BalanceResponse struct {
	AvailableCredits int64       `json:"available_credits"`
	ActiveLots       []CreditLot `json:"active_credits"`
	FreeTrial        FreeTrial   `json:"free_trial"`
	Lifetime         Lifetime    `json:"lifetime"`
}

type FreeTrial struct {
	Eligible  bool       `json:"eligible"`
	Used      bool       `json:"used"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Lifetime struct {
	TotalCreditsPurchased int64 `json:"total_credits_purchased"`
	TotalCreditsUsed      int64 `json:"total_credits_used"`
	TotalSpent            int64 `json:"total_spent"`
	TotalConsultations    int64 `json:"total_consultations"`
}

type EligibilityRequest struct {
	OrgID           snowflake.ID
	ClientID        snowflake.ID
	DurationMinutes int
}

type EligibilityResponse struct {
	Valid           bool   `json:"valid"`
	PaymentRequired bool   `json:"payment_required"`
	Method          string `json:"method"`
}

// Service owns the per-client credit ledger. Grant and Clawback take the
// caller's transaction handle so they compose with the billing status
// transition; Deduct drives its own retry loop.
type Service interface {
	Grant(ctx context.Context, tx *gorm.DB, req GrantRequest) (GrantResult, error)
	Deduct(ctx context.Context, req DeductRequest) error
	Clawback(ctx context.Context, tx *gorm.DB, req ClawbackRequest) (ClawbackResult, error)
	Balance(ctx context.Context, orgID, clientID snowflake.ID) (BalanceResponse, error)
	Eligibility(ctx context.Context, req EligibilityRequest) (EligibilityResponse, error)
	UseTrial(ctx context.Context, orgID, clientID snowflake.ID) error
	FindPackage(ctx context.Context, orgID, packageID snowflake.ID) (*CreditPackage, error)
}

var (
	ErrInvalidClient       = errors.New("invalid_client")
	ErrPackageNotFound     = errors.New("package_not_found")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrLotNotFound         = errors.New("credit_lot_not_found")
	ErrWriteConflict       = errors.New("credit_write_conflict")
)
