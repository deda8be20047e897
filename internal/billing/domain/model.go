package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusSucceeded TransactionStatus = "succeeded"
	StatusFailed    TransactionStatus = "failed"
	StatusRefunded  TransactionStatus = "refunded"
)

// Transaction is one payment attempt. TransactionID is the public,
// human-referenceable handle; PaymentIntentID is the gateway-assigned
// idempotency anchor and is unique across non-deleted rows. Rows are
// soft-flagged via DeletedAt, never hard-deleted.
type Transaction struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	TransactionID string        `gorm:"type:text;not null;uniqueIndex:ux_transactions_ref" json:"transaction_id"`
	OrgID         snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	ClientID      snowflake.ID  `gorm:"not null;index" json:"client_id"`
	ConsultantID  *snowflake.ID `gorm:"index" json:"consultant_id,omitempty"`
	PackageID     *snowflake.ID `json:"package_id,omitempty"`

	GrossAmount   int64  `gorm:"not null" json:"gross_amount"`
	PlatformFee   int64  `gorm:"not null" json:"platform_fee"`
	ProcessingFee int64  `gorm:"not null" json:"processing_fee"`
	NetAmount     int64  `gorm:"not null" json:"net_amount"`
	Currency      string `gorm:"type:text;not null" json:"currency"`

	PaymentIntentID   string `gorm:"type:text;not null;uniqueIndex:ux_transactions_intent" json:"payment_intent_id"`
	GatewayCustomerID string `gorm:"type:text" json:"-"`
	ChargeID          string `gorm:"type:text" json:"-"`

	Status        TransactionStatus `gorm:"type:text;not null;index" json:"status"`
	FailureReason string            `gorm:"type:text" json:"failure_reason,omitempty"`
	CreditsAdded  int64             `gorm:"not null;default:0" json:"credits_added"`

	RefundID     string     `gorm:"type:text" json:"refund_id,omitempty"`
	RefundAmount int64      `gorm:"not null;default:0" json:"refund_amount,omitempty"`
	RefundStatus string     `gorm:"type:text" json:"refund_status,omitempty"`
	RefundReason string     `gorm:"type:text" json:"refund_reason,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`

	PayoutScheduled bool          `gorm:"not null;default:FALSE" json:"payout_scheduled"`
	PayoutDate      *time.Time    `json:"payout_date,omitempty"`
	PayoutBatchID   *snowflake.ID `gorm:"index" json:"payout_batch_id,omitempty"`

	SucceededAt *time.Time `json:"succeeded_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	DeletedAt   *time.Time `gorm:"index" json:"-"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// IsRefundable reports whether a refund may be initiated.
func (t *Transaction) IsRefundable() bool {
	return t.Status == StatusSucceeded && t.RefundID == ""
}
