package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stafflane/stafflane/pkg/db/pagination"
)

type CreateIntentRequest struct {
	OrgID           snowflake.ID
	ClientID        snowflake.ID
	ConsultantID    *snowflake.ID
	PackageID       *snowflake.ID
	Amount          int64
	Currency        string
	PaymentMethodID string
}

type CreateIntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	TransactionID   string `json:"transaction_id"`
	GrossAmount     int64  `json:"gross_amount"`
	PlatformFee     int64  `json:"platform_fee"`
	ProcessingFee   int64  `json:"processing_fee"`
	NetAmount       int64  `json:"net_amount"`
	Currency        string `json:"currency"`
}

type ConfirmRequest struct {
	PaymentIntentID string
	// RequestedBy restricts confirmation to the owning client when the
	// call arrives from the public API; the webhook path leaves it nil.
	RequestedBy *snowflake.ID
}

type ConfirmResponse struct {
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	CreditsAdded     int64  `json:"credits_added"`
	AvailableCredits int64  `json:"available_credits"`
}

type GetTransactionRequest struct {
	OrgID         snowflake.ID
	TransactionID string
	RequestedBy   *snowflake.ID
	Admin         bool
}

type ListHistoryRequest struct {
	OrgID    snowflake.ID
	ClientID snowflake.ID
	Status   string
	From     *time.Time
	To       *time.Time
	Page     pagination.Pagination
}

type ListHistoryResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type RefundRequest struct {
	OrgID         snowflake.ID
	TransactionID string
	Amount        *int64
	Reason        string
}

type RefundResponse struct {
	RefundID string `json:"refund_id"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

type Service interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (CreateIntentResponse, error)
	Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResponse, error)
	Get(ctx context.Context, req GetTransactionRequest) (Transaction, error)
	ListHistory(ctx context.Context, req ListHistoryRequest) (ListHistoryResponse, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResponse, error)

	// RecordFailure marks a pending transaction failed from the webhook
	// failure path. Best-effort: it never overrides a settled state.
	RecordFailure(ctx context.Context, paymentIntentID, reason string) error
}

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidIntent       = errors.New("invalid_payment_intent")
	ErrDuplicateIntent     = errors.New("duplicate_payment_intent")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrForbidden           = errors.New("transaction_forbidden")
	ErrPaymentNotSucceeded = errors.New("payment_not_succeeded")
	ErrNotRefundable       = errors.New("transaction_not_refundable")
	ErrConfirmConflict     = errors.New("confirm_conflict")
)
