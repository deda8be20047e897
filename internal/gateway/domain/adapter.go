package domain

import (
	"context"
	"errors"
	"net/http"
)

type IntentStatus string

const (
	IntentStatusRequiresPayment IntentStatus = "requires_payment_method"
	IntentStatusProcessing      IntentStatus = "processing"
	IntentStatusSucceeded       IntentStatus = "succeeded"
	IntentStatusCanceled        IntentStatus = "canceled"
)

// Intent is the gateway's view of a payment attempt.
type Intent struct {
	ID           string
	ClientSecret string
	CustomerID   string
	ChargeID     string
	Amount       int64
	Currency     string
	Status       IntentStatus
}

type CreateIntentRequest struct {
	Amount          int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Metadata        map[string]string
}

type Refund struct {
	ID     string
	Amount int64
	Status string
}

// Adapter is the only component permitted to hold gateway credentials.
type Adapter interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amount int64, reason string) (*Refund, error)
	VerifyWebhook(payload []byte, headers http.Header) error
}

var (
	ErrInvalidConfig    = errors.New("invalid_gateway_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrIntentNotFound   = errors.New("intent_not_found")
	// ErrRejected means the gateway refused the request outright, so a
	// retry with the same inputs cannot succeed.
	ErrRejected    = errors.New("gateway_rejected")
	ErrUnavailable = errors.New("gateway_unavailable")
)
