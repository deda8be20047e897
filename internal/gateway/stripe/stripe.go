package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stafflane/stafflane/internal/config"
	gatewaydomain "github.com/stafflane/stafflane/internal/gateway/domain"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type Adapter struct {
	api           *client.API
	webhookSecret string
}

func New(cfg config.Config) (*Adapter, error) {
	secretKey := strings.TrimSpace(cfg.Gateway.SecretKey)
	if secretKey == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	webhookSecret := strings.TrimSpace(cfg.Gateway.WebhookSecret)
	if webhookSecret == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}

	api := &client.API{}
	api.Init(secretKey, nil)

	return &Adapter{
		api:           api,
		webhookSecret: webhookSecret,
	}, nil
}

func (a *Adapter) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(strings.TrimSpace(name)),
		Email: stripe.String(strings.TrimSpace(email)),
	}
	params.Context = ctx

	customer, err := a.api.Customers.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return customer.ID, nil
}

func (a *Adapter) CreateIntent(ctx context.Context, req gatewaydomain.CreateIntentRequest) (*gatewaydomain.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(strings.TrimSpace(req.Currency))),
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	intent, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripeIntent(intent), nil
}

func (a *Adapter) GetIntent(ctx context.Context, id string) (*gatewaydomain.Intent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, gatewaydomain.ErrIntentNotFound
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := a.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripeIntent(intent), nil
}

func (a *Adapter) CreateRefund(ctx context.Context, paymentIntentID string, amount int64, reason string) (*gatewaydomain.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	if mapped := mapRefundReason(reason); mapped != "" {
		params.Reason = stripe.String(mapped)
	}

	refund, err := a.api.Refunds.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &gatewaydomain.Refund{
		ID:     refund.ID,
		Amount: refund.Amount,
		Status: string(refund.Status),
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header (t=<ts>,v1=<hmac>)
// against an HMAC-SHA256 of "<ts>.<payload>" with the shared secret.
func (a *Adapter) VerifyWebhook(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return gatewaydomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return gatewaydomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return gatewaydomain.ErrInvalidSignature
}

func fromStripeIntent(intent *stripe.PaymentIntent) *gatewaydomain.Intent {
	out := &gatewaydomain.Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Status:       mapIntentStatus(intent.Status),
	}
	if intent.Customer != nil {
		out.CustomerID = intent.Customer.ID
	}
	if intent.LatestCharge != nil {
		out.ChargeID = intent.LatestCharge.ID
	}
	return out
}

func mapIntentStatus(status stripe.PaymentIntentStatus) gatewaydomain.IntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return gatewaydomain.IntentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return gatewaydomain.IntentStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return gatewaydomain.IntentStatusCanceled
	default:
		return gatewaydomain.IntentStatusRequiresPayment
	}
}

func mapRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "duplicate":
		return string(stripe.RefundReasonDuplicate)
	case "fraudulent":
		return string(stripe.RefundReasonFraudulent)
	case "requested_by_customer":
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound {
			return gatewaydomain.ErrIntentNotFound
		}
		// Stripe 5xx (and transport failures with no status) are worth
		// retrying; everything else is Stripe refusing the request.
		if stripeErr.HTTPStatusCode == 0 || stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", gatewaydomain.ErrUnavailable, stripeErr.Code)
		}
		return fmt.Errorf("%w: %s", gatewaydomain.ErrRejected, stripeErr.Code)
	}
	return fmt.Errorf("%w: %v", gatewaydomain.ErrUnavailable, err)
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
