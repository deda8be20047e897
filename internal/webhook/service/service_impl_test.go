package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	gatewaydomain "github.com/stafflane/stafflane/internal/gateway/domain"
	webhookdomain "github.com/stafflane/stafflane/internal/webhook/domain"
	"github.com/stafflane/stafflane/internal/webhook/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestIngestDispatchesSucceededEvent(t *testing.T) {
	f := setupWebhook(t)

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	result, err := f.svc.Ingest(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("expected first delivery, got duplicate")
	}
	if f.billing.confirms != 1 {
		t.Fatalf("expected 1 confirm, got %d", f.billing.confirms)
	}
	if f.billing.lastIntentID != "pi_1" {
		t.Fatalf("expected pi_1, got %s", f.billing.lastIntentID)
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM payment_webhook_events WHERE provider_event_id = 'evt_1'`).Scan(&status).Error; err != nil {
		t.Fatalf("read event: %v", err)
	}
	if status != string(webhookdomain.EventStatusProcessed) {
		t.Fatalf("expected processed, got %s", status)
	}
}

func TestIngestRedeliveryIsNoop(t *testing.T) {
	f := setupWebhook(t)

	payload := []byte(`{"id":"evt_dup","type":"payment_intent.succeeded","data":{"object":{"id":"pi_9"}}}`)
	if _, err := f.svc.Ingest(context.Background(), payload, http.Header{}); err != nil {
		t.Fatalf("ingest first: %v", err)
	}

	result, err := f.svc.Ingest(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("ingest second: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("expected duplicate")
	}
	if f.billing.confirms != 1 {
		t.Fatalf("expected 1 confirm, got %d", f.billing.confirms)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM payment_webhook_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 event row, got %d", count)
	}
}

func TestIngestRedeliveryRedrivesUnsettledDispatch(t *testing.T) {
	f := setupWebhook(t)
	f.billing.confirmErr = gatewaydomain.ErrUnavailable

	payload := []byte(`{"id":"evt_retry","type":"payment_intent.succeeded","data":{"object":{"id":"pi_7"}}}`)
	if _, err := f.svc.Ingest(context.Background(), payload, http.Header{}); !errors.Is(err, gatewaydomain.ErrUnavailable) {
		t.Fatalf("expected dispatch failure surfaced, got %v", err)
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM payment_webhook_events WHERE provider_event_id = 'evt_retry'`).Scan(&status).Error; err != nil {
		t.Fatalf("read event: %v", err)
	}
	if status != string(webhookdomain.EventStatusReceived) {
		t.Fatalf("expected received after failed dispatch, got %s", status)
	}

	// The fault clears; the gateway's redelivery must finish the job.
	f.billing.confirmErr = nil
	result, err := f.svc.Ingest(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("ingest redelivery: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("expected duplicate flag on redelivery")
	}
	if f.billing.confirms != 1 {
		t.Fatalf("expected redelivery to confirm, got %d confirms", f.billing.confirms)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM payment_webhook_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 event row, got %d", count)
	}
	if err := f.db.Raw(`SELECT status FROM payment_webhook_events WHERE provider_event_id = 'evt_retry'`).Scan(&status).Error; err != nil {
		t.Fatalf("read event: %v", err)
	}
	if status != string(webhookdomain.EventStatusProcessed) {
		t.Fatalf("expected processed after redelivery, got %s", status)
	}
}

func TestIngestFailedEventRecordsReason(t *testing.T) {
	f := setupWebhook(t)

	payload := []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2","last_payment_error":{"code":"card_declined","message":"declined"}}}}`)
	if _, err := f.svc.Ingest(context.Background(), payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if f.billing.failures != 1 {
		t.Fatalf("expected 1 failure dispatch, got %d", f.billing.failures)
	}
	if f.billing.lastReason != "card_declined" {
		t.Fatalf("expected card_declined, got %s", f.billing.lastReason)
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	f := setupWebhook(t)
	f.gateway.verifyErr = gatewaydomain.ErrInvalidSignature

	payload := []byte(`{"id":"evt_3","type":"payment_intent.succeeded","data":{"object":{"id":"pi_3"}}}`)
	if _, err := f.svc.Ingest(context.Background(), payload, http.Header{}); !errors.Is(err, gatewaydomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM payment_webhook_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no event recorded, got %d", count)
	}
}

func TestIngestRejectsMalformedPayload(t *testing.T) {
	f := setupWebhook(t)

	for _, payload := range []string{`{`, `{}`, `{"id":"evt_4"}`} {
		if _, err := f.svc.Ingest(context.Background(), []byte(payload), http.Header{}); !errors.Is(err, webhookdomain.ErrInvalidPayload) {
			t.Fatalf("payload %q: expected invalid payload, got %v", payload, err)
		}
	}
}

func TestIngestUnknownEventTypeIsSkipped(t *testing.T) {
	f := setupWebhook(t)

	payload := []byte(`{"id":"evt_5","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	if _, err := f.svc.Ingest(context.Background(), payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if f.billing.confirms != 0 || f.billing.failures != 0 {
		t.Fatalf("expected no dispatch for unknown type")
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM payment_webhook_events WHERE provider_event_id = 'evt_5'`).Scan(&status).Error; err != nil {
		t.Fatalf("read event: %v", err)
	}
	if status != string(webhookdomain.EventStatusSkipped) {
		t.Fatalf("expected skipped, got %s", status)
	}
}

func TestIngestUnknownIntentIsSkipped(t *testing.T) {
	f := setupWebhook(t)
	f.billing.confirmErr = billingdomain.ErrTransactionNotFound

	payload := []byte(`{"id":"evt_6","type":"payment_intent.succeeded","data":{"object":{"id":"pi_missing"}}}`)
	if _, err := f.svc.Ingest(context.Background(), payload, http.Header{}); err != nil {
		t.Fatalf("expected unknown intent acknowledged, got %v", err)
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM payment_webhook_events WHERE provider_event_id = 'evt_6'`).Scan(&status).Error; err != nil {
		t.Fatalf("read event: %v", err)
	}
	if status != string(webhookdomain.EventStatusSkipped) {
		t.Fatalf("expected skipped, got %s", status)
	}
}

type webhookFixture struct {
	db      *gorm.DB
	svc     webhookdomain.Service
	billing *billingStub
	gateway *verifyStub
}

func setupWebhook(t *testing.T) *webhookFixture {
	t.Helper()

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.Exec(`CREATE TABLE payment_webhook_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payment_intent_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		processed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create events: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_webhook_events_provider_event
		ON payment_webhook_events (provider, provider_event_id)`).Error; err != nil {
		t.Fatalf("create events index: %v", err)
	}

	billing := &billingStub{}
	gateway := &verifyStub{}
	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Cfg:     config.Config{Gateway: config.GatewayConfig{Provider: "stripe"}},
		Clock:   clock.New(),
		Repo:    repository.Provide(),
		Gateway: gateway,
		Billing: billing,
	})

	return &webhookFixture{db: db, svc: svc, billing: billing, gateway: gateway}
}

type billingStub struct {
	confirms     int
	failures     int
	lastIntentID string
	lastReason   string
	confirmErr   error
}

func (b *billingStub) CreateIntent(ctx context.Context, req billingdomain.CreateIntentRequest) (billingdomain.CreateIntentResponse, error) {
	return billingdomain.CreateIntentResponse{}, nil
}

func (b *billingStub) Confirm(ctx context.Context, req billingdomain.ConfirmRequest) (billingdomain.ConfirmResponse, error) {
	if b.confirmErr != nil {
		return billingdomain.ConfirmResponse{}, b.confirmErr
	}
	b.confirms++
	b.lastIntentID = req.PaymentIntentID
	return billingdomain.ConfirmResponse{TransactionID: "txn_1", Status: "succeeded"}, nil
}

func (b *billingStub) Get(ctx context.Context, req billingdomain.GetTransactionRequest) (billingdomain.Transaction, error) {
	return billingdomain.Transaction{}, nil
}

func (b *billingStub) ListHistory(ctx context.Context, req billingdomain.ListHistoryRequest) (billingdomain.ListHistoryResponse, error) {
	return billingdomain.ListHistoryResponse{}, nil
}

func (b *billingStub) Refund(ctx context.Context, req billingdomain.RefundRequest) (billingdomain.RefundResponse, error) {
	return billingdomain.RefundResponse{}, nil
}

func (b *billingStub) RecordFailure(ctx context.Context, paymentIntentID, reason string) error {
	b.failures++
	b.lastIntentID = paymentIntentID
	b.lastReason = reason
	return nil
}

type verifyStub struct {
	verifyErr error
}

func (v *verifyStub) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	return "cus_1", nil
}

func (v *verifyStub) CreateIntent(ctx context.Context, req gatewaydomain.CreateIntentRequest) (*gatewaydomain.Intent, error) {
	return nil, nil
}

func (v *verifyStub) GetIntent(ctx context.Context, id string) (*gatewaydomain.Intent, error) {
	return nil, gatewaydomain.ErrIntentNotFound
}

func (v *verifyStub) CreateRefund(ctx context.Context, paymentIntentID string, amount int64, reason string) (*gatewaydomain.Refund, error) {
	return nil, nil
}

func (v *verifyStub) VerifyWebhook(payload []byte, headers http.Header) error {
	return v.verifyErr
}
