package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	billingrepository "github.com/stafflane/stafflane/internal/billing/repository"
	clientrepository "github.com/stafflane/stafflane/internal/client/repository"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	creditdomain "github.com/stafflane/stafflane/internal/credit/domain"
	creditrepository "github.com/stafflane/stafflane/internal/credit/repository"
	creditservice "github.com/stafflane/stafflane/internal/credit/service"
	gatewaydomain "github.com/stafflane/stafflane/internal/gateway/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestComputeFees(t *testing.T) {
	cfg := config.BillingConfig{
		PlatformFeeBps:  1500,
		GatewayFeeBps:   290,
		GatewayFixedFee: 30,
	}

	fees := computeFees(cfg, 10000)
	if fees.Platform != 1500 {
		t.Fatalf("platform fee: expected 1500, got %d", fees.Platform)
	}
	if fees.Processing != 320 {
		t.Fatalf("processing fee: expected 320, got %d", fees.Processing)
	}
	if fees.Net != 8180 {
		t.Fatalf("net: expected 8180, got %d", fees.Net)
	}

	for _, gross := range []int64{1, 99, 101, 333, 2500, 9999, 123457} {
		fees := computeFees(cfg, gross)
		if fees.Platform+fees.Processing+fees.Net != gross {
			t.Fatalf("fee parts do not re-sum to gross %d: %+v", gross, fees)
		}
	}
}

func TestCreateIntentPersistsPending(t *testing.T) {
	f := setupBilling(t)

	resp, err := f.svc.CreateIntent(context.Background(), billingdomain.CreateIntentRequest{
		OrgID:     f.orgID,
		ClientID:  f.clientID,
		PackageID: &f.packageID,
		Amount:    10000,
		Currency:  "USD",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if resp.PlatformFee != 1500 || resp.ProcessingFee != 320 || resp.NetAmount != 8180 {
		t.Fatalf("unexpected fee breakdown: %+v", resp)
	}
	if resp.Currency != "usd" {
		t.Fatalf("expected normalized currency, got %q", resp.Currency)
	}

	txn := fetchTxn(t, f.db, resp.PaymentIntentID)
	if txn.Status != billingdomain.StatusPending {
		t.Fatalf("expected pending, got %s", txn.Status)
	}
	if txn.GrossAmount != 10000 || txn.NetAmount != 8180 {
		t.Fatalf("unexpected persisted amounts: %+v", txn)
	}

	// The gateway customer is provisioned lazily and cached on the client.
	if f.gateway.customerCalls != 1 {
		t.Fatalf("expected 1 customer call, got %d", f.gateway.customerCalls)
	}
	if _, err := f.svc.CreateIntent(context.Background(), billingdomain.CreateIntentRequest{
		OrgID:    f.orgID,
		ClientID: f.clientID,
		Amount:   500,
		Currency: "usd",
	}); err != nil {
		t.Fatalf("second intent: %v", err)
	}
	if f.gateway.customerCalls != 1 {
		t.Fatalf("expected cached customer, got %d calls", f.gateway.customerCalls)
	}
}

func TestCreateIntentValidation(t *testing.T) {
	f := setupBilling(t)

	if _, err := f.svc.CreateIntent(context.Background(), billingdomain.CreateIntentRequest{
		OrgID:    f.orgID,
		ClientID: f.clientID,
		Amount:   0,
		Currency: "usd",
	}); !errors.Is(err, billingdomain.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	if _, err := f.svc.CreateIntent(context.Background(), billingdomain.CreateIntentRequest{
		OrgID:    f.orgID,
		ClientID: f.clientID,
		Amount:   100,
		Currency: "token",
	}); !errors.Is(err, billingdomain.ErrInvalidCurrency) {
		t.Fatalf("expected invalid currency, got %v", err)
	}

	// Package purchase amount must match the package price.
	if _, err := f.svc.CreateIntent(context.Background(), billingdomain.CreateIntentRequest{
		OrgID:     f.orgID,
		ClientID:  f.clientID,
		PackageID: &f.packageID,
		Amount:    9999,
		Currency:  "usd",
	}); !errors.Is(err, billingdomain.ErrInvalidAmount) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}
}

func TestConfirmGrantsCreditsOnce(t *testing.T) {
	f := setupBilling(t)
	intentID := f.createPendingIntent(t)
	f.gateway.setStatus(intentID, gatewaydomain.IntentStatusSucceeded)

	first, err := f.svc.Confirm(context.Background(), billingdomain.ConfirmRequest{PaymentIntentID: intentID})
	if err != nil {
		t.Fatalf("confirm first: %v", err)
	}
	if first.CreditsAdded != 10 {
		t.Fatalf("expected 10 credits added, got %d", first.CreditsAdded)
	}
	if first.AvailableCredits != 10 {
		t.Fatalf("expected 10 available, got %d", first.AvailableCredits)
	}

	second, err := f.svc.Confirm(context.Background(), billingdomain.ConfirmRequest{PaymentIntentID: intentID})
	if err != nil {
		t.Fatalf("confirm second: %v", err)
	}
	if second.CreditsAdded != 10 || second.AvailableCredits != 10 {
		t.Fatalf("expected idempotent confirm, got %+v", second)
	}

	if n := countLots(t, f.db); n != 1 {
		t.Fatalf("expected 1 credit lot, got %d", n)
	}
}

func TestConfirmConcurrent(t *testing.T) {
	f := setupBilling(t)
	intentID := f.createPendingIntent(t)
	f.gateway.setStatus(intentID, gatewaydomain.IntentStatusSucceeded)

	const workers = 4
	var wg sync.WaitGroup
	results := make([]billingdomain.ConfirmResponse, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Confirm(context.Background(), billingdomain.ConfirmRequest{PaymentIntentID: intentID})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("confirm %d: %v", i, errs[i])
		}
		if results[i].CreditsAdded != 10 {
			t.Fatalf("confirm %d: expected 10 credits, got %d", i, results[i].CreditsAdded)
		}
	}

	if n := countLots(t, f.db); n != 1 {
		t.Fatalf("expected 1 credit lot, got %d", n)
	}

	var available int64
	if err := f.db.Raw(`SELECT available_credits FROM clients WHERE id = ?`, f.clientID).Scan(&available).Error; err != nil {
		t.Fatalf("read client: %v", err)
	}
	if available != 10 {
		t.Fatalf("expected 10 available credits, got %d", available)
	}
}

func TestConfirmRequiresSucceededIntent(t *testing.T) {
	f := setupBilling(t)
	intentID := f.createPendingIntent(t)
	f.gateway.setStatus(intentID, gatewaydomain.IntentStatusProcessing)

	if _, err := f.svc.Confirm(context.Background(), billingdomain.ConfirmRequest{PaymentIntentID: intentID}); !errors.Is(err, billingdomain.ErrPaymentNotSucceeded) {
		t.Fatalf("expected payment not succeeded, got %v", err)
	}

	if _, err := f.svc.Confirm(context.Background(), billingdomain.ConfirmRequest{PaymentIntentID: "pi_unknown"}); !errors.Is(err, billingdomain.ErrInvalidIntent) {
		t.Fatalf("expected invalid intent, got %v", err)
	}

	txn := fetchTxn(t, f.db, intentID)
	if txn.Status != billingdomain.StatusPending {
		t.Fatalf("expected transaction untouched, got %s", txn.Status)
	}
}

func TestConfirmOwnership(t *testing.T) {
	f := setupBilling(t)
	intentID := f.createPendingIntent(t)
	f.gateway.setStatus(intentID, gatewaydomain.IntentStatusSucceeded)

	stranger := f.node.Generate()
	if _, err := f.svc.Confirm(context.Background(), billingdomain.ConfirmRequest{
		PaymentIntentID: intentID,
		RequestedBy:     &stranger,
	}); !errors.Is(err, billingdomain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if _, err := f.svc.Confirm(context.Background(), billingdomain.ConfirmRequest{
		PaymentIntentID: intentID,
		RequestedBy:     &f.clientID,
	}); err != nil {
		t.Fatalf("owner confirm: %v", err)
	}
}

func TestRefundClawsBackCredits(t *testing.T) {
	f := setupBilling(t)
	intentID := f.createPendingIntent(t)
	f.gateway.setStatus(intentID, gatewaydomain.IntentStatusSucceeded)

	confirmed, err := f.svc.Confirm(context.Background(), billingdomain.ConfirmRequest{PaymentIntentID: intentID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	resp, err := f.svc.Refund(context.Background(), billingdomain.RefundRequest{
		OrgID:         f.orgID,
		TransactionID: confirmed.TransactionID,
		Reason:        "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if resp.Amount != 8180 {
		t.Fatalf("expected default refund of net amount, got %d", resp.Amount)
	}

	txn := fetchTxn(t, f.db, intentID)
	if txn.Status != billingdomain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", txn.Status)
	}

	var available int64
	if err := f.db.Raw(`SELECT available_credits FROM clients WHERE id = ?`, f.clientID).Scan(&available).Error; err != nil {
		t.Fatalf("read client: %v", err)
	}
	if available != 0 {
		t.Fatalf("expected credits clawed back to 0, got %d", available)
	}

	var lotStatus string
	if err := f.db.Raw(`SELECT status FROM credit_lots WHERE billing_ref = ?`, confirmed.TransactionID).Scan(&lotStatus).Error; err != nil {
		t.Fatalf("read lot: %v", err)
	}
	if lotStatus != string(creditdomain.LotStatusRefunded) {
		t.Fatalf("expected refunded lot, got %s", lotStatus)
	}

	// Second attempt trips the refundable guard before any gateway call.
	refundCalls := f.gateway.refundCalls
	if _, err := f.svc.Refund(context.Background(), billingdomain.RefundRequest{
		OrgID:         f.orgID,
		TransactionID: confirmed.TransactionID,
	}); !errors.Is(err, billingdomain.ErrNotRefundable) {
		t.Fatalf("expected not refundable, got %v", err)
	}
	if f.gateway.refundCalls != refundCalls {
		t.Fatalf("expected no further gateway refund call")
	}
}

func TestRefundRequiresSucceeded(t *testing.T) {
	f := setupBilling(t)
	intentID := f.createPendingIntent(t)
	txn := fetchTxn(t, f.db, intentID)

	if _, err := f.svc.Refund(context.Background(), billingdomain.RefundRequest{
		OrgID:         f.orgID,
		TransactionID: txn.TransactionID,
	}); !errors.Is(err, billingdomain.ErrNotRefundable) {
		t.Fatalf("expected not refundable for pending, got %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := setupBilling(t)
	intentID := f.createPendingIntent(t)
	txn := fetchTxn(t, f.db, intentID)

	if _, err := f.svc.Get(context.Background(), billingdomain.GetTransactionRequest{
		OrgID:         f.orgID,
		TransactionID: txn.TransactionID,
		RequestedBy:   &f.clientID,
	}); err != nil {
		t.Fatalf("owner get: %v", err)
	}

	stranger := f.node.Generate()
	if _, err := f.svc.Get(context.Background(), billingdomain.GetTransactionRequest{
		OrgID:         f.orgID,
		TransactionID: txn.TransactionID,
		RequestedBy:   &stranger,
	}); !errors.Is(err, billingdomain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if _, err := f.svc.Get(context.Background(), billingdomain.GetTransactionRequest{
		OrgID:         f.orgID,
		TransactionID: txn.TransactionID,
		Admin:         true,
	}); err != nil {
		t.Fatalf("admin get: %v", err)
	}

	if _, err := f.svc.Get(context.Background(), billingdomain.GetTransactionRequest{
		OrgID:         f.orgID,
		TransactionID: "txn_missing",
		Admin:         true,
	}); !errors.Is(err, billingdomain.ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordFailure(t *testing.T) {
	f := setupBilling(t)
	intentID := f.createPendingIntent(t)

	if err := f.svc.RecordFailure(context.Background(), intentID, "card_declined"); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	txn := fetchTxn(t, f.db, intentID)
	if txn.Status != billingdomain.StatusFailed {
		t.Fatalf("expected failed, got %s", txn.Status)
	}
	if txn.FailureReason != "card_declined" {
		t.Fatalf("expected reason recorded, got %q", txn.FailureReason)
	}

	// A late failure event never overrides a settled state.
	f.gateway.setStatus(intentID, gatewaydomain.IntentStatusSucceeded)
	if err := f.svc.RecordFailure(context.Background(), intentID, "late_event"); err != nil {
		t.Fatalf("record failure again: %v", err)
	}
	txn = fetchTxn(t, f.db, intentID)
	if txn.FailureReason != "card_declined" {
		t.Fatalf("expected first reason kept, got %q", txn.FailureReason)
	}
}

type billingFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	svc       billingdomain.Service
	gateway   *gatewayStub
	orgID     snowflake.ID
	clientID  snowflake.ID
	packageID snowflake.ID
}

func (f *billingFixture) createPendingIntent(t *testing.T) string {
	t.Helper()
	resp, err := f.svc.CreateIntent(context.Background(), billingdomain.CreateIntentRequest{
		OrgID:     f.orgID,
		ClientID:  f.clientID,
		PackageID: &f.packageID,
		Amount:    10000,
		Currency:  "usd",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return resp.PaymentIntentID
}

func setupBilling(t *testing.T) *billingFixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
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
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	prepareBillingSchema(t, db)

	cfg := config.Config{
		Billing: config.BillingConfig{
			PlatformFeeBps:  1500,
			GatewayFeeBps:   290,
			GatewayFixedFee: 30,
			PayoutMinimum:   5000,
			TrialMinutes:    15,
			ConfirmRetryMax: 3,
		},
	}

	orgID := node.Generate()
	clientID := node.Generate()
	packageID := node.Generate()

	if err := db.Exec(
		`INSERT INTO clients (id, org_id, name, email, gateway_customer_id, currency, trial_eligible, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', 'usd', 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		clientID, orgID, "Avery Chen", "avery@example.com",
	).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}

	if err := db.Exec(
		`INSERT INTO credit_packages (id, org_id, name, credits, price, currency, expiry_days, active, created_at, updated_at)
		 VALUES (?, ?, 'Starter 10', 10, 10000, 'usd', 0, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		packageID, orgID,
	).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}

	clientRepo := clientrepository.Provide()
	credits := creditservice.NewService(creditservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Cfg:        cfg,
		Clock:      clock.New(),
		Repo:       creditrepository.Provide(),
		ClientRepo: clientRepo,
	})

	gateway := newGatewayStub()
	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Cfg:        cfg,
		Clock:      clock.New(),
		Repo:       billingrepository.Provide(),
		ClientRepo: clientRepo,
		Credits:    credits,
		Gateway:    gateway,
	})

	return &billingFixture{
		db:        db,
		node:      node,
		svc:       svc,
		gateway:   gateway,
		orgID:     orgID,
		clientID:  clientID,
		packageID: packageID,
	}
}

func prepareBillingSchema(t *testing.T, db *gorm.DB) {
	t.Helper()

	stmts := []string{
		`CREATE TABLE clients (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			gateway_customer_id TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT '',
			available_credits BIGINT NOT NULL DEFAULT 0,
			total_credits_purchased BIGINT NOT NULL DEFAULT 0,
			total_credits_used BIGINT NOT NULL DEFAULT 0,
			total_spent BIGINT NOT NULL DEFAULT 0,
			total_consultations BIGINT NOT NULL DEFAULT 0,
			trial_eligible BOOLEAN NOT NULL DEFAULT TRUE,
			trial_used BOOLEAN NOT NULL DEFAULT FALSE,
			trial_expires_at DATETIME,
			version BIGINT NOT NULL DEFAULT 0,
			metadata JSON NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE credit_packages (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			credits BIGINT NOT NULL,
			price BIGINT NOT NULL,
			currency TEXT NOT NULL,
			expiry_days INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE credit_lots (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			client_id BIGINT NOT NULL,
			package_id BIGINT NOT NULL,
			billing_ref TEXT NOT NULL,
			credits_added BIGINT NOT NULL,
			credits_used BIGINT NOT NULL DEFAULT 0,
			credits_remaining BIGINT NOT NULL,
			status TEXT NOT NULL,
			purchase_date DATETIME NOT NULL,
			expiry_date DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_credit_lots_billing_ref ON credit_lots (billing_ref)`,
		`CREATE TABLE transactions (
			id BIGINT PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			org_id BIGINT NOT NULL,
			client_id BIGINT NOT NULL,
			consultant_id BIGINT,
			package_id BIGINT,
			gross_amount BIGINT NOT NULL,
			platform_fee BIGINT NOT NULL,
			processing_fee BIGINT NOT NULL,
			net_amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			payment_intent_id TEXT NOT NULL,
			gateway_customer_id TEXT NOT NULL DEFAULT '',
			charge_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			credits_added BIGINT NOT NULL DEFAULT 0,
			refund_id TEXT NOT NULL DEFAULT '',
			refund_amount BIGINT NOT NULL DEFAULT 0,
			refund_status TEXT NOT NULL DEFAULT '',
			refund_reason TEXT NOT NULL DEFAULT '',
			refunded_at DATETIME,
			payout_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
			payout_date DATETIME,
			payout_batch_id BIGINT,
			succeeded_at DATETIME,
			failed_at DATETIME,
			deleted_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_transactions_ref ON transactions (transaction_id)`,
		`CREATE UNIQUE INDEX ux_transactions_intent ON transactions (payment_intent_id)`,
	}

	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func fetchTxn(t *testing.T, db *gorm.DB, paymentIntentID string) *billingdomain.Transaction {
	t.Helper()
	var txn billingdomain.Transaction
	if err := db.Raw(`SELECT * FROM transactions WHERE payment_intent_id = ?`, paymentIntentID).Scan(&txn).Error; err != nil {
		t.Fatalf("fetch transaction: %v", err)
	}
	if txn.ID == 0 {
		t.Fatalf("transaction %s not found", paymentIntentID)
	}
	return &txn
}

func countLots(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM credit_lots`).Scan(&count).Error; err != nil {
		t.Fatalf("count lots: %v", err)
	}
	return count
}

type gatewayStub struct {
	mu            sync.Mutex
	seq           int
	intents       map[string]*gatewaydomain.Intent
	customerCalls int
	refundCalls   int
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{intents: map[string]*gatewaydomain.Intent{}}
}

func (g *gatewayStub) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customerCalls++
	return fmt.Sprintf("cus_%d", g.customerCalls), nil
}

func (g *gatewayStub) CreateIntent(ctx context.Context, req gatewaydomain.CreateIntentRequest) (*gatewaydomain.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	intent := &gatewaydomain.Intent{
		ID:           fmt.Sprintf("pi_%d", g.seq),
		ClientSecret: fmt.Sprintf("pi_%d_secret", g.seq),
		CustomerID:   req.CustomerID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       gatewaydomain.IntentStatusRequiresPayment,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *gatewayStub) GetIntent(ctx context.Context, id string) (*gatewaydomain.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, gatewaydomain.ErrIntentNotFound
	}
	copied := *intent
	return &copied, nil
}

func (g *gatewayStub) CreateRefund(ctx context.Context, paymentIntentID string, amount int64, reason string) (*gatewaydomain.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	return &gatewaydomain.Refund{
		ID:     fmt.Sprintf("re_%d", g.refundCalls),
		Amount: amount,
		Status: "succeeded",
	}, nil
}

func (g *gatewayStub) VerifyWebhook(payload []byte, headers http.Header) error {
	return nil
}

func (g *gatewayStub) setStatus(id string, status gatewaydomain.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[id]; ok {
		intent.Status = status
		intent.ChargeID = "ch_" + id
	}
}
