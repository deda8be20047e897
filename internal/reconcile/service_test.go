package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	billingrepository "github.com/stafflane/stafflane/internal/billing/repository"
	clientrepository "github.com/stafflane/stafflane/internal/client/repository"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	creditrepository "github.com/stafflane/stafflane/internal/credit/repository"
	creditservice "github.com/stafflane/stafflane/internal/credit/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestRunRepairsMissedClawback(t *testing.T) {
	node, db := setupReconcileDB(t)

	orgID := node.Generate()
	clientID := node.Generate()
	packageID := node.Generate()
	txnID := node.Generate()
	lotID := node.Generate()

	if err := db.Exec(
		`INSERT INTO clients (id, org_id, name, email, available_credits, total_credits_purchased, created_at, updated_at)
		 VALUES (?, ?, 'Noor Haddad', 'noor@example.com', 10, 10, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		clientID, orgID,
	).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}

	// Refunded transaction whose lot is still active: the crash window
	// between the gateway refund and the local clawback.
	if err := db.Exec(
		`INSERT INTO transactions (
			id, transaction_id, org_id, client_id, package_id,
			gross_amount, platform_fee, processing_fee, net_amount, currency,
			payment_intent_id, status, created_at, updated_at
		) VALUES (?, 'txn_repair', ?, ?, ?, 10000, 1500, 320, 8180, 'usd', 'pi_repair', 'refunded', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		txnID, orgID, clientID, packageID,
	).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	if err := db.Exec(
		`INSERT INTO credit_lots (
			id, org_id, client_id, package_id, billing_ref,
			credits_added, credits_used, credits_remaining, status, purchase_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, 'txn_repair', 10, 0, 10, 'active', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		lotID, orgID, clientID, packageID,
	).Error; err != nil {
		t.Fatalf("seed lot: %v", err)
	}

	svc := newReconcileService(node, db)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Examined != 1 || result.Repaired != 1 {
		t.Fatalf("expected 1 repaired, got %+v", result)
	}

	var lotStatus string
	if err := db.Raw(`SELECT status FROM credit_lots WHERE id = ?`, lotID).Scan(&lotStatus).Error; err != nil {
		t.Fatalf("read lot: %v", err)
	}
	if lotStatus != "refunded" {
		t.Fatalf("expected refunded lot, got %s", lotStatus)
	}

	var available int64
	if err := db.Raw(`SELECT available_credits FROM clients WHERE id = ?`, clientID).Scan(&available).Error; err != nil {
		t.Fatalf("read client: %v", err)
	}
	if available != 0 {
		t.Fatalf("expected credits removed, got %d", available)
	}

	// The repaired row falls out of the candidate set.
	again, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run again: %v", err)
	}
	if again.Examined != 0 {
		t.Fatalf("expected nothing to examine, got %+v", again)
	}
}

func TestRunIgnoresConsistentRefunds(t *testing.T) {
	node, db := setupReconcileDB(t)

	orgID := node.Generate()
	clientID := node.Generate()
	packageID := node.Generate()

	if err := db.Exec(
		`INSERT INTO transactions (
			id, transaction_id, org_id, client_id, package_id,
			gross_amount, platform_fee, processing_fee, net_amount, currency,
			payment_intent_id, status, created_at, updated_at
		) VALUES (?, 'txn_done', ?, ?, ?, 10000, 1500, 320, 8180, 'usd', 'pi_done', 'refunded', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		node.Generate(), orgID, clientID, packageID,
	).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	if err := db.Exec(
		`INSERT INTO credit_lots (
			id, org_id, client_id, package_id, billing_ref,
			credits_added, credits_used, credits_remaining, status, purchase_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, 'txn_done', 10, 0, 10, 'refunded', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		node.Generate(), orgID, clientID, packageID,
	).Error; err != nil {
		t.Fatalf("seed lot: %v", err)
	}

	svc := newReconcileService(node, db)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Examined != 0 || result.Repaired != 0 {
		t.Fatalf("expected clean sweep, got %+v", result)
	}
}

func newReconcileService(node *snowflake.Node, db *gorm.DB) *Service {
	credits := creditservice.NewService(creditservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Cfg:        config.Config{Billing: config.BillingConfig{TrialMinutes: 15}},
		Clock:      clock.New(),
		Repo:       creditrepository.Provide(),
		ClientRepo: clientrepository.Provide(),
	})

	return NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Repo:    billingrepository.Provide(),
		Credits: credits,
	})
}

func setupReconcileDB(t *testing.T) (*snowflake.Node, *gorm.DB) {
	t.Helper()

	node, err := snowflake.NewNode(4)
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
		`CREATE TABLE credit_lots (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			client_id BIGINT NOT NULL,
			package_id BIGINT NOT NULL,
			billing_ref TEXT NOT NULL UNIQUE,
			credits_added BIGINT NOT NULL,
			credits_used BIGINT NOT NULL DEFAULT 0,
			credits_remaining BIGINT NOT NULL,
			status TEXT NOT NULL,
			purchase_date DATETIME NOT NULL,
			expiry_date DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}

	return node, db
}
