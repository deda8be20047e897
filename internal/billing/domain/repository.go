package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stafflane/stafflane/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindByIntentID(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Transaction, error)
	FindByTransactionID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, transactionID string) (*Transaction, error)
	List(ctx context.Context, db *gorm.DB, orgID, clientID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Transaction, error)

	// MarkSucceeded is the linearization point for confirmation: a single
	// conditional write on status='pending'. Exactly one caller observes
	// true for a given intent; everyone else short-circuits.
	MarkSucceeded(ctx context.Context, db *gorm.DB, paymentIntentID, chargeID string, now time.Time) (bool, error)
	SetCreditsAdded(ctx context.Context, db *gorm.DB, id snowflake.ID, creditsAdded int64) error
	MarkFailed(ctx context.Context, db *gorm.DB, paymentIntentID, reason string, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundID string, amount int64, reason string, now time.Time) (bool, error)

	// ListPayoutCandidates and MarkPayoutScheduled keep the not-yet-
	// scheduled filter inside the query so two payout runs cannot
	// double-count a transaction.
	ListPayoutCandidates(ctx context.Context, db *gorm.DB, orgID, consultantID snowflake.ID) ([]*Transaction, error)
	MarkPayoutScheduled(ctx context.Context, db *gorm.DB, ids []snowflake.ID, batchID snowflake.ID, payoutDate time.Time, now time.Time) (int64, error)
	ListConsultantsWithCandidates(ctx context.Context, db *gorm.DB) ([]ConsultantRef, error)

	// ListUnreconciledRefunds finds refunded package purchases whose
	// credit lot was never clawed back, for the repair sweep.
	ListUnreconciledRefunds(ctx context.Context, db *gorm.DB, limit int) ([]*Transaction, error)
}

type ConsultantRef struct {
	OrgID        snowflake.ID `gorm:"column:org_id"`
	ConsultantID snowflake.ID `gorm:"column:consultant_id"`
}
