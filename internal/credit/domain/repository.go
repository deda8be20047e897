package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertLot is a conditional insert on the billing reference; it
	// reports false when a lot for that transaction already exists.
	InsertLot(ctx context.Context, db *gorm.DB, lot *CreditLot) (bool, error)
	FindLotByBillingRef(ctx context.Context, db *gorm.DB, orgID snowflake.ID, billingRef string) (*CreditLot, error)
	ListActiveLots(ctx context.Context, db *gorm.DB, orgID, clientID snowflake.ID) ([]CreditLot, error)

	// ConsumeLot decrements one credit from the lot, guarded on the
	// observed remaining count; reports false when the guard misses.
	ConsumeLot(ctx context.Context, db *gorm.DB, lotID snowflake.ID, observedRemaining int64, now time.Time) (bool, error)

	// RefundLot flips the lot to refunded, guarded on not already refunded.
	RefundLot(ctx context.Context, db *gorm.DB, lotID snowflake.ID, now time.Time) (bool, error)

	// ExpireLot flips an active lot to expired, guarded on the observed
	// remaining count so the summary decrement stays consistent.
	ExpireLot(ctx context.Context, db *gorm.DB, lotID snowflake.ID, observedRemaining int64, now time.Time) (bool, error)

	FindPackage(ctx context.Context, db *gorm.DB, orgID, packageID snowflake.ID) (*CreditPackage, error)
}
