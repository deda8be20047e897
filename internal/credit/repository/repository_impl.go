package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stafflane/stafflane/internal/credit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertLot(ctx context.Context, db *gorm.DB, lot *domain.CreditLot) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO credit_lots (
			id, org_id, client_id, package_id, billing_ref,
			credits_added, credits_used, credits_remaining, status,
			purchase_date, expiry_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (billing_ref) DO NOTHING`,
		lot.ID,
		lot.OrgID,
		lot.ClientID,
		lot.PackageID,
		lot.BillingRef,
		lot.CreditsAdded,
		lot.CreditsUsed,
		lot.CreditsRemaining,
		lot.Status,
		lot.PurchaseDate,
		lot.ExpiryDate,
		lot.CreatedAt,
		lot.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindLotByBillingRef(ctx context.Context, db *gorm.DB, orgID snowflake.ID, billingRef string) (*domain.CreditLot, error) {
	var item domain.CreditLot
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM credit_lots
		 WHERE org_id = ? AND billing_ref = ?
		 LIMIT 1`,
		orgID,
		billingRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListActiveLots(ctx context.Context, db *gorm.DB, orgID, clientID snowflake.ID) ([]domain.CreditLot, error) {
	var items []domain.CreditLot
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM credit_lots
		 WHERE org_id = ? AND client_id = ? AND status = ?
		 ORDER BY purchase_date ASC, id ASC`,
		orgID,
		clientID,
		domain.LotStatusActive,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ConsumeLot(ctx context.Context, db *gorm.DB, lotID snowflake.ID, observedRemaining int64, now time.Time) (bool, error) {
	newRemaining := observedRemaining - 1
	status := domain.LotStatusActive
	if newRemaining <= 0 {
		status = domain.LotStatusDepleted
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE credit_lots
		 SET credits_used = credits_used + 1,
		     credits_remaining = ?,
		     status = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ? AND credits_remaining = ?`,
		newRemaining,
		status,
		now,
		lotID,
		domain.LotStatusActive,
		observedRemaining,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RefundLot(ctx context.Context, db *gorm.DB, lotID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE credit_lots
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status != ?`,
		domain.LotStatusRefunded,
		now,
		lotID,
		domain.LotStatusRefunded,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExpireLot(ctx context.Context, db *gorm.DB, lotID snowflake.ID, observedRemaining int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE credit_lots
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND credits_remaining = ?`,
		domain.LotStatusExpired,
		now,
		lotID,
		domain.LotStatusActive,
		observedRemaining,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindPackage(ctx context.Context, db *gorm.DB, orgID, packageID snowflake.ID) (*domain.CreditPackage, error) {
	var item domain.CreditPackage
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM credit_packages
		 WHERE org_id = ? AND id = ? AND active = TRUE
		 LIMIT 1`,
		orgID,
		packageID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
