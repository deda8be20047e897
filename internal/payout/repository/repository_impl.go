package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	payoutdomain "github.com/stafflane/stafflane/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() payoutdomain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, tx *gorm.DB, batch *payoutdomain.PayoutBatch) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO payout_batches (
			id, org_id, consultant_id, total_amount, transaction_count,
			currency, status, payout_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.OrgID,
		batch.ConsultantID,
		batch.TotalAmount,
		batch.TransactionCount,
		batch.Currency,
		batch.Status,
		batch.PayoutDate,
		batch.CreatedAt,
		batch.UpdatedAt,
	).Error
}

func (r *repo) FindBatch(ctx context.Context, tx *gorm.DB, orgID, batchID snowflake.ID) (*payoutdomain.PayoutBatch, error) {
	var batch payoutdomain.PayoutBatch
	err := tx.WithContext(ctx).
		Raw(`SELECT * FROM payout_batches WHERE org_id = ? AND id = ?`, orgID, batchID).
		Scan(&batch).Error
	if err != nil {
		return nil, err
	}

	if batch.ID == 0 {
		return nil, payoutdomain.ErrBatchNotFound
	}

	return &batch, nil
}

func (r *repo) SumBatch(ctx context.Context, tx *gorm.DB, batchID snowflake.ID) (int64, int64, error) {
	var row struct {
		Total int64 `gorm:"column:total"`
		Count int64 `gorm:"column:count"`
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(net_amount), 0) AS total, COUNT(1) AS count
		 FROM transactions WHERE payout_batch_id = ?`,
		batchID,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}

	return row.Total, row.Count, nil
}

func (r *repo) UpdateBatchTotals(ctx context.Context, tx *gorm.DB, batchID snowflake.ID, total, count int64) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payout_batches SET total_amount = ?, transaction_count = ? WHERE id = ?`,
		total, count, batchID,
	).Error
}
