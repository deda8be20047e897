package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	"github.com/stafflane/stafflane/pkg/db"
	"github.com/stafflane/stafflane/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() billingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, txn *billingdomain.Transaction) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO transactions (
			id, transaction_id, org_id, client_id, consultant_id, package_id,
			gross_amount, platform_fee, processing_fee, net_amount, currency,
			payment_intent_id, gateway_customer_id, charge_id,
			status, failure_reason, credits_added,
			refund_id, refund_amount, refund_status, refund_reason,
			payout_scheduled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.TransactionID,
		txn.OrgID,
		txn.ClientID,
		txn.ConsultantID,
		txn.PackageID,
		txn.GrossAmount,
		txn.PlatformFee,
		txn.ProcessingFee,
		txn.NetAmount,
		txn.Currency,
		txn.PaymentIntentID,
		txn.GatewayCustomerID,
		txn.ChargeID,
		txn.Status,
		txn.FailureReason,
		txn.CreditsAdded,
		txn.RefundID,
		txn.RefundAmount,
		txn.RefundStatus,
		txn.RefundReason,
		txn.PayoutScheduled,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return billingdomain.ErrDuplicateIntent
		}
		return err
	}

	return nil
}

func (r *repo) FindByIntentID(ctx context.Context, tx *gorm.DB, paymentIntentID string) (*billingdomain.Transaction, error) {
	var txn billingdomain.Transaction
	err := tx.WithContext(ctx).
		Raw(`SELECT * FROM transactions WHERE payment_intent_id = ? AND deleted_at IS NULL`, paymentIntentID).
		Scan(&txn).Error
	if err != nil {
		return nil, err
	}

	if txn.ID == 0 {
		return nil, billingdomain.ErrTransactionNotFound
	}

	return &txn, nil
}

func (r *repo) FindByTransactionID(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, transactionID string) (*billingdomain.Transaction, error) {
	var txn billingdomain.Transaction
	err := tx.WithContext(ctx).
		Raw(`SELECT * FROM transactions WHERE org_id = ? AND transaction_id = ? AND deleted_at IS NULL`, orgID, transactionID).
		Scan(&txn).Error
	if err != nil {
		return nil, err
	}

	if txn.ID == 0 {
		return nil, billingdomain.ErrTransactionNotFound
	}

	return &txn, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, orgID, clientID snowflake.ID, filter billingdomain.ListFilter, page pagination.Pagination) ([]*billingdomain.Transaction, error) {
	query := `SELECT * FROM transactions WHERE org_id = ? AND client_id = ? AND deleted_at IS NULL`
	args := []interface{}{orgID, clientID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}

	if filter.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.From)
	}

	if filter.To != nil {
		query += ` AND created_at < ?`
		args = append(args, *filter.To)
	}

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}

		lastID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}

		query += ` AND id < ?`
		args = append(args, lastID)
	}

	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, page.PageSize+1)

	var txns []*billingdomain.Transaction
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&txns).Error; err != nil {
		return nil, err
	}

	return txns, nil
}

func (r *repo) MarkSucceeded(ctx context.Context, tx *gorm.DB, paymentIntentID, chargeID string, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, charge_id = ?, succeeded_at = ?, updated_at = ?
		 WHERE payment_intent_id = ? AND status = ? AND deleted_at IS NULL`,
		billingdomain.StatusSucceeded, chargeID, now, now,
		paymentIntentID, billingdomain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (r *repo) SetCreditsAdded(ctx context.Context, tx *gorm.DB, id snowflake.ID, creditsAdded int64) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE transactions SET credits_added = ? WHERE id = ?`,
		creditsAdded, id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, tx *gorm.DB, paymentIntentID, reason string, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, failure_reason = ?, failed_at = ?, updated_at = ?
		 WHERE payment_intent_id = ? AND status = ? AND deleted_at IS NULL`,
		billingdomain.StatusFailed, reason, now, now,
		paymentIntentID, billingdomain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (r *repo) MarkRefunded(ctx context.Context, tx *gorm.DB, id snowflake.ID, refundID string, amount int64, reason string, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, refund_id = ?, refund_amount = ?, refund_status = ?, refund_reason = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND refund_id = ''`,
		billingdomain.StatusRefunded, refundID, amount, "succeeded", reason, now, now,
		id, billingdomain.StatusSucceeded,
	)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (r *repo) ListPayoutCandidates(ctx context.Context, tx *gorm.DB, orgID, consultantID snowflake.ID) ([]*billingdomain.Transaction, error) {
	var txns []*billingdomain.Transaction
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM transactions
		 WHERE org_id = ? AND consultant_id = ? AND status = ?
		   AND payout_scheduled = FALSE AND deleted_at IS NULL
		 ORDER BY id ASC`,
		orgID, consultantID, billingdomain.StatusSucceeded,
	).Scan(&txns).Error
	if err != nil {
		return nil, err
	}

	return txns, nil
}

func (r *repo) MarkPayoutScheduled(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, batchID snowflake.ID, payoutDate time.Time, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET payout_scheduled = TRUE, payout_batch_id = ?, payout_date = ?, updated_at = ?
		 WHERE id IN ? AND status = ? AND payout_scheduled = FALSE`,
		batchID, payoutDate, now,
		ids, billingdomain.StatusSucceeded,
	)
	if res.Error != nil {
		return 0, res.Error
	}

	return res.RowsAffected, nil
}

func (r *repo) ListUnreconciledRefunds(ctx context.Context, tx *gorm.DB, limit int) ([]*billingdomain.Transaction, error) {
	var txns []*billingdomain.Transaction
	err := tx.WithContext(ctx).Raw(
		`SELECT t.* FROM transactions t
		 JOIN credit_lots l ON l.billing_ref = t.transaction_id
		 WHERE t.status = ? AND t.package_id IS NOT NULL
		   AND t.deleted_at IS NULL AND l.status != ?
		 ORDER BY t.id ASC LIMIT ?`,
		billingdomain.StatusRefunded, "refunded", limit,
	).Scan(&txns).Error
	if err != nil {
		return nil, err
	}

	return txns, nil
}

func (r *repo) ListConsultantsWithCandidates(ctx context.Context, tx *gorm.DB) ([]billingdomain.ConsultantRef, error) {
	var refs []billingdomain.ConsultantRef
	err := tx.WithContext(ctx).Raw(
		`SELECT DISTINCT org_id, consultant_id FROM transactions
		 WHERE consultant_id IS NOT NULL AND status = ?
		   AND payout_scheduled = FALSE AND deleted_at IS NULL`,
		billingdomain.StatusSucceeded,
	).Scan(&refs).Error
	if err != nil {
		return nil, err
	}

	return refs, nil
}
