package service

import (
	"context"

	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	creditdomain "github.com/stafflane/stafflane/internal/credit/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Refund reverses a succeeded package purchase. The gateway call goes first
// so a gateway rejection leaves the transaction untouched; once the gateway
// accepts, the status flip and the credit clawback commit together. A second
// refund attempt trips the refundable guard and stops before any money moves.
func (s *Service) Refund(ctx context.Context, req billingdomain.RefundRequest) (billingdomain.RefundResponse, error) {
	txn, err := s.repo.FindByTransactionID(ctx, s.db, req.OrgID, req.TransactionID)
	if err != nil {
		return billingdomain.RefundResponse{}, err
	}

	if !txn.IsRefundable() {
		return billingdomain.RefundResponse{}, billingdomain.ErrNotRefundable
	}

	amount := txn.NetAmount
	if req.Amount != nil {
		amount = *req.Amount
	}

	if amount <= 0 || amount > txn.GrossAmount {
		return billingdomain.RefundResponse{}, billingdomain.ErrInvalidAmount
	}

	refund, err := s.gateway.CreateRefund(ctx, txn.PaymentIntentID, amount, req.Reason)
	if err != nil {
		return billingdomain.RefundResponse{}, err
	}

	var clawed creditdomain.ClawbackResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		marked, err := s.repo.MarkRefunded(ctx, tx, txn.ID, refund.ID, amount, req.Reason, s.clock.Now())
		if err != nil {
			return err
		}

		if !marked {
			return billingdomain.ErrNotRefundable
		}

		if txn.PackageID == nil {
			return nil
		}

		clawed, err = s.credits.Clawback(ctx, tx, creditdomain.ClawbackRequest{
			OrgID:      txn.OrgID,
			ClientID:   txn.ClientID,
			BillingRef: txn.TransactionID,
		})
		return err
	})
	if err != nil {
		// The gateway refund went through but the local state did not.
		// Leave a loud trail for reconciliation to repair.
		s.log.Error("refund settled at gateway but local update failed",
			zap.String("transaction_id", txn.TransactionID),
			zap.String("refund_id", refund.ID),
			zap.Error(err),
		)
		return billingdomain.RefundResponse{}, err
	}

	s.obsMetrics.RecordCreditMove(ctx, "clawback")

	s.log.Info("refund processed",
		zap.String("transaction_id", txn.TransactionID),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", amount),
		zap.Int64("credits_removed", clawed.CreditsRemoved),
	)

	return billingdomain.RefundResponse{
		RefundID: refund.ID,
		Amount:   amount,
		Status:   refund.Status,
	}, nil
}
