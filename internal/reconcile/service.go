package reconcile

import (
	"context"

	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	creditdomain "github.com/stafflane/stafflane/internal/credit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 100

type Result struct {
	Examined int64 `json:"examined"`
	Repaired int64 `json:"repaired"`
}

// Service repairs the window where a refund settled at the gateway and on
// the transaction but the credit clawback never committed. Every repair
// goes through the guarded clawback, so re-running the sweep over already
// repaired rows is a no-op.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    billingdomain.Repository
	credits creditdomain.Service
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    billingdomain.Repository
	Credits creditdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reconcile.service"),
		repo:    p.Repo,
		credits: p.Credits,
	}
}

func (s *Service) Run(ctx context.Context) (Result, error) {
	txns, err := s.repo.ListUnreconciledRefunds(ctx, s.db, sweepBatchSize)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, txn := range txns {
		result.Examined++

		var clawed creditdomain.ClawbackResult
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			clawed, err = s.credits.Clawback(ctx, tx, creditdomain.ClawbackRequest{
				OrgID:      txn.OrgID,
				ClientID:   txn.ClientID,
				BillingRef: txn.TransactionID,
			})
			return err
		})
		if err != nil {
			s.log.Warn("clawback repair failed",
				zap.String("transaction_id", txn.TransactionID),
				zap.Error(err),
			)
			continue
		}

		if !clawed.AlreadyDone {
			result.Repaired++
			s.log.Info("clawback repaired",
				zap.String("transaction_id", txn.TransactionID),
				zap.Int64("credits_removed", clawed.CreditsRemoved),
			)
		}
	}

	return result, nil
}

var Module = fx.Module("reconcile.service",
	fx.Provide(NewService),
)
