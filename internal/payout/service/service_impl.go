package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	obsmetrics "github.com/stafflane/stafflane/internal/observability/metrics"
	payoutdomain "github.com/stafflane/stafflane/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	Clock       clock.Clock
	Repo        payoutdomain.Repository
	BillingRepo billingdomain.Repository
	Policy      *config.BillingPolicyHolder `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	cfg         config.BillingConfig
	policy      *config.BillingPolicyHolder
	clock       clock.Clock
	repo        payoutdomain.Repository
	billingRepo billingdomain.Repository
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payout.service"),
		genID:       p.GenID,
		cfg:         p.Cfg.Billing,
		policy:      p.Policy,
		clock:       p.Clock,
		repo:        p.Repo,
		billingRepo: p.BillingRepo,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) payoutMinimum() int64 {
	if s.policy != nil {
		return s.policy.Get().PayoutMinimum
	}
	return s.cfg.PayoutMinimum
}

// Schedule collects the consultant's succeeded, unscheduled transactions
// into a batch. The guarded stamp update is what claims each transaction,
// so two overlapping runs split the rows instead of double-counting them;
// the batch totals are then recomputed from the rows actually claimed.
func (s *Service) Schedule(ctx context.Context, req payoutdomain.ScheduleRequest) (payoutdomain.ScheduleResponse, error) {
	if req.OrgID == 0 || req.ConsultantID == 0 {
		return payoutdomain.ScheduleResponse{}, payoutdomain.ErrInvalidConsultant
	}

	candidates, err := s.billingRepo.ListPayoutCandidates(ctx, s.db, req.OrgID, req.ConsultantID)
	if err != nil {
		return payoutdomain.ScheduleResponse{}, err
	}

	var pending int64
	ids := make([]snowflake.ID, 0, len(candidates))
	currency := ""
	for _, txn := range candidates {
		pending += txn.NetAmount
		ids = append(ids, txn.ID)
		if currency == "" {
			currency = txn.Currency
		}
	}

	if pending < s.payoutMinimum() {
		return payoutdomain.ScheduleResponse{
			TotalAmount:      pending,
			TransactionCount: int64(len(ids)),
		}, nil
	}

	payoutDate := req.PayoutDate
	if payoutDate.IsZero() {
		payoutDate = s.clock.Now()
	}

	batchID := s.genID.Generate()
	var total, count int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		batch := payoutdomain.PayoutBatch{
			ID:           batchID,
			OrgID:        req.OrgID,
			ConsultantID: req.ConsultantID,
			Currency:     currency,
			Status:       payoutdomain.BatchStatusScheduled,
			PayoutDate:   payoutDate,
			CreatedAt:    s.clock.Now(),
			UpdatedAt:    s.clock.Now(),
		}
		if err := s.repo.InsertBatch(ctx, tx, &batch); err != nil {
			return err
		}

		stamped, err := s.billingRepo.MarkPayoutScheduled(ctx, tx, ids, batchID, payoutDate, s.clock.Now())
		if err != nil {
			return err
		}

		if stamped == 0 {
			// Another run claimed every candidate between the scan
			// and the stamp.
			return gorm.ErrRecordNotFound
		}

		total, count, err = s.repo.SumBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}

		return s.repo.UpdateBatchTotals(ctx, tx, batchID, total, count)
	})
	if err == gorm.ErrRecordNotFound {
		return payoutdomain.ScheduleResponse{}, nil
	}
	if err != nil {
		return payoutdomain.ScheduleResponse{}, err
	}

	s.obsMetrics.RecordPayoutBatch(ctx, currency)

	s.log.Info("payout batch scheduled",
		zap.Int64("batch_id", int64(batchID)),
		zap.Int64("consultant_id", int64(req.ConsultantID)),
		zap.Int64("total_amount", total),
		zap.Int64("transaction_count", count),
	)

	return payoutdomain.ScheduleResponse{
		Scheduled:        true,
		BatchID:          &batchID,
		TotalAmount:      total,
		TransactionCount: count,
	}, nil
}

func (s *Service) GetBatch(ctx context.Context, orgID, batchID snowflake.ID) (*payoutdomain.PayoutBatch, error) {
	return s.repo.FindBatch(ctx, s.db, orgID, batchID)
}

func (s *Service) Sweep(ctx context.Context, payoutDate time.Time) (payoutdomain.SweepResult, error) {
	refs, err := s.billingRepo.ListConsultantsWithCandidates(ctx, s.db)
	if err != nil {
		return payoutdomain.SweepResult{}, err
	}

	var result payoutdomain.SweepResult
	for _, ref := range refs {
		resp, err := s.Schedule(ctx, payoutdomain.ScheduleRequest{
			OrgID:        ref.OrgID,
			ConsultantID: ref.ConsultantID,
			PayoutDate:   payoutDate,
		})
		if err != nil {
			s.log.Warn("payout sweep entry failed",
				zap.Int64("consultant_id", int64(ref.ConsultantID)),
				zap.Error(err),
			)
			continue
		}

		if resp.Scheduled {
			result.BatchesCreated++
			result.TotalAmount += resp.TotalAmount
		}
	}

	return result, nil
}
