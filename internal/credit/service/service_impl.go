package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/stafflane/stafflane/internal/client/domain"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	creditdomain "github.com/stafflane/stafflane/internal/credit/domain"
	obsmetrics "github.com/stafflane/stafflane/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxWriteAttempts = 3

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Clock      clock.Clock
	Repo       creditdomain.Repository
	ClientRepo clientdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.BillingConfig
	clock      clock.Clock
	repo       creditdomain.Repository
	clientRepo clientdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) creditdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		genID:      p.GenID,
		cfg:        p.Cfg.Billing,
		clock:      p.Clock,
		repo:       p.Repo,
		clientRepo: p.ClientRepo,
		obsMetrics: p.ObsMetrics,
	}
}

// Grant appends a credit lot for a settled package purchase and bumps the
// client summary. It runs inside the caller's transaction so it commits or
// rolls back together with the billing status transition. The conditional
// lot insert makes a repeated grant for the same transaction a no-op.
func (s *Service) Grant(ctx context.Context, tx *gorm.DB, req creditdomain.GrantRequest) (creditdomain.GrantResult, error) {
	if req.OrgID == 0 || req.ClientID == 0 {
		return creditdomain.GrantResult{}, creditdomain.ErrInvalidClient
	}

	pkg, err := s.repo.FindPackage(ctx, tx, req.OrgID, req.PackageID)
	if err != nil {
		return creditdomain.GrantResult{}, err
	}
	if pkg == nil {
		return creditdomain.GrantResult{}, creditdomain.ErrPackageNotFound
	}

	now := s.clock.Now()
	lot := creditdomain.CreditLot{
		ID:               s.genID.Generate(),
		OrgID:            req.OrgID,
		ClientID:         req.ClientID,
		PackageID:        pkg.ID,
		BillingRef:       req.BillingRef,
		CreditsAdded:     pkg.Credits,
		CreditsRemaining: pkg.Credits,
		Status:           creditdomain.LotStatusActive,
		PurchaseDate:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if pkg.ExpiryDays > 0 {
		expiry := now.AddDate(0, 0, pkg.ExpiryDays)
		lot.ExpiryDate = &expiry
	}

	inserted, err := s.repo.InsertLot(ctx, tx, &lot)
	if err != nil {
		return creditdomain.GrantResult{}, err
	}
	if !inserted {
		existing, err := s.repo.FindLotByBillingRef(ctx, tx, req.OrgID, req.BillingRef)
		if err != nil {
			return creditdomain.GrantResult{}, err
		}
		if existing == nil {
			return creditdomain.GrantResult{}, creditdomain.ErrLotNotFound
		}
		return creditdomain.GrantResult{CreditsAdded: existing.CreditsAdded, LotID: existing.ID}, nil
	}

	client, err := s.clientRepo.FindByID(ctx, tx, req.OrgID, req.ClientID)
	if err != nil {
		return creditdomain.GrantResult{}, err
	}
	if client == nil {
		return creditdomain.GrantResult{}, clientdomain.ErrClientNotFound
	}

	applied, err := s.clientRepo.ApplySummary(ctx, tx, req.OrgID, req.ClientID, client.Version, clientdomain.SummaryDelta{
		Available:        pkg.Credits,
		CreditsPurchased: pkg.Credits,
		Spent:            req.AmountSpent,
	})
	if err != nil {
		return creditdomain.GrantResult{}, err
	}
	if !applied {
		return creditdomain.GrantResult{}, creditdomain.ErrWriteConflict
	}

	s.obsMetrics.RecordCreditMove(ctx, "grant")
	return creditdomain.GrantResult{CreditsAdded: pkg.Credits, LotID: lot.ID}, nil
}

// Deduct consumes one credit from the oldest active lot (FIFO) and bumps
// lifetime usage. Conflicting writers are absorbed by a bounded retry on
// the client version.
func (s *Service) Deduct(ctx context.Context, req creditdomain.DeductRequest) error {
	if req.OrgID == 0 || req.ClientID == 0 {
		return creditdomain.ErrInvalidClient
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			sleepJitter(attempt)
		}

		done, err := s.deductOnce(ctx, req)
		if err != nil {
			return err
		}
		if done {
			s.obsMetrics.RecordCreditMove(ctx, "deduct")
			return nil
		}
	}

	s.log.Warn("credit deduction exhausted retries",
		zap.String("client_id", req.ClientID.String()),
	)
	return creditdomain.ErrWriteConflict
}

func (s *Service) deductOnce(ctx context.Context, req creditdomain.DeductRequest) (bool, error) {
	client, err := s.clientRepo.FindByID(ctx, s.db, req.OrgID, req.ClientID)
	if err != nil {
		return false, err
	}
	if client == nil {
		return false, clientdomain.ErrClientNotFound
	}
	if client.AvailableCredits < 1 {
		return false, creditdomain.ErrInsufficientCredits
	}

	lots, err := s.repo.ListActiveLots(ctx, s.db, req.OrgID, req.ClientID)
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	var target *creditdomain.CreditLot
	var expired []creditdomain.CreditLot
	for i := range lots {
		lot := lots[i]
		if lot.CreditsRemaining <= 0 {
			continue
		}
		if lot.ExpiryDate != nil && lot.ExpiryDate.Before(now) {
			expired = append(expired, lot)
			continue
		}
		target = &lots[i]
		break
	}

	if len(expired) > 0 {
		if err := s.expireLots(ctx, req.OrgID, req.ClientID, expired); err != nil {
			return false, err
		}
		// Summary changed under us; re-read on the next attempt.
		return false, nil
	}
	if target == nil {
		return false, creditdomain.ErrInsufficientCredits
	}

	committed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		consumed, err := s.repo.ConsumeLot(ctx, tx, target.ID, target.CreditsRemaining, now)
		if err != nil {
			return err
		}
		if !consumed {
			return creditdomain.ErrWriteConflict
		}

		applied, err := s.clientRepo.ApplySummary(ctx, tx, req.OrgID, req.ClientID, client.Version, clientdomain.SummaryDelta{
			Available:     -1,
			CreditsUsed:   1,
			Consultations: 1,
		})
		if err != nil {
			return err
		}
		if !applied {
			return creditdomain.ErrWriteConflict
		}

		committed = true
		return nil
	})
	if err != nil {
		if err == creditdomain.ErrWriteConflict {
			return false, nil
		}
		return false, err
	}
	return committed, nil
}

// expireLots lazily retires lots whose expiry date has passed, keeping the
// summary in step with the sum over active lots.
func (s *Service) expireLots(ctx context.Context, orgID, clientID snowflake.ID, lots []creditdomain.CreditLot) error {
	now := s.clock.Now()
	for _, lot := range lots {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			flipped, err := s.repo.ExpireLot(ctx, tx, lot.ID, lot.CreditsRemaining, now)
			if err != nil {
				return err
			}
			if !flipped {
				return nil
			}

			client, err := s.clientRepo.FindByID(ctx, tx, orgID, clientID)
			if err != nil {
				return err
			}
			if client == nil {
				return clientdomain.ErrClientNotFound
			}
			applied, err := s.clientRepo.ApplySummary(ctx, tx, orgID, clientID, client.Version, clientdomain.SummaryDelta{
				Available: -lot.CreditsRemaining,
				Clamp:     true,
			})
			if err != nil {
				return err
			}
			if !applied {
				return creditdomain.ErrWriteConflict
			}
			s.log.Info("credit lot expired",
				zap.String("client_id", clientID.String()),
				zap.String("lot_id", lot.ID.String()),
				zap.Int64("credits_expired", lot.CreditsRemaining),
			)
			return nil
		})
		if err != nil && err != creditdomain.ErrWriteConflict {
			return err
		}
	}
	return nil
}

// Clawback reverses the full lot for a refunded purchase. Available credits
// are clamped at zero when the client already consumed part of the lot; the
// shortfall is logged rather than driven negative.
func (s *Service) Clawback(ctx context.Context, tx *gorm.DB, req creditdomain.ClawbackRequest) (creditdomain.ClawbackResult, error) {
	lot, err := s.repo.FindLotByBillingRef(ctx, tx, req.OrgID, req.BillingRef)
	if err != nil {
		return creditdomain.ClawbackResult{}, err
	}
	if lot == nil {
		return creditdomain.ClawbackResult{}, creditdomain.ErrLotNotFound
	}
	if lot.Status == creditdomain.LotStatusRefunded {
		return creditdomain.ClawbackResult{AlreadyDone: true}, nil
	}

	now := s.clock.Now()
	flipped, err := s.repo.RefundLot(ctx, tx, lot.ID, now)
	if err != nil {
		return creditdomain.ClawbackResult{}, err
	}
	if !flipped {
		return creditdomain.ClawbackResult{AlreadyDone: true}, nil
	}

	client, err := s.clientRepo.FindByID(ctx, tx, req.OrgID, req.ClientID)
	if err != nil {
		return creditdomain.ClawbackResult{}, err
	}
	if client == nil {
		return creditdomain.ClawbackResult{}, clientdomain.ErrClientNotFound
	}

	if client.AvailableCredits < lot.CreditsAdded {
		s.log.Warn("refund clawback exceeds available credits, clamping at zero",
			zap.String("client_id", req.ClientID.String()),
			zap.String("billing_ref", req.BillingRef),
			zap.Int64("credits_added", lot.CreditsAdded),
			zap.Int64("available", client.AvailableCredits),
		)
	}

	applied, err := s.clientRepo.ApplySummary(ctx, tx, req.OrgID, req.ClientID, client.Version, clientdomain.SummaryDelta{
		Available:        -lot.CreditsAdded,
		CreditsPurchased: -lot.CreditsAdded,
		Clamp:            true,
	})
	if err != nil {
		return creditdomain.ClawbackResult{}, err
	}
	if !applied {
		return creditdomain.ClawbackResult{}, creditdomain.ErrWriteConflict
	}

	s.obsMetrics.RecordCreditMove(ctx, "clawback")
	return creditdomain.ClawbackResult{CreditsRemoved: lot.CreditsAdded}, nil
}

// Balance degrades to a zero-credit response when the client record is
// missing; the billing surface never errors on a balance read.
func (s *Service) Balance(ctx context.Context, orgID, clientID snowflake.ID) (creditdomain.BalanceResponse, error) {
	client, err := s.clientRepo.FindByID(ctx, s.db, orgID, clientID)
	if err != nil {
		return creditdomain.BalanceResponse{}, err
	}
	if client == nil {
		return creditdomain.BalanceResponse{ActiveLots: []creditdomain.CreditLot{}}, nil
	}

	lots, err := s.repo.ListActiveLots(ctx, s.db, orgID, clientID)
	if err != nil {
		return creditdomain.BalanceResponse{}, err
	}
	if lots == nil {
		lots = []creditdomain.CreditLot{}
	}

	return creditdomain.BalanceResponse{
		AvailableCredits: client.AvailableCredits,
		ActiveLots:       lots,
		FreeTrial: creditdomain.FreeTrial{
			Eligible:  client.TrialEligible,
			Used:      client.TrialUsed,
			ExpiresAt: client.TrialExpiresAt,
		},
		Lifetime: creditdomain.Lifetime{
			TotalCreditsPurchased: client.TotalCreditsPurchased,
			TotalCreditsUsed:      client.TotalCreditsUsed,
			TotalSpent:            client.TotalSpent,
			TotalConsultations:    client.TotalConsultations,
		},
	}, nil
}

// Eligibility decides how a consultation will be paid for. Trial takes
// precedence over credits; changing that ordering is a product decision,
// not a code cleanup.
func (s *Service) Eligibility(ctx context.Context, req creditdomain.EligibilityRequest) (creditdomain.EligibilityResponse, error) {
	client, err := s.clientRepo.FindByID(ctx, s.db, req.OrgID, req.ClientID)
	if err != nil {
		return creditdomain.EligibilityResponse{}, err
	}
	if client == nil {
		return creditdomain.EligibilityResponse{
			Valid:           true,
			PaymentRequired: true,
			Method:          creditdomain.EligibilityMethodPayment,
		}, nil
	}

	now := s.clock.Now()
	trialOpen := client.TrialEligible && !client.TrialUsed &&
		(client.TrialExpiresAt == nil || client.TrialExpiresAt.After(now))
	if trialOpen && req.DurationMinutes > 0 && req.DurationMinutes <= s.cfg.TrialMinutes {
		return creditdomain.EligibilityResponse{
			Valid:  true,
			Method: creditdomain.EligibilityMethodFreeTrial,
		}, nil
	}

	if client.AvailableCredits >= 1 {
		return creditdomain.EligibilityResponse{
			Valid:  true,
			Method: creditdomain.EligibilityMethodCredits,
		}, nil
	}

	return creditdomain.EligibilityResponse{
		Valid:           true,
		PaymentRequired: true,
		Method:          creditdomain.EligibilityMethodPayment,
	}, nil
}

// UseTrial consumes the one-shot free trial flag, at most once per client.
func (s *Service) UseTrial(ctx context.Context, orgID, clientID snowflake.ID) error {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			sleepJitter(attempt)
		}

		client, err := s.clientRepo.FindByID(ctx, s.db, orgID, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return clientdomain.ErrClientNotFound
		}
		if !client.TrialEligible || client.TrialUsed {
			return clientdomain.ErrTrialAlreadyUsed
		}

		applied, err := s.clientRepo.ApplySummary(ctx, s.db, orgID, clientID, client.Version, clientdomain.SummaryDelta{
			Consultations: 1,
			MarkTrialUsed: true,
		})
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
	}
	return creditdomain.ErrWriteConflict
}

func (s *Service) FindPackage(ctx context.Context, orgID, packageID snowflake.ID) (*creditdomain.CreditPackage, error) {
	return s.repo.FindPackage(ctx, s.db, orgID, packageID)
}

func sleepJitter(attempt int) {
	base := time.Duration(attempt) * 20 * time.Millisecond
	time.Sleep(base + time.Duration(rand.Int63n(int64(10*time.Millisecond))))
}
