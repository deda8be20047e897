package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/stafflane/stafflane/internal/clock"
	payoutdomain "github.com/stafflane/stafflane/internal/payout/domain"
	"github.com/stafflane/stafflane/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	PayoutSvc    payoutdomain.Service
	ReconcileSvc *reconcile.Service
	Locker       *Locker `optional:"true"`
	Config       Config  `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	payoutSvc    payoutdomain.Service
	reconcileSvc *reconcile.Service
	locker       *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.PayoutSvc == nil || p.ReconcileSvc == nil {
		return nil, ErrInvalidConfig
	}

	return &Scheduler{
		log:          p.Log.Named("scheduler"),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		payoutSvc:    p.PayoutSvc,
		reconcileSvc: p.ReconcileSvc,
		locker:       p.Locker,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.cfg.DisablePayouts {
		s.runJob(ctx, "payout_sweep", func(ctx context.Context) error {
			result, err := s.payoutSvc.Sweep(ctx, s.clock.Now())
			if err != nil {
				return err
			}

			if result.BatchesCreated > 0 {
				s.log.Info("payout sweep finished",
					zap.Int64("batches_created", result.BatchesCreated),
					zap.Int64("total_amount", result.TotalAmount),
				)
			}
			return nil
		})
	}

	s.runJob(ctx, "refund_reconcile", func(ctx context.Context) error {
		result, err := s.reconcileSvc.Run(ctx)
		if err != nil {
			return err
		}

		if result.Repaired > 0 {
			s.log.Info("refund reconcile finished",
				zap.Int64("examined", result.Examined),
				zap.Int64("repaired", result.Repaired),
			)
		}
		return nil
	})
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	key := "stafflane:scheduler:" + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("job lock failed", zap.String("job", name), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, key, token); err != nil {
			s.log.Warn("job lock release failed", zap.String("job", name), zap.Error(err))
		}
	}()

	start := s.clock.Now()
	if err := fn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.log.Warn("job timed out",
				zap.String("job", name),
				zap.Duration("timeout", s.cfg.JobTimeout),
			)
			return
		}
		s.log.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}

	s.log.Debug("job finished",
		zap.String("job", name),
		zap.Duration("took", time.Since(start)),
	)
}
