package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	clientdomain "github.com/stafflane/stafflane/internal/client/domain"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	creditdomain "github.com/stafflane/stafflane/internal/credit/domain"
	gatewaydomain "github.com/stafflane/stafflane/internal/gateway/domain"
	obsmetrics "github.com/stafflane/stafflane/internal/observability/metrics"
	"github.com/stafflane/stafflane/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Clock      clock.Clock
	Repo       billingdomain.Repository
	ClientRepo clientdomain.Repository
	Credits    creditdomain.Service
	Gateway    gatewaydomain.Adapter
	Policy     *config.BillingPolicyHolder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.BillingConfig
	policy     *config.BillingPolicyHolder
	clock      clock.Clock
	repo       billingdomain.Repository
	clientRepo clientdomain.Repository
	credits    creditdomain.Service
	gateway    gatewaydomain.Adapter
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		cfg:        p.Cfg.Billing,
		policy:     p.Policy,
		clock:      p.Clock,
		repo:       p.Repo,
		clientRepo: p.ClientRepo,
		credits:    p.Credits,
		gateway:    p.Gateway,
		obsMetrics: p.ObsMetrics,
	}
}

// billingPolicy returns the live policy when the hot-reload holder is
// wired, the boot-time snapshot otherwise.
func (s *Service) billingPolicy() config.BillingConfig {
	if s.policy != nil {
		return s.policy.Get()
	}
	return s.cfg
}

func (s *Service) CreateIntent(ctx context.Context, req billingdomain.CreateIntentRequest) (billingdomain.CreateIntentResponse, error) {
	if req.Amount <= 0 {
		return billingdomain.CreateIntentResponse{}, billingdomain.ErrInvalidAmount
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return billingdomain.CreateIntentResponse{}, billingdomain.ErrInvalidCurrency
	}

	client, err := s.clientRepo.FindByID(ctx, s.db, req.OrgID, req.ClientID)
	if err != nil {
		return billingdomain.CreateIntentResponse{}, err
	}
	if client == nil {
		return billingdomain.CreateIntentResponse{}, clientdomain.ErrClientNotFound
	}

	if req.PackageID != nil {
		pkg, err := s.credits.FindPackage(ctx, req.OrgID, *req.PackageID)
		if err != nil {
			return billingdomain.CreateIntentResponse{}, err
		}
		if pkg == nil {
			return billingdomain.CreateIntentResponse{}, creditdomain.ErrPackageNotFound
		}

		if pkg.Price != req.Amount {
			return billingdomain.CreateIntentResponse{}, billingdomain.ErrInvalidAmount
		}
	}

	customerID, err := s.ensureGatewayCustomer(ctx, client)
	if err != nil {
		return billingdomain.CreateIntentResponse{}, err
	}

	fees := computeFees(s.billingPolicy(), req.Amount)
	transactionID := fmt.Sprintf("txn_%s", ulid.Make().String())

	intent, err := s.gateway.CreateIntent(ctx, gatewaydomain.CreateIntentRequest{
		Amount:          req.Amount,
		Currency:        currency,
		CustomerID:      customerID,
		PaymentMethodID: req.PaymentMethodID,
		Metadata: map[string]string{
			"transaction_id": transactionID,
			"client_id":      req.ClientID.String(),
		},
	})
	if err != nil {
		return billingdomain.CreateIntentResponse{}, err
	}

	now := s.clock.Now()
	txn := billingdomain.Transaction{
		ID:                s.genID.Generate(),
		TransactionID:     transactionID,
		OrgID:             req.OrgID,
		ClientID:          req.ClientID,
		ConsultantID:      req.ConsultantID,
		PackageID:         req.PackageID,
		GrossAmount:       fees.Gross,
		PlatformFee:       fees.Platform,
		ProcessingFee:     fees.Processing,
		NetAmount:         fees.Net,
		Currency:          currency,
		PaymentIntentID:   intent.ID,
		GatewayCustomerID: customerID,
		Status:            billingdomain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, &txn); err != nil {
		return billingdomain.CreateIntentResponse{}, err
	}

	s.obsMetrics.RecordPaymentIntent(ctx, currency)

	s.log.Info("payment intent created",
		zap.String("transaction_id", transactionID),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("gross_amount", fees.Gross),
	)

	return billingdomain.CreateIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		TransactionID:   transactionID,
		GrossAmount:     fees.Gross,
		PlatformFee:     fees.Platform,
		ProcessingFee:   fees.Processing,
		NetAmount:       fees.Net,
		Currency:        currency,
	}, nil
}

// ensureGatewayCustomer provisions the gateway-side customer lazily on the
// first charge and caches the id on the client row.
func (s *Service) ensureGatewayCustomer(ctx context.Context, client *clientdomain.Client) (string, error) {
	if client.GatewayCustomerID != "" {
		return client.GatewayCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, client.Name, client.Email)
	if err != nil {
		return "", err
	}

	if err := s.clientRepo.SetGatewayCustomer(ctx, s.db, client.OrgID, client.ID, customerID); err != nil {
		return "", err
	}

	return customerID, nil
}

// Confirm settles a pending transaction after the gateway reports the intent
// succeeded. The status flip and the credit grant commit atomically; the
// conditional status update makes exactly one confirmation the writer, so a
// retried or concurrent confirm returns the already-applied outcome instead
// of granting twice.
func (s *Service) Confirm(ctx context.Context, req billingdomain.ConfirmRequest) (billingdomain.ConfirmResponse, error) {
	if req.PaymentIntentID == "" {
		return billingdomain.ConfirmResponse{}, billingdomain.ErrInvalidIntent
	}

	intent, err := s.gateway.GetIntent(ctx, req.PaymentIntentID)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrIntentNotFound) {
			return billingdomain.ConfirmResponse{}, billingdomain.ErrInvalidIntent
		}
		return billingdomain.ConfirmResponse{}, err
	}

	if intent.Status != gatewaydomain.IntentStatusSucceeded {
		return billingdomain.ConfirmResponse{}, billingdomain.ErrPaymentNotSucceeded
	}

	txn, err := s.repo.FindByIntentID(ctx, s.db, req.PaymentIntentID)
	if err != nil {
		return billingdomain.ConfirmResponse{}, err
	}

	if req.RequestedBy != nil && *req.RequestedBy != txn.ClientID {
		return billingdomain.ConfirmResponse{}, billingdomain.ErrForbidden
	}

	if txn.Status == billingdomain.StatusSucceeded || txn.Status == billingdomain.StatusRefunded {
		return s.confirmedResponse(ctx, txn)
	}

	if txn.Status == billingdomain.StatusFailed {
		return billingdomain.ConfirmResponse{}, billingdomain.ErrPaymentNotSucceeded
	}

	maxAttempts := s.billingPolicy().ConfirmRetryMax
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var won bool
	var creditsAdded int64
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			sleepJitter(attempt)
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			won, err = s.repo.MarkSucceeded(ctx, tx, req.PaymentIntentID, intent.ChargeID, s.clock.Now())
			if err != nil {
				return err
			}

			if !won {
				return nil
			}

			if txn.PackageID == nil {
				return nil
			}

			res, err := s.credits.Grant(ctx, tx, creditdomain.GrantRequest{
				OrgID:       txn.OrgID,
				ClientID:    txn.ClientID,
				PackageID:   *txn.PackageID,
				BillingRef:  txn.TransactionID,
				AmountSpent: txn.GrossAmount,
			})
			if err != nil {
				return err
			}

			creditsAdded = res.CreditsAdded
			return s.repo.SetCreditsAdded(ctx, tx, txn.ID, creditsAdded)
		})
		if errors.Is(err, creditdomain.ErrWriteConflict) {
			continue
		}
		if err != nil {
			s.obsMetrics.RecordPaymentConfirm(ctx, "error")
			return billingdomain.ConfirmResponse{}, err
		}

		break
	}
	if errors.Is(err, creditdomain.ErrWriteConflict) {
		s.obsMetrics.RecordPaymentConfirm(ctx, "conflict")
		return billingdomain.ConfirmResponse{}, billingdomain.ErrConfirmConflict
	}

	if !won {
		// Another confirmation crossed the line first. Re-read and hand
		// back its outcome.
		txn, err = s.repo.FindByIntentID(ctx, s.db, req.PaymentIntentID)
		if err != nil {
			return billingdomain.ConfirmResponse{}, err
		}

		if txn.Status != billingdomain.StatusSucceeded {
			return billingdomain.ConfirmResponse{}, billingdomain.ErrConfirmConflict
		}

		return s.confirmedResponse(ctx, txn)
	}

	s.obsMetrics.RecordPaymentConfirm(ctx, "succeeded")

	s.log.Info("payment confirmed",
		zap.String("transaction_id", txn.TransactionID),
		zap.String("payment_intent_id", req.PaymentIntentID),
		zap.Int64("credits_added", creditsAdded),
	)

	available, err := s.availableCredits(ctx, txn.OrgID, txn.ClientID)
	if err != nil {
		return billingdomain.ConfirmResponse{}, err
	}

	return billingdomain.ConfirmResponse{
		TransactionID:    txn.TransactionID,
		Status:           string(billingdomain.StatusSucceeded),
		CreditsAdded:     creditsAdded,
		AvailableCredits: available,
	}, nil
}

// confirmedResponse rebuilds the response for a transaction some earlier
// confirmation already settled, using the credits-added figure cached on the
// row at grant time.
func (s *Service) confirmedResponse(ctx context.Context, txn *billingdomain.Transaction) (billingdomain.ConfirmResponse, error) {
	available, err := s.availableCredits(ctx, txn.OrgID, txn.ClientID)
	if err != nil {
		return billingdomain.ConfirmResponse{}, err
	}

	return billingdomain.ConfirmResponse{
		TransactionID:    txn.TransactionID,
		Status:           string(txn.Status),
		CreditsAdded:     txn.CreditsAdded,
		AvailableCredits: available,
	}, nil
}

func (s *Service) availableCredits(ctx context.Context, orgID, clientID snowflake.ID) (int64, error) {
	client, err := s.clientRepo.FindByID(ctx, s.db, orgID, clientID)
	if err != nil {
		return 0, err
	}
	if client == nil {
		return 0, nil
	}

	return client.AvailableCredits, nil
}

func (s *Service) Get(ctx context.Context, req billingdomain.GetTransactionRequest) (billingdomain.Transaction, error) {
	txn, err := s.repo.FindByTransactionID(ctx, s.db, req.OrgID, req.TransactionID)
	if err != nil {
		return billingdomain.Transaction{}, err
	}

	if !req.Admin {
		if req.RequestedBy == nil || *req.RequestedBy != txn.ClientID {
			return billingdomain.Transaction{}, billingdomain.ErrForbidden
		}
	}

	return *txn, nil
}

func (s *Service) ListHistory(ctx context.Context, req billingdomain.ListHistoryRequest) (billingdomain.ListHistoryResponse, error) {
	if req.Page.PageSize < 1 {
		req.Page.PageSize = 10
	}

	txns, err := s.repo.List(ctx, s.db, req.OrgID, req.ClientID, billingdomain.ListFilter{
		Status: req.Status,
		From:   req.From,
		To:     req.To,
	}, req.Page)
	if err != nil {
		return billingdomain.ListHistoryResponse{}, err
	}

	pageInfo, txns := pagination.BuildCursorPageInfo(txns, int32(req.Page.PageSize), func(t *billingdomain.Transaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: t.ID.String()})
		return token
	})

	out := make([]billingdomain.Transaction, 0, len(txns))
	for _, t := range txns {
		out = append(out, *t)
	}

	return billingdomain.ListHistoryResponse{
		PageInfo:     *pageInfo,
		Transactions: out,
	}, nil
}

func (s *Service) RecordFailure(ctx context.Context, paymentIntentID, reason string) error {
	marked, err := s.repo.MarkFailed(ctx, s.db, paymentIntentID, reason, s.clock.Now())
	if err != nil {
		return err
	}

	if !marked {
		s.log.Debug("failure event for non-pending transaction ignored",
			zap.String("payment_intent_id", paymentIntentID),
		)
		return nil
	}

	s.obsMetrics.RecordPaymentConfirm(ctx, "failed")

	s.log.Info("payment failed",
		zap.String("payment_intent_id", paymentIntentID),
		zap.String("reason", reason),
	)
	return nil
}

func sleepJitter(attempt int) {
	base := time.Duration(attempt) * 20 * time.Millisecond
	time.Sleep(base + time.Duration(rand.Intn(20))*time.Millisecond)
}
