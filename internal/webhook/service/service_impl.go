package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	gatewaydomain "github.com/stafflane/stafflane/internal/gateway/domain"
	obsmetrics "github.com/stafflane/stafflane/internal/observability/metrics"
	webhookdomain "github.com/stafflane/stafflane/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Clock      clock.Clock
	Repo       webhookdomain.Repository
	Gateway    gatewaydomain.Adapter
	Billing    billingdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	provider   string
	clock      clock.Clock
	repo       webhookdomain.Repository
	gateway    gatewaydomain.Adapter
	billing    billingdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) webhookdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhook.service"),
		genID:      p.GenID,
		provider:   p.Cfg.Gateway.Provider,
		clock:      p.Clock,
		repo:       p.Repo,
		gateway:    p.Gateway,
		billing:    p.Billing,
		obsMetrics: p.ObsMetrics,
	}
}

type gatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string `json:"id"`
			LastPaymentError *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// Ingest verifies the delivery signature, records the event and dispatches
// it to the payment pipeline. A redelivery of an event already marked
// processed or skipped returns Duplicate without re-dispatching; one still
// in received means the first dispatch never finished, so the redelivery
// re-drives it. The settlement path downstream is idempotent anyway, so a
// race between two deliveries of the same event is still applied once.
func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) (webhookdomain.IngestResult, error) {
	if err := s.gateway.VerifyWebhook(payload, headers); err != nil {
		return webhookdomain.IngestResult{}, err
	}

	var event gatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return webhookdomain.IngestResult{}, webhookdomain.ErrInvalidPayload
	}

	if event.ID == "" || event.Type == "" {
		return webhookdomain.IngestResult{}, webhookdomain.ErrInvalidPayload
	}

	s.obsMetrics.RecordWebhookEvent(ctx, event.Type)

	now := s.clock.Now()
	record := webhookdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        s.provider,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PaymentIntentID: event.Data.Object.ID,
		Status:          webhookdomain.EventStatusReceived,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, &record)
	if err != nil {
		return webhookdomain.IngestResult{}, err
	}

	duplicate := false
	if !inserted {
		existing, err := s.repo.FindByProviderEventID(ctx, s.db, s.provider, event.ID)
		if err != nil {
			return webhookdomain.IngestResult{}, err
		}
		if existing.Status != webhookdomain.EventStatusReceived {
			s.log.Debug("webhook event redelivered",
				zap.String("provider_event_id", event.ID),
				zap.String("event_type", event.Type),
			)
			return webhookdomain.IngestResult{EventID: event.ID, EventType: event.Type, Duplicate: true}, nil
		}

		s.log.Info("webhook event redelivered before first dispatch settled, re-driving",
			zap.String("provider_event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		record = *existing
		duplicate = true
	}

	status, dispatchErr := s.dispatch(ctx, event)

	errMsg := ""
	if dispatchErr != nil {
		errMsg = dispatchErr.Error()
	}
	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, status, errMsg, s.clock.Now()); err != nil {
		s.log.Warn("mark webhook event processed failed",
			zap.String("provider_event_id", event.ID),
			zap.Error(err),
		)
	}

	if dispatchErr != nil {
		return webhookdomain.IngestResult{}, dispatchErr
	}

	return webhookdomain.IngestResult{EventID: event.ID, EventType: event.Type, Duplicate: duplicate}, nil
}

func (s *Service) dispatch(ctx context.Context, event gatewayEvent) (webhookdomain.EventStatus, error) {
	switch event.Type {
	case eventPaymentSucceeded:
		_, err := s.billing.Confirm(ctx, billingdomain.ConfirmRequest{
			PaymentIntentID: event.Data.Object.ID,
		})
		// The gateway can deliver the succeeded event before the intent
		// is locally visible, or after an API confirm already settled
		// it. Neither needs a redelivery.
		if errors.Is(err, billingdomain.ErrTransactionNotFound) || errors.Is(err, billingdomain.ErrInvalidIntent) {
			s.log.Warn("webhook for unknown payment intent",
				zap.String("payment_intent_id", event.Data.Object.ID),
				zap.String("event_type", event.Type),
			)
			return webhookdomain.EventStatusSkipped, nil
		}
		if err != nil {
			return webhookdomain.EventStatusReceived, err
		}
		return webhookdomain.EventStatusProcessed, nil

	case eventPaymentFailed:
		reason := "payment_failed"
		if event.Data.Object.LastPaymentError != nil && event.Data.Object.LastPaymentError.Code != "" {
			reason = event.Data.Object.LastPaymentError.Code
		}
		if err := s.billing.RecordFailure(ctx, event.Data.Object.ID, reason); err != nil {
			return webhookdomain.EventStatusReceived, err
		}
		return webhookdomain.EventStatusProcessed, nil

	default:
		s.log.Debug("unhandled webhook event type", zap.String("event_type", event.Type))
		return webhookdomain.EventStatusSkipped, nil
	}
}
