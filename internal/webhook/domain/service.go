package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type IngestResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
}

// Service verifies, records and dispatches gateway webhook deliveries.
type Service interface {
	Ingest(ctx context.Context, payload []byte, headers http.Header) (IngestResult, error)
}

type Repository interface {
	// Insert is conditional on (provider, provider_event_id); it reports
	// false when the delivery was already recorded.
	Insert(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, status EventStatus, errMsg string, now time.Time) error
	FindByProviderEventID(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
}

var (
	ErrInvalidPayload = errors.New("invalid_webhook_payload")
	ErrEventNotFound  = errors.New("webhook_event_not_found")
)
