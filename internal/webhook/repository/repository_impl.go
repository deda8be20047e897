package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	webhookdomain "github.com/stafflane/stafflane/internal/webhook/domain"
	"github.com/stafflane/stafflane/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() webhookdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, event *webhookdomain.EventRecord) (bool, error) {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO payment_webhook_events (
			id, provider, provider_event_id, event_type, payment_intent_id,
			status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.PaymentIntentID,
		event.Status,
		event.Error,
		event.CreatedAt,
		event.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *repo) MarkProcessed(ctx context.Context, tx *gorm.DB, id snowflake.ID, status webhookdomain.EventStatus, errMsg string, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payment_webhook_events
		 SET status = ?, error = ?, processed_at = ?, updated_at = ?
		 WHERE id = ?`,
		status, errMsg, now, now, id,
	).Error
}

func (r *repo) FindByProviderEventID(ctx context.Context, tx *gorm.DB, provider, providerEventID string) (*webhookdomain.EventRecord, error) {
	var event webhookdomain.EventRecord
	err := tx.WithContext(ctx).
		Raw(`SELECT * FROM payment_webhook_events WHERE provider = ? AND provider_event_id = ?`, provider, providerEventID).
		Scan(&event).Error
	if err != nil {
		return nil, err
	}

	if event.ID == 0 {
		return nil, webhookdomain.ErrEventNotFound
	}

	return &event, nil
}
