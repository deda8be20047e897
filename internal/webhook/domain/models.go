package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type EventStatus string

const (
	EventStatusReceived  EventStatus = "received"
	EventStatusProcessed EventStatus = "processed"
	EventStatusSkipped   EventStatus = "skipped"
)

// EventRecord is one gateway webhook delivery. The unique index on
// (provider, provider_event_id) absorbs redelivery: the first insert wins
// and every retry finds the existing row.
type EventRecord struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Provider        string       `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event" json:"provider"`
	ProviderEventID string       `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event" json:"provider_event_id"`
	EventType       string       `gorm:"type:text;not null" json:"event_type"`
	PaymentIntentID string       `gorm:"type:text" json:"payment_intent_id,omitempty"`
	Status          EventStatus  `gorm:"type:text;not null" json:"status"`
	Error           string       `gorm:"type:text" json:"error,omitempty"`
	ProcessedAt     *time.Time   `json:"processed_at,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (EventRecord) TableName() string { return "payment_webhook_events" }
