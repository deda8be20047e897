package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ScheduleRequest struct {
	OrgID        snowflake.ID
	ConsultantID snowflake.ID
	PayoutDate   time.Time
}

type ScheduleResponse struct {
	Scheduled        bool          `json:"scheduled"`
	BatchID          *snowflake.ID `json:"batch_id,omitempty"`
	TotalAmount      int64         `json:"total_amount"`
	TransactionCount int64         `json:"transaction_count"`
}

type SweepResult struct {
	BatchesCreated int64 `json:"batches_created"`
	TotalAmount    int64 `json:"total_amount"`
}

type Service interface {
	// Schedule batches the consultant's unscheduled earnings. Below the
	// payout minimum it reports the pending total and changes nothing.
	Schedule(ctx context.Context, req ScheduleRequest) (ScheduleResponse, error)
	GetBatch(ctx context.Context, orgID, batchID snowflake.ID) (*PayoutBatch, error)

	// Sweep runs Schedule for every consultant with unscheduled earnings.
	Sweep(ctx context.Context, payoutDate time.Time) (SweepResult, error)
}

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, batch *PayoutBatch) error
	FindBatch(ctx context.Context, db *gorm.DB, orgID, batchID snowflake.ID) (*PayoutBatch, error)

	// SumBatch totals the transactions actually stamped with the batch
	// id, so the stored figures reflect the rows won in the guarded
	// update rather than the pre-scan estimate.
	SumBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) (total int64, count int64, err error)
	UpdateBatchTotals(ctx context.Context, db *gorm.DB, batchID snowflake.ID, total, count int64) error
}

var (
	ErrInvalidConsultant = errors.New("invalid_consultant")
	ErrBatchNotFound     = errors.New("payout_batch_not_found")
)
