package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stafflane/stafflane/internal/client/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Create(client).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Client, error) {
	var item domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM clients
		 WHERE org_id = ? AND id = ?
		 LIMIT 1`,
		orgID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) SetGatewayCustomer(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, gatewayCustomerID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE clients
		 SET gateway_customer_id = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND (gateway_customer_id IS NULL OR gateway_customer_id = '')`,
		gatewayCustomerID,
		time.Now().UTC(),
		orgID,
		id,
	).Error
}

func (r *repo) ApplySummary(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, expectedVersion int64, delta domain.SummaryDelta) (bool, error) {
	current, err := r.FindByID(ctx, db, orgID, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, domain.ErrClientNotFound
	}
	if current.Version != expectedVersion {
		return false, nil
	}

	available := current.AvailableCredits + delta.Available
	purchased := current.TotalCreditsPurchased + delta.CreditsPurchased
	used := current.TotalCreditsUsed + delta.CreditsUsed
	spent := current.TotalSpent + delta.Spent
	consultations := current.TotalConsultations + delta.Consultations
	if delta.Clamp {
		if available < 0 {
			available = 0
		}
		if purchased < 0 {
			purchased = 0
		}
		if spent < 0 {
			spent = 0
		}
	}

	trialUsed := current.TrialUsed
	if delta.MarkTrialUsed {
		trialUsed = true
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE clients
		 SET available_credits = ?,
		     total_credits_purchased = ?,
		     total_credits_used = ?,
		     total_spent = ?,
		     total_consultations = ?,
		     trial_used = ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE org_id = ? AND id = ? AND version = ?`,
		available,
		purchased,
		used,
		spent,
		consultations,
		trialUsed,
		time.Now().UTC(),
		orgID,
		id,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
