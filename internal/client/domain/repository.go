package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, client *Client) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Client, error)
	SetGatewayCustomer(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, gatewayCustomerID string) error

	// ApplySummary performs a compare-and-set on the client's version: the
	// update only lands when the stored version matches expectedVersion.
	// Returns false when another writer won the race.
	ApplySummary(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, expectedVersion int64, delta SummaryDelta) (bool, error)
}
