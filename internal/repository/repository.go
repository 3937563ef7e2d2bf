package repository

import (
	"context"
	"time"

	"tradebridge/internal/models"
)

type ListCopyEventsParams struct {
	ProviderID *string
	CopyerID   *string
	Since      *time.Time
	Limit      int
	Offset     int
	Asc        bool
}

// Repository persists relay configuration and the copy-event audit trail.
// All writes are best-effort from the core's point of view: a failed write
// is logged and never blocks routing.
type Repository interface {
	UpsertAccount(ctx context.Context, item *models.Account) error
	TouchAccountHeartbeat(ctx context.Context, accountID string, at time.Time) error
	ListAccounts(ctx context.Context) ([]models.Account, error)

	UpsertRelationship(ctx context.Context, item *models.Relationship) error
	SetRelationshipEnabled(ctx context.Context, providerID, copyerID string, enabled bool) error
	DeleteRelationship(ctx context.Context, providerID, copyerID string) error
	ListRelationships(ctx context.Context) ([]models.Relationship, error)

	InsertCopyEvent(ctx context.Context, item *models.CopyEvent) error
	ListCopyEvents(ctx context.Context, params ListCopyEventsParams) ([]models.CopyEvent, error)
	DeleteCopyEventsBefore(ctx context.Context, before time.Time) (int64, error)
}
