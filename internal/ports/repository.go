package ports

import (
	"context"

	"paperMarginBot/internal/domain"
)

// PersistenceGateway defines the document-store interface for durable state.
// Accounts and positions are upserted keyed by id; in-memory state remains
// authoritative for the running process, so save failures are logged by
// callers and never roll back an executed trade.
type PersistenceGateway interface {
	// SaveAccount upserts the account document.
	SaveAccount(ctx context.Context, acc *domain.Account) error
	// LoadAccount retrieves an account by id. Returns nil, nil if not found.
	LoadAccount(ctx context.Context, id string) (*domain.Account, error)
	// SavePosition upserts the position document.
	SavePosition(ctx context.Context, pos *domain.Position) error
	// LoadPositions retrieves positions, optionally filtered by status.
	// An empty status loads everything.
	LoadPositions(ctx context.Context, status domain.PositionStatus) ([]*domain.Position, error)
	// SaveOrder records an executed (or rejected) trade request.
	SaveOrder(ctx context.Context, req *domain.TradeRequest) error
	// DeleteAllData wipes every stored document. Used by the explicit
	// data-wipe operation only.
	DeleteAllData(ctx context.Context) error
}
