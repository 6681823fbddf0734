package domain

import (
	"context"

	"github.com/google/uuid"
)

// UnitOfWork hands out repositories scoped to a single account.
//
// Implementations must serialize every WithinAccount call for the same
// account id, so that reading a balance, validating it and writing it back
// cannot interleave with another posting. Writes made through the
// repositories passed to fn are committed together when fn returns nil and
// discarded when it returns an error.
type UnitOfWork interface {
	WithinAccount(ctx context.Context, accountID uuid.UUID, fn func(accounts AccountRepository, transactions TransactionRepository) error) error
}

// Store is the full persistence surface used by the services.
type Store interface {
	UnitOfWork
	Account() AccountRepository
	Transaction() TransactionRepository
	Ping(ctx context.Context) error
	Close() error
}
