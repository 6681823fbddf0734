// Package lock serializes work on one account across service instances with
// a Redis RedLock.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
)

const keyPrefix = "lock:account:"

type Options struct {
	// Expiry bounds how long a crashed holder can block the account.
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      20,
		RetryDelay: 50 * time.Millisecond,
	}
}

type AccountLocker struct {
	redsync *redsync.Redsync
	opts    Options
	logger  *slog.Logger
}

func NewAccountLocker(client redis.UniversalClient, opts Options, logger *slog.Logger) *AccountLocker {
	return &AccountLocker{
		redsync: redsync.New(goredis.NewPool(client)),
		opts:    opts,
		logger:  logger,
	}
}

func Key(accountID uuid.UUID) string {
	return keyPrefix + accountID.String()
}

// WithLock runs fn while holding the account's lock. Errors from fn are
// returned unchanged.
func (l *AccountLocker) WithLock(ctx context.Context, accountID uuid.UUID, fn func(context.Context) error) error {
	key := Key(accountID)
	mutex := l.redsync.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		l.logger.Warn("Failed to acquire account lock", "lock_key", key, "error", err)
		return errors.ErrLockUnavailable.Wrap(err)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			l.logger.Error("Failed to release account lock", "lock_key", key, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}

// Store adds the distributed account lock in front of another store's unit
// of work.
type Store struct {
	domain.Store
	locker *AccountLocker
}

func NewStore(inner domain.Store, locker *AccountLocker) *Store {
	return &Store{
		Store:  inner,
		locker: locker,
	}
}

func (s *Store) WithinAccount(ctx context.Context, accountID uuid.UUID, fn func(domain.AccountRepository, domain.TransactionRepository) error) error {
	return s.locker.WithLock(ctx, accountID, func(ctx context.Context) error {
		return s.Store.WithinAccount(ctx, accountID, fn)
	})
}
