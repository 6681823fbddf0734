package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	db       DB
	executor SQLExecutor
	logger   *slog.Logger
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a new Store instance
func NewStore(db DB, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		executor: db,
		logger:   logger,
	}
}

// Account returns an AccountRepository using the current executor
func (s *Store) Account() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

// Transaction returns a TransactionRepository using the current executor
func (s *Store) Transaction() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinAccount runs fn in one database transaction that holds the account
// row lock until commit. A missing account is not an error here; fn sees it
// through GetAccount.
func (s *Store) WithinAccount(ctx context.Context, accountID uuid.UUID, fn func(domain.AccountRepository, domain.TransactionRepository) error) error {
	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.lockAccount(ctx, accountID); err != nil {
			return err
		}
		return fn(tx.Account(), tx.Transaction())
	})
}

func (s *Store) lockAccount(ctx context.Context, accountID uuid.UUID) error {
	var id uuid.UUID
	err := s.executor.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id)
	if err != nil && !stderrors.Is(err, sql.ErrNoRows) {
		s.logger.Error("Failed to lock account", "account_id", accountID, "error", err)
		return errors.StoreFailure("failed to lock account", err)
	}
	return nil
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	if _, inTx := s.executor.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreFailure("failed to begin transaction", err)
	}

	txStore := &Store{
		db:       s.db,
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreFailure("failed to commit transaction", err)
	}
	return nil
}
