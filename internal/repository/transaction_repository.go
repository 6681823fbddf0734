package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
)

const transactionColumns = `id, account_id, amount, currency, type, category, description, status, risk_score, posted_at`

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	description := sql.NullString{String: tx.Description, Valid: tx.Description != ""}

	_, err := r.db.ExecContext(ctx,
		query,
		tx.ID,
		tx.AccountID,
		tx.Amount.String(),
		string(tx.Currency),
		string(tx.Type),
		string(tx.Category),
		description,
		string(tx.Status),
		tx.RiskScore,
		tx.Timestamp,
	)

	if err != nil {
		r.logger.Error("Failed to create transaction",
			"account_id", tx.AccountID,
			"amount", tx.Amount,
			"error", err)
		return errors.StoreFailure("failed to create transaction", err)
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID, "status", tx.Status)
	return nil
}

func (r *transactionRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	transaction, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrTransactionNotFound
		}
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, errors.StoreFailure("failed to get transaction", err)
	}
	return transaction, nil
}

func (r *transactionRepository) CountSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND posted_at > $2`,
		accountID, since,
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count recent transactions", "account_id", accountID, "error", err)
		return 0, errors.StoreFailure("failed to count recent transactions", err)
	}
	return count, nil
}

func (r *transactionRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter, page domain.Page) (*domain.PageResult[domain.Transaction], error) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.AccountID != nil {
		add("account_id = $%d", *filter.AccountID)
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.Type != nil {
		add("type = $%d", string(*filter.Type))
	}
	if filter.From != nil {
		add("posted_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("posted_at <= $%d", *filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	return r.list(ctx, where, "posted_at DESC, id", args, page)
}

func (r *transactionRepository) ListFlagged(ctx context.Context, page domain.Page) (*domain.PageResult[domain.Transaction], error) {
	return r.list(ctx, " WHERE status = $1", "risk_score DESC, posted_at DESC, id",
		[]interface{}{string(domain.TransactionFlagged)}, page)
}

func (r *transactionRepository) list(ctx context.Context, where, orderBy string, args []interface{}, page domain.Page) (*domain.PageResult[domain.Transaction], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count transactions", "error", err)
		return nil, errors.StoreFailure("failed to count transactions", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		transactionColumns, where, orderBy, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		r.logger.Error("Failed to list transactions", "error", err)
		return nil, errors.StoreFailure("failed to list transactions", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.StoreFailure("failed to read transaction", err)
		}
		transactions = append(transactions, *transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreFailure("failed to list transactions", err)
	}

	return domain.NewPageResult(transactions, page, total), nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var transaction domain.Transaction
	var amountStr, currency, txType, category, status string
	var description sql.NullString

	err := row.Scan(
		&transaction.ID,
		&transaction.AccountID,
		&amountStr,
		&currency,
		&txType,
		&category,
		&description,
		&status,
		&transaction.RiskScore,
		&transaction.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	amount, err := parseDecimal("amount", amountStr)
	if err != nil {
		return nil, err
	}

	transaction.Amount = amount
	transaction.Currency = domain.Currency(currency)
	transaction.Type = domain.TransactionType(txType)
	transaction.Category = domain.TransactionCategory(category)
	transaction.Status = domain.TransactionStatus(status)
	transaction.Description = description.String
	return &transaction, nil
}
