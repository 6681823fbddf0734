package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
)

const accountColumns = `id, account_number, account_holder, balance, currency, status, created_at, updated_at`

var accountSortColumns = map[string]string{
	"created_at":     "created_at",
	"account_number": "account_number",
	"account_holder": "account_holder",
	"balance":        "balance",
}

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		query,
		account.ID,
		account.AccountNumber,
		account.AccountHolder,
		account.Balance.String(),
		string(account.Currency),
		string(account.Status),
		now,
		now,
	)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			r.logger.Warn("Duplicate account creation attempt", "account_id", account.ID, "account_number", account.AccountNumber)
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to create account", "account_id", account.ID, "error", err)
		return errors.StoreFailure("failed to create account", err)
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, r.mapScanError(err, id)
	}
	return account, nil
}

func (r *accountRepository) GetAccountDetail(ctx context.Context, id uuid.UUID) (*domain.AccountDetail, error) {
	query := `
		SELECT a.id, a.account_number, a.account_holder, a.balance, a.currency, a.status, a.created_at, a.updated_at,
			COUNT(t.id),
			COALESCE(SUM(CASE WHEN t.type = 'DEBIT' THEN t.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.type = 'CREDIT' THEN t.amount ELSE 0 END), 0)
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		WHERE a.id = $1
		GROUP BY a.id
	`

	var detail domain.AccountDetail
	var balanceStr, debitsStr, creditsStr, currency, status string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&detail.ID,
		&detail.AccountNumber,
		&detail.AccountHolder,
		&balanceStr,
		&currency,
		&status,
		&detail.CreatedAt,
		&detail.UpdatedAt,
		&detail.TotalTransactions,
		&debitsStr,
		&creditsStr,
	)
	if err != nil {
		return nil, r.mapScanError(err, id)
	}

	detail.Currency = domain.Currency(currency)
	detail.Status = domain.AccountStatus(status)
	if detail.Balance, err = parseDecimal("balance", balanceStr); err != nil {
		return nil, err
	}
	if detail.TotalDebits, err = parseDecimal("total_debits", debitsStr); err != nil {
		return nil, err
	}
	if detail.TotalCredits, err = parseDecimal("total_credits", creditsStr); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (r *accountRepository) ListAccounts(ctx context.Context, page domain.Page) (*domain.PageResult[domain.Account], error) {
	column, ok := accountSortColumns[page.SortField]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if page.SortDir == domain.SortAsc {
		direction = "ASC"
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		r.logger.Error("Failed to count accounts", "error", err)
		return nil, errors.StoreFailure("failed to count accounts", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM accounts ORDER BY %s %s, id LIMIT $1 OFFSET $2`, accountColumns, column, direction)
	rows, err := r.db.QueryContext(ctx, query, page.Size, page.Offset())
	if err != nil {
		r.logger.Error("Failed to list accounts", "error", err)
		return nil, errors.StoreFailure("failed to list accounts", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, errors.StoreFailure("failed to read account", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreFailure("failed to list accounts", err)
	}

	return domain.NewPageResult(accounts, page, total), nil
}

func (r *accountRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, number).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check account number", "error", err)
		return false, errors.StoreFailure("failed to check account number", err)
	}
	return exists, nil
}

func (r *accountRepository) UpdateAccountBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, newBalance.String(), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update account balance", "account_id", id, "error", err)
		return errors.StoreFailure("failed to update account balance", err)
	}

	if err := r.expectOneRow(result, id); err != nil {
		return err
	}

	r.logger.Info("Account balance updated", "account_id", id, "new_balance", newBalance)
	return nil
}

func (r *accountRepository) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	query := `
		UPDATE accounts
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update account status", "account_id", id, "error", err)
		return errors.StoreFailure("failed to update account status", err)
	}

	return r.expectOneRow(result, id)
}

func (r *accountRepository) expectOneRow(result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.StoreFailure("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "account_id", id)
		return errors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) mapScanError(err error, id uuid.UUID) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		r.logger.Warn("Account not found", "account_id", id)
		return errors.ErrAccountNotFound
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	r.logger.Error("Failed to get account", "account_id", id, "error", err)
	return errors.StoreFailure("failed to get account", err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var balanceStr, currency, status string

	err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&account.AccountHolder,
		&balanceStr,
		&currency,
		&status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	balance, err := parseDecimal("balance", balanceStr)
	if err != nil {
		return nil, err
	}

	account.Balance = balance
	account.Currency = domain.Currency(currency)
	account.Status = domain.AccountStatus(status)
	return &account, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.StoreFailure("failed to parse "+field, err)
	}
	return d, nil
}
