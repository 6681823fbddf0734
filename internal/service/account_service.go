package service

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"log/slog"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
)

const (
	accountNumberPrefix = "GB"
	accountNumberDigits = 22
	maxNumberAttempts   = 10

	minHolderLength = 2
	maxHolderLength = 100
)

// accountNumberSpace is 10^22, the count of distinct digit suffixes.
var accountNumberSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(accountNumberDigits), nil)

// NumberGenerator produces candidate account numbers.
type NumberGenerator func() (string, error)

func RandomAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberSpace)
	if err != nil {
		return "", err
	}
	digits := n.String()
	return accountNumberPrefix + strings.Repeat("0", accountNumberDigits-len(digits)) + digits, nil
}

type AccountService struct {
	store     domain.Store
	newNumber NumberGenerator
	logger    *slog.Logger
}

func NewAccountService(store domain.Store, newNumber NumberGenerator, logger *slog.Logger) *AccountService {
	if newNumber == nil {
		newNumber = RandomAccountNumber
	}
	return &AccountService{
		store:     store,
		newNumber: newNumber,
		logger:    logger,
	}
}

type CreateAccountRequest struct {
	AccountHolder  string
	InitialBalance decimal.Decimal
	Currency       domain.Currency
}

func (s *AccountService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*domain.Account, error) {
	holder := strings.TrimSpace(req.AccountHolder)
	if n := utf8.RuneCountInString(holder); n < minHolderLength || n > maxHolderLength {
		return nil, errors.NewAppErrorf(errors.KindValidation, errors.ValidationError,
			"account holder must be between %d and %d characters", minHolderLength, maxHolderLength)
	}

	if !fitsAmountColumn(req.InitialBalance) || req.InitialBalance.IsNegative() || !req.InitialBalance.Equal(req.InitialBalance.Round(2)) {
		return nil, errors.NewAppError(errors.KindValidation, errors.InvalidAmount, "initial balance must be a non-negative amount with at most 2 decimals and 17 whole digits")
	}

	if !req.Currency.Valid() {
		return nil, errors.NewAppErrorf(errors.KindValidation, errors.ValidationError, "unknown currency %q", req.Currency)
	}

	s.logger.Info("Creating account", "account_holder", holder, "initial_balance", req.InitialBalance, "currency", req.Currency)

	accounts := s.store.Account()
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := s.newNumber()
		if err != nil {
			return nil, errors.StoreFailure("failed to generate account number", err)
		}

		exists, err := accounts.ExistsByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		account := &domain.Account{
			ID:            uuid.New(),
			AccountNumber: number,
			AccountHolder: holder,
			Balance:       req.InitialBalance,
			Currency:      req.Currency,
			Status:        domain.AccountActive,
		}

		err = accounts.CreateAccount(ctx, account)
		if stderrors.Is(err, errors.ErrDuplicateAccount) {
			// lost a race for the same number
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("Account created", "account_id", account.ID, "account_number", account.AccountNumber)
		return account, nil
	}

	return nil, errors.NewAppError(errors.KindStoreFailure, errors.InternalError, "could not allocate a unique account number")
}

func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.AccountDetail, error) {
	return s.store.Account().GetAccountDetail(ctx, id)
}

func (s *AccountService) ListAccounts(ctx context.Context, page domain.Page) (*domain.PageResult[domain.Account], error) {
	return s.store.Account().ListAccounts(ctx, NormalizePage(page))
}

// UpdateStatus moves an account to any status; transitions are not
// restricted.
func (s *AccountService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) (*domain.Account, error) {
	if !status.Valid() {
		return nil, errors.NewAppErrorf(errors.KindValidation, errors.ValidationError, "unknown account status %q", status)
	}

	var updated *domain.Account
	err := s.store.WithinAccount(ctx, id, func(accounts domain.AccountRepository, _ domain.TransactionRepository) error {
		account, err := accounts.GetAccount(ctx, id)
		if err != nil {
			return err
		}

		oldStatus := account.Status
		if err := accounts.UpdateAccountStatus(ctx, id, status); err != nil {
			return err
		}

		s.logger.Info("Account status changed",
			"account_number", account.AccountNumber,
			"old_status", oldStatus,
			"new_status", status)

		account.Status = status
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
