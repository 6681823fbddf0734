package service

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
)

const maxDescriptionLength = 500

// Amounts land in NUMERIC(19,2) columns.
const (
	amountScale          = 2
	maxAmountWholeDigits = 17
)

var minAmount = decimal.New(1, -2)

// Clock returns the posting instant.
type Clock func() time.Time

type TransactionService struct {
	store  domain.Store
	risk   *RiskService
	clock  Clock
	logger *slog.Logger
}

func NewTransactionService(
	store domain.Store,
	risk *RiskService,
	clock Clock,
	logger *slog.Logger,
) *TransactionService {
	if clock == nil {
		clock = time.Now
	}
	return &TransactionService{
		store:  store,
		risk:   risk,
		clock:  clock,
		logger: logger,
	}
}

type PostTransactionRequest struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Type        domain.TransactionType
	Category    domain.TransactionCategory
	Description string
}

// Post validates, scores and records a transaction against one account. The
// transaction is always recorded once the account checks pass; the balance
// only moves when the transaction is COMPLETED.
func (s *TransactionService) Post(ctx context.Context, req *PostTransactionRequest) (*domain.Transaction, error) {
	// amount is logged only once it is known to be small enough to format
	if err := validatePostRequest(req); err != nil {
		s.logger.Warn("Transaction rejected", "account_id", req.AccountID, "error", err)
		return nil, err
	}

	s.logger.Info("Processing transaction",
		"account_id", req.AccountID,
		"type", req.Type,
		"amount", req.Amount)

	var posted *domain.Transaction
	err := s.store.WithinAccount(ctx, req.AccountID, func(accounts domain.AccountRepository, transactions domain.TransactionRepository) error {
		account, err := accounts.GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		if account.Status == domain.AccountSuspended {
			return errors.ErrAccountSuspended
		}

		if req.Type == domain.TransactionDebit && req.Amount.GreaterThan(account.Balance) {
			return errors.ErrInsufficientBalance
		}

		now := s.clock()

		riskScore, status, err := s.risk.WithHistory(transactions).Score(ctx, account.ID, req.Amount, now)
		if err != nil {
			return err
		}

		transaction := &domain.Transaction{
			ID:          uuid.New(),
			AccountID:   account.ID,
			Amount:      req.Amount,
			Currency:    account.Currency,
			Type:        req.Type,
			Category:    req.Category,
			Description: req.Description,
			Status:      status,
			RiskScore:   riskScore,
			Timestamp:   now,
		}

		if err := transactions.CreateTransaction(ctx, transaction); err != nil {
			return err
		}

		switch status {
		case domain.TransactionCompleted:
			newBalance, err := req.Type.Apply(account.Balance, req.Amount)
			if err != nil {
				return errors.NewAppError(errors.KindValidation, errors.ValidationError, err.Error())
			}
			if err := accounts.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
				s.logger.Error("Balance update failed after transaction was recorded",
					"transaction_id", transaction.ID,
					"account_id", account.ID,
					"error", err)
				return errors.ErrBalanceUpdateFailed.WithDetails("transaction " + transaction.ID.String()).Wrap(err)
			}
		case domain.TransactionFlagged:
			s.logger.Warn("Transaction flagged, balance left unchanged",
				"transaction_id", transaction.ID,
				"account_id", account.ID,
				"risk_score", riskScore)
		default:
			return errors.NewAppErrorf(errors.KindStoreFailure, errors.InternalError, "unhandled transaction status %q", status)
		}

		posted = transaction
		return nil
	})
	if err != nil {
		s.logger.Warn("Transaction rejected", "account_id", req.AccountID, "error", err)
		return nil, err
	}

	s.logger.Info("Transaction created",
		"transaction_id", posted.ID,
		"type", posted.Type,
		"amount", posted.Amount,
		"currency", posted.Currency,
		"status", posted.Status,
		"risk_score", posted.RiskScore)
	return posted, nil
}

func validatePostRequest(req *PostTransactionRequest) error {
	if req.AccountID == uuid.Nil {
		return errors.ErrInvalidAccountID
	}
	if !fitsAmountColumn(req.Amount) || req.Amount.LessThan(minAmount) || !req.Amount.Equal(req.Amount.Round(2)) {
		return errors.ErrInvalidAmount
	}
	if !req.Type.Valid() {
		return errors.NewAppErrorf(errors.KindValidation, errors.ValidationError, "unknown transaction type %q", req.Type)
	}
	if !req.Category.Valid() {
		return errors.NewAppErrorf(errors.KindValidation, errors.ValidationError, "unknown transaction category %q", req.Category)
	}
	if utf8.RuneCountInString(req.Description) > maxDescriptionLength {
		return errors.NewAppErrorf(errors.KindValidation, errors.ValidationError, "description must be at most %d characters", maxDescriptionLength)
	}
	return nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.store.Transaction().GetTransactionByID(ctx, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context, filter domain.TransactionFilter, page domain.Page) (*domain.PageResult[domain.Transaction], error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, errors.NewAppError(errors.KindValidation, errors.ValidationError, "from_date must not be after to_date")
	}
	return s.store.Transaction().ListTransactions(ctx, filter, NormalizePage(page))
}

func (s *TransactionService) ListAccountTransactions(ctx context.Context, accountID uuid.UUID, page domain.Page) (*domain.PageResult[domain.Transaction], error) {
	if _, err := s.store.Account().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Transaction().ListTransactions(ctx, domain.TransactionFilter{AccountID: &accountID}, NormalizePage(page))
}

func (s *TransactionService) ListFlagged(ctx context.Context, page domain.Page) (*domain.PageResult[domain.Transaction], error) {
	return s.store.Transaction().ListFlagged(ctx, NormalizePage(page))
}

// fitsAmountColumn reports whether d has at most two decimals and seventeen
// whole digits. It only inspects exponent and coefficient length, so it must
// run before any comparison that would rescale d.
func fitsAmountColumn(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	return exp >= -amountScale && exp+d.NumDigits() <= maxAmountWholeDigits
}

// NormalizePage clamps a page request to sane bounds.
func NormalizePage(p domain.Page) domain.Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Number > domain.MaxPageNumber {
		p.Number = domain.MaxPageNumber
	}
	if p.Size <= 0 {
		p.Size = domain.DefaultPageSize
	}
	if p.Size > domain.MaxPageSize {
		p.Size = domain.MaxPageSize
	}
	if p.SortDir != domain.SortAsc {
		p.SortDir = domain.SortDesc
	}
	return p
}
