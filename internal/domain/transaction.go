package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDebit, TransactionCredit:
		return true
	}
	return false
}

func ParseTransactionType(v string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(v)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", v)
	}
	return t, nil
}

// Apply returns the balance after a completed transaction of this type.
func (t TransactionType) Apply(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case TransactionDebit:
		return balance.Sub(amount), nil
	case TransactionCredit:
		return balance.Add(amount), nil
	default:
		return decimal.Zero, fmt.Errorf("cannot apply transaction type %q", t)
	}
}

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFlagged   TransactionStatus = "FLAGGED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionCompleted, TransactionFlagged:
		return true
	}
	return false
}

func ParseTransactionStatus(v string) (TransactionStatus, error) {
	s := TransactionStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown transaction status %q", v)
	}
	return s, nil
}

type TransactionCategory string

const (
	CategoryDeposit    TransactionCategory = "DEPOSIT"
	CategoryWithdrawal TransactionCategory = "WITHDRAWAL"
	CategoryTransfer   TransactionCategory = "TRANSFER"
	CategoryPayment    TransactionCategory = "PAYMENT"
	CategoryPurchase   TransactionCategory = "PURCHASE"
	CategoryRefund     TransactionCategory = "REFUND"
	CategoryFee        TransactionCategory = "FEE"
	CategorySalary     TransactionCategory = "SALARY"
	CategoryOther      TransactionCategory = "OTHER"
)

func (c TransactionCategory) Valid() bool {
	switch c {
	case CategoryDeposit, CategoryWithdrawal, CategoryTransfer, CategoryPayment,
		CategoryPurchase, CategoryRefund, CategoryFee, CategorySalary, CategoryOther:
		return true
	}
	return false
}

func ParseTransactionCategory(v string) (TransactionCategory, error) {
	c := TransactionCategory(strings.ToUpper(strings.TrimSpace(v)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown transaction category %q", v)
	}
	return c, nil
}

type Transaction struct {
	ID          uuid.UUID           `json:"id"`
	AccountID   uuid.UUID           `json:"account_id"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    Currency            `json:"currency"`
	Type        TransactionType     `json:"type"`
	Category    TransactionCategory `json:"category"`
	Description string              `json:"description,omitempty"`
	Status      TransactionStatus   `json:"status"`
	RiskScore   int                 `json:"risk_score"`
	Timestamp   time.Time           `json:"timestamp"`
}

// TransactionFilter narrows ListTransactions. Zero fields match everything;
// From and To are inclusive.
type TransactionFilter struct {
	AccountID *uuid.UUID
	Status    *TransactionStatus
	Type      *TransactionType
	From      *time.Time
	To        *time.Time
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// CountSince counts the account's transactions with a timestamp strictly
	// after since.
	CountSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error)
	ListTransactions(ctx context.Context, filter TransactionFilter, page Page) (*PageResult[Transaction], error)
	ListFlagged(ctx context.Context, page Page) (*PageResult[Transaction], error)
}
