package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountClosed    AccountStatus = "CLOSED"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountSuspended, AccountClosed:
		return true
	}
	return false
}

func ParseAccountStatus(v string) (AccountStatus, error) {
	s := AccountStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown account status %q", v)
	}
	return s, nil
}

type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyUSD Currency = "USD"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyEUR, CurrencyGBP, CurrencyUSD:
		return true
	}
	return false
}

func ParseCurrency(v string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(v)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown currency %q", v)
	}
	return c, nil
}

type Account struct {
	ID            uuid.UUID       `json:"id"`
	AccountNumber string          `json:"account_number"`
	AccountHolder string          `json:"account_holder"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      Currency        `json:"currency"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AccountDetail is an account together with totals over all of its
// transactions, whatever their status.
type AccountDetail struct {
	Account
	TotalTransactions int64           `json:"total_transactions"`
	TotalDebits       decimal.Decimal `json:"total_debits"`
	TotalCredits      decimal.Decimal `json:"total_credits"`
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountDetail(ctx context.Context, id uuid.UUID) (*AccountDetail, error)
	ListAccounts(ctx context.Context, page Page) (*PageResult[Account], error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, status AccountStatus) error
}
