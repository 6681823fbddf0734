package service

import (
	"context"
	stderrors "errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
	"bank-postings/internal/logging"
	"bank-postings/internal/repository/memory"
)

var accountNumberPattern = regexp.MustCompile(`^GB\d{22}$`)

func TestRandomAccountNumber(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		number, err := RandomAccountNumber()
		require.NoError(t, err)
		assert.Regexp(t, accountNumberPattern, number)
		seen[number] = true
	}
	assert.Len(t, seen, 200)
}

func TestCreateAccount(t *testing.T) {
	store := memory.NewStore()
	svc := NewAccountService(store, nil, logging.Discard())

	account, err := svc.CreateAccount(context.Background(), &CreateAccountRequest{
		AccountHolder:  "  Jane Smith ",
		InitialBalance: decimal.RequireFromString("250.75"),
		Currency:       domain.CurrencyGBP,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, account.ID)
	assert.Regexp(t, accountNumberPattern, account.AccountNumber)
	assert.Equal(t, "Jane Smith", account.AccountHolder)
	assert.Equal(t, domain.AccountActive, account.Status)
	assert.Equal(t, domain.CurrencyGBP, account.Currency)
	assert.True(t, decimal.RequireFromString("250.75").Equal(account.Balance))

	detail, err := svc.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.AccountNumber, detail.AccountNumber)
	assert.Zero(t, detail.TotalTransactions)
}

func TestCreateAccount_RetriesTakenNumbers(t *testing.T) {
	store := memory.NewStore()
	taken := "GB0000000000000000000001"
	candidates := []string{taken, taken, "GB0000000000000000000002"}
	next := 0
	generator := func() (string, error) {
		n := candidates[next]
		next++
		return n, nil
	}
	svc := NewAccountService(store, generator, logging.Discard())

	first, err := svc.CreateAccount(context.Background(), &CreateAccountRequest{AccountHolder: "First", Currency: domain.CurrencyEUR})
	require.NoError(t, err)
	assert.Equal(t, taken, first.AccountNumber)

	second, err := svc.CreateAccount(context.Background(), &CreateAccountRequest{AccountHolder: "Second", Currency: domain.CurrencyEUR})
	require.NoError(t, err)
	assert.Equal(t, "GB0000000000000000000002", second.AccountNumber)
	assert.Equal(t, 3, next)
}

func TestCreateAccount_GivesUpAfterRepeatedCollisions(t *testing.T) {
	store := memory.NewStore()
	generator := func() (string, error) { return "GB1111111111111111111111", nil }
	svc := NewAccountService(store, generator, logging.Discard())

	_, err := svc.CreateAccount(context.Background(), &CreateAccountRequest{AccountHolder: "First", Currency: domain.CurrencyEUR})
	require.NoError(t, err)

	_, err = svc.CreateAccount(context.Background(), &CreateAccountRequest{AccountHolder: "Second", Currency: domain.CurrencyEUR})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.InternalError, appErr.Code)
}

func TestCreateAccount_GeneratorFailure(t *testing.T) {
	boom := stderrors.New("entropy exhausted")
	svc := NewAccountService(memory.NewStore(), func() (string, error) { return "", boom }, logging.Discard())

	_, err := svc.CreateAccount(context.Background(), &CreateAccountRequest{AccountHolder: "Jane", Currency: domain.CurrencyEUR})
	assert.ErrorIs(t, err, boom)
}

func TestCreateAccount_Validation(t *testing.T) {
	svc := NewAccountService(memory.NewStore(), nil, logging.Discard())

	tests := []struct {
		name string
		req  CreateAccountRequest
		code errors.ErrorCode
	}{
		{"holder too short", CreateAccountRequest{AccountHolder: "J", Currency: domain.CurrencyEUR}, errors.ValidationError},
		{"holder blank", CreateAccountRequest{AccountHolder: "    ", Currency: domain.CurrencyEUR}, errors.ValidationError},
		{"holder too long", CreateAccountRequest{AccountHolder: strings.Repeat("a", 101), Currency: domain.CurrencyEUR}, errors.ValidationError},
		{"negative balance", CreateAccountRequest{AccountHolder: "Jane", InitialBalance: decimal.NewFromInt(-1), Currency: domain.CurrencyEUR}, errors.InvalidAmount},
		{"fractional cents", CreateAccountRequest{AccountHolder: "Jane", InitialBalance: decimal.RequireFromString("1.005"), Currency: domain.CurrencyEUR}, errors.InvalidAmount},
		{"balance too large", CreateAccountRequest{AccountHolder: "Jane", InitialBalance: decimal.RequireFromString("100000000000000000"), Currency: domain.CurrencyEUR}, errors.InvalidAmount},
		{"huge balance exponent", CreateAccountRequest{AccountHolder: "Jane", InitialBalance: decimal.RequireFromString("1e50000000"), Currency: domain.CurrencyEUR}, errors.InvalidAmount},
		{"unknown currency", CreateAccountRequest{AccountHolder: "Jane", Currency: "JPY"}, errors.ValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAccount(context.Background(), &tt.req)
			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}

	accounts, err := svc.ListAccounts(context.Background(), domain.Page{})
	require.NoError(t, err)
	assert.Zero(t, accounts.TotalElements)
}

func TestUpdateStatus(t *testing.T) {
	store := memory.NewStore()
	svc := NewAccountService(store, nil, logging.Discard())
	account, err := svc.CreateAccount(context.Background(), &CreateAccountRequest{AccountHolder: "Jane", Currency: domain.CurrencyEUR})
	require.NoError(t, err)

	// any status can follow any other
	for _, status := range []domain.AccountStatus{domain.AccountClosed, domain.AccountSuspended, domain.AccountActive, domain.AccountActive} {
		updated, err := svc.UpdateStatus(context.Background(), account.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)

		stored, err := store.Account().GetAccount(context.Background(), account.ID)
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
	}

	_, err = svc.UpdateStatus(context.Background(), account.ID, "FROZEN")
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ValidationError, appErr.Code)

	_, err = svc.UpdateStatus(context.Background(), uuid.New(), domain.AccountSuspended)
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}

func TestGetAccount_Totals(t *testing.T) {
	store := memory.NewStore()
	accounts := NewAccountService(store, nil, logging.Discard())
	postings := newTransactionService(store, at(12, 0))

	account, err := accounts.CreateAccount(context.Background(), &CreateAccountRequest{
		AccountHolder:  "Jane",
		InitialBalance: decimal.NewFromInt(100),
		Currency:       domain.CurrencyEUR,
	})
	require.NoError(t, err)

	_, err = postings.Post(context.Background(), postRequest(account.ID, "40.00", domain.TransactionDebit))
	require.NoError(t, err)
	_, err = postings.Post(context.Background(), postRequest(account.ID, "15.50", domain.TransactionCredit))
	require.NoError(t, err)
	_, err = postings.Post(context.Background(), postRequest(account.ID, "4.50", domain.TransactionCredit))
	require.NoError(t, err)

	detail, err := accounts.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), detail.TotalTransactions)
	assert.True(t, decimal.RequireFromString("40.00").Equal(detail.TotalDebits))
	assert.True(t, decimal.RequireFromString("20.00").Equal(detail.TotalCredits))
	assert.True(t, decimal.RequireFromString("80.00").Equal(detail.Balance))

	_, err = accounts.GetAccount(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}

func TestListAccounts(t *testing.T) {
	store := memory.NewStore()
	svc := NewAccountService(store, nil, logging.Discard())
	for _, holder := range []string{"Carol", "Alice", "Bob"} {
		_, err := svc.CreateAccount(context.Background(), &CreateAccountRequest{AccountHolder: holder, Currency: domain.CurrencyEUR})
		require.NoError(t, err)
	}

	page, err := svc.ListAccounts(context.Background(), domain.Page{Size: 2, SortField: "account_holder", SortDir: domain.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Alice", page.Items[0].AccountHolder)
	assert.Equal(t, "Bob", page.Items[1].AccountHolder)

	page, err = svc.ListAccounts(context.Background(), domain.Page{Number: 1, Size: 2, SortField: "account_holder", SortDir: domain.SortAsc})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Carol", page.Items[0].AccountHolder)
}
