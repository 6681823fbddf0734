package repository_test

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
	"bank-postings/internal/logging"
	"bank-postings/internal/repository"
	"bank-postings/internal/service"
)

const testDBName = "bank_postings"

type StoreIntegrationSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *sql.DB
	store     *repository.Store
}

func (s *StoreIntegrationSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase(testDBName),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = sql.Open("postgres", dsn)
	s.Require().NoError(err)
	s.Require().NoError(s.db.PingContext(ctx))

	s.Require().NoError(repository.Migrate(s.db, testDBName, logging.Discard()))
	s.store = repository.NewStore(s.db, logging.Discard())
}

func (s *StoreIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.container.Terminate(context.Background())
	}
}

func (s *StoreIntegrationSuite) SetupTest() {
	_, err := s.db.Exec(`TRUNCATE transactions, accounts`)
	s.Require().NoError(err)
}

func (s *StoreIntegrationSuite) createAccount(balance string, status domain.AccountStatus) *domain.Account {
	number, err := service.RandomAccountNumber()
	s.Require().NoError(err)
	account := &domain.Account{
		ID:            uuid.New(),
		AccountNumber: number,
		AccountHolder: "Jane Smith",
		Balance:       decimal.RequireFromString(balance),
		Currency:      domain.CurrencyGBP,
		Status:        status,
	}
	s.Require().NoError(s.store.Account().CreateAccount(context.Background(), account))
	return account
}

func (s *StoreIntegrationSuite) insertTx(accountID uuid.UUID, ts time.Time, txType domain.TransactionType, status domain.TransactionStatus, score int) *domain.Transaction {
	tx := &domain.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      decimal.RequireFromString("12.34"),
		Currency:    domain.CurrencyGBP,
		Type:        txType,
		Category:    domain.CategoryPurchase,
		Description: "coffee",
		Status:      status,
		RiskScore:   score,
		Timestamp:   ts,
	}
	s.Require().NoError(s.store.Transaction().CreateTransaction(context.Background(), tx))
	return tx
}

func (s *StoreIntegrationSuite) TestMigrateIsRepeatable() {
	s.NoError(repository.Migrate(s.db, testDBName, logging.Discard()))
}

func (s *StoreIntegrationSuite) TestAccountRoundTrip() {
	ctx := context.Background()
	account := s.createAccount("1000.50", domain.AccountActive)

	got, err := s.store.Account().GetAccount(ctx, account.ID)
	s.Require().NoError(err)
	s.Equal(account.AccountNumber, got.AccountNumber)
	s.Equal(domain.CurrencyGBP, got.Currency)
	s.Equal(domain.AccountActive, got.Status)
	s.True(decimal.RequireFromString("1000.50").Equal(got.Balance))

	dup := *account
	dup.ID = uuid.New()
	s.ErrorIs(s.store.Account().CreateAccount(ctx, &dup), errors.ErrDuplicateAccount)

	exists, err := s.store.Account().ExistsByNumber(ctx, account.AccountNumber)
	s.Require().NoError(err)
	s.True(exists)

	s.Require().NoError(s.store.Account().UpdateAccountStatus(ctx, account.ID, domain.AccountSuspended))
	s.Require().NoError(s.store.Account().UpdateAccountBalance(ctx, account.ID, decimal.RequireFromString("10.01")))
	got, err = s.store.Account().GetAccount(ctx, account.ID)
	s.Require().NoError(err)
	s.Equal(domain.AccountSuspended, got.Status)
	s.True(decimal.RequireFromString("10.01").Equal(got.Balance))

	_, err = s.store.Account().GetAccount(ctx, uuid.New())
	s.ErrorIs(err, errors.ErrAccountNotFound)
	s.ErrorIs(s.store.Account().UpdateAccountBalance(ctx, uuid.New(), decimal.Zero), errors.ErrAccountNotFound)
}

func (s *StoreIntegrationSuite) TestListAccountsSortsAndPages() {
	low := s.createAccount("5.00", domain.AccountActive)
	s.createAccount("50.00", domain.AccountActive)
	high := s.createAccount("500.00", domain.AccountActive)

	result, err := s.store.Account().ListAccounts(context.Background(), domain.Page{Size: 2, SortField: "balance", SortDir: domain.SortDesc})
	s.Require().NoError(err)
	s.Equal(int64(3), result.TotalElements)
	s.Equal(2, result.TotalPages)
	s.Require().Len(result.Items, 2)
	s.Equal(high.ID, result.Items[0].ID)

	result, err = s.store.Account().ListAccounts(context.Background(), domain.Page{Number: 1, Size: 2, SortField: "balance", SortDir: domain.SortDesc})
	s.Require().NoError(err)
	s.Require().Len(result.Items, 1)
	s.Equal(low.ID, result.Items[0].ID)
}

func (s *StoreIntegrationSuite) TestAccountDetailTotals() {
	account := s.createAccount("100.00", domain.AccountActive)
	now := time.Now().UTC()
	s.insertTx(account.ID, now, domain.TransactionDebit, domain.TransactionCompleted, 0)
	s.insertTx(account.ID, now, domain.TransactionDebit, domain.TransactionFlagged, 90)
	s.insertTx(account.ID, now, domain.TransactionCredit, domain.TransactionCompleted, 0)

	detail, err := s.store.Account().GetAccountDetail(context.Background(), account.ID)
	s.Require().NoError(err)
	s.Equal(int64(3), detail.TotalTransactions)
	s.True(decimal.RequireFromString("24.68").Equal(detail.TotalDebits))
	s.True(decimal.RequireFromString("12.34").Equal(detail.TotalCredits))
}

func (s *StoreIntegrationSuite) TestTransactionQueries() {
	ctx := context.Background()
	account := s.createAccount("100.00", domain.AccountActive)
	other := s.createAccount("100.00", domain.AccountActive)
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.insertTx(account.ID, now.Add(-time.Hour), domain.TransactionDebit, domain.TransactionCompleted, 0)
	inWindow := s.insertTx(account.ID, now.Add(-30*time.Minute), domain.TransactionCredit, domain.TransactionFlagged, 75)
	latest := s.insertTx(account.ID, now, domain.TransactionDebit, domain.TransactionFlagged, 90)
	s.insertTx(other.ID, now, domain.TransactionDebit, domain.TransactionCompleted, 0)

	got, err := s.store.Transaction().GetTransactionByID(ctx, latest.ID)
	s.Require().NoError(err)
	s.Equal("coffee", got.Description)
	s.Equal(90, got.RiskScore)
	s.True(now.Equal(got.Timestamp))

	_, err = s.store.Transaction().GetTransactionByID(ctx, uuid.New())
	s.ErrorIs(err, errors.ErrTransactionNotFound)

	n, err := s.store.Transaction().CountSince(ctx, account.ID, now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(2, n, "the posting exactly one hour back is outside the window")

	page := domain.Page{Size: 10}
	list, err := s.store.Transaction().ListTransactions(ctx, domain.TransactionFilter{AccountID: &account.ID}, page)
	s.Require().NoError(err)
	s.Equal(int64(3), list.TotalElements)
	s.Require().Len(list.Items, 3)
	s.Equal(latest.ID, list.Items[0].ID)

	flagged := domain.TransactionFlagged
	credit := domain.TransactionCredit
	list, err = s.store.Transaction().ListTransactions(ctx, domain.TransactionFilter{Status: &flagged, Type: &credit}, page)
	s.Require().NoError(err)
	s.Require().Len(list.Items, 1)
	s.Equal(inWindow.ID, list.Items[0].ID)

	from, to := now.Add(-time.Hour), now.Add(-30*time.Minute)
	list, err = s.store.Transaction().ListTransactions(ctx, domain.TransactionFilter{From: &from, To: &to}, page)
	s.Require().NoError(err)
	s.Equal(int64(2), list.TotalElements)

	list, err = s.store.Transaction().ListFlagged(ctx, domain.Page{Size: 1})
	s.Require().NoError(err)
	s.Equal(int64(2), list.TotalElements)
	s.Equal(2, list.TotalPages)
	s.Require().Len(list.Items, 1)
	s.Equal(latest.ID, list.Items[0].ID)
}

func (s *StoreIntegrationSuite) TestWithinAccountRollsBack() {
	ctx := context.Background()
	account := s.createAccount("100.00", domain.AccountActive)
	boom := stderrors.New("boom")

	err := s.store.WithinAccount(ctx, account.ID, func(accounts domain.AccountRepository, transactions domain.TransactionRepository) error {
		s.Require().NoError(accounts.UpdateAccountBalance(ctx, account.ID, decimal.Zero))
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.Account().GetAccount(ctx, account.ID)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("100.00").Equal(got.Balance))
}

func (s *StoreIntegrationSuite) TestConcurrentPostingsStayConsistent() {
	account := s.createAccount("100.00", domain.AccountActive)
	logger := logging.Discard()
	now := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)
	postings := service.NewTransactionService(s.store, service.NewRiskService(s.store.Transaction(), logger),
		func() time.Time { return now }, logger)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := postings.Post(context.Background(), &service.PostTransactionRequest{
				AccountID: account.ID,
				Amount:    decimal.RequireFromString("10.00"),
				Type:      domain.TransactionDebit,
				Category:  domain.CategoryWithdrawal,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(s.T(), err, errors.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	s.Equal(10, succeeded)
	got, err := s.store.Account().GetAccount(context.Background(), account.ID)
	s.Require().NoError(err)
	s.True(decimal.Zero.Equal(got.Balance))

	var recorded int
	s.Require().NoError(s.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE account_id = $1`, account.ID).Scan(&recorded))
	s.Equal(10, recorded)
}

func TestStoreIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(StoreIntegrationSuite))
}
