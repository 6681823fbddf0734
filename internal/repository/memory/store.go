// Package memory is an in-process implementation of the account and
// transaction repositories, used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]domain.Account
	transactions []domain.Transaction

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

var _ domain.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]domain.Account),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Store) Account() domain.AccountRepository {
	return &accountRepository{store: s}
}

func (s *Store) Transaction() domain.TransactionRepository {
	return &transactionRepository{store: s}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// WithinAccount holds the account's mutex for the duration of fn and stages
// writes until fn returns nil.
func (s *Store) WithinAccount(ctx context.Context, accountID uuid.UUID, fn func(domain.AccountRepository, domain.TransactionRepository) error) error {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.StoreFailure("context done before unit of work", err)
	}

	u := &unit{accounts: make(map[uuid.UUID]domain.Account)}
	if err := fn(&accountRepository{store: s, unit: u}, &transactionRepository{store: s, unit: u}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, account := range u.accounts {
		s.accounts[id] = account
	}
	s.transactions = append(s.transactions, u.transactions...)
	return nil
}

func (s *Store) accountLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// unit holds writes staged inside WithinAccount.
type unit struct {
	accounts     map[uuid.UUID]domain.Account
	transactions []domain.Transaction
}

type accountRepository struct {
	store *Store
	unit  *unit
}

func (r *accountRepository) lookup(id uuid.UUID) (domain.Account, bool) {
	if r.unit != nil {
		if a, ok := r.unit.accounts[id]; ok {
			return a, true
		}
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	a, ok := r.store.accounts[id]
	return a, ok
}

func (r *accountRepository) put(account domain.Account) {
	if r.unit != nil {
		r.unit.accounts[account.ID] = account
		return
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.accounts[account.ID] = account
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	if r.unit != nil {
		if _, ok := r.lookup(account.ID); ok {
			return errors.ErrDuplicateAccount
		}
		if exists, _ := r.ExistsByNumber(ctx, account.AccountNumber); exists {
			return errors.ErrDuplicateAccount
		}
		r.unit.accounts[account.ID] = *account
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.accounts[account.ID]; ok {
		return errors.ErrDuplicateAccount
	}
	for _, a := range r.store.accounts {
		if a.AccountNumber == account.AccountNumber {
			return errors.ErrDuplicateAccount
		}
	}
	r.store.accounts[account.ID] = *account
	return nil
}

func (r *accountRepository) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	a, ok := r.lookup(id)
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return &a, nil
}

func (r *accountRepository) GetAccountDetail(ctx context.Context, id uuid.UUID) (*domain.AccountDetail, error) {
	a, err := r.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &domain.AccountDetail{Account: *a, TotalDebits: decimal.Zero, TotalCredits: decimal.Zero}
	for _, tx := range r.store.snapshot(r.unit) {
		if tx.AccountID != id {
			continue
		}
		detail.TotalTransactions++
		switch tx.Type {
		case domain.TransactionDebit:
			detail.TotalDebits = detail.TotalDebits.Add(tx.Amount)
		case domain.TransactionCredit:
			detail.TotalCredits = detail.TotalCredits.Add(tx.Amount)
		}
	}
	return detail, nil
}

func (r *accountRepository) ListAccounts(_ context.Context, page domain.Page) (*domain.PageResult[domain.Account], error) {
	r.store.mu.RLock()
	accounts := make([]domain.Account, 0, len(r.store.accounts))
	for _, a := range r.store.accounts {
		accounts = append(accounts, a)
	}
	r.store.mu.RUnlock()

	less := accountLess(page.SortField)
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i], accounts[j]
		if page.SortDir == domain.SortAsc {
			return less(a, b)
		}
		return less(b, a)
	})

	return domain.NewPageResult(paginate(accounts, page), page, int64(len(accounts))), nil
}

func accountLess(field string) func(a, b domain.Account) bool {
	switch field {
	case "account_number":
		return func(a, b domain.Account) bool { return a.AccountNumber < b.AccountNumber }
	case "account_holder":
		return func(a, b domain.Account) bool {
			if a.AccountHolder == b.AccountHolder {
				return a.ID.String() < b.ID.String()
			}
			return a.AccountHolder < b.AccountHolder
		}
	case "balance":
		return func(a, b domain.Account) bool {
			if a.Balance.Equal(b.Balance) {
				return a.ID.String() < b.ID.String()
			}
			return a.Balance.LessThan(b.Balance)
		}
	default:
		return func(a, b domain.Account) bool {
			if a.CreatedAt.Equal(b.CreatedAt) {
				return a.ID.String() < b.ID.String()
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
}

func (r *accountRepository) ExistsByNumber(_ context.Context, number string) (bool, error) {
	if r.unit != nil {
		for _, a := range r.unit.accounts {
			if a.AccountNumber == number {
				return true, nil
			}
		}
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, a := range r.store.accounts {
		if a.AccountNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *accountRepository) UpdateAccountBalance(_ context.Context, id uuid.UUID, newBalance decimal.Decimal) error {
	a, ok := r.lookup(id)
	if !ok {
		return errors.ErrAccountNotFound
	}
	a.Balance = newBalance
	a.UpdatedAt = time.Now().UTC()
	r.put(a)
	return nil
}

func (r *accountRepository) UpdateAccountStatus(_ context.Context, id uuid.UUID, status domain.AccountStatus) error {
	a, ok := r.lookup(id)
	if !ok {
		return errors.ErrAccountNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	r.put(a)
	return nil
}

type transactionRepository struct {
	store *Store
	unit  *unit
}

// snapshot returns committed transactions followed by those staged in u.
func (s *Store) snapshot(u *unit) []domain.Transaction {
	s.mu.RLock()
	out := make([]domain.Transaction, 0, len(s.transactions))
	out = append(out, s.transactions...)
	s.mu.RUnlock()
	if u != nil {
		out = append(out, u.transactions...)
	}
	return out
}

func (r *transactionRepository) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	if r.unit != nil {
		r.unit.transactions = append(r.unit.transactions, *tx)
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.transactions = append(r.store.transactions, *tx)
	return nil
}

func (r *transactionRepository) GetTransactionByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	for _, tx := range r.store.snapshot(r.unit) {
		if tx.ID == id {
			return &tx, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

func (r *transactionRepository) CountSince(_ context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	count := 0
	for _, tx := range r.store.snapshot(r.unit) {
		if tx.AccountID == accountID && tx.Timestamp.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *transactionRepository) ListTransactions(_ context.Context, filter domain.TransactionFilter, page domain.Page) (*domain.PageResult[domain.Transaction], error) {
	var matched []domain.Transaction
	for _, tx := range r.store.snapshot(r.unit) {
		if filter.AccountID != nil && tx.AccountID != *filter.AccountID {
			continue
		}
		if filter.Status != nil && tx.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && tx.Type != *filter.Type {
			continue
		}
		if filter.From != nil && tx.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && tx.Timestamp.After(*filter.To) {
			continue
		}
		matched = append(matched, tx)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	return domain.NewPageResult(paginate(matched, page), page, int64(len(matched))), nil
}

func (r *transactionRepository) ListFlagged(_ context.Context, page domain.Page) (*domain.PageResult[domain.Transaction], error) {
	var flagged []domain.Transaction
	for _, tx := range r.store.snapshot(r.unit) {
		if tx.Status == domain.TransactionFlagged {
			flagged = append(flagged, tx)
		}
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		if flagged[i].RiskScore == flagged[j].RiskScore {
			return flagged[i].Timestamp.After(flagged[j].Timestamp)
		}
		return flagged[i].RiskScore > flagged[j].RiskScore
	})

	return domain.NewPageResult(paginate(flagged, page), page, int64(len(flagged))), nil
}

func paginate[T any](items []T, page domain.Page) []T {
	start := page.Offset()
	if start < 0 || start >= len(items) || page.Size <= 0 {
		return nil
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

