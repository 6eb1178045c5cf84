package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltrent/energybot/core/logger"
	"github.com/voltrent/energybot/internal/domain"
)

// account is the mutable ledger record for one identity. Its mutex serializes
// every read-validate-mutate sequence; the store map lock is only held for
// lookups and account creation, never across a ledger operation.
type account struct {
	mu sync.Mutex

	id          domain.Identity
	displayName string
	balance     decimal.Decimal
	rentals     []domain.Rental
	txs         []domain.Transaction
}

func (a *account) summary() domain.AccountSummary {
	return domain.AccountSummary{
		ID:           a.id,
		DisplayName:  a.displayName,
		Balance:      a.balance,
		RentalCount:  len(a.rentals),
		HistoryCount: len(a.txs),
	}
}

// MemoryStore keeps all accounts in process memory. State is lost on restart,
// which is acceptable for this store; the Postgres store covers durability.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[domain.Identity]*account
	now      func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[domain.Identity]*account),
		now:      time.Now,
	}
}

// Ensure returns the existing account for id or creates a fresh one. Calling
// it twice never creates a duplicate or resets a balance.
func (s *MemoryStore) Ensure(ctx context.Context, id domain.Identity, displayName string) (domain.AccountSummary, bool, error) {
	s.mu.Lock()
	acct, ok := s.accounts[id]
	if !ok {
		acct = &account{id: id, displayName: displayName}
		s.accounts[id] = acct
	}
	s.mu.Unlock()

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if !ok {
		logger.Info(ctx, "service.accounts", "account.created",
			slog.Int64("account_id", int64(id)),
		)
	}
	return acct.summary(), !ok, nil
}

func (s *MemoryStore) lookup(id domain.Identity) (*account, error) {
	s.mu.RLock()
	acct, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.AccountNotInitializedError{ID: id}
	}
	return acct, nil
}

// Summary returns the headline state for id.
func (s *MemoryStore) Summary(ctx context.Context, id domain.Identity) (domain.AccountSummary, error) {
	acct, err := s.lookup(id)
	if err != nil {
		return domain.AccountSummary{}, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.summary(), nil
}

// Credit adds amount and appends the topup transaction under one lock hold.
func (s *MemoryStore) Credit(ctx context.Context, id domain.Identity, amount decimal.Decimal) (domain.Transaction, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return domain.Transaction{}, decimal.Zero, &domain.InvalidAmountError{Raw: amount.String()}
	}
	acct, err := s.lookup(id)
	if err != nil {
		return domain.Transaction{}, decimal.Zero, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	acct.balance = acct.balance.Add(amount)
	tx := domain.Transaction{
		Kind:      domain.TxTopUp,
		Amount:    amount,
		Timestamp: s.now(),
	}
	acct.txs = append(acct.txs, tx)

	logger.Info(ctx, "service.ledger", "ledger.credit",
		slog.Int64("account_id", int64(id)),
		slog.String("balance", acct.balance.String()),
	)
	return tx, acct.balance, nil
}

// Debit subtracts amount, refusing to let the balance go negative.
func (s *MemoryStore) Debit(ctx context.Context, id domain.Identity, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, &domain.InvalidAmountError{Raw: amount.String()}
	}
	acct, err := s.lookup(id)
	if err != nil {
		return decimal.Zero, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.debitLocked(amount)
}

func (a *account) debitLocked(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.GreaterThan(a.balance) {
		return a.balance, domain.NewInsufficientFunds(amount, a.balance)
	}
	a.balance = a.balance.Sub(amount)
	if a.balance.IsNegative() {
		// Unreachable unless the guard above is broken; a negative balance
		// is a logic bug, not a user error.
		panic("ledger: balance went negative")
	}
	return a.balance, nil
}

// DebitForRental debits the rental cost and appends both the rental and its
// transaction while holding the account lock, so no observer can see money
// taken without the rental recorded or vice versa.
func (s *MemoryStore) DebitForRental(ctx context.Context, id domain.Identity, r domain.Rental) (domain.Transaction, decimal.Decimal, error) {
	acct, err := s.lookup(id)
	if err != nil {
		return domain.Transaction{}, decimal.Zero, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	balance, err := acct.debitLocked(r.Cost)
	if err != nil {
		return domain.Transaction{}, balance, err
	}

	acct.rentals = append(acct.rentals, r)
	tx := domain.Transaction{
		Kind:      domain.TxRental,
		Amount:    r.EnergyKWH,
		Cost:      r.Cost,
		Timestamp: r.StartedAt,
		RentalID:  r.ID,
	}
	acct.txs = append(acct.txs, tx)

	logger.Info(ctx, "service.ledger", "ledger.rental",
		slog.Int64("account_id", int64(id)),
		slog.String("rental_id", r.ID),
		slog.String("cost", r.Cost.String()),
		slog.String("balance", balance.String()),
	)
	return tx, balance, nil
}

// MirrorRental books a platform-issued rental and pins the balance to the
// value the platform reported with the submission result.
func (s *MemoryStore) MirrorRental(ctx context.Context, id domain.Identity, r domain.Rental, remoteBalance decimal.Decimal) (domain.Transaction, error) {
	acct, err := s.lookup(id)
	if err != nil {
		return domain.Transaction{}, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	acct.balance = remoteBalance
	acct.rentals = append(acct.rentals, r)
	tx := domain.Transaction{
		Kind:      domain.TxRental,
		Amount:    r.EnergyKWH,
		Cost:      r.Cost,
		Timestamp: r.StartedAt,
		RentalID:  r.ID,
	}
	acct.txs = append(acct.txs, tx)
	return tx, nil
}

// Transactions returns a copy of the log in insertion order.
func (s *MemoryStore) Transactions(ctx context.Context, id domain.Identity) ([]domain.Transaction, error) {
	acct, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	out := make([]domain.Transaction, len(acct.txs))
	copy(out, acct.txs)
	return out, nil
}

// ActiveRentals returns a copy of the active rentals in issuance order.
func (s *MemoryStore) ActiveRentals(ctx context.Context, id domain.Identity) ([]domain.Rental, error) {
	acct, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	out := make([]domain.Rental, len(acct.rentals))
	copy(out, acct.rentals)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
