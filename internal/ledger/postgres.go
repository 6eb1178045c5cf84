package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/voltrent/energybot/internal/domain"
)

// PostgresStore is the durable Store backend. Per-account serialization is
// delegated to row locks: every mutating operation runs in a transaction
// that takes the account row FOR UPDATE first.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

type accountRow struct {
	ID           int64           `db:"id"`
	DisplayName  string          `db:"display_name"`
	Balance      decimal.Decimal `db:"balance"`
	RentalCount  int             `db:"rental_count"`
	HistoryCount int             `db:"history_count"`
}

func (r accountRow) summary() domain.AccountSummary {
	return domain.AccountSummary{
		ID:           domain.Identity(r.ID),
		DisplayName:  r.DisplayName,
		Balance:      r.Balance,
		RentalCount:  r.RentalCount,
		HistoryCount: r.HistoryCount,
	}
}

type rentalRow struct {
	ID          string          `db:"id"`
	EnergyKWH   decimal.Decimal `db:"energy_kwh"`
	Cost        decimal.Decimal `db:"cost"`
	Destination sql.NullString  `db:"destination"`
	Status      string          `db:"status"`
	StartedAt   time.Time       `db:"started_at"`
}

type transactionRow struct {
	Kind      string          `db:"kind"`
	Amount    decimal.Decimal `db:"amount"`
	Cost      decimal.Decimal `db:"cost"`
	RentalID  sql.NullString  `db:"rental_id"`
	CreatedAt time.Time       `db:"created_at"`
}

const summaryQuery = `
SELECT a.id, a.display_name, a.balance,
       (SELECT COUNT(*) FROM rentals r WHERE r.account_id = a.id AND r.status = 'active') AS rental_count,
       (SELECT COUNT(*) FROM transactions t WHERE t.account_id = a.id) AS history_count
  FROM accounts a
 WHERE a.id = $1`

// Ensure inserts the account if missing. ON CONFLICT DO NOTHING keeps the
// call idempotent under concurrent first contact.
func (s *PostgresStore) Ensure(ctx context.Context, id domain.Identity, displayName string) (domain.AccountSummary, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, display_name, balance, created_at)
		 VALUES ($1, $2, 0, $3)
		 ON CONFLICT (id) DO NOTHING`,
		int64(id), displayName, s.now(),
	)
	if err != nil {
		return domain.AccountSummary{}, false, fmt.Errorf("ensure account: %w", err)
	}
	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}

	var row accountRow
	if err := s.db.GetContext(ctx, &row, summaryQuery, int64(id)); err != nil {
		return domain.AccountSummary{}, false, fmt.Errorf("load account: %w", err)
	}
	return row.summary(), created, nil
}

// Summary returns the headline state for id.
func (s *PostgresStore) Summary(ctx context.Context, id domain.Identity) (domain.AccountSummary, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, summaryQuery, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AccountSummary{}, &domain.AccountNotInitializedError{ID: id}
	}
	if err != nil {
		return domain.AccountSummary{}, fmt.Errorf("load account: %w", err)
	}
	return row.summary(), nil
}

// lockBalance reads the balance while taking the row lock that serializes
// all mutations for this account.
func lockBalance(ctx context.Context, tx *sqlx.Tx, id domain.Identity) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance,
		`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, &domain.AccountNotInitializedError{ID: id}
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock account: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) withAccountTx(ctx context.Context, id domain.Identity, fn func(tx *sqlx.Tx, balance decimal.Decimal) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	balance, err := lockBalance(ctx, tx, id)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(tx, balance); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Credit adds amount and appends the topup transaction in one transaction.
func (s *PostgresStore) Credit(ctx context.Context, id domain.Identity, amount decimal.Decimal) (domain.Transaction, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return domain.Transaction{}, decimal.Zero, &domain.InvalidAmountError{Raw: amount.String()}
	}

	var (
		out        domain.Transaction
		newBalance decimal.Decimal
	)
	err := s.withAccountTx(ctx, id, func(tx *sqlx.Tx, balance decimal.Decimal) error {
		newBalance = balance.Add(amount)
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = $1 WHERE id = $2`,
			newBalance, int64(id)); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (account_id, kind, amount, cost, created_at)
			 VALUES ($1, 'topup', $2, 0, $3)`,
			int64(id), amount, now); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		out = domain.Transaction{Kind: domain.TxTopUp, Amount: amount, Timestamp: now}
		return nil
	})
	if err != nil {
		return domain.Transaction{}, decimal.Zero, err
	}
	return out, newBalance, nil
}

// Debit subtracts amount, refusing to let the balance go negative.
func (s *PostgresStore) Debit(ctx context.Context, id domain.Identity, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, &domain.InvalidAmountError{Raw: amount.String()}
	}

	var newBalance decimal.Decimal
	err := s.withAccountTx(ctx, id, func(tx *sqlx.Tx, balance decimal.Decimal) error {
		if amount.GreaterThan(balance) {
			newBalance = balance
			return domain.NewInsufficientFunds(amount, balance)
		}
		newBalance = balance.Sub(amount)
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = $1 WHERE id = $2`,
			newBalance, int64(id)); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return newBalance, err
	}
	return newBalance, nil
}

// DebitForRental debits the cost and appends the rental and its transaction
// in one database transaction, so the all-or-nothing guarantee holds even
// across a crash mid-operation.
func (s *PostgresStore) DebitForRental(ctx context.Context, id domain.Identity, r domain.Rental) (domain.Transaction, decimal.Decimal, error) {
	var (
		out        domain.Transaction
		newBalance decimal.Decimal
	)
	err := s.withAccountTx(ctx, id, func(tx *sqlx.Tx, balance decimal.Decimal) error {
		if r.Cost.GreaterThan(balance) {
			newBalance = balance
			return domain.NewInsufficientFunds(r.Cost, balance)
		}
		newBalance = balance.Sub(r.Cost)
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = $1 WHERE id = $2`,
			newBalance, int64(id)); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if err := insertRental(ctx, tx, id, r); err != nil {
			return err
		}
		var err error
		out, err = insertRentalTx(ctx, tx, id, r)
		return err
	})
	if err != nil {
		return domain.Transaction{}, newBalance, err
	}
	return out, newBalance, nil
}

// MirrorRental books a platform-issued rental and pins the local balance to
// the platform-reported value.
func (s *PostgresStore) MirrorRental(ctx context.Context, id domain.Identity, r domain.Rental, remoteBalance decimal.Decimal) (domain.Transaction, error) {
	var out domain.Transaction
	err := s.withAccountTx(ctx, id, func(tx *sqlx.Tx, _ decimal.Decimal) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = $1 WHERE id = $2`,
			remoteBalance, int64(id)); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if err := insertRental(ctx, tx, id, r); err != nil {
			return err
		}
		var err error
		out, err = insertRentalTx(ctx, tx, id, r)
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return out, nil
}

func insertRental(ctx context.Context, tx *sqlx.Tx, id domain.Identity, r domain.Rental) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rentals (id, account_id, energy_kwh, cost, destination, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, int64(id), r.EnergyKWH, r.Cost, r.Destination, string(r.Status), r.StartedAt); err != nil {
		return fmt.Errorf("append rental: %w", err)
	}
	return nil
}

func insertRentalTx(ctx context.Context, tx *sqlx.Tx, id domain.Identity, r domain.Rental) (domain.Transaction, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (account_id, kind, amount, cost, rental_id, created_at)
		 VALUES ($1, 'rental', $2, $3, $4, $5)`,
		int64(id), r.EnergyKWH, r.Cost, r.ID, r.StartedAt); err != nil {
		return domain.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	return domain.Transaction{
		Kind:      domain.TxRental,
		Amount:    r.EnergyKWH,
		Cost:      r.Cost,
		Timestamp: r.StartedAt,
		RentalID:  r.ID,
	}, nil
}

// Transactions returns the log in insertion order.
func (s *PostgresStore) Transactions(ctx context.Context, id domain.Identity) ([]domain.Transaction, error) {
	if _, err := s.Summary(ctx, id); err != nil {
		return nil, err
	}
	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT kind, amount, cost, rental_id, created_at
		   FROM transactions WHERE account_id = $1 ORDER BY seq`, int64(id)); err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Transaction{
			Kind:      domain.TxKind(row.Kind),
			Amount:    row.Amount,
			Cost:      row.Cost,
			Timestamp: row.CreatedAt,
			RentalID:  row.RentalID.String,
		})
	}
	return out, nil
}

// ActiveRentals returns active rentals in issuance order.
func (s *PostgresStore) ActiveRentals(ctx context.Context, id domain.Identity) ([]domain.Rental, error) {
	if _, err := s.Summary(ctx, id); err != nil {
		return nil, err
	}
	var rows []rentalRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, energy_kwh, cost, destination, status, started_at
		   FROM rentals WHERE account_id = $1 AND status = 'active' ORDER BY seq`, int64(id)); err != nil {
		return nil, fmt.Errorf("load rentals: %w", err)
	}
	out := make([]domain.Rental, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Rental{
			ID:          row.ID,
			EnergyKWH:   row.EnergyKWH,
			Cost:        row.Cost,
			Destination: row.Destination.String,
			Status:      domain.RentalStatus(row.Status),
			StartedAt:   row.StartedAt,
		})
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)
