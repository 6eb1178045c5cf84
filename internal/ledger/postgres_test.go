package ledger

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/voltrent/energybot/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresSummaryMissingAccount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT a\.id, a\.display_name, a\.balance`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "balance", "rental_count", "history_count"}))

	_, err := store.Summary(context.Background(), 7)
	require.True(t, domain.IsAccountNotInitialized(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreditCommitsBalanceAndTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("15"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET balance = $1 WHERE id = $2`)).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, balance, err := store.Credit(context.Background(), 1, dec("10"))
	require.NoError(t, err)
	require.Equal(t, domain.TxTopUp, tx.Kind)
	require.True(t, balance.Equal(dec("25")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDebitForRentalRollsBackOnShortfall(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("3"))
	mock.ExpectRollback()

	_, _, err := store.DebitForRental(context.Background(), 1, testRental("RENT-X", dec("10"), dec("5")))
	shortErr, ok := domain.IsInsufficientFunds(err)
	require.True(t, ok)
	require.True(t, shortErr.Shortfall.Equal(dec("2")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDebitForRentalCommitsAllRecords(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("50"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET balance = $1 WHERE id = $2`)).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO rentals`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, balance, err := store.DebitForRental(context.Background(), 1, testRental("RENT-Y", dec("10"), dec("5")))
	require.NoError(t, err)
	require.Equal(t, "RENT-Y", tx.RentalID)
	require.True(t, balance.Equal(dec("45")))
	require.NoError(t, mock.ExpectationsWereMet())
}
