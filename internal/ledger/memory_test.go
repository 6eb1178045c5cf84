package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltrent/energybot/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testRental(id string, energy, cost decimal.Decimal) domain.Rental {
	return domain.Rental{
		ID:        id,
		EnergyKWH: energy,
		Cost:      cost,
		StartedAt: time.Now(),
		Status:    domain.RentalActive,
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, created, err := store.Ensure(ctx, 42, "alice")
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, first.Balance.IsZero())

	_, _, err = store.Credit(ctx, 42, dec("25"))
	require.NoError(t, err)

	second, created, err := store.Ensure(ctx, 42, "alice")
	require.NoError(t, err)
	require.False(t, created)
	require.True(t, second.Balance.Equal(dec("25")), "repeat Ensure must not reset the balance")
}

func TestOperationsRequireAccount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Summary(ctx, 7)
	require.True(t, domain.IsAccountNotInitialized(err))

	_, _, err = store.Credit(ctx, 7, dec("10"))
	require.True(t, domain.IsAccountNotInitialized(err))

	_, err = store.Transactions(ctx, 7)
	require.True(t, domain.IsAccountNotInitialized(err))
}

func TestCreditAppendsTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _, err := store.Ensure(ctx, 1, "")
	require.NoError(t, err)

	tx, balance, err := store.Credit(ctx, 1, dec("100"))
	require.NoError(t, err)
	require.Equal(t, domain.TxTopUp, tx.Kind)
	require.True(t, balance.Equal(dec("100")))

	txs, err := store.Transactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.True(t, txs[0].Amount.Equal(dec("100")))
}

func TestDebitShortfall(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _, err := store.Ensure(ctx, 1, "")
	require.NoError(t, err)
	_, _, err = store.Credit(ctx, 1, dec("3"))
	require.NoError(t, err)

	_, err = store.Debit(ctx, 1, dec("10"))
	shortErr, ok := domain.IsInsufficientFunds(err)
	require.True(t, ok)
	require.True(t, shortErr.Needed.Equal(dec("10")))
	require.True(t, shortErr.Balance.Equal(dec("3")))
	require.True(t, shortErr.Shortfall.Equal(dec("7")))

	// A failed debit leaves the balance as it was.
	summary, err := store.Summary(ctx, 1)
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(dec("3")))
}

func TestDebitForRentalIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _, err := store.Ensure(ctx, 1, "")
	require.NoError(t, err)
	_, _, err = store.Credit(ctx, 1, dec("4"))
	require.NoError(t, err)

	_, _, err = store.DebitForRental(ctx, 1, testRental("RENT-A", dec("10"), dec("5")))
	_, ok := domain.IsInsufficientFunds(err)
	require.True(t, ok)

	rentals, err := store.ActiveRentals(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, rentals, "failed issuance must record nothing")

	txs, err := store.Transactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1) // only the topup

	tx, balance, err := store.DebitForRental(ctx, 1, testRental("RENT-B", dec("5"), dec("2.5")))
	require.NoError(t, err)
	require.Equal(t, domain.TxRental, tx.Kind)
	require.Equal(t, "RENT-B", tx.RentalID)
	require.True(t, balance.Equal(dec("1.5")))

	rentals, err = store.ActiveRentals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rentals, 1)
}

func TestLedgerConsistency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _, err := store.Ensure(ctx, 1, "")
	require.NoError(t, err)

	_, _, err = store.Credit(ctx, 1, dec("100"))
	require.NoError(t, err)
	_, _, err = store.DebitForRental(ctx, 1, testRental("RENT-1", dec("10"), dec("5")))
	require.NoError(t, err)
	_, _, err = store.Credit(ctx, 1, dec("20"))
	require.NoError(t, err)
	_, _, err = store.DebitForRental(ctx, 1, testRental("RENT-2", dec("25"), dec("12.5")))
	require.NoError(t, err)

	txs, err := store.Transactions(ctx, 1)
	require.NoError(t, err)

	// balance == sum(topups) - sum(rental costs) over the whole history
	total := decimal.Zero
	for _, tx := range txs {
		switch tx.Kind {
		case domain.TxTopUp:
			total = total.Add(tx.Amount)
		case domain.TxRental:
			total = total.Sub(tx.Cost)
		}
	}
	summary, err := store.Summary(ctx, 1)
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(total))
	require.True(t, summary.Balance.Equal(dec("102.5")))
}

func TestConcurrentCreditAndRental(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _, err := store.Ensure(ctx, 1, "")
	require.NoError(t, err)
	_, _, err = store.Credit(ctx, 1, dec("50"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = store.Credit(ctx, 1, dec("50"))
		}()
		go func() {
			defer wg.Done()
			_, _, _ = store.DebitForRental(ctx, 1, testRental("RENT-C", dec("10"), dec("5")))
		}()
	}
	wg.Wait()

	txs, err := store.Transactions(ctx, 1)
	require.NoError(t, err)
	total := decimal.Zero
	for _, tx := range txs {
		switch tx.Kind {
		case domain.TxTopUp:
			total = total.Add(tx.Amount)
		case domain.TxRental:
			total = total.Sub(tx.Cost)
		}
	}
	summary, err := store.Summary(ctx, 1)
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(total))
	require.False(t, summary.Balance.IsNegative())
}

func TestRacingTopUpAndRentalNeverGoNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _, err := store.Ensure(ctx, 1, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	var rentErr error
	go func() {
		defer wg.Done()
		_, _, _ = store.Credit(ctx, 1, dec("50"))
	}()
	go func() {
		defer wg.Done()
		_, _, rentErr = store.DebitForRental(ctx, 1, testRental("RENT-RACE", dec("10"), dec("5")))
	}()
	wg.Wait()

	summary, err := store.Summary(ctx, 1)
	require.NoError(t, err)
	if rentErr != nil {
		// Rental lost the race against the topup.
		shortErr, ok := domain.IsInsufficientFunds(rentErr)
		require.True(t, ok)
		require.True(t, shortErr.Shortfall.Equal(dec("5")))
		require.True(t, summary.Balance.Equal(dec("50")))
	} else {
		require.True(t, summary.Balance.Equal(dec("45")))
	}
	require.False(t, summary.Balance.IsNegative())
}

func TestListingsReturnCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _, err := store.Ensure(ctx, 1, "")
	require.NoError(t, err)
	_, _, err = store.Credit(ctx, 1, dec("10"))
	require.NoError(t, err)
	_, _, err = store.DebitForRental(ctx, 1, testRental("RENT-1", dec("10"), dec("5")))
	require.NoError(t, err)

	rentals, err := store.ActiveRentals(ctx, 1)
	require.NoError(t, err)
	rentals[0].ID = "mutated"

	again, err := store.ActiveRentals(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "RENT-1", again[0].ID)
}

func TestMirrorRentalPinsBalance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _, err := store.Ensure(ctx, 1, "")
	require.NoError(t, err)

	_, err = store.MirrorRental(ctx, 1, testRental("RENT-R", dec("10"), dec("5")), dec("37.5"))
	require.NoError(t, err)

	summary, err := store.Summary(ctx, 1)
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(dec("37.5")))
	require.Equal(t, 1, summary.RentalCount)
	require.Equal(t, 1, summary.HistoryCount)
}
