package rental

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltrent/energybot/internal/domain"
)

type fakeLedger struct {
	err    error
	rental domain.Rental
	calls  int
}

func (f *fakeLedger) DebitForRental(ctx context.Context, id domain.Identity, r domain.Rental) (domain.Transaction, decimal.Decimal, error) {
	f.calls++
	f.rental = r
	if f.err != nil {
		return domain.Transaction{}, decimal.Zero, f.err
	}
	return domain.Transaction{Kind: domain.TxRental, RentalID: r.ID}, decimal.NewFromInt(95), nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuote(t *testing.T) {
	e := NewEngine(&fakeLedger{})
	require.True(t, e.Quote(dec("10"), dec("0.5")).Equal(dec("5")))
	require.True(t, e.Quote(dec("2.5"), dec("0.5")).Equal(dec("1.25")))
}

func TestIssueRejectsNonPositiveEnergy(t *testing.T) {
	led := &fakeLedger{}
	e := NewEngine(led)

	for _, raw := range []string{"0", "-3"} {
		_, err := e.Issue(context.Background(), 1, dec(raw), dec("0.5"), "")
		require.True(t, domain.IsInvalidAmount(err), "energy %s", raw)
	}
	require.Zero(t, led.calls, "invalid input must not reach the ledger")
}

func TestIssueBuildsRentalAndDelegates(t *testing.T) {
	led := &fakeLedger{}
	issuedAt := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	e := NewEngine(led,
		WithIDGenerator(func() string { return "RENT-FIXED" }),
		WithClock(func() time.Time { return issuedAt }),
	)

	res, err := e.Issue(context.Background(), 1, dec("10"), dec("0.5"), "TAddr")
	require.NoError(t, err)
	require.Equal(t, "RENT-FIXED", res.Rental.ID)
	require.True(t, res.Rental.Cost.Equal(dec("5")))
	require.Equal(t, "TAddr", res.Rental.Destination)
	require.Equal(t, issuedAt, res.Rental.StartedAt)
	require.Equal(t, domain.RentalActive, res.Rental.Status)
	require.True(t, res.NewBalance.Equal(dec("95")))
	require.Equal(t, 1, led.calls)
}

func TestIssuePropagatesLedgerFailure(t *testing.T) {
	led := &fakeLedger{err: domain.NewInsufficientFunds(dec("5"), dec("1"))}
	e := NewEngine(led)

	_, err := e.Issue(context.Background(), 1, dec("10"), dec("0.5"), "")
	shortErr, ok := domain.IsInsufficientFunds(err)
	require.True(t, ok)
	require.True(t, shortErr.Shortfall.Equal(dec("4")))
}

func TestIssueWrapsNonDomainError(t *testing.T) {
	boom := errors.New("connection reset")
	led := &fakeLedger{err: boom}
	e := NewEngine(led)

	_, err := e.Issue(context.Background(), 1, dec("10"), dec("0.5"), "")
	require.ErrorIs(t, err, boom)
}

func TestNewRentalIDUniqueWithinSameInstant(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewRentalID()
		require.True(t, len(id) > 5 && id[:5] == "RENT-")
		_, dup := seen[id]
		require.False(t, dup, "duplicate rental id %s", id)
		seen[id] = struct{}{}
	}
}
