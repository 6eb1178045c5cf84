package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltrent/energybot/internal/conversation"
	"github.com/voltrent/energybot/internal/domain"
	"github.com/voltrent/energybot/internal/ledger"
	"github.com/voltrent/energybot/internal/platform"
)

const tronAddr = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newLocalService() *Service {
	conv := conversation.NewMachine(conversation.TronDestination)
	return New(ledger.NewMemoryStore(), conv, nil, dec("0.5"))
}

func TestOperationsRequireInitializedAccount(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService()

	_, err := svc.Balance(ctx, 1)
	require.True(t, domain.IsAccountNotInitialized(err))

	_, err = svc.TopUp(ctx, 1, "50")
	require.True(t, domain.IsAccountNotInitialized(err))

	err = svc.RequestRental(ctx, 1)
	require.True(t, domain.IsAccountNotInitialized(err))

	_, err = svc.Rent(ctx, 1, "10", "")
	require.True(t, domain.IsAccountNotInitialized(err))
}

func TestInitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService()

	res, err := svc.Initialize(ctx, 1, "alice")
	require.NoError(t, err)
	require.True(t, res.Created)

	_, err = svc.TopUp(ctx, 1, "30")
	require.NoError(t, err)

	res, err = svc.Initialize(ctx, 1, "alice")
	require.NoError(t, err)
	require.False(t, res.Created)
	require.True(t, res.Summary.Balance.Equal(dec("30")))
}

func TestTopUpValidation(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService()
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)

	for _, raw := range []string{"abc", "0", "-5", ""} {
		_, err := svc.TopUp(ctx, 1, raw)
		require.True(t, domain.IsInvalidAmount(err), "input %q", raw)
	}

	res, err := svc.TopUp(ctx, 1, " 12.50 ")
	require.NoError(t, err)
	require.True(t, res.Amount.Equal(dec("12.5")))
	require.True(t, res.NewBalance.Equal(dec("12.5")))
}

func TestDirectRentDebitsAndRecords(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService()
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)
	_, err = svc.TopUp(ctx, 1, "50")
	require.NoError(t, err)

	res, err := svc.Rent(ctx, 1, "10", "")
	require.NoError(t, err)
	require.True(t, res.Rental.Cost.Equal(dec("5")))
	require.True(t, res.NewBalance.Equal(dec("45")))
	require.False(t, res.Remote)

	rentals, err := svc.ActiveRentals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rentals, 1)

	history, err := svc.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.TxRental, history[1].Kind)
}

func TestRentalDialogEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService()
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)
	_, err = svc.TopUp(ctx, 1, "50")
	require.NoError(t, err)

	require.NoError(t, svc.RequestRental(ctx, 1))
	require.Equal(t, conversation.StateAwaitingAddress, svc.ConversationState(1))

	err = svc.ProvideDestination(ctx, 1, "not-an-address")
	require.True(t, domain.IsInvalidDestination(err))
	require.Equal(t, conversation.StateAwaitingAddress, svc.ConversationState(1))

	require.NoError(t, svc.ProvideDestination(ctx, 1, tronAddr))
	require.Equal(t, conversation.StateAwaitingAmount, svc.ConversationState(1))

	res, err := svc.ProvideEnergyAmount(ctx, 1, "10")
	require.NoError(t, err)
	require.Equal(t, tronAddr, res.Rental.Destination)
	require.True(t, res.Rental.Cost.Equal(dec("5")))
	require.True(t, res.NewBalance.Equal(dec("45")))
	require.Equal(t, conversation.StateIdle, svc.ConversationState(1))
}

func TestDialogFailedIssuanceStillEndsDialog(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService()
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)
	_, err = svc.TopUp(ctx, 1, "1")
	require.NoError(t, err)

	require.NoError(t, svc.RequestRental(ctx, 1))
	require.NoError(t, svc.ProvideDestination(ctx, 1, tronAddr))

	_, err = svc.ProvideEnergyAmount(ctx, 1, "10")
	_, ok := domain.IsInsufficientFunds(err)
	require.True(t, ok)
	require.Equal(t, conversation.StateIdle, svc.ConversationState(1))

	rentals, err := svc.ActiveRentals(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, rentals)
}

func TestCancelRental(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService()
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)

	require.False(t, svc.CancelRental(ctx, 1))
	require.NoError(t, svc.RequestRental(ctx, 1))
	require.True(t, svc.CancelRental(ctx, 1))
	require.Equal(t, conversation.StateIdle, svc.ConversationState(1))
}

type fakePlatform struct {
	wallet    platform.Wallet
	walletErr error
	submit    platform.SubmitResult
	submitErr error
	submits   int
}

func (f *fakePlatform) FetchWallet(ctx context.Context, id domain.Identity) (platform.Wallet, error) {
	if f.walletErr != nil {
		return platform.Wallet{}, f.walletErr
	}
	return f.wallet, nil
}

func (f *fakePlatform) SubmitRental(ctx context.Context, id domain.Identity, energy decimal.Decimal, destination string) (platform.SubmitResult, error) {
	f.submits++
	if f.submitErr != nil {
		return platform.SubmitResult{}, f.submitErr
	}
	return f.submit, nil
}

func newRemoteService(remote platform.Client) *Service {
	conv := conversation.NewMachine(conversation.TronDestination)
	return New(ledger.NewMemoryStore(), conv, remote, dec("0.5"))
}

func TestRemoteBalanceComesFromPlatform(t *testing.T) {
	ctx := context.Background()
	remote := &fakePlatform{wallet: platform.Wallet{Balance: dec("77"), Address: tronAddr}}
	svc := newRemoteService(remote)
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)

	res, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	require.True(t, res.Remote)
	require.True(t, res.Summary.Balance.Equal(dec("77")))
	require.Equal(t, tronAddr, res.WalletAddress)
}

func TestRemoteTopUpIsRefused(t *testing.T) {
	ctx := context.Background()
	svc := newRemoteService(&fakePlatform{})
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)

	_, err = svc.TopUp(ctx, 1, "50")
	require.ErrorIs(t, err, ErrRemoteTopUp)
}

func TestRemoteRentMirrorsPlatformResult(t *testing.T) {
	ctx := context.Background()
	remote := &fakePlatform{submit: platform.SubmitResult{
		RentalID:   "RENT-REMOTE",
		Cost:       dec("5"),
		NewBalance: dec("72"),
	}}
	svc := newRemoteService(remote)
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)

	res, err := svc.Rent(ctx, 1, "10", tronAddr)
	require.NoError(t, err)
	require.True(t, res.Remote)
	require.Equal(t, "RENT-REMOTE", res.Rental.ID)
	require.True(t, res.NewBalance.Equal(dec("72")))
	require.Equal(t, 1, remote.submits)

	// Mirror feeds the local views even though the platform owns the books.
	rentals, err := svc.ActiveRentals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rentals, 1)

	summary, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)
	require.True(t, summary.Summary.Balance.Equal(dec("72")))
}

func TestRemoteRentFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	remote := &fakePlatform{submitErr: &domain.UpstreamUnavailableError{Op: "submit_rental"}}
	svc := newRemoteService(remote)
	_, err := svc.Initialize(ctx, 1, "")
	require.NoError(t, err)

	_, err = svc.Rent(ctx, 1, "10", tronAddr)
	require.True(t, domain.IsUpstreamUnavailable(err))
	require.Equal(t, 1, remote.submits)

	rentals, err := svc.ActiveRentals(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, rentals)
}

func TestQuoteUsesUnitPrice(t *testing.T) {
	svc := newLocalService()
	require.True(t, svc.Quote(dec("25")).Equal(dec("12.5")))
	require.True(t, svc.UnitPrice().Equal(dec("0.5")))
}
