package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltrent/energybot/internal/domain"
	"github.com/voltrent/energybot/internal/service"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRenderBalance(t *testing.T) {
	out := renderBalance(service.BalanceResult{
		Summary: domain.AccountSummary{
			Balance:      dec("12.5"),
			RentalCount:  2,
			HistoryCount: 5,
		},
	})
	require.Contains(t, out, "$12.50")
	require.Contains(t, out, "Active Rentals: 2")
	require.Contains(t, out, "Total Transactions: 5")
	require.NotContains(t, out, "Wallet:")

	withWallet := renderBalance(service.BalanceResult{WalletAddress: "Twallet"})
	require.Contains(t, withWallet, "Wallet: Twallet")
}

func TestRenderRentalOptionsPricesPlans(t *testing.T) {
	out := renderRentalOptions(dec("0.5"), []decimal.Decimal{
		dec("10"), dec("25"), dec("50"),
	})
	require.Contains(t, out, "$0.50 per kWh")
	require.Contains(t, out, "Small: 10 kWh - $5.00")
	require.Contains(t, out, "Medium: 25 kWh - $12.50")
	require.Contains(t, out, "Large: 50 kWh - $25.00")
}

func TestRenderRented(t *testing.T) {
	out := renderRented(service.RentResult{
		Rental: domain.Rental{
			ID:          "RENT-1",
			EnergyKWH:   dec("10"),
			Cost:        dec("5"),
			Destination: "Tdest",
			StartedAt:   time.Now(),
		},
		NewBalance: dec("45"),
	})
	require.Contains(t, out, "RENT-1")
	require.Contains(t, out, "10 kWh")
	require.Contains(t, out, "Delegated to: Tdest")
	require.Contains(t, out, "Remaining Credit: $45.00")

	noDest := renderRented(service.RentResult{Rental: domain.Rental{EnergyKWH: dec("10")}})
	require.NotContains(t, noDest, "Delegated to:")
}

func TestRenderHistoryDistinguishesKinds(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	out := renderHistory([]domain.Transaction{
		{Kind: domain.TxTopUp, Amount: dec("100"), Timestamp: ts},
		{Kind: domain.TxRental, Amount: dec("10"), Cost: dec("5"), Timestamp: ts},
	})
	lines := strings.Split(out, "\n")
	require.Contains(t, lines[2], "Credit Top-up: +$100.00")
	require.Contains(t, lines[3], "Energy Rental: 10 kWh, -$5.00")
	require.Contains(t, lines[3], "01 Mar 2026")

	require.Equal(t, "No transaction history yet.", renderHistory(nil))
}

func TestRenderErrorMapping(t *testing.T) {
	msg, ok := renderError(domain.NewInsufficientFunds(dec("5"), dec("1")))
	require.True(t, ok)
	require.Contains(t, msg, "Needed: $5.00")
	require.Contains(t, msg, "Shortfall: $4.00")

	msg, ok = renderError(&domain.InvalidAmountError{Raw: "abc"})
	require.True(t, ok)
	require.Contains(t, msg, "valid positive amount")

	msg, ok = renderError(&domain.AccountNotInitializedError{ID: 1})
	require.True(t, ok)
	require.Equal(t, notInitializedText, msg)

	msg, ok = renderError(&domain.UpstreamUnavailableError{Op: "fetch_wallet"})
	require.True(t, ok)
	require.Equal(t, tryAgainText, msg)

	_, ok = renderError(errors.New("boom"))
	require.False(t, ok, "unknown errors bubble up to the router")
}
