package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
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

func newClient(url string, retries int) *HTTPClient {
	c := NewHTTPClient(Config{
		BaseURL:      url,
		Token:        "secret",
		FetchRetries: retries,
	})
	c.backoff = time.Millisecond
	return c
}

func TestFetchWalletSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "/v1/wallets/42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Wallet{Balance: dec("12.5"), Address: "Twallet"})
	}))
	defer srv.Close()

	wallet, err := newClient(srv.URL, 0).FetchWallet(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, wallet.Balance.Equal(dec("12.5")))
	require.Equal(t, "Twallet", wallet.Address)
}

func TestFetchWalletRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Wallet{Balance: dec("5")})
	}))
	defer srv.Close()

	wallet, err := newClient(srv.URL, 3).FetchWallet(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, wallet.Balance.Equal(dec("5")))
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchWalletDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 3).FetchWallet(context.Background(), 1)
	require.True(t, domain.IsAccountNotInitialized(err))
	require.EqualValues(t, 1, calls.Load())
}

func TestFetchWalletExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 2).FetchWallet(context.Background(), 1)
	require.True(t, domain.IsUpstreamUnavailable(err))
	require.EqualValues(t, 3, calls.Load())
}

func TestSubmitRentalNeverRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 5).SubmitRental(context.Background(), 1, dec("10"), "")
	require.True(t, domain.IsUpstreamUnavailable(err))
	require.EqualValues(t, 1, calls.Load(), "a rental submission must not be resent")
}

func TestSubmitRentalSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/rentals", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			AccountID   int64           `json:"account_id"`
			EnergyKWH   decimal.Decimal `json:"energy_kwh"`
			Destination string          `json:"destination"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.EqualValues(t, 1, req.AccountID)
		require.True(t, req.EnergyKWH.Equal(dec("10")))
		require.Equal(t, "Tdest", req.Destination)

		_ = json.NewEncoder(w).Encode(SubmitResult{
			RentalID:   "RENT-1",
			Cost:       dec("5"),
			NewBalance: dec("45"),
		})
	}))
	defer srv.Close()

	out, err := newClient(srv.URL, 0).SubmitRental(context.Background(), 1, dec("10"), "Tdest")
	require.NoError(t, err)
	require.Equal(t, "RENT-1", out.RentalID)
	require.True(t, out.NewBalance.Equal(dec("45")))
}

func TestSubmitRentalMapsPaymentRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(platformError{
			Error:     "insufficient funds",
			Needed:    dec("5"),
			Balance:   dec("1"),
			Shortfall: dec("4"),
		})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 0).SubmitRental(context.Background(), 1, dec("10"), "")
	shortErr, ok := domain.IsInsufficientFunds(err)
	require.True(t, ok)
	require.True(t, shortErr.Shortfall.Equal(dec("4")))
}

func TestSubmitRentalMapsBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 0).SubmitRental(context.Background(), 1, dec("0"), "")
	require.True(t, domain.IsInvalidAmount(err))
}
