// Package platform talks to the remote energy-rental platform. In the
// remote variant the platform owns balances and rental issuance; this client
// stands in for the local debit-and-record step.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltrent/energybot/core/logger"
	"github.com/voltrent/energybot/core/telegram/netutil"
	"github.com/voltrent/energybot/internal/domain"
)

// Config selects and configures the remote variant.
type Config struct {
	Enabled        bool   `yaml:"enabled" envconfig:"PLATFORM_ENABLED"`
	BaseURL        string `yaml:"base_url" envconfig:"PLATFORM_BASE_URL"`
	Token          string `yaml:"token" envconfig:"PLATFORM_TOKEN"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"PLATFORM_TIMEOUT_SECONDS"`
	FetchRetries   int    `yaml:"fetch_retries" envconfig:"PLATFORM_FETCH_RETRIES"`
}

// Wallet is the platform's view of an account.
type Wallet struct {
	Balance decimal.Decimal `json:"balance"`
	Address string          `json:"address"`
}

// SubmitResult is the platform's answer to a rental submission.
type SubmitResult struct {
	RentalID   string          `json:"rental_id"`
	Cost       decimal.Decimal `json:"cost"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Client is what the service layer depends on.
type Client interface {
	// FetchWallet reads the account's balance and wallet address. The read
	// is idempotent and may be retried.
	FetchWallet(ctx context.Context, id domain.Identity) (Wallet, error)

	// SubmitRental asks the platform to issue a rental. The platform
	// performs the debit and the record as one step; the call is never
	// retried blindly, to rule out double issuance.
	SubmitRental(ctx context.Context, id domain.Identity, energy decimal.Decimal, destination string) (SubmitResult, error)
}

// HTTPClient implements Client over the platform's bearer-token HTTP API.
type HTTPClient struct {
	baseURL      string
	token        string
	http         *http.Client
	fetchRetries int
	backoff      time.Duration
}

// NewHTTPClient builds a client with bounded timeouts. Every call is capped
// by the configured timeout, so a held per-account lock is released in
// bounded time even when the platform hangs.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.FetchRetries
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		http:         &http.Client{Timeout: timeout},
		fetchRetries: retries,
		backoff:      500 * time.Millisecond,
	}
}

type platformError struct {
	Error     string          `json:"error"`
	Needed    decimal.Decimal `json:"needed"`
	Balance   decimal.Decimal `json:"balance"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// FetchWallet reads the wallet, retrying transient failures.
func (c *HTTPClient) FetchWallet(ctx context.Context, id domain.Identity) (Wallet, error) {
	url := fmt.Sprintf("%s/v1/wallets/%d", c.baseURL, int64(id))

	var lastErr error
	attempts := c.fetchRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(c.backoff * time.Duration(attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return Wallet{}, &domain.UpstreamUnavailableError{Op: "fetch_wallet", Err: ctx.Err()}
			case <-timer.C:
			}
			logger.Debug(ctx, "service.platform", "wallet.fetch.retry",
				slog.Int64("account_id", int64(id)),
				slog.Int("attempt", attempt),
			)
		}

		var wallet Wallet
		retryable, err := c.getJSON(ctx, url, &wallet, id)
		if err == nil {
			return wallet, nil
		}
		lastErr = err
		if !retryable {
			return Wallet{}, err
		}
	}
	return Wallet{}, lastErr
}

// getJSON performs one GET attempt. The bool result reports whether the
// failure is transient and worth retrying.
func (c *HTTPClient) getJSON(ctx context.Context, url string, out any, id domain.Identity) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, &domain.UpstreamUnavailableError{Op: "fetch_wallet", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return netutil.ShouldRetry(err), &domain.UpstreamUnavailableError{Op: "fetch_wallet", Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, &domain.UpstreamUnavailableError{Op: "fetch_wallet", Err: err}
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, &domain.AccountNotInitializedError{ID: id}
	case resp.StatusCode >= 500:
		return true, &domain.UpstreamUnavailableError{
			Op:  "fetch_wallet",
			Err: fmt.Errorf("platform status %s", resp.Status),
		}
	default:
		return false, &domain.UpstreamUnavailableError{
			Op:  "fetch_wallet",
			Err: fmt.Errorf("platform status %s", resp.Status),
		}
	}
}

type submitRequest struct {
	AccountID   int64           `json:"account_id"`
	EnergyKWH   decimal.Decimal `json:"energy_kwh"`
	Destination string          `json:"destination"`
}

// SubmitRental performs exactly one submission attempt. Transient failures
// surface as UpstreamUnavailable for the user to retry explicitly; an
// automatic retry here could issue the rental twice.
func (c *HTTPClient) SubmitRental(ctx context.Context, id domain.Identity, energy decimal.Decimal, destination string) (SubmitResult, error) {
	body, err := json.Marshal(submitRequest{
		AccountID:   int64(id),
		EnergyKWH:   energy,
		Destination: destination,
	})
	if err != nil {
		return SubmitResult{}, &domain.UpstreamUnavailableError{Op: "submit_rental", Err: err}
	}

	url := c.baseURL + "/v1/rentals"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, &domain.UpstreamUnavailableError{Op: "submit_rental", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return SubmitResult{}, &domain.UpstreamUnavailableError{Op: "submit_rental", Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var out SubmitResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return SubmitResult{}, &domain.UpstreamUnavailableError{Op: "submit_rental", Err: err}
		}
		logger.Info(ctx, "service.platform", "rental.submitted",
			slog.Int64("account_id", int64(id)),
			slog.String("rental_id", out.RentalID),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
		return out, nil
	case http.StatusPaymentRequired:
		var pe platformError
		if err := json.NewDecoder(resp.Body).Decode(&pe); err != nil {
			return SubmitResult{}, &domain.UpstreamUnavailableError{Op: "submit_rental", Err: err}
		}
		return SubmitResult{}, &domain.InsufficientFundsError{
			Needed:    pe.Needed,
			Balance:   pe.Balance,
			Shortfall: pe.Shortfall,
		}
	case http.StatusBadRequest:
		return SubmitResult{}, &domain.InvalidAmountError{Raw: energy.String()}
	case http.StatusNotFound:
		return SubmitResult{}, &domain.AccountNotInitializedError{ID: id}
	default:
		return SubmitResult{}, &domain.UpstreamUnavailableError{
			Op:  "submit_rental",
			Err: fmt.Errorf("platform status %s", resp.Status),
		}
	}
}

var _ Client = (*HTTPClient)(nil)
