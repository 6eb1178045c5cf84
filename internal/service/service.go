// Package service exposes the bot's operations as typed calls: initialize,
// balance, top-up, the rental dialog, rentals, history. Handlers translate
// Telegram updates into these calls and render the typed results; nothing in
// here formats user-facing text.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltrent/energybot/core/logger"
	"github.com/voltrent/energybot/internal/conversation"
	"github.com/voltrent/energybot/internal/domain"
	"github.com/voltrent/energybot/internal/ledger"
	"github.com/voltrent/energybot/internal/platform"
	"github.com/voltrent/energybot/internal/rental"
)

// ErrRemoteTopUp is returned for top-up requests in the remote variant,
// where credit is purchased on the platform itself.
var ErrRemoteTopUp = errors.New("service: top-up is handled by the energy platform")

// InitResult is the outcome of the initialize operation.
type InitResult struct {
	Created bool
	Summary domain.AccountSummary
}

// BalanceResult is the outcome of the balance query. WalletAddress is only
// populated in the remote variant.
type BalanceResult struct {
	Summary       domain.AccountSummary
	WalletAddress string
	Remote        bool
}

// TopUpResult is the outcome of a successful top-up.
type TopUpResult struct {
	Amount     decimal.Decimal
	NewBalance decimal.Decimal
}

// RentResult is the outcome of a successful rental, local or remote.
type RentResult struct {
	Rental     domain.Rental
	NewBalance decimal.Decimal
	Remote     bool
}

// Service wires the account registry, ledger, rental engine, conversation
// machine and the optional remote platform behind one operation surface.
type Service struct {
	store     ledger.Store
	engine    *rental.Engine
	conv      *conversation.Machine
	remote    platform.Client
	unitPrice decimal.Decimal
}

// New builds the service. remote may be nil, selecting the local ledger
// variant.
func New(store ledger.Store, conv *conversation.Machine, remote platform.Client, unitPrice decimal.Decimal) *Service {
	return &Service{
		store:     store,
		engine:    rental.NewEngine(store),
		conv:      conv,
		remote:    remote,
		unitPrice: unitPrice,
	}
}

// UnitPrice returns the current price per kWh.
func (s *Service) UnitPrice() decimal.Decimal { return s.unitPrice }

// Quote prices an energy amount at the current unit price.
func (s *Service) Quote(energy decimal.Decimal) decimal.Decimal {
	return s.engine.Quote(energy, s.unitPrice)
}

// RemoteEnabled reports whether the remote platform variant is active.
func (s *Service) RemoteEnabled() bool { return s.remote != nil }

// ConversationState returns the account's current dialog state.
func (s *Service) ConversationState(id domain.Identity) conversation.State {
	return s.conv.State(id)
}

// Initialize ensures an account exists for the identity. Safe to repeat;
// an existing account and its balance are never touched.
func (s *Service) Initialize(ctx context.Context, id domain.Identity, displayName string) (InitResult, error) {
	summary, created, err := s.store.Ensure(ctx, id, displayName)
	if err != nil {
		return InitResult{}, err
	}
	return InitResult{Created: created, Summary: summary}, nil
}

func (s *Service) requireAccount(ctx context.Context, id domain.Identity) (domain.AccountSummary, error) {
	return s.store.Summary(ctx, id)
}

// Balance returns the account's balance and headline counts. In the remote
// variant the balance and wallet address come from the platform; local
// state is left untouched when the platform is unreachable.
func (s *Service) Balance(ctx context.Context, id domain.Identity) (BalanceResult, error) {
	summary, err := s.requireAccount(ctx, id)
	if err != nil {
		return BalanceResult{}, err
	}
	if s.remote == nil {
		return BalanceResult{Summary: summary}, nil
	}

	wallet, err := s.remote.FetchWallet(ctx, id)
	if err != nil {
		return BalanceResult{}, err
	}
	summary.Balance = wallet.Balance
	return BalanceResult{
		Summary:       summary,
		WalletAddress: wallet.Address,
		Remote:        true,
	}, nil
}

// TopUp credits the account with the amount parsed from raw. Non-numeric or
// non-positive input fails with InvalidAmount before any mutation.
func (s *Service) TopUp(ctx context.Context, id domain.Identity, raw string) (TopUpResult, error) {
	if _, err := s.requireAccount(ctx, id); err != nil {
		return TopUpResult{}, err
	}
	if s.remote != nil {
		return TopUpResult{}, ErrRemoteTopUp
	}

	amount, err := parsePositiveDecimal(raw)
	if err != nil {
		return TopUpResult{}, err
	}
	_, balance, err := s.store.Credit(ctx, id, amount)
	if err != nil {
		return TopUpResult{}, err
	}
	return TopUpResult{Amount: amount, NewBalance: balance}, nil
}

// RequestRental starts the two-step rental dialog for the account.
func (s *Service) RequestRental(ctx context.Context, id domain.Identity) error {
	if _, err := s.requireAccount(ctx, id); err != nil {
		return err
	}
	s.conv.Begin(id)
	logger.Debug(ctx, "service.conversation", "dialog.begin",
		slog.Int64("account_id", int64(id)),
	)
	return nil
}

// ProvideDestination feeds the destination wallet reply to the dialog.
func (s *Service) ProvideDestination(ctx context.Context, id domain.Identity, text string) error {
	if _, err := s.requireAccount(ctx, id); err != nil {
		return err
	}
	return s.conv.ProvideDestination(id, text)
}

// ProvideEnergyAmount feeds the energy amount reply to the dialog and, when
// the dialog completes, issues the rental to the captured destination. The
// dialog returns to idle before issuance, so a failed rental leaves no
// pending destination behind.
func (s *Service) ProvideEnergyAmount(ctx context.Context, id domain.Identity, text string) (RentResult, error) {
	if _, err := s.requireAccount(ctx, id); err != nil {
		return RentResult{}, err
	}
	destination, amount, err := s.conv.ProvideAmount(id, text)
	if err != nil {
		return RentResult{}, err
	}
	return s.issue(ctx, id, amount, destination)
}

// Rent issues a rental directly from a command argument, bypassing the
// dialog. destination may be empty; the platform then delegates to the
// account's own wallet.
func (s *Service) Rent(ctx context.Context, id domain.Identity, raw, destination string) (RentResult, error) {
	if _, err := s.requireAccount(ctx, id); err != nil {
		return RentResult{}, err
	}
	amount, err := parsePositiveDecimal(raw)
	if err != nil {
		return RentResult{}, err
	}
	return s.issue(ctx, id, amount, destination)
}

func (s *Service) issue(ctx context.Context, id domain.Identity, energy decimal.Decimal, destination string) (RentResult, error) {
	if s.remote == nil {
		res, err := s.engine.Issue(ctx, id, energy, s.unitPrice, destination)
		if err != nil {
			return RentResult{}, err
		}
		return RentResult{Rental: res.Rental, NewBalance: res.NewBalance}, nil
	}

	if !energy.IsPositive() {
		return RentResult{}, &domain.InvalidAmountError{Raw: energy.String()}
	}
	submitted, err := s.remote.SubmitRental(ctx, id, energy, destination)
	if err != nil {
		return RentResult{}, err
	}

	r := domain.Rental{
		ID:          submitted.RentalID,
		EnergyKWH:   energy,
		Cost:        submitted.Cost,
		Destination: destination,
		StartedAt:   time.Now(),
		Status:      domain.RentalActive,
	}
	if r.ID == "" {
		r.ID = rental.NewRentalID()
	}
	// The platform already owns the authoritative record; the local mirror
	// only feeds the history and rentals views.
	if _, err := s.store.MirrorRental(ctx, id, r, submitted.NewBalance); err != nil {
		logger.Warn(ctx, "service.ledger", "rental.mirror.failed",
			slog.Int64("account_id", int64(id)),
			slog.String("rental_id", r.ID),
			slog.String("err", err.Error()),
		)
	}
	return RentResult{Rental: r, NewBalance: submitted.NewBalance, Remote: true}, nil
}

// CancelRental aborts a dialog in progress and reports whether there was one.
func (s *Service) CancelRental(ctx context.Context, id domain.Identity) bool {
	return s.conv.Cancel(id)
}

// ActiveRentals lists the account's active rentals in issuance order.
func (s *Service) ActiveRentals(ctx context.Context, id domain.Identity) ([]domain.Rental, error) {
	return s.store.ActiveRentals(ctx, id)
}

// History lists the account's transactions in insertion order.
func (s *Service) History(ctx context.Context, id domain.Identity) ([]domain.Transaction, error) {
	return s.store.Transactions(ctx, id)
}

func parsePositiveDecimal(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	amount, err := decimal.NewFromString(trimmed)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, &domain.InvalidAmountError{Raw: trimmed}
	}
	return amount, nil
}
