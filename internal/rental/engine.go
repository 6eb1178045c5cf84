// Package rental prices and issues energy rentals against an account ledger.
package rental

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voltrent/energybot/core/logger"
	"github.com/voltrent/energybot/internal/domain"
)

// Ledger is the slice of the store the engine needs: the atomic
// debit-and-record primitive.
type Ledger interface {
	DebitForRental(ctx context.Context, id domain.Identity, r domain.Rental) (domain.Transaction, decimal.Decimal, error)
}

// Result describes a successfully issued rental.
type Result struct {
	Rental      domain.Rental
	Transaction domain.Transaction
	NewBalance  decimal.Decimal
}

// Engine computes rental quotes and issues rentals. It is stateless apart
// from its collaborators and safe for concurrent use.
type Engine struct {
	ledger Ledger
	newID  func() string
	now    func() time.Time
}

// Option customizes an Engine, mostly for tests.
type Option func(*Engine)

// WithIDGenerator overrides rental ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithClock overrides the issuance timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// NewEngine builds an engine over the given ledger.
func NewEngine(ledger Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger: ledger,
		newID:  NewRentalID,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewRentalID returns a process-unique rental identifier. Random UUIDs keep
// IDs distinct even for rentals issued within the same millisecond, which a
// wall-clock-derived ID cannot guarantee.
func NewRentalID() string {
	return "RENT-" + strings.ToUpper(uuid.NewString())
}

// Quote returns energy * unitPrice with no rounding; presentation decides
// how many decimals to show.
func (e *Engine) Quote(energy, unitPrice decimal.Decimal) decimal.Decimal {
	return energy.Mul(unitPrice)
}

// Issue validates the requested energy amount, quotes it, and performs the
// debit-and-record step through the ledger. The ledger makes that step
// atomic; on any failure no rental, transaction, or balance change survives.
func (e *Engine) Issue(ctx context.Context, id domain.Identity, energy, unitPrice decimal.Decimal, destination string) (Result, error) {
	if !energy.IsPositive() {
		return Result{}, &domain.InvalidAmountError{Raw: energy.String()}
	}

	r := domain.Rental{
		ID:          e.newID(),
		EnergyKWH:   energy,
		Cost:        e.Quote(energy, unitPrice),
		Destination: destination,
		StartedAt:   e.now(),
		Status:      domain.RentalActive,
	}

	tx, balance, err := e.ledger.DebitForRental(ctx, id, r)
	if err != nil {
		return Result{}, err
	}

	logger.Info(ctx, "service.rental", "rental.issued",
		slog.Int64("account_id", int64(id)),
		slog.String("rental_id", r.ID),
		slog.String("energy_kwh", r.EnergyKWH.String()),
		slog.String("cost", r.Cost.String()),
		slog.String("balance", balance.String()),
	)
	return Result{Rental: r, Transaction: tx, NewBalance: balance}, nil
}
