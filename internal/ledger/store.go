// Package ledger holds the account registry and the per-account ledger:
// balance, append-only transaction log, and active rentals. All mutating
// operations are serialized per account so concurrent requests from the same
// identity can never interleave a read-validate-mutate sequence.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/voltrent/energybot/internal/domain"
)

// Store is the repository the rest of the bot is programmed against. The
// in-memory implementation is the default; the Postgres one swaps in behind
// the same interface without touching business logic.
type Store interface {
	// Ensure returns the account for id, creating it with a zero balance on
	// first use. Idempotent: an existing account is returned untouched.
	// The second result reports whether the account was created.
	Ensure(ctx context.Context, id domain.Identity, displayName string) (domain.AccountSummary, bool, error)

	// Summary returns the account's headline state, or
	// AccountNotInitializedError for an unknown identity.
	Summary(ctx context.Context, id domain.Identity) (domain.AccountSummary, error)

	// Credit adds amount to the balance and appends the matching topup
	// transaction atomically. Fails with InvalidAmountError unless amount > 0.
	// Returns the appended transaction and the new balance.
	Credit(ctx context.Context, id domain.Identity, amount decimal.Decimal) (domain.Transaction, decimal.Decimal, error)

	// Debit subtracts amount from the balance. Fails with InvalidAmountError
	// unless amount > 0 and with InsufficientFundsError (carrying the exact
	// shortfall) when amount exceeds the balance. Returns the new balance.
	Debit(ctx context.Context, id domain.Identity, amount decimal.Decimal) (decimal.Decimal, error)

	// DebitForRental performs the rental half of the ledger atomically: debit
	// r.Cost, append r to the active rentals, and append the rental
	// transaction. Either all three happen or none does.
	DebitForRental(ctx context.Context, id domain.Identity, r domain.Rental) (domain.Transaction, decimal.Decimal, error)

	// MirrorRental records a rental issued remotely by the energy platform:
	// it appends the rental and its transaction and pins the balance to the
	// platform-reported value. No local debit happens.
	MirrorRental(ctx context.Context, id domain.Identity, r domain.Rental, remoteBalance decimal.Decimal) (domain.Transaction, error)

	// Transactions returns the transaction log in insertion order. The
	// returned slice is a copy; mutating it cannot rewrite history.
	Transactions(ctx context.Context, id domain.Identity) ([]domain.Transaction, error)

	// ActiveRentals returns the active rentals in issuance order, as a copy.
	ActiveRentals(ctx context.Context, id domain.Identity) ([]domain.Rental, error)
}
