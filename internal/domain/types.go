package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Identity is the external chat identity an account is derived from.
// Telegram user IDs map to it one-to-one.
type Identity int64

// TxKind discriminates ledger transactions.
type TxKind string

const (
	// TxTopUp marks a credit top-up; Amount is the credited sum.
	TxTopUp TxKind = "topup"
	// TxRental marks an energy rental; Amount is the energy quantity in kWh
	// and Cost is the debited sum.
	TxRental TxKind = "rental"
)

// RentalStatus is the lifecycle state of a rental. Only "active" is modeled;
// expiry and closing happen outside this service.
type RentalStatus string

// RentalActive is the status every issued rental carries.
const RentalActive RentalStatus = "active"

// Rental is an issued energy allocation debited against an account.
type Rental struct {
	ID          string
	EnergyKWH   decimal.Decimal
	Cost        decimal.Decimal
	Destination string
	StartedAt   time.Time
	Status      RentalStatus
}

// Transaction is one immutable entry of an account's append-only ledger log.
// For TxTopUp, Amount is the credited sum and Cost is zero. For TxRental,
// Amount is the energy quantity, Cost is the debited sum and RentalID
// back-references the rental it recorded.
type Transaction struct {
	Kind      TxKind
	Amount    decimal.Decimal
	Cost      decimal.Decimal
	Timestamp time.Time
	RentalID  string
}

// AccountSummary is a read-only snapshot of an account's headline state.
type AccountSummary struct {
	ID           Identity
	DisplayName  string
	Balance      decimal.Decimal
	RentalCount  int
	HistoryCount int
}
