// Package conversation tracks each account's multi-step rental dialog as a
// small finite-state machine: idle, awaiting the destination wallet address,
// awaiting the energy amount.
package conversation

import (
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/voltrent/energybot/internal/domain"
)

// State identifies a step of the rental dialog. The set is closed; every
// consumer switches over all three values.
type State string

const (
	// StateIdle means no rental dialog is in progress.
	StateIdle State = "idle"
	// StateAwaitingAddress means the bot asked for the destination wallet.
	StateAwaitingAddress State = "awaiting_wallet_address"
	// StateAwaitingAmount means the bot asked for the energy amount.
	StateAwaitingAmount State = "awaiting_energy_amount"
)

// ErrUnexpectedInput signals input that does not belong to the current
// dialog step. The session is left exactly as it was.
var ErrUnexpectedInput = errors.New("conversation: input does not match the current prompt")

// Session is one account's dialog state. PendingDestination is only set
// while the machine waits for the energy amount.
type Session struct {
	State              State
	PendingDestination string
}

// DestinationValidator checks a destination address against the target
// network's grammar. It returns a domain.InvalidDestinationError on failure.
type DestinationValidator func(addr string) error

// Machine holds every account's session. Sessions are created lazily and
// live for the process lifetime; a parked session costs one map entry and
// nothing else, so an abandoned dialog leaks no resources.
type Machine struct {
	mu       sync.RWMutex
	sessions map[domain.Identity]*Session
	validate DestinationValidator
}

// NewMachine constructs a machine using the given destination validator.
func NewMachine(validate DestinationValidator) *Machine {
	if validate == nil {
		validate = TronDestination
	}
	return &Machine{
		sessions: make(map[domain.Identity]*Session),
		validate: validate,
	}
}

// Session returns a copy of the account's session, defaulting to idle.
func (m *Machine) Session(id domain.Identity) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return *s
	}
	return Session{State: StateIdle}
}

// State returns the current dialog state for the account.
func (m *Machine) State(id domain.Identity) State {
	return m.Session(id).State
}

// InProgress reports whether the account is mid-dialog.
func (m *Machine) InProgress(id domain.Identity) bool {
	return m.State(id) != StateIdle
}

func (m *Machine) session(id domain.Identity) *Session {
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := &Session{State: StateIdle}
	m.sessions[id] = s
	return s
}

// Begin starts (or restarts) the rental dialog: the machine moves to
// awaiting_wallet_address and any stale pending destination is dropped.
func (m *Machine) Begin(id domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(id)
	s.State = StateAwaitingAddress
	s.PendingDestination = ""
}

// Cancel aborts the dialog and reports whether one was in progress. The
// pending destination never survives a reset to idle.
func (m *Machine) Cancel(id domain.Identity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(id)
	active := s.State != StateIdle
	s.State = StateIdle
	s.PendingDestination = ""
	return active
}

// ProvideDestination consumes the wallet address reply. On a valid address
// the dialog advances to awaiting_energy_amount; on a malformed one the
// state does not move and the validation error is returned. Outside the
// awaiting_wallet_address step it returns ErrUnexpectedInput untouched.
func (m *Machine) ProvideDestination(id domain.Identity, text string) error {
	addr := strings.TrimSpace(text)

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(id)
	if s.State != StateAwaitingAddress {
		return ErrUnexpectedInput
	}
	if err := m.validate(addr); err != nil {
		return err
	}
	s.State = StateAwaitingAmount
	s.PendingDestination = addr
	return nil
}

// ProvideAmount consumes the energy amount reply. A valid positive number
// completes the dialog: the machine returns to idle, clears the pending
// destination, and hands back the captured destination and amount so the
// caller can issue the rental. The reset happens before issuance, so the
// destination is cleared regardless of the issuance outcome. Invalid input
// keeps the machine waiting; input outside the awaiting_energy_amount step
// returns ErrUnexpectedInput without corrupting the pending destination.
func (m *Machine) ProvideAmount(id domain.Identity, text string) (string, decimal.Decimal, error) {
	raw := strings.TrimSpace(text)

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(id)
	if s.State != StateAwaitingAmount {
		return "", decimal.Zero, ErrUnexpectedInput
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		return "", decimal.Zero, &domain.InvalidAmountError{Raw: raw}
	}

	destination := s.PendingDestination
	s.State = StateIdle
	s.PendingDestination = ""
	return destination, amount, nil
}
