package conversation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltrent/energybot/internal/domain"
)

// validTronAddr decodes to a 25-byte payload with the 0x41 version byte.
const validTronAddr = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func acceptAll(string) error { return nil }

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestWizardHappyPath(t *testing.T) {
	m := NewMachine(nil)
	const id domain.Identity = 1

	require.Equal(t, StateIdle, m.State(id))
	require.False(t, m.InProgress(id))

	m.Begin(id)
	require.Equal(t, StateAwaitingAddress, m.State(id))
	require.True(t, m.InProgress(id))

	require.NoError(t, m.ProvideDestination(id, validTronAddr))
	require.Equal(t, StateAwaitingAmount, m.State(id))

	dest, amount, err := m.ProvideAmount(id, "10")
	require.NoError(t, err)
	require.Equal(t, validTronAddr, dest)
	require.True(t, amount.Equal(decimalFromString(t, "10")))

	require.Equal(t, StateIdle, m.State(id))
	require.Empty(t, m.Session(id).PendingDestination)
}

func TestMalformedAddressKeepsWaiting(t *testing.T) {
	m := NewMachine(nil)
	const id domain.Identity = 1
	m.Begin(id)

	for _, raw := range []string{"", "abc", "1R7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "T0Il-not-base58-chars-aaaaaaaaaaaa"} {
		err := m.ProvideDestination(id, raw)
		require.True(t, domain.IsInvalidDestination(err), "input %q", raw)
		require.Equal(t, StateAwaitingAddress, m.State(id))
	}

	require.NoError(t, m.ProvideDestination(id, validTronAddr))
	require.Equal(t, StateAwaitingAmount, m.State(id))
}

func TestMalformedAmountKeepsWaiting(t *testing.T) {
	m := NewMachine(acceptAll)
	const id domain.Identity = 1
	m.Begin(id)
	require.NoError(t, m.ProvideDestination(id, "Twallet"))

	for _, raw := range []string{"abc", "0", "-5", ""} {
		_, _, err := m.ProvideAmount(id, raw)
		require.True(t, domain.IsInvalidAmount(err), "input %q", raw)
		require.Equal(t, StateAwaitingAmount, m.State(id))
		require.Equal(t, "Twallet", m.Session(id).PendingDestination)
	}

	dest, amount, err := m.ProvideAmount(id, " 2.5 ")
	require.NoError(t, err)
	require.Equal(t, "Twallet", dest)
	require.True(t, amount.Equal(decimalFromString(t, "2.5")))
}

func TestInputOutsideDialogIsUnexpected(t *testing.T) {
	m := NewMachine(acceptAll)
	const id domain.Identity = 1

	require.ErrorIs(t, m.ProvideDestination(id, "Twallet"), ErrUnexpectedInput)
	_, _, err := m.ProvideAmount(id, "10")
	require.ErrorIs(t, err, ErrUnexpectedInput)

	m.Begin(id)
	_, _, err = m.ProvideAmount(id, "10")
	require.ErrorIs(t, err, ErrUnexpectedInput)
	require.Equal(t, StateAwaitingAddress, m.State(id), "unexpected input must not move the dialog")
}

func TestCancelResetsSession(t *testing.T) {
	m := NewMachine(acceptAll)
	const id domain.Identity = 1

	require.False(t, m.Cancel(id), "nothing to cancel when idle")

	m.Begin(id)
	require.NoError(t, m.ProvideDestination(id, "Twallet"))
	require.True(t, m.Cancel(id))
	require.Equal(t, StateIdle, m.State(id))
	require.Empty(t, m.Session(id).PendingDestination)
}

func TestBeginRestartsDialog(t *testing.T) {
	m := NewMachine(acceptAll)
	const id domain.Identity = 1

	m.Begin(id)
	require.NoError(t, m.ProvideDestination(id, "Tstale"))
	m.Begin(id)
	require.Equal(t, StateAwaitingAddress, m.State(id))
	require.Empty(t, m.Session(id).PendingDestination, "restart drops the stale destination")
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewMachine(acceptAll)

	m.Begin(1)
	require.Equal(t, StateAwaitingAddress, m.State(1))
	require.Equal(t, StateIdle, m.State(2))

	m.Begin(2)
	require.NoError(t, m.ProvideDestination(2, "Tother"))
	require.Equal(t, StateAwaitingAddress, m.State(1))
	require.Equal(t, StateAwaitingAmount, m.State(2))
}

func TestTronDestination(t *testing.T) {
	require.NoError(t, TronDestination(validTronAddr))

	cases := map[string]string{
		"empty":        "",
		"short":        "TR7NHqje",
		"wrong prefix": "AR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
		"bad alphabet": "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj60",
	}
	for name, raw := range cases {
		err := TronDestination(raw)
		require.True(t, domain.IsInvalidDestination(err), name)
	}
}
