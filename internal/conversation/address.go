package conversation

import (
	"github.com/mr-tron/base58"

	"github.com/voltrent/energybot/internal/domain"
)

const (
	tronAddressLen     = 34
	tronPayloadLen     = 25 // 1 version byte + 20 byte hash + 4 byte checksum
	tronVersionMainnet = 0x41
)

// TronDestination validates a TRON base58check address: 34 characters,
// leading 'T', base58 alphabet, and a 25-byte payload with the mainnet
// version byte. Checksum verification is left to the energy platform.
func TronDestination(addr string) error {
	if addr == "" {
		return &domain.InvalidDestinationError{Input: addr, Reason: "empty"}
	}
	if len(addr) != tronAddressLen {
		return &domain.InvalidDestinationError{Input: addr, Reason: "must be 34 characters"}
	}
	if addr[0] != 'T' {
		return &domain.InvalidDestinationError{Input: addr, Reason: "must start with T"}
	}
	payload, err := base58.Decode(addr)
	if err != nil {
		return &domain.InvalidDestinationError{Input: addr, Reason: "not base58"}
	}
	if len(payload) != tronPayloadLen || payload[0] != tronVersionMainnet {
		return &domain.InvalidDestinationError{Input: addr, Reason: "not a mainnet address"}
	}
	return nil
}
