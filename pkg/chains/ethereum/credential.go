package ethereum

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Credential is the signing key of the account that sends registry writes.
type Credential struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// ParseCredential decodes a hex private key, with or without a "0x" prefix.
func ParseCredential(hexKey string) (*Credential, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("credential: private key is empty")
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("credential: invalid private key: %w", err)
	}
	return NewCredential(key), nil
}

// NewCredential wraps an existing key.
func NewCredential(key *ecdsa.PrivateKey) *Credential {
	return &Credential{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the sender address derived from the key.
func (c *Credential) Address() common.Address {
	return c.address
}
