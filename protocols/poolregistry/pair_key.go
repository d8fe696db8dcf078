package poolregistry

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrSameToken is returned when both sides of a pair are the same token.
var ErrSameToken = errors.New("pair key: tokens must be distinct")

// --- PairKey Implementation ---

// PairKey is the canonical form of an unordered pair of two distinct token addresses.
//
// Canonical ordering:
//   - Token0 is the lexicographically smaller address (byte-wise comparison)
//   - Token1 is the larger one
//
// As a result (A,B) and (B,A) produce the same, comparable, hashable key.
// PairKey carries no information about the order in which a pool lists its tokens;
// callers that care about that order (logging, call arguments) must keep it themselves.
type PairKey struct {
	Token0 common.Address
	Token1 common.Address
}

// NewPairKey canonicalizes two token addresses into a PairKey.
// Returns ErrSameToken if a and b are equal.
func NewPairKey(a, b common.Address) (PairKey, error) {
	switch a.Cmp(b) {
	case 0:
		return PairKey{}, ErrSameToken
	case 1:
		a, b = b, a
	}
	return PairKey{Token0: a, Token1: b}, nil
}

// String returns both checksummed addresses joined by ":".
func (k PairKey) String() string {
	return k.Token0.Hex() + ":" + k.Token1.Hex()
}
