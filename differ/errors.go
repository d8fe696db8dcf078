package differ

import (
	"github.com/ethereum/go-ethereum/common"
)

// RegistryReadError reports a failed getBestPools lookup for one pair.
// It is local to that pair: the pair is skipped and diffing continues.
type RegistryReadError struct {
	Pool   common.Address
	TokenA common.Address
	TokenB common.Address
	Err    error
}

func (e *RegistryReadError) Error() string {
	return "registry read " + e.TokenA.Hex() + ":" + e.TokenB.Hex() + " for pool " + e.Pool.Hex() + ": " + e.Err.Error()
}

func (e *RegistryReadError) Unwrap() error {
	return e.Err
}
