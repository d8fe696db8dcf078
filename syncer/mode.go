package syncer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Iwinswap/iwinswap-registry-sync/protocols/registry"
)

// TxSequencer assigns the next nonce to a mutation and signs it.
type TxSequencer interface {
	Next(m registry.Mutation) (*types.Transaction, error)
}

// Submitter hands a signed transaction to the ledger without waiting for it to land.
type Submitter interface {
	Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

// Mode decides, once per run, what happens to the mutations the run plans.
// It is either Live or Observe.
type Mode interface {
	mode() string
}

// Live signs every mutation with the sequencer and submits it.
type Live struct {
	Sequencer TxSequencer
	Submitter Submitter
}

// Observe only logs planned mutations. It is selected when no signing
// credential is configured.
type Observe struct{}

func (Live) mode() string    { return "live" }
func (Observe) mode() string { return "observe" }
