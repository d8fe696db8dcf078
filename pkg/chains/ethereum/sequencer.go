package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Iwinswap/iwinswap-registry-sync/protocols/registry"
)

// DefaultGasPrice is the fixed gas price, in wei, used when none is configured.
var DefaultGasPrice = big.NewInt(100_000_000)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AccountStateReader is the part of the ledger client the sequencer needs at start-up.
type AccountStateReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// SequencerConfig holds the dependencies for a Sequencer.
type SequencerConfig struct {
	Credential *Credential
	State      AccountStateReader
	GasPrice   *big.Int
	Logger     Logger
}

func (c *SequencerConfig) validate() error {
	if c.Credential == nil {
		return errors.New("config: Credential is required")
	}
	if c.State == nil {
		return errors.New("config: State is required")
	}
	if c.GasPrice != nil && c.GasPrice.Sign() <= 0 {
		return errors.New("config: GasPrice must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Sequencer binds registry mutations to consecutive nonces of a single sender
// and signs them.
//
// The counter starts at the sender's pending transaction count and moves forward
// by exactly one for every transaction Next returns. Nonces are never reused or
// handed back, so a transaction that later fails to submit leaves its nonce
// consumed. Sequencer is owned by one run and is not safe for concurrent use.
type Sequencer struct {
	key      *Credential
	signer   types.Signer
	chainID  *big.Int
	gasPrice *big.Int
	start    uint64
	nonce    uint64
	logger   Logger
}

// NewSequencer reads the sender's pending nonce and the chain id and returns a
// Sequencer positioned at that nonce.
func NewSequencer(ctx context.Context, cfg *SequencerConfig) (*Sequencer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	from := cfg.Credential.Address()
	nonce, err := cfg.State.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending nonce for %s: %w", from.Hex(), err)
	}

	chainID, err := cfg.State.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	gasPrice := cfg.GasPrice
	if gasPrice == nil {
		gasPrice = DefaultGasPrice
	}

	cfg.Logger.Info("Sequencer initialized",
		"sender", from.Hex(),
		"chain_id", chainID,
		"start_nonce", nonce,
		"gas_price", gasPrice,
	)

	return &Sequencer{
		key:      cfg.Credential,
		signer:   types.LatestSignerForChainID(chainID),
		chainID:  new(big.Int).Set(chainID),
		gasPrice: new(big.Int).Set(gasPrice),
		start:    nonce,
		nonce:    nonce,
		logger:   cfg.Logger,
	}, nil
}

// Next builds and signs the transaction for m using the current nonce, then
// advances the counter. If signing fails the counter is left untouched, since
// no transaction carrying that nonce exists.
func (s *Sequencer) Next(m registry.Mutation) (*types.Transaction, error) {
	to := m.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    s.nonce,
		GasPrice: new(big.Int).Set(s.gasPrice),
		Gas:      m.GasLimit,
		To:       &to,
		Data:     m.Data,
	})

	signed, err := types.SignTx(tx, s.signer, s.key.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s at nonce %d: %w", m.Kind, s.nonce, err)
	}

	s.logger.Debug("Sequenced transaction", "nonce", s.nonce, "hash", signed.Hash().Hex(), "kind", m.Kind.String())
	s.nonce++
	return signed, nil
}

// From returns the sender address.
func (s *Sequencer) From() common.Address {
	return s.key.Address()
}

// ChainID returns the chain id transactions are signed for.
func (s *Sequencer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// NextNonce returns the nonce the next transaction will carry.
func (s *Sequencer) NextNonce() uint64 {
	return s.nonce
}

// Issued returns how many transactions have been sequenced this run.
func (s *Sequencer) Issued() uint64 {
	return s.nonce - s.start
}
