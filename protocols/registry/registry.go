package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Iwinswap/iwinswap-registry-sync/protocols/poolregistry"
)

const (
	// DefaultPairGasLimit bounds a single addPoolPair call.
	DefaultPairGasLimit uint64 = 200_000
	// DefaultRankingGasLimit bounds sortPools over the whole token universe.
	DefaultRankingGasLimit uint64 = 10_000_000
	// DefaultRankingLimit is the number of best pools kept per pair.
	DefaultRankingLimit uint64 = 100
)

// Config holds the dependencies and settings for a Registry.
type Config struct {
	Address         common.Address
	Caller          ethereum.ContractCaller
	PairGasLimit    uint64
	RankingGasLimit uint64
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: registry Address is required")
	}
	if c.Caller == nil {
		return errors.New("config: Caller is required")
	}
	return nil
}

// Registry reads pair registrations from the on-chain pool registry and encodes
// the writes the synchronizer sends to it.
type Registry struct {
	address         common.Address
	abi             abi.ABI
	caller          ethereum.ContractCaller
	pairGasLimit    uint64
	rankingGasLimit uint64
}

// New creates a Registry bound to cfg.Address.
func New(cfg Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry abi: %w", err)
	}

	r := &Registry{
		address:         cfg.Address,
		abi:             parsed,
		caller:          cfg.Caller,
		pairGasLimit:    cfg.PairGasLimit,
		rankingGasLimit: cfg.RankingGasLimit,
	}
	if r.pairGasLimit == 0 {
		r.pairGasLimit = DefaultPairGasLimit
	}
	if r.rankingGasLimit == 0 {
		r.rankingGasLimit = DefaultRankingGasLimit
	}
	return r, nil
}

// Address returns the registry contract address.
func (r *Registry) Address() common.Address {
	return r.address
}

// BestPools calls getBestPools(tokenA, tokenB) against the latest registry state.
func (r *Registry) BestPools(ctx context.Context, tokenA, tokenB common.Address) ([]common.Address, error) {
	input, err := r.abi.Pack(methodGetBestPools, tokenA, tokenB)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", methodGetBestPools, err)
	}

	output, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", methodGetBestPools, err)
	}

	values, err := r.abi.Unpack(methodGetBestPools, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", methodGetBestPools, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: expected 1 return value, got %d", methodGetBestPools, len(values))
	}
	pools, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", methodGetBestPools, values[0])
	}
	return pools, nil
}

// RegisterPair encodes addPoolPair(pool, a, b). a and b are passed in the
// order given, which should be the pool's own token order.
func (r *Registry) RegisterPair(pool common.Address, a, b poolregistry.TokenView) (Mutation, error) {
	data, err := r.abi.Pack(methodAddPoolPair, pool, a.Address, b.Address)
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to pack %s: %w", methodAddPoolPair, err)
	}

	return Mutation{
		Kind:     RegisterPair,
		To:       r.address,
		Data:     data,
		GasLimit: r.pairGasLimit,
		Pool:     pool,
		TokenA:   a.Address,
		TokenB:   b.Address,
		SymbolA:  a.Symbol,
		SymbolB:  b.Symbol,
	}, nil
}

// RefreshRanking encodes sortPools(tokens, limit).
func (r *Registry) RefreshRanking(tokens []common.Address, limit uint64) (Mutation, error) {
	data, err := r.abi.Pack(methodSortPools, tokens, new(big.Int).SetUint64(limit))
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to pack %s: %w", methodSortPools, err)
	}

	tokensCopy := make([]common.Address, len(tokens))
	copy(tokensCopy, tokens)

	return Mutation{
		Kind:     RefreshRanking,
		To:       r.address,
		Data:     data,
		GasLimit: r.rankingGasLimit,
		Tokens:   tokensCopy,
		Limit:    limit,
	}, nil
}
