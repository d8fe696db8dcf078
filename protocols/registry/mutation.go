package registry

import (
	"github.com/ethereum/go-ethereum/common"
)

// MutationKind identifies which registry write a Mutation performs.
type MutationKind uint8

const (
	// RegisterPair is addPoolPair(pool, tokenA, tokenB).
	RegisterPair MutationKind = iota + 1
	// RefreshRanking is sortPools(tokens, limit).
	RefreshRanking
)

func (k MutationKind) String() string {
	switch k {
	case RegisterPair:
		return "register_pair"
	case RefreshRanking:
		return "refresh_ranking"
	default:
		return "unknown"
	}
}

// Mutation is an encoded, not yet sequenced, registry write.
// The descriptive fields are only used for logging and metrics; Data is what
// gets signed.
type Mutation struct {
	Kind     MutationKind
	To       common.Address
	Data     []byte
	GasLimit uint64

	// RegisterPair
	Pool    common.Address
	TokenA  common.Address
	TokenB  common.Address
	SymbolA string
	SymbolB string

	// RefreshRanking
	Tokens []common.Address
	Limit  uint64
}

// LogArgs returns key/value pairs describing the mutation for structured logs.
func (m Mutation) LogArgs() []any {
	switch m.Kind {
	case RegisterPair:
		return []any{
			"kind", m.Kind.String(),
			"pool", m.Pool.Hex(),
			"token_a", m.TokenA.Hex(),
			"token_b", m.TokenB.Hex(),
			"pair", m.SymbolA + ":" + m.SymbolB,
		}
	case RefreshRanking:
		return []any{
			"kind", m.Kind.String(),
			"tokens", len(m.Tokens),
			"limit", m.Limit,
		}
	default:
		return []any{"kind", m.Kind.String()}
	}
}
