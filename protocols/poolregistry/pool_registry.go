package poolregistry

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenView represents one token held by a pool.
type TokenView struct {
	Address common.Address
	Symbol  string
	Name    string
	Balance decimal.Decimal
	Weight  decimal.Decimal
}

// PoolView represents a pool as reported by the pool index at fetch time.
// Values are never mutated after the snapshot is built.
type PoolView struct {
	Address     common.Address
	Active      bool
	Liquidity   decimal.Decimal
	TokensCount int
	CreateTime  time.Time
	SwapFee     decimal.Decimal
	Controller  common.Address
	PublicSwap  bool
	Finalized   bool
	Tokens      []TokenView
}

// TokenAddresses returns the pool's token addresses in the pool's own order.
func (p PoolView) TokenAddresses() []common.Address {
	addrs := make([]common.Address, len(p.Tokens))
	for i, t := range p.Tokens {
		addrs[i] = t.Address
	}
	return addrs
}

// SymbolPath joins the token symbols with ":" (e.g. "CELO:cUSD:cEUR").
func (p PoolView) SymbolPath() string {
	symbols := make([]string, len(p.Tokens))
	for i, t := range p.Tokens {
		symbols[i] = t.Symbol
	}
	return strings.Join(symbols, ":")
}
