package differ

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iwinswap/iwinswap-registry-sync/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-registry-sync/protocols/registry"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// BestPoolsFunc returns the pools the registry currently lists for a pair.
type BestPoolsFunc func(ctx context.Context, tokenA, tokenB common.Address) ([]common.Address, error)

// RegisterPairFunc encodes the registration of pool for the pair (a, b).
type RegisterPairFunc func(pool common.Address, a, b poolregistry.TokenView) (registry.Mutation, error)

// PairDifferConfig holds the dependencies for a PairDiffer.
type PairDifferConfig struct {
	BestPools    BestPoolsFunc
	RegisterPair RegisterPairFunc
	Logger       Logger
	Registry     prometheus.Registerer
}

func (c *PairDifferConfig) validate() error {
	if c.BestPools == nil {
		return errors.New("config: BestPools is required")
	}
	if c.RegisterPair == nil {
		return errors.New("config: RegisterPair is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// PoolDiff is the outcome of diffing one pool against the registry.
type PoolDiff struct {
	Mutations         []registry.Mutation
	Examined          int
	AlreadyRegistered int
	Failed            int
	// ReadErrors holds one entry per pair whose registry lookup failed.
	ReadErrors []*RegistryReadError
}

// PairDiffer computes the addPoolPair writes needed so that a pool is
// registered against every pair of its tokens.
type PairDiffer struct {
	bestPools    BestPoolsFunc
	registerPair RegisterPairFunc
	logger       Logger
	metrics      *Metrics
}

// NewPairDiffer creates a PairDiffer and registers its metrics.
func NewPairDiffer(cfg *PairDifferConfig) (*PairDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &PairDiffer{
		bestPools:    cfg.BestPools,
		registerPair: cfg.RegisterPair,
		logger:       cfg.Logger,
		metrics:      NewMetrics(cfg.Registry),
	}, nil
}

// Diff walks every unordered pair of the pool's tokens (i < j, both ascending),
// reads the registry state for it and returns one RegisterPair mutation per
// pair the pool is not yet listed for.
//
// Registry state is read fresh for every pair. A failed read is logged and the
// pair is skipped for this run; the remaining pairs are still processed.
func (d *PairDiffer) Diff(ctx context.Context, pool poolregistry.PoolView) PoolDiff {
	var (
		result PoolDiff
		seen   = make(map[poolregistry.PairKey]struct{})
		tokens = pool.Tokens
	)

	for i := 0; i < len(tokens)-1; i++ {
		for j := i + 1; j < len(tokens); j++ {
			a, b := tokens[i], tokens[j]

			key, err := poolregistry.NewPairKey(a.Address, b.Address)
			if err != nil {
				d.logger.Warn("Skipping invalid pair", "pool", pool.Address.Hex(), "token", a.Address.Hex(), "error", err)
				d.metrics.pairsTotal.WithLabelValues(resultInvalidPair).Inc()
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result.Examined++

			start := time.Now()
			listed, err := d.bestPools(ctx, a.Address, b.Address)
			d.metrics.lookupDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				readErr := &RegistryReadError{Pool: pool.Address, TokenA: a.Address, TokenB: b.Address, Err: err}
				d.logger.Error("Failed to read registered pools for pair, skipping",
					"pool", pool.Address.Hex(),
					"pair", a.Symbol+":"+b.Symbol,
					"error", readErr,
				)
				d.metrics.pairsTotal.WithLabelValues(resultLookupFailed).Inc()
				result.Failed++
				result.ReadErrors = append(result.ReadErrors, readErr)
				continue
			}

			if slices.Contains(listed, pool.Address) {
				d.logger.Info("Pool already registered for pair",
					"pool", pool.Address.Hex(),
					"pair", a.Symbol+":"+b.Symbol,
				)
				d.metrics.pairsTotal.WithLabelValues(resultAlreadyRegistered).Inc()
				result.AlreadyRegistered++
				continue
			}

			d.logger.Info("Pool needs to register pair",
				"pool", pool.Address.Hex(),
				"pair", a.Symbol+":"+b.Symbol,
			)

			m, err := d.registerPair(pool.Address, a, b)
			if err != nil {
				d.logger.Error("Failed to encode pair registration", "pool", pool.Address.Hex(), "pair_key", key.String(), "error", err)
				d.metrics.pairsTotal.WithLabelValues(resultEncodeFailed).Inc()
				result.Failed++
				continue
			}
			d.metrics.pairsTotal.WithLabelValues(resultNeedsRegistration).Inc()
			result.Mutations = append(result.Mutations, m)
		}
	}

	return result
}
