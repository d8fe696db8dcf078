// Package syncer drives one registry synchronization run: fetch the pool
// snapshot, diff every pool against the registry, dispatch the pair
// registrations and finally refresh the best-pools ranking.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iwinswap/iwinswap-registry-sync/differ"
	"github.com/Iwinswap/iwinswap-registry-sync/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-registry-sync/protocols/registry"
	"github.com/Iwinswap/iwinswap-registry-sync/protocols/token"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SnapshotFetcher returns the current pools, newest first.
type SnapshotFetcher interface {
	Fetch(ctx context.Context) ([]poolregistry.PoolView, error)
}

// PoolDiffer computes the pair registrations a pool still needs.
type PoolDiffer interface {
	Diff(ctx context.Context, pool poolregistry.PoolView) differ.PoolDiff
}

// RefreshRankingFunc encodes the ranking refresh over a token universe.
type RefreshRankingFunc func(tokens []common.Address, limit uint64) (registry.Mutation, error)

// Phase is the run's position in Fetching -> DiffingPools -> RefreshingRanking -> Done.
type Phase string

const (
	PhaseFetching          Phase = "fetching"
	PhaseDiffingPools      Phase = "diffing_pools"
	PhaseRefreshingRanking Phase = "refreshing_ranking"
	PhaseDone              Phase = "done"
)

// Config holds all the dependencies and settings for an Orchestrator.
type Config struct {
	Fetcher        SnapshotFetcher
	Differ         PoolDiffer
	RefreshRanking RefreshRankingFunc
	Mode           Mode
	RankingLimit   uint64
	Logger         Logger
	Registry       prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Fetcher == nil {
		return errors.New("config: Fetcher is required")
	}
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.RefreshRanking == nil {
		return errors.New("config: RefreshRanking is required")
	}
	if c.RankingLimit == 0 {
		return errors.New("config: RankingLimit must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	switch m := c.Mode.(type) {
	case Live:
		if m.Sequencer == nil || m.Submitter == nil {
			return errors.New("config: Live mode requires a Sequencer and a Submitter")
		}
	case Observe:
	default:
		return errors.New("config: Mode must be Live or Observe")
	}
	return nil
}

// Summary describes what a run did.
type Summary struct {
	Pools                  int
	PairsExamined          int
	PairsAlreadyRegistered int
	PairsFailed            int
	MutationsPlanned       int
	MutationsDispatched    int
	MutationsFailed        int
	UniverseSize           int
	RankingDispatched      bool
}

// dispatchFunc reports whether m was handed to the ledger.
type dispatchFunc func(ctx context.Context, m registry.Mutation) (bool, error)

// Orchestrator runs the sync pipeline. Pools are processed strictly one after
// another, so the token universe and the sequencer are only touched from the
// calling goroutine.
type Orchestrator struct {
	fetcher        SnapshotFetcher
	differ         PoolDiffer
	refreshRanking RefreshRankingFunc
	rankingLimit   uint64
	modeName       string
	dispatch       dispatchFunc
	logger         Logger
	metrics        *Metrics
}

// New creates an Orchestrator. The Mode is resolved here, once.
func New(cfg *Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		fetcher:        cfg.Fetcher,
		differ:         cfg.Differ,
		refreshRanking: cfg.RefreshRanking,
		rankingLimit:   cfg.RankingLimit,
		modeName:       cfg.Mode.mode(),
		logger:         cfg.Logger,
		metrics:        NewMetrics(cfg.Registry),
	}

	switch m := cfg.Mode.(type) {
	case Live:
		o.dispatch = o.liveDispatch(m)
	case Observe:
		o.dispatch = o.observeDispatch
	}
	return o, nil
}

// Run executes one synchronization. Only a snapshot fetch failure is returned
// as an error; every other failure is logged, counted and skipped.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() {
		o.metrics.runDuration.Set(time.Since(start).Seconds())
	}()

	var summary Summary
	o.enter(PhaseFetching)
	pools, err := o.fetcher.Fetch(ctx)
	if err != nil {
		return summary, &FetchError{Err: err}
	}

	o.enter(PhaseDiffingPools)
	universe := token.NewUniverse()
	for i, pool := range pools {
		o.logger.Info("Processing pool",
			"index", i,
			"pool", pool.Address.Hex(),
			"liquidity", pool.Liquidity.String(),
			"swap_fee", pool.SwapFee.String(),
			"tokens", pool.SymbolPath(),
			"create_time", pool.CreateTime.UTC().Format(time.RFC3339),
		)

		diff := o.differ.Diff(ctx, pool)
		universe.Add(pool.TokenAddresses()...)

		summary.Pools++
		summary.PairsExamined += diff.Examined
		summary.PairsAlreadyRegistered += diff.AlreadyRegistered
		summary.PairsFailed += diff.Failed
		o.metrics.poolsTotal.Inc()

		for _, m := range diff.Mutations {
			o.dispatchAndCount(ctx, m, &summary)
		}
	}

	o.enter(PhaseRefreshingRanking)
	summary.UniverseSize = universe.Len()
	o.metrics.universeSize.Set(float64(universe.Len()))

	ranking, err := o.refreshRanking(universe.Addresses(), o.rankingLimit)
	if err != nil {
		summary.MutationsPlanned++
		summary.MutationsFailed++
		o.metrics.mutationsTotal.WithLabelValues(registry.RefreshRanking.String(), resultFailed).Inc()
		o.logger.Error("Failed to build ranking refresh", "error", &SubmissionError{Op: "encode", Kind: registry.RefreshRanking, Err: err})
	} else {
		o.logger.Info("Sorting registry for all tokens", "tokens", universe.Len(), "limit", o.rankingLimit)
		summary.RankingDispatched = o.dispatchAndCount(ctx, ranking, &summary)
	}

	o.enter(PhaseDone)
	o.logger.Info("Registry sync finished",
		"mode", o.modeName,
		"pools", summary.Pools,
		"pairs_examined", summary.PairsExamined,
		"pairs_already_registered", summary.PairsAlreadyRegistered,
		"pairs_failed", summary.PairsFailed,
		"mutations_planned", summary.MutationsPlanned,
		"mutations_dispatched", summary.MutationsDispatched,
		"mutations_failed", summary.MutationsFailed,
		"token_universe", summary.UniverseSize,
		"duration", time.Since(start).String(),
	)
	return summary, nil
}

// dispatchAndCount routes m through the run's mode and updates the summary.
// It reports whether the mutation was handed to the ledger.
func (o *Orchestrator) dispatchAndCount(ctx context.Context, m registry.Mutation, summary *Summary) bool {
	summary.MutationsPlanned++
	submitted, err := o.dispatch(ctx, m)
	if err != nil {
		summary.MutationsFailed++
		o.metrics.mutationsTotal.WithLabelValues(m.Kind.String(), resultFailed).Inc()
		o.logger.Error("Failed to dispatch mutation", append(m.LogArgs(), "error", err)...)
		return false
	}
	if submitted {
		summary.MutationsDispatched++
	}
	return submitted
}

func (o *Orchestrator) liveDispatch(live Live) dispatchFunc {
	return func(ctx context.Context, m registry.Mutation) (bool, error) {
		tx, err := live.Sequencer.Next(m)
		if err != nil {
			return false, &SubmissionError{Op: "sign", Kind: m.Kind, Err: err}
		}

		// The nonce stays consumed even if the node rejects the transaction.
		hash, err := live.Submitter.Submit(ctx, tx)
		if err != nil {
			return false, &SubmissionError{Op: "submit", Kind: m.Kind, Nonce: tx.Nonce(), Err: err}
		}

		o.metrics.mutationsTotal.WithLabelValues(m.Kind.String(), resultDispatched).Inc()
		o.logger.Info("Submitted registry mutation", append(m.LogArgs(), "nonce", tx.Nonce(), "hash", hash.Hex())...)
		return true, nil
	}
}

func (o *Orchestrator) observeDispatch(_ context.Context, m registry.Mutation) (bool, error) {
	o.metrics.mutationsTotal.WithLabelValues(m.Kind.String(), resultDryRun).Inc()
	o.logger.Info("Dry run: mutation not submitted", m.LogArgs()...)
	return false, nil
}

func (o *Orchestrator) enter(p Phase) {
	o.logger.Debug(fmt.Sprintf("Entering phase %s", p), "mode", o.modeName)
}
