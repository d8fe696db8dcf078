package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iwinswap/iwinswap-registry-sync/differ"
	ethpkg "github.com/Iwinswap/iwinswap-registry-sync/pkg/chains/ethereum"
	"github.com/Iwinswap/iwinswap-registry-sync/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-registry-sync/protocols/registry"
)

var (
	registryAddr = common.HexToAddress("0x3E30b138ecc85cD89210e1A19a8603544A917372")
	tokenX       = poolregistry.TokenView{Address: common.HexToAddress("0x000000000000000000000000000000000000000a"), Symbol: "X"}
	tokenY       = poolregistry.TokenView{Address: common.HexToAddress("0x000000000000000000000000000000000000000b"), Symbol: "Y"}
	tokenZ       = poolregistry.TokenView{Address: common.HexToAddress("0x000000000000000000000000000000000000000c"), Symbol: "Z"}
	tokenW       = poolregistry.TokenView{Address: common.HexToAddress("0x000000000000000000000000000000000000000d"), Symbol: "W"}
)

// --- fakes ---

type fakeFetcher struct {
	pools []poolregistry.PoolView
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context) ([]poolregistry.PoolView, error) {
	f.calls++
	return f.pools, f.err
}

type memoryRegistry struct {
	listed map[poolregistry.PairKey][]common.Address
}

func (m *memoryRegistry) list(pool common.Address, a, b poolregistry.TokenView) {
	key, _ := poolregistry.NewPairKey(a.Address, b.Address)
	m.listed[key] = append(m.listed[key], pool)
}

func (m *memoryRegistry) BestPools(_ context.Context, a, b common.Address) ([]common.Address, error) {
	key, _ := poolregistry.NewPairKey(a, b)
	return m.listed[key], nil
}

type noopCaller struct{}

func (noopCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not used")
}

type recordingSequencer struct {
	inner     TxSequencer
	mutations []registry.Mutation
}

func (r *recordingSequencer) Next(m registry.Mutation) (*types.Transaction, error) {
	r.mutations = append(r.mutations, m)
	return r.inner.Next(m)
}

type fakeSubmitter struct {
	sent   []*types.Transaction
	failAt map[int]bool
	calls  int
}

func (f *fakeSubmitter) Submit(_ context.Context, tx *types.Transaction) (common.Hash, error) {
	defer func() { f.calls++ }()
	if f.failAt[f.calls] {
		return common.Hash{}, errors.New("replacement transaction underpriced")
	}
	f.sent = append(f.sent, tx)
	return tx.Hash(), nil
}

type fakeAccountState struct{ nonce uint64 }

func (f fakeAccountState) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f fakeAccountState) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(42220), nil
}

// --- harness ---

type harness struct {
	fetcher   *fakeFetcher
	registry  *memoryRegistry
	sequencer *recordingSequencer
	submitter *fakeSubmitter
	promReg   *prometheus.Registry
	orch      *Orchestrator
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, live bool, startNonce uint64, pools ...poolregistry.PoolView) *harness {
	t.Helper()
	return newHarnessWithLogger(t, testLogger(), live, startNonce, pools...)
}

func newHarnessWithLogger(t *testing.T, logger *slog.Logger, live bool, startNonce uint64, pools ...poolregistry.PoolView) *harness {
	t.Helper()
	h := &harness{
		fetcher:   &fakeFetcher{pools: pools},
		registry:  &memoryRegistry{listed: map[poolregistry.PairKey][]common.Address{}},
		submitter: &fakeSubmitter{failAt: map[int]bool{}},
		promReg:   prometheus.NewRegistry(),
	}

	reg, err := registry.New(registry.Config{Address: registryAddr, Caller: noopCaller{}})
	require.NoError(t, err)

	pairDiffer, err := differ.NewPairDiffer(&differ.PairDifferConfig{
		BestPools:    h.registry.BestPools,
		RegisterPair: reg.RegisterPair,
		Logger:       logger,
		Registry:     h.promReg,
	})
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	seq, err := ethpkg.NewSequencer(context.Background(), &ethpkg.SequencerConfig{
		Credential: ethpkg.NewCredential(key),
		State:      fakeAccountState{nonce: startNonce},
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	h.sequencer = &recordingSequencer{inner: seq}

	var mode Mode = Observe{}
	if live {
		mode = Live{Sequencer: h.sequencer, Submitter: h.submitter}
	}

	h.orch, err = New(&Config{
		Fetcher:        h.fetcher,
		Differ:         pairDiffer,
		RefreshRanking: reg.RefreshRanking,
		Mode:           mode,
		RankingLimit:   registry.DefaultRankingLimit,
		Logger:         logger,
		Registry:       h.promReg,
	})
	require.NoError(t, err)
	return h
}

func pool(addr string, tokens ...poolregistry.TokenView) poolregistry.PoolView {
	return poolregistry.PoolView{
		Address:     common.HexToAddress(addr),
		Active:      true,
		Finalized:   true,
		TokensCount: len(tokens),
		Tokens:      tokens,
	}
}

// logRecords decodes every JSON log line written to buf.
func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		records = append(records, rec)
	}
	return records
}

func withMsg(records []map[string]any, msg string) []map[string]any {
	var out []map[string]any
	for _, r := range records {
		if r["msg"] == msg {
			out = append(out, r)
		}
	}
	return out
}

func nonces(txs []*types.Transaction) []uint64 {
	out := make([]uint64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Nonce()
	}
	return out
}

// --- tests ---

func TestNew_Validation(t *testing.T) {
	base := func() *Config {
		return &Config{
			Fetcher:        &fakeFetcher{},
			Differ:         nil,
			RefreshRanking: func([]common.Address, uint64) (registry.Mutation, error) { return registry.Mutation{}, nil },
			Mode:           Observe{},
			RankingLimit:   100,
			Logger:         testLogger(),
			Registry:       prometheus.NewRegistry(),
		}
	}

	_, err := New(base())
	assert.Error(t, err, "differ required")

	cfg := base()
	cfg.Differ = stubDiffer{}
	cfg.Mode = nil
	_, err = New(cfg)
	assert.Error(t, err, "mode required")

	cfg = base()
	cfg.Differ = stubDiffer{}
	cfg.Mode = Live{}
	_, err = New(cfg)
	assert.Error(t, err, "live mode requires sequencer and submitter")

	cfg = base()
	cfg.Differ = stubDiffer{}
	cfg.RankingLimit = 0
	_, err = New(cfg)
	assert.Error(t, err, "ranking limit required")

	cfg = base()
	cfg.Differ = stubDiffer{}
	_, err = New(cfg)
	assert.NoError(t, err)
}

type stubDiffer struct{}

func (stubDiffer) Diff(context.Context, poolregistry.PoolView) differ.PoolDiff { return differ.PoolDiff{} }

func TestOrchestrator_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("RegistersMissingPairsThenRefreshesRanking", func(t *testing.T) {
		p := pool("0xa1", tokenX, tokenY, tokenZ)
		h := newHarness(t, true, 10, p)
		h.registry.list(p.Address, tokenX, tokenY)

		summary, err := h.orch.Run(ctx)
		require.NoError(t, err)

		muts := h.sequencer.mutations
		require.Len(t, muts, 3)
		assert.Equal(t, registry.RegisterPair, muts[0].Kind)
		assert.Equal(t, []common.Address{p.Address, tokenX.Address, tokenZ.Address}, []common.Address{muts[0].Pool, muts[0].TokenA, muts[0].TokenB})
		assert.Equal(t, registry.RegisterPair, muts[1].Kind)
		assert.Equal(t, []common.Address{p.Address, tokenY.Address, tokenZ.Address}, []common.Address{muts[1].Pool, muts[1].TokenA, muts[1].TokenB})
		assert.Equal(t, registry.RefreshRanking, muts[2].Kind)
		assert.ElementsMatch(t, []common.Address{tokenX.Address, tokenY.Address, tokenZ.Address}, muts[2].Tokens)
		assert.Equal(t, registry.DefaultRankingLimit, muts[2].Limit)

		assert.Equal(t, []uint64{10, 11, 12}, nonces(h.submitter.sent))
		assert.Equal(t, registry.DefaultPairGasLimit, h.submitter.sent[0].Gas())
		assert.Equal(t, registry.DefaultRankingGasLimit, h.submitter.sent[2].Gas())
		for _, tx := range h.submitter.sent {
			assert.Equal(t, registryAddr, *tx.To())
		}

		assert.Equal(t, Summary{
			Pools:                  1,
			PairsExamined:          3,
			PairsAlreadyRegistered: 1,
			MutationsPlanned:       3,
			MutationsDispatched:    3,
			UniverseSize:           3,
			RankingDispatched:      true,
		}, summary)
	})

	t.Run("LogsEveryStep", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		p := pool("0xa1", tokenX, tokenY, tokenZ)
		p.Liquidity = decimal.RequireFromString("1234.5")
		p.SwapFee = decimal.RequireFromString("0.003")
		p.CreateTime = time.Unix(1620000000, 0)

		h := newHarnessWithLogger(t, logger, true, 0, p)
		h.registry.list(p.Address, tokenX, tokenY)

		_, err := h.orch.Run(ctx)
		require.NoError(t, err)
		records := logRecords(t, &buf)

		processing := withMsg(records, "Processing pool")
		require.Len(t, processing, 1)
		assert.Equal(t, p.Address.Hex(), processing[0]["pool"])
		assert.Equal(t, "1234.5", processing[0]["liquidity"])
		assert.Equal(t, "0.003", processing[0]["swap_fee"])
		assert.Equal(t, "X:Y:Z", processing[0]["tokens"])
		assert.Equal(t, "2021-05-03T00:00:00Z", processing[0]["create_time"])

		registered := withMsg(records, "Pool already registered for pair")
		require.Len(t, registered, 1)
		assert.Equal(t, "X:Y", registered[0]["pair"])

		needed := withMsg(records, "Pool needs to register pair")
		require.Len(t, needed, 2)
		assert.Equal(t, "X:Z", needed[0]["pair"])
		assert.Equal(t, "Y:Z", needed[1]["pair"])

		submitted := withMsg(records, "Submitted registry mutation")
		require.Len(t, submitted, 3)
		assert.Equal(t, "register_pair", submitted[0]["kind"])
		assert.Equal(t, p.Address.Hex(), submitted[0]["pool"])
		assert.Equal(t, tokenX.Address.Hex(), submitted[0]["token_a"])
		assert.Equal(t, tokenZ.Address.Hex(), submitted[0]["token_b"])
		assert.Equal(t, float64(0), submitted[0]["nonce"])
		assert.Equal(t, "refresh_ranking", submitted[2]["kind"])
		assert.Equal(t, float64(2), submitted[2]["nonce"])

		sorting := withMsg(records, "Sorting registry for all tokens")
		require.Len(t, sorting, 1)
		assert.Equal(t, float64(3), sorting[0]["tokens"])
		assert.Equal(t, float64(registry.DefaultRankingLimit), sorting[0]["limit"])
	})

	t.Run("SharedTokenCountedOnce", func(t *testing.T) {
		h := newHarness(t, true, 0,
			pool("0xa1", tokenX, tokenY),
			pool("0xa2", tokenZ, tokenX),
		)

		summary, err := h.orch.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3, summary.UniverseSize)
		ranking := h.sequencer.mutations[len(h.sequencer.mutations)-1]
		require.Equal(t, registry.RefreshRanking, ranking.Kind)
		assert.Equal(t, []common.Address{tokenX.Address, tokenY.Address, tokenZ.Address}, ranking.Tokens, "first-seen order, X once")
		assert.Equal(t, []uint64{0, 1, 2}, nonces(h.submitter.sent))
	})

	t.Run("ObserveMode_NeverSequencesOrSubmits", func(t *testing.T) {
		h := newHarness(t, false, 0,
			pool("0xa1", tokenX, tokenY, tokenZ),
			pool("0xa2", tokenX, tokenW),
		)

		summary, err := h.orch.Run(ctx)
		require.NoError(t, err)

		assert.Empty(t, h.sequencer.mutations, "sequencer must not be invoked without a credential")
		assert.Equal(t, 0, h.submitter.calls)
		assert.Equal(t, 5, summary.MutationsPlanned, "4 pairs plus the ranking refresh are still planned and logged")
		assert.Equal(t, 0, summary.MutationsDispatched)
		assert.False(t, summary.RankingDispatched)

		dryRun := h.orch.metrics.mutationsTotal.WithLabelValues(registry.RegisterPair.String(), resultDryRun)
		assert.Equal(t, 4.0, testutil.ToFloat64(dryRun))
	})

	t.Run("FetchFailureIsFatal", func(t *testing.T) {
		h := newHarness(t, true, 0)
		h.fetcher.err = errors.New("subgraph unavailable")

		_, err := h.orch.Run(ctx)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.ErrorContains(t, err, "subgraph unavailable")
		assert.Empty(t, h.sequencer.mutations)
		assert.Equal(t, 0, h.submitter.calls)
	})

	t.Run("SubmissionFailureDoesNotReuseNonce", func(t *testing.T) {
		h := newHarness(t, true, 5, pool("0xa1", tokenX, tokenY, tokenZ))
		h.submitter.failAt[1] = true

		summary, err := h.orch.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, 4, h.submitter.calls, "3 pairs and the ranking are all attempted")
		assert.Equal(t, []uint64{5, 7, 8}, nonces(h.submitter.sent), "the failed nonce 6 stays consumed")
		assert.Equal(t, 1, summary.MutationsFailed)
		assert.Equal(t, 3, summary.MutationsDispatched)
		assert.True(t, summary.RankingDispatched)
	})

	t.Run("RankingRefreshRunsWithNothingToRegister", func(t *testing.T) {
		p := pool("0xa1", tokenX, tokenY)
		h := newHarness(t, true, 0, p)
		h.registry.list(p.Address, tokenX, tokenY)

		summary, err := h.orch.Run(ctx)
		require.NoError(t, err)

		require.Len(t, h.sequencer.mutations, 1)
		assert.Equal(t, registry.RefreshRanking, h.sequencer.mutations[0].Kind)
		assert.True(t, summary.RankingDispatched)
	})

	t.Run("EmptySnapshot", func(t *testing.T) {
		h := newHarness(t, true, 0)

		summary, err := h.orch.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Pools)
		require.Len(t, h.sequencer.mutations, 1)
		assert.Empty(t, h.sequencer.mutations[0].Tokens)
	})

	t.Run("RankingEncodeFailure", func(t *testing.T) {
		h := newHarness(t, true, 0, pool("0xa1", tokenX, tokenY))
		h.orch.refreshRanking = func([]common.Address, uint64) (registry.Mutation, error) {
			return registry.Mutation{}, errors.New("pack failed")
		}

		summary, err := h.orch.Run(ctx)
		require.NoError(t, err)
		assert.False(t, summary.RankingDispatched)
		assert.Equal(t, 1, summary.MutationsFailed)
		assert.Equal(t, 1, summary.MutationsDispatched)
	})
}

func TestSubmissionError(t *testing.T) {
	inner := errors.New("nonce too low")
	err := &SubmissionError{Op: "submit", Kind: registry.RegisterPair, Nonce: 7, Err: inner}

	assert.Equal(t, "submit register_pair (nonce 7): nonce too low", err.Error())
	assert.ErrorIs(t, err, inner)

	sign := &SubmissionError{Op: "sign", Kind: registry.RefreshRanking, Err: inner}
	assert.Equal(t, "sign refresh_ranking: nonce too low", sign.Error())
}
