package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Iwinswap/iwinswap-registry-sync/cmd/registry-sync/config"
	"github.com/Iwinswap/iwinswap-registry-sync/differ"
	ethpkg "github.com/Iwinswap/iwinswap-registry-sync/pkg/chains/ethereum"
	"github.com/Iwinswap/iwinswap-registry-sync/protocols/registry"
	"github.com/Iwinswap/iwinswap-registry-sync/streams/jsonrpc/client"
	"github.com/Iwinswap/iwinswap-registry-sync/streams/subgraph"
	"github.com/Iwinswap/iwinswap-registry-sync/syncer"
)

const metricsJob = "registry_sync"

func main() {
	// --- 1. CONFIG ---
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- 2. SETUP LOGGING ---
	rootLogger, closeLog := newLogger(cfg.Log)
	defer closeLog()

	closeApp := func() {
		closeLog()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prometheusRegistry := prometheus.NewRegistry()

	// --- 3. INITIALIZE LEDGER CLIENT ---
	ledger, err := client.NewClient(ctx, client.Config{
		URL:    cfg.RPCURL,
		Logger: rootLogger.With("component", "jsonrpc-client"),
	})
	if err != nil {
		rootLogger.Error("Failed to connect to ledger", "rpc_url", cfg.RPCURL, "error", err)
		closeApp()
	}
	defer ledger.Close()

	// --- 4. REGISTRY, DIFFER, SNAPSHOT SOURCE ---
	reg, err := registry.New(registry.Config{
		Address:         cfg.Registry(),
		Caller:          ledger,
		PairGasLimit:    cfg.PairGasLimit,
		RankingGasLimit: cfg.RankingGasLimit,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize registry", "error", err)
		closeApp()
	}

	pairDiffer, err := differ.NewPairDiffer(&differ.PairDifferConfig{
		BestPools:    reg.BestPools,
		RegisterPair: reg.RegisterPair,
		Logger:       rootLogger.With("component", "pair-differ"),
		Registry:     prometheusRegistry,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize pair differ", "error", err)
		closeApp()
	}

	var graphOpts []subgraph.ClientOption
	if cfg.GraphPageSize > 0 {
		graphOpts = append(graphOpts, subgraph.WithPageSize(cfg.GraphPageSize))
	}
	fetcher, err := subgraph.NewClient(cfg.GraphURL, rootLogger.With("component", "subgraph"), graphOpts...)
	if err != nil {
		rootLogger.Error("Failed to initialize subgraph client", "error", err)
		closeApp()
	}

	// --- 5. MODE ---
	mode, seq, err := resolveMode(ctx, cfg, ledger, rootLogger)
	if err != nil {
		rootLogger.Error("Failed to initialize transaction sequencer", "error", err)
		closeApp()
	}

	if err := checkChain(ctx, cfg, ledger, seq, rootLogger); err != nil {
		rootLogger.Error("Ledger chain does not match configuration", "chain", cfg.Chain, "registry", cfg.RegistryAddress, "error", err)
		closeApp()
	}

	rankingLimit := cfg.RankingLimit
	if rankingLimit == 0 {
		rankingLimit = registry.DefaultRankingLimit
	}

	orchestrator, err := syncer.New(&syncer.Config{
		Fetcher:        fetcher,
		Differ:         pairDiffer,
		RefreshRanking: reg.RefreshRanking,
		Mode:           mode,
		RankingLimit:   rankingLimit,
		Logger:         rootLogger.With("component", "syncer"),
		Registry:       prometheusRegistry,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize syncer", "error", err)
		closeApp()
	}

	// --- 6. RUN ---
	rootLogger.Info("Starting registry sync",
		"chain", cfg.Chain,
		"registry", reg.Address().Hex(),
		"graph_url", cfg.GraphURL,
		"live", cfg.Live(),
	)
	_, runErr := orchestrator.Run(ctx)
	pushMetrics(cfg.PushgatewayURL, prometheusRegistry, rootLogger)

	if seq != nil {
		rootLogger.Info("Sender nonce range used",
			"sender", seq.From().Hex(),
			"issued", seq.Issued(),
			"next_nonce", seq.NextNonce(),
		)
	}

	var fetchErr *syncer.FetchError
	if errors.As(runErr, &fetchErr) {
		rootLogger.Error("Registry sync aborted", "error", runErr)
		closeApp()
	}
}

// resolveMode selects Live when a private key is configured and Observe otherwise.
// The sequencer is nil in observe mode.
func resolveMode(ctx context.Context, cfg *config.SyncConfig, ledger *client.Client, logger *slog.Logger) (syncer.Mode, *ethpkg.Sequencer, error) {
	if !cfg.Live() {
		logger.Warn("No private key configured, running in observe mode")
		return syncer.Observe{}, nil, nil
	}

	cred, err := ethpkg.ParseCredential(cfg.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	gasPrice, err := cfg.GasPriceWei()
	if err != nil {
		return nil, nil, err
	}
	seq, err := ethpkg.NewSequencer(ctx, &ethpkg.SequencerConfig{
		Credential: cred,
		State:      ledger,
		GasPrice:   gasPrice,
		Logger:     logger.With("component", "sequencer"),
	})
	if err != nil {
		return nil, nil, err
	}
	return syncer.Live{Sequencer: seq, Submitter: ledger}, seq, nil
}

// checkChain verifies the ledger's chain id against the configured chain. The
// sequencer already read it in live mode; observe mode asks the ledger.
func checkChain(ctx context.Context, cfg *config.SyncConfig, ledger *client.Client, seq *ethpkg.Sequencer, logger *slog.Logger) error {
	var chainID *big.Int
	if seq != nil {
		chainID = seq.ChainID()
	} else {
		id, err := ledger.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("read chain id: %w", err)
		}
		chainID = id
	}

	mismatch, err := cfg.CheckChainID(chainID.Uint64())
	if err != nil {
		return err
	}
	if mismatch {
		logger.Warn("Ledger chain id differs from configured chain, using explicit registry address",
			"chain", cfg.Chain,
			"chain_id", chainID,
			"registry", cfg.RegistryAddress,
		)
	}
	return nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closeFn = func() { _ = rotating.Close() }
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closeFn
}

func pushMetrics(url string, gatherer prometheus.Gatherer, logger *slog.Logger) {
	if url == "" {
		return
	}
	if err := push.New(url, metricsJob).Gatherer(gatherer).Push(); err != nil {
		logger.Warn("Failed to push metrics", "pushgateway_url", url, "error", err)
	}
}

func loadConfig() (*config.SyncConfig, error) {
	configPath := flag.String("config", "", "Path to the configuration file. Environment variables override its values.")
	flag.Parse()
	if *configPath != "" {
		log.Printf("Loading configuration from: %s", *configPath)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", *configPath, err)
	}
	return cfg, nil
}
