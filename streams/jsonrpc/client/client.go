package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// DefaultMaxDialAttempts is how often NewClient dials before giving up.
	DefaultMaxDialAttempts = 20
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DialFunc opens the underlying RPC connection.
type DialFunc func(ctx context.Context, url string) (*rpc.Client, error)

// Config holds the configuration for the ledger client.
type Config struct {
	URL             string
	Logger          Logger
	MaxDialAttempts int
	// Dial defaults to rpc.DialContext.
	Dial DialFunc
	// ReconnectDelay is the first backoff step; it doubles up to 30s.
	ReconnectDelay time.Duration
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.MaxDialAttempts < 0 {
		return errors.New("config: MaxDialAttempts must not be negative")
	}
	return nil
}

// Client is a thin ledger client: it reads account state, performs eth_call
// and hands signed transactions to the node. It never waits for receipts.
type Client struct {
	rpc    *rpc.Client
	eth    *ethclient.Client
	logger Logger
}

// NewClient dials the node, retrying with exponential backoff until the attempt
// budget is spent or ctx is done.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dial := cfg.Dial
	if dial == nil {
		dial = rpc.DialContext
	}
	attempts := cfg.MaxDialAttempts
	if attempts == 0 {
		attempts = DefaultMaxDialAttempts
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = initialReconnectDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		cfg.Logger.Info("Attempting to connect to RPC server", "url", cfg.URL, "attempt", attempt)
		rpcClient, err := dial(ctx, cfg.URL)
		if err == nil {
			cfg.Logger.Info("Successfully connected to RPC server.")
			return &Client{
				rpc:    rpcClient,
				eth:    ethclient.NewClient(rpcClient),
				logger: cfg.Logger,
			}, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		cfg.Logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectDelay):
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", cfg.URL, attempts, lastErr)
}

// PendingNonceAt returns the account's transaction count including pending ones.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

// ChainID returns the chain id used for replay-protected signing.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// CallContract executes an eth_call; a nil blockNumber means latest.
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, call, blockNumber)
}

// Submit broadcasts a signed transaction and returns its hash as the submission
// handle. Acceptance by the node says nothing about inclusion.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction %s (nonce %d): %w", tx.Hash().Hex(), tx.Nonce(), err)
	}
	c.logger.Debug("Transaction handed to node", "hash", tx.Hash().Hex(), "nonce", tx.Nonce())
	return tx.Hash(), nil
}

// Close releases the connection.
func (c *Client) Close() {
	c.rpc.Close()
}
