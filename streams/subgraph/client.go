// Package subgraph fetches the pool snapshot from the pool index (a GraphQL subgraph).
package subgraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"github.com/Iwinswap/iwinswap-registry-sync/protocols/poolregistry"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 1000

	maxErrorBody = 512
)

const poolsQuery = `{
  pools(
    first: %d
    orderBy: createTime
    orderDirection: desc
    where: { active: true, liquidity_gt: 0, finalized: true }
  ) {
    id
    active
    liquidity
    tokensCount
    createTime
    swapFee
    controller
    publicSwap
    finalized
    tokens {
      id
      address
      name
      symbol
      balance
      denormWeight
    }
  }
}`

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client queries active, finalized pools with positive liquidity.
type Client struct {
	endpoint string
	client   *http.Client
	pageSize int
	logger   Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithPageSize sets the number of pools requested.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		c.pageSize = n
	}
}

// NewClient creates a subgraph client for endpoint.
func NewClient(endpoint string, logger Logger, opts ...ClientOption) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("config: endpoint is required")
	}
	if logger == nil {
		return nil, errors.New("config: Logger is required")
	}

	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		pageSize: DefaultPageSize,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pageSize <= 0 {
		return nil, errors.New("config: page size must be greater than 0")
	}
	return c, nil
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type poolsResponse struct {
	Data struct {
		Pools []wirePool `json:"pools"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// BigInt and BigDecimal fields arrive as JSON strings, Int fields as numbers;
// decimal.Decimal accepts both.
type wirePool struct {
	ID          string          `json:"id"`
	Active      bool            `json:"active"`
	Liquidity   decimal.Decimal `json:"liquidity"`
	TokensCount decimal.Decimal `json:"tokensCount"`
	CreateTime  decimal.Decimal `json:"createTime"`
	SwapFee     decimal.Decimal `json:"swapFee"`
	Controller  string          `json:"controller"`
	PublicSwap  bool            `json:"publicSwap"`
	Finalized   bool            `json:"finalized"`
	Tokens      []wireToken     `json:"tokens"`
}

type wireToken struct {
	ID           string          `json:"id"`
	Address      string          `json:"address"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	Balance      decimal.Decimal `json:"balance"`
	DenormWeight decimal.Decimal `json:"denormWeight"`
}

// Fetch returns the current pool snapshot, newest pools first.
// Any transport, status, GraphQL or decoding problem is returned as an error;
// a partial snapshot is never returned.
func (c *Client) Fetch(ctx context.Context) ([]poolregistry.PoolView, error) {
	body, err := sonnet.Marshal(graphQLRequest{Query: fmt.Sprintf(poolsQuery, c.pageSize)})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := respBody
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("query pools: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded poolsResponse
	if err := sonnet.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		msgs := make([]string, len(decoded.Errors))
		for i, e := range decoded.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("query pools: graphql errors: %s", strings.Join(msgs, "; "))
	}

	pools := make([]poolregistry.PoolView, 0, len(decoded.Data.Pools))
	for _, wp := range decoded.Data.Pools {
		pool, err := wp.toView()
		if err != nil {
			return nil, err
		}
		if !pool.Active || !pool.Finalized || !pool.Liquidity.IsPositive() {
			c.logger.Warn("Dropping pool outside the query filter", "pool", pool.Address.Hex())
			continue
		}
		pools = append(pools, pool)
	}

	snapshot := poolregistry.NewIndexablePoolSnapshot(pools)
	if dropped := len(pools) - snapshot.Len(); dropped > 0 {
		c.logger.Warn("Dropped duplicate pools from snapshot", "dropped", dropped)
	}
	c.logger.Info("Fetched pool snapshot", "pools", snapshot.Len())
	return snapshot.All(), nil
}

func (wp wirePool) toView() (poolregistry.PoolView, error) {
	if !common.IsHexAddress(wp.ID) {
		return poolregistry.PoolView{}, fmt.Errorf("malformed pool id %q", wp.ID)
	}

	view := poolregistry.PoolView{
		Address:     common.HexToAddress(wp.ID),
		Active:      wp.Active,
		Liquidity:   wp.Liquidity,
		TokensCount: int(wp.TokensCount.IntPart()),
		CreateTime:  time.Unix(wp.CreateTime.IntPart(), 0).UTC(),
		SwapFee:     wp.SwapFee,
		PublicSwap:  wp.PublicSwap,
		Finalized:   wp.Finalized,
		Tokens:      make([]poolregistry.TokenView, 0, len(wp.Tokens)),
	}
	if common.IsHexAddress(wp.Controller) {
		view.Controller = common.HexToAddress(wp.Controller)
	}

	for _, wt := range wp.Tokens {
		if !common.IsHexAddress(wt.Address) {
			return poolregistry.PoolView{}, fmt.Errorf("pool %s: malformed token address %q", wp.ID, wt.Address)
		}
		view.Tokens = append(view.Tokens, poolregistry.TokenView{
			Address: common.HexToAddress(wt.Address),
			Symbol:  wt.Symbol,
			Name:    wt.Name,
			Balance: wt.Balance,
			Weight:  wt.DenormWeight,
		})
	}
	return view, nil
}
