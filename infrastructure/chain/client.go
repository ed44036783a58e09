package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fabhost/agent/infrastructure/httputil"
)

// Client wraps an ethclient.Client bound to a single RPC URL. It is cheap
// to construct; chainops.Operator dials a fresh one per call against the
// chain.RPCPool's best endpoint rather than keeping a live connection.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	chainID    *big.Int

	eth *ethclient.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL     string
	ChainID    *big.Int
	Timeout    time.Duration
	HTTPClient *http.Client
	// ServiceID identifies this agent to RPC providers that key rate limits
	// or logging off a caller identity header.
	ServiceID string
}

// rpcClientDefaults matches the timeout and base-URL handling every RPC
// endpoint dial needs: a 30s default timeout and https required for the
// normalized URL whenever strict identity mode (the production environment)
// is on (RPC credentials travel in the URL on some providers).
func rpcClientDefaults() httputil.ClientDefaults {
	d := httputil.DefaultClientDefaults()
	d.Timeout = 30 * time.Second
	d.RequireHTTPS = true
	return d
}

// NewClient dials an EVM JSON-RPC endpoint.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	httpClient, normalizedURL, err := httputil.NewClientWithBaseURL(httputil.ClientConfig{
		BaseURL:    cfg.RPCURL,
		ServiceID:  httputil.ResolveServiceID(cfg.ServiceID),
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	}, rpcClientDefaults())
	if err != nil {
		return nil, fmt.Errorf("invalid RPC URL: %w", err)
	}
	if httpClient.Transport == nil {
		httpClient.Transport = httputil.DefaultTransportWithMinTLS12()
	}

	rpcClient, err := ethRPCDial(ctx, normalizedURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return &Client{
		rpcURL:     normalizedURL,
		httpClient: httpClient,
		chainID:    cfg.ChainID,
		eth:        ethclient.NewClient(rpcClient),
	}, nil
}

// URL returns the endpoint this client is bound to.
func (c *Client) URL() string {
	if c == nil {
		return ""
	}
	return c.rpcURL
}

// ChainID returns the configured chain ID, querying the node if unset.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

// BlockNumber returns the latest block height, used as the RPC pool's
// health probe.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// SuggestGasTipCap asks the node for an EIP-1559 priority fee suggestion.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasTipCap(ctx)
}

// SuggestGasPrice asks the node for a legacy gas price suggestion, used on
// chains that predate EIP-1559 (no BaseFee on the latest header).
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// HeaderByNumber fetches a block header; passing nil retrieves the head.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, number)
}

// PendingNonceAt returns the next nonce to use for an account, accounting
// for transactions still in the mempool.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

// SendTransaction submits a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

// TransactionReceipt fetches a mined transaction's receipt. Returns
// ethereum.NotFound-wrapping error while the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

// CallContract performs an eth_call against the node.
func (c *Client) CallContract(ctx context.Context, msg CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg.toEthereum(), blockNumber)
}

// BalanceAt returns an account's native-coin balance, in wei, at the given
// block (nil for the latest).
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, account, blockNumber)
}

// Raw exposes the underlying ethclient for call sites that need operations
// this thin wrapper does not cover.
func (c *Client) Raw() *ethclient.Client {
	return c.eth
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}
