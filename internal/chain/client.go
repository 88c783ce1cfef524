// Package chain is the concrete on-chain collaborator layer: it implements
// every abstract interface the core components depend on (oracle.Feed,
// health.PoolReader, ingest.Source, keys.ChainNonceSource, submit.PrivateRelay,
// submit.Broadcaster, gasburst.ReceiptChecker, gasburst.Resubmitter,
// orchestrator.PlanBuilder, orchestrator.Signer) over go-ethereum's
// ethclient/abi/accounts packages, generalizing the teacher's single
// ContractClient-per-address pattern (blackhole.go's `ccm
// map[string]ContractClient`) to the liquidation domain's pool, oracle, and
// executor contracts.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/shadowtick/liquidator/internal/chain/contractclient"
	"github.com/shadowtick/liquidator/internal/oracle"
	"github.com/shadowtick/liquidator/internal/token"
	"github.com/shadowtick/liquidator/pkg/types"
)

// AggregatorInfo pairs a Chainlink-style aggregator contract with its
// decimals, cached once at construction like the teacher caches token
// decimals in validateBalances.
type AggregatorInfo struct {
	Client   *contractclient.ContractClient
	Decimals uint8
}

// Client bundles every on-chain collaborator the liquidation core needs: the
// pool contract, per-symbol price aggregators, and the liquidation executor,
// all sharing one or more underlying ethclient connections.
type Client struct {
	public  *ethclient.Client
	stream  *ethclient.Client // nil if no separate streaming endpoint
	private *ethclient.Client // nil if private relay disabled

	chainID *big.Int

	pool        *contractclient.ContractClient
	poolAddr    common.Address
	executor    *contractclient.ContractClient
	executorAddr common.Address
	token       *contractclient.ContractClient // shared ERC20 ABI, re-addressed per call

	aggregators map[string]AggregatorInfo

	signingKeys []signingKey

	pendingMu      sync.Mutex
	pendingByNonce map[pendingKey]pendingCall

	priceOracle   *oracle.Oracle
	tokenRegistry *token.Registry
	planCfg       PlanConfig

	reservesMu   sync.Mutex
	reservesList []common.Address

	log zerolog.Logger
}

// signingKey pairs a private key with its index, mirroring keys.Key without
// importing the keys package here (this package's Sign/ResignAndBroadcast
// need their own copy of the key material independent of keys.Manager's
// selection policy).
type signingKey struct {
	Index      int
	PrivateKey *ecdsa.PrivateKey
}

// RegisterSigningKeys gives the Client its own copy of the loaded signing
// keys, used only to re-sign RBF replacements by key index (keys.Manager
// owns selection policy; this is purely for ResignAndBroadcast's lookup).
func (c *Client) RegisterSigningKeys(keys []*ecdsa.PrivateKey) {
	c.signingKeys = make([]signingKey, len(keys))
	for i, k := range keys {
		c.signingKeys[i] = signingKey{Index: i, PrivateKey: k}
	}
}

// Config configures Client construction; URLs are read from
// internal/config.Config by the composition root (cmd/liquidator), never
// parsed here (env-var loading is the out-of-scope collaborator).
type Config struct {
	PublicRPCURL    string
	StreamRPCURL    string // optional, empty to reuse PublicRPCURL
	PrivateRPCURL   string // optional, empty disables the private relay
	PoolAddress     common.Address
	ExecutorAddress common.Address
	ChainID         int64
}

// Dial establishes every configured connection and binds the pool/executor
// ABIs. Aggregators are registered afterward via RegisterAggregator, since
// their addresses are a per-asset config list, not fixed at dial time.
func Dial(cfg Config, log zerolog.Logger) (*Client, error) {
	public, err := ethclient.Dial(cfg.PublicRPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial public rpc: %w", err)
	}

	stream := public
	if cfg.StreamRPCURL != "" && cfg.StreamRPCURL != cfg.PublicRPCURL {
		stream, err = ethclient.Dial(cfg.StreamRPCURL)
		if err != nil {
			return nil, fmt.Errorf("chain: dial stream rpc: %w", err)
		}
	}

	var private *ethclient.Client
	if cfg.PrivateRPCURL != "" {
		private, err = ethclient.Dial(cfg.PrivateRPCURL)
		if err != nil {
			return nil, fmt.Errorf("chain: dial private rpc: %w", err)
		}
	}

	poolAbi, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse pool abi: %w", err)
	}
	executorAbi := poolAbi // the executor proxies liquidationCall with the same signature

	chainID := big.NewInt(cfg.ChainID)

	c := &Client{
		public:       public,
		stream:       stream,
		private:      private,
		chainID:      chainID,
		pool:         contractclient.NewContractClient(public, cfg.PoolAddress, poolAbi).WithChainID(chainID),
		poolAddr:     cfg.PoolAddress,
		executor:     contractclient.NewContractClient(public, cfg.ExecutorAddress, executorAbi).WithChainID(chainID),
		executorAddr: cfg.ExecutorAddress,
		aggregators:  make(map[string]AggregatorInfo),
		pendingByNonce: make(map[pendingKey]pendingCall),
		log:          log,
	}

	erc20Abi, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}
	c.token = contractclient.NewContractClient(public, common.Address{}, erc20Abi).WithChainID(chainID)

	return c, nil
}

// RegisterAggregator binds a symbol to its Chainlink-style aggregator
// address, fetching and caching decimals once.
func (c *Client) RegisterAggregator(symbol string, addr common.Address) error {
	aggAbi, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return fmt.Errorf("chain: parse aggregator abi: %w", err)
	}
	cc := contractclient.NewContractClient(c.public, addr, aggAbi).WithChainID(c.chainID)
	out, err := cc.Call(context.Background(), nil, "decimals")
	if err != nil {
		return fmt.Errorf("chain: read decimals for %s aggregator: %w", symbol, err)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return fmt.Errorf("chain: unexpected decimals() return type for %s", symbol)
	}
	c.aggregators[symbol] = AggregatorInfo{Client: cc, Decimals: d}
	return nil
}

// PoolAddress returns the bound Aave pool address.
func (c *Client) PoolAddress() types.Address { return types.FromCommon(c.poolAddr) }

// ExecutorAddress returns the bound liquidation executor address.
func (c *Client) ExecutorAddress() types.Address { return types.FromCommon(c.executorAddr) }

// FetchTokenDecimals reads decimals() off an arbitrary ERC-20 token address,
// used once per reserve to populate internal/token's Registry at startup.
func (c *Client) FetchTokenDecimals(ctx context.Context, addr types.Address) (int, error) {
	cc := contractclient.NewContractClient(c.public, addr.Common(), c.token.ABI()).WithChainID(c.chainID)
	out, err := cc.Call(ctx, nil, "decimals")
	if err != nil {
		return 0, fmt.Errorf("chain: read decimals for %s: %w", addr, err)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: unexpected decimals() return type for %s", addr)
	}
	return int(d), nil
}
