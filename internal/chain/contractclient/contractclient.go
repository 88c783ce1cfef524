// Package contractclient is a generic ABI-bound contract client: pack a call
// by method name, execute it as an eth_call or a signed transaction, and
// decode the result. It generalizes the teacher's pkg/contractclient (one
// ContractClient per contract address, looked up from a
// map[string]ContractClient) into the single reusable building block every
// collaborator in internal/chain composes against a specific pool, oracle
// aggregator, or executor address.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TxKind mirrors the teacher's types.Standard/types.* transaction shape
// selector (EIP-1559 vs legacy).
type TxKind int

const (
	Standard TxKind = iota // EIP-1559
	Legacy
)

// DecodedTx is a human-readable view of a transaction's calldata.
type DecodedTx struct {
	MethodName string
	Args       map[string]any
}

// ContractClient binds one deployed contract's ABI to an ethclient, offering
// Call (read) and Send (write) by method name the way the teacher's
// ContractClient does.
type ContractClient struct {
	client *ethclient.Client
	addr   common.Address
	abi    abi.ABI
	chainID *big.Int
}

// NewContractClient binds abi to addr over client.
func NewContractClient(client *ethclient.Client, addr common.Address, contractAbi abi.ABI) *ContractClient {
	return &ContractClient{client: client, addr: addr, abi: contractAbi}
}

// WithChainID caches the chain ID for transaction signing, avoiding a
// round-trip on every Send.
func (c *ContractClient) WithChainID(id *big.Int) *ContractClient {
	c.chainID = id
	return c
}

// ContractAddress returns the bound contract address.
func (c *ContractClient) ContractAddress() common.Address {
	return c.addr
}

// ABI returns the bound ABI, so callers can rebind it to a different address
// (e.g. per-token ERC20 reads sharing one parsed ABI).
func (c *ContractClient) ABI() abi.ABI {
	return c.abi
}

// Call performs a read-only eth_call against method, decoding the result
// into its declared output types.
func (c *ContractClient) Call(ctx context.Context, blockNumber *big.Int, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contractclient: pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &c.addr, Data: data}
	out, err := c.client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("contractclient: call %s: %w", method, err)
	}
	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("contractclient: unpack %s: %w", method, err)
	}
	return vals, nil
}

// Pack encodes method+args into calldata without sending it, used by the
// calldata-template builder (C9) and by Send.
func (c *ContractClient) Pack(method string, args ...any) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contractclient: pack %s: %w", method, err)
	}
	return data, nil
}

// Send builds, signs and broadcasts a transaction invoking method on this
// contract, using the EIP-1559 shape unless kind is Legacy.
func (c *ContractClient) Send(ctx context.Context, kind TxKind, gasLimit *uint64, from *common.Address, pk *ecdsa.PrivateKey, nonce uint64, method string, args ...any) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: pack %s: %w", method, err)
	}

	gl := uint64(500_000)
	if gasLimit != nil {
		gl = *gasLimit
	}

	var tx *types.Transaction
	switch kind {
	case Legacy:
		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("contractclient: suggest gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{Nonce: nonce, To: &c.addr, Gas: gl, GasPrice: gasPrice, Data: data})
	default:
		tip, err := c.client.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("contractclient: suggest tip cap: %w", err)
		}
		head, err := c.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return common.Hash{}, fmt.Errorf("contractclient: header: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID: c.chainID, Nonce: nonce, To: &c.addr, Gas: gl,
			GasTipCap: tip, GasFeeCap: feeCap, Data: data,
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), pk)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: sign: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: send: %w", err)
	}
	return signed.Hash(), nil
}

// TransactionData fetches a transaction's calldata by hash.
func (c *ContractClient) TransactionData(ctx context.Context, hash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("contractclient: fetch tx %s: %w", hash, err)
	}
	return tx.Data(), nil
}

// DecodeTransaction decodes raw calldata against the bound ABI, identifying
// the method by its 4-byte selector.
func (c *ContractClient) DecodeTransaction(data []byte) (DecodedTx, error) {
	if len(data) < 4 {
		return DecodedTx{}, fmt.Errorf("contractclient: calldata too short to carry a selector")
	}
	m, err := c.abi.MethodById(data[:4])
	if err != nil {
		return DecodedTx{}, fmt.Errorf("contractclient: unknown selector: %w", err)
	}
	args := make(map[string]any)
	if err := m.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return DecodedTx{}, fmt.Errorf("contractclient: unpack args for %s: %w", m.Name, err)
	}
	return DecodedTx{MethodName: m.Name, Args: args}, nil
}

// PendingNonceAt is a thin passthrough used by keys.ChainNonceSource.
func (c *ContractClient) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return c.client.PendingNonceAt(ctx, addr)
}

// EthClient exposes the underlying ethclient for callers (txlistener,
// head/log subscriptions) that need raw chain access beyond one contract's
// ABI.
func (c *ContractClient) EthClient() *ethclient.Client {
	return c.client
}
