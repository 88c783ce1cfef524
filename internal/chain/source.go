package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/shadowtick/liquidator/internal/ingest"
	"github.com/shadowtick/liquidator/pkg/types"
)

// topicHashes precomputes topic0 for every pool event named in
// poolEventSignatureStrings, keyed back by EventKind for SubscribeLogs'
// decode switch.
var topicHashes = func() map[common.Hash]ingest.EventKind {
	out := make(map[common.Hash]ingest.EventKind, len(poolEventSignatureStrings))
	for name, sig := range poolEventSignatureStrings {
		out[crypto.Keccak256Hash([]byte(sig))] = ingest.EventKind(name)
	}
	return out
}()

// GetBlockNumber implements ingest.Source.
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	return c.public.BlockNumber(ctx)
}

// SubscribeHeads implements ingest.Source over the streaming endpoint.
func (c *Client) SubscribeHeads(ctx context.Context) (<-chan uint64, error) {
	headers := make(chan *gethtypes.Header, 16)
	sub, err := c.stream.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("chain: subscribe new head: %w", err)
	}
	out := make(chan uint64, 16)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					return
				}
			case h := <-headers:
				out <- h.Number.Uint64()
			}
		}
	}()
	return out, nil
}

// SubscribeLogs implements ingest.Source over the streaming endpoint,
// filtering on the pool address and every topic named in
// poolEventSignatureStrings.
func (c *Client) SubscribeLogs(ctx context.Context) (<-chan ingest.PoolEvent, error) {
	topics := make([]common.Hash, 0, len(topicHashes))
	for h := range topicHashes {
		topics = append(topics, h)
	}
	q := ethereum.FilterQuery{
		Addresses: []common.Address{c.poolAddr},
		Topics:    [][]common.Hash{topics},
	}
	logs := make(chan gethtypes.Log, 64)
	sub, err := c.stream.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return nil, fmt.Errorf("chain: subscribe filter logs: %w", err)
	}
	out := make(chan ingest.PoolEvent, 64)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					return
				}
			case lg := <-logs:
				if ev, ok := c.decodeLog(lg); ok {
					out <- ev
				}
			}
		}
	}()
	return out, nil
}

// BackfillLogs implements ingest.Source by paging eth_getLogs in chunkSize
// block windows, per spec.md §4.4 "Backfill".
func (c *Client) BackfillLogs(ctx context.Context, fromBlock, toBlock uint64, chunkSize int) ([]ingest.PoolEvent, error) {
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	topics := make([]common.Hash, 0, len(topicHashes))
	for h := range topicHashes {
		topics = append(topics, h)
	}

	var events []ingest.PoolEvent
	for start := fromBlock; start <= toBlock; start += uint64(chunkSize) {
		end := start + uint64(chunkSize) - 1
		if end > toBlock {
			end = toBlock
		}
		q := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{c.poolAddr},
			Topics:    [][]common.Hash{topics},
		}
		logs, err := c.public.FilterLogs(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("chain: backfill getLogs [%d,%d]: %w", start, end, err)
		}
		for _, lg := range logs {
			if ev, ok := c.decodeLog(lg); ok {
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

func (c *Client) decodeLog(lg gethtypes.Log) (ingest.PoolEvent, bool) {
	if len(lg.Topics) == 0 {
		return ingest.PoolEvent{}, false
	}
	kind, ok := topicHashes[lg.Topics[0]]
	if !ok {
		return ingest.PoolEvent{}, false
	}

	ev := ingest.PoolEvent{
		Kind: kind,
		Loc: ingest.LogLocator{
			Block:    lg.BlockNumber,
			LogIndex: lg.Index,
			TxHash:   lg.TxHash.Hex(),
		},
	}

	m, err := c.pool.ABI().EventByID(lg.Topics[0])
	if err != nil {
		return ingest.PoolEvent{}, false
	}
	args := make(map[string]any)
	if err := m.Inputs.UnpackIntoMap(args, lg.Data); err != nil {
		return ingest.PoolEvent{}, false
	}
	// Indexed args are carried in Topics[1:] in declaration order; decode them
	// back into the same map so Users/Reserve extraction below sees every
	// field regardless of indexed/non-indexed placement.
	indexed := 0
	for _, in := range m.Inputs {
		if !in.Indexed {
			continue
		}
		indexed++
		if indexed >= len(lg.Topics) {
			break
		}
		args[in.Name] = topicToValue(in.Type.String(), lg.Topics[indexed])
	}

	switch kind {
	case ingest.EventReserveDataUpdated:
		ev.Reserve = addrFromArg(args["reserve"])
	case ingest.EventLiquidationCall:
		ev.Reserve = addrFromArg(args["collateralAsset"])
		ev.Users = []types.Address{addrFromArg(args["user"])}
	default:
		if u, ok := args["user"]; ok {
			ev.Users = append(ev.Users, addrFromArg(u))
		}
		if u, ok := args["onBehalfOf"]; ok {
			ev.Users = append(ev.Users, addrFromArg(u))
		}
		if u, ok := args["to"]; ok {
			ev.Users = append(ev.Users, addrFromArg(u))
		}
		if u, ok := args["repayer"]; ok {
			ev.Users = append(ev.Users, addrFromArg(u))
		}
		ev.Reserve = addrFromArg(args["reserve"])
	}
	return ev, true
}

func addrFromArg(v any) types.Address {
	if a, ok := v.(common.Address); ok {
		return types.FromCommon(a)
	}
	return ""
}

// topicToValue decodes a single indexed topic word for the primitive types
// that appear as indexed pool-event params (address, uint16, uint8).
func topicToValue(solType string, topic common.Hash) any {
	switch solType {
	case "address":
		return common.BytesToAddress(topic.Bytes())
	default:
		return new(big.Int).SetBytes(topic.Bytes())
	}
}
