// Package ingest implements C7 EventIngestor: streaming subscription to pool
// events and head blocks, initial backfill, reorg-tolerant dedup, and
// ReserveDataUpdated coalescing.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shadowtick/liquidator/pkg/types"
)

// EventKind enumerates the pool event types named in spec.md §4.4.
type EventKind string

const (
	EventBorrow            EventKind = "Borrow"
	EventRepay             EventKind = "Repay"
	EventSupply            EventKind = "Supply"
	EventWithdraw           EventKind = "Withdraw"
	EventLiquidationCall    EventKind = "LiquidationCall"
	EventReserveDataUpdated EventKind = "ReserveDataUpdated"
)

// LogLocator identifies a log's position for reorg-safe dedup.
type LogLocator struct {
	Block    uint64
	LogIndex uint
	TxHash   string
}

// PoolEvent is a decoded pool log, generalizing every variant named in
// spec.md §4.4 into one struct; Users/Reserve carry whichever addresses the
// specific event kind involves.
type PoolEvent struct {
	Kind    EventKind
	Loc     LogLocator
	Users   []types.Address
	Reserve types.Address
}

// SignalKind tags what a Signal carries.
type SignalKind int

const (
	SignalHead SignalKind = iota
	SignalEvent
	SignalCoalescedReserveBatch
)

// Signal is the ingestor's single output type, a tagged union over head,
// single-event, and coalesced-batch variants.
type Signal struct {
	Kind          SignalKind
	Block         uint64
	Event         PoolEvent
	ReserveBatch  []PoolEvent
}

// Source is the streaming/HTTP collaborator the ingestor pulls from.
// Implementations live in the chain package.
type Source interface {
	SubscribeHeads(ctx context.Context) (<-chan uint64, error)
	SubscribeLogs(ctx context.Context) (<-chan PoolEvent, error)
	BackfillLogs(ctx context.Context, fromBlock, toBlock uint64, chunkSize int) ([]PoolEvent, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// Config controls ingestor behavior (spec.md §4.4 tunables).
type Config struct {
	CoalesceWindow   time.Duration
	MaxBatchSize     int
	BackfillEnabled  bool
	BackfillBlocks   uint64
	BackfillChunk    int
	BackfillMaxLogs  int
	DedupCapacity    int
}

// Ingestor is C7.
type Ingestor struct {
	source Source
	cfg    Config
	log    zerolog.Logger

	out chan Signal

	mu         sync.Mutex
	lastHead   uint64
	dedup      map[LogLocator]struct{}
	dedupOrder []LogLocator

	lastMessageAt time.Time
	lastRoundtripOK bool

	coalesceMu    sync.Mutex
	coalesceBatch []PoolEvent
	coalesceTimer *time.Timer
}

// New constructs an Ingestor. outBuffer sizes the output channel.
func New(source Source, cfg Config, log zerolog.Logger, outBuffer int) *Ingestor {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 10_000
	}
	return &Ingestor{
		source: source,
		cfg:    cfg,
		log:    log,
		out:    make(chan Signal, outBuffer),
		dedup:  make(map[LogLocator]struct{}),
	}
}

// Signals returns the ingestor's output channel.
func (ing *Ingestor) Signals() <-chan Signal {
	return ing.out
}

// Start runs the backfill once (if enabled; a failure is logged, not
// retried), then launches the head and event followers, each of which
// resubscribes with exponential backoff on failure.
func (ing *Ingestor) Start(ctx context.Context) error {
	if ing.cfg.BackfillEnabled {
		if err := ing.backfill(ctx); err != nil {
			ing.log.Warn().Err(err).Msg("ingest: backfill failed, continuing with live streams")
		}
	}

	go ing.runHeadFollower(ctx)
	go ing.runEventFollower(ctx)
	return nil
}

func (ing *Ingestor) backfill(ctx context.Context) error {
	head, err := ing.source.GetBlockNumber(ctx)
	if err != nil {
		return err
	}
	from := uint64(0)
	if head > ing.cfg.BackfillBlocks {
		from = head - ing.cfg.BackfillBlocks
	}

	chunk := ing.cfg.BackfillChunk
	if chunk <= 0 {
		chunk = 2000
	}

	seen := make(map[types.Address]struct{})
	total := 0
	for start := from; start <= head; start += uint64(chunk) {
		end := start + uint64(chunk) - 1
		if end > head {
			end = head
		}
		events, err := ing.source.BackfillLogs(ctx, start, end, chunk)
		if err != nil {
			return err
		}
		for _, e := range events {
			for _, u := range e.Users {
				seen[u] = struct{}{}
			}
			total++
			if total >= ing.cfg.BackfillMaxLogs && ing.cfg.BackfillMaxLogs > 0 {
				ing.log.Info().Int("users", len(seen)).Msg("ingest: backfill cap reached")
				return nil
			}
		}
	}
	ing.log.Info().Int("users", len(seen)).Msg("ingest: backfill complete")
	return nil
}

func (ing *Ingestor) runHeadFollower(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	for {
		if ctx.Err() != nil {
			return
		}
		heads, err := ing.source.SubscribeHeads(ctx)
		if err != nil {
			wait := b.NextBackOff()
			ing.log.Warn().Err(err).Dur("backoff", wait).Msg("ingest: head subscribe failed")
			time.Sleep(wait)
			continue
		}
		b.Reset()
		for block := range heads {
			ing.markMessage()
			if ing.debounceHead(block) {
				continue
			}
			ing.emit(Signal{Kind: SignalHead, Block: block})
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (ing *Ingestor) runEventFollower(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	for {
		if ctx.Err() != nil {
			return
		}
		logs, err := ing.source.SubscribeLogs(ctx)
		if err != nil {
			wait := b.NextBackOff()
			ing.log.Warn().Err(err).Dur("backoff", wait).Msg("ingest: log subscribe failed")
			time.Sleep(wait)
			continue
		}
		b.Reset()
		for ev := range logs {
			ing.markMessage()
			if ing.isDuplicate(ev.Loc) {
				continue
			}
			if ev.Kind == EventReserveDataUpdated {
				ing.coalesce(ev)
				continue
			}
			ing.emit(Signal{Kind: SignalEvent, Event: ev, Block: ev.Loc.Block})
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (ing *Ingestor) debounceHead(block uint64) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if block <= ing.lastHead {
		return true
	}
	ing.lastHead = block
	return false
}

// isDuplicate implements the bounded (block,logIndex) dedup set required by
// spec.md §4.4's reorg-tolerance semantics.
func (ing *Ingestor) isDuplicate(loc LogLocator) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	key := LogLocator{Block: loc.Block, LogIndex: loc.LogIndex}
	if _, ok := ing.dedup[key]; ok {
		return true
	}
	ing.dedup[key] = struct{}{}
	ing.dedupOrder = append(ing.dedupOrder, key)
	if len(ing.dedupOrder) > ing.cfg.DedupCapacity {
		oldest := ing.dedupOrder[0]
		ing.dedupOrder = ing.dedupOrder[1:]
		delete(ing.dedup, oldest)
	}
	return false
}

// coalesce batches ReserveDataUpdated events within CoalesceWindow, up to
// MaxBatchSize, before emitting a single SignalCoalescedReserveBatch.
func (ing *Ingestor) coalesce(ev PoolEvent) {
	ing.coalesceMu.Lock()
	defer ing.coalesceMu.Unlock()

	ing.coalesceBatch = append(ing.coalesceBatch, ev)
	if len(ing.coalesceBatch) >= ing.cfg.MaxBatchSize {
		ing.flushCoalescedLocked()
		return
	}
	if ing.coalesceTimer == nil {
		ing.coalesceTimer = time.AfterFunc(ing.cfg.CoalesceWindow, func() {
			ing.coalesceMu.Lock()
			ing.flushCoalescedLocked()
			ing.coalesceMu.Unlock()
		})
	}
}

// flushCoalescedLocked emits the pending batch. Caller must hold
// coalesceMu.
func (ing *Ingestor) flushCoalescedLocked() {
	if len(ing.coalesceBatch) == 0 {
		return
	}
	batch := ing.coalesceBatch
	ing.coalesceBatch = nil
	if ing.coalesceTimer != nil {
		ing.coalesceTimer.Stop()
		ing.coalesceTimer = nil
	}
	ing.emit(Signal{Kind: SignalCoalescedReserveBatch, ReserveBatch: batch})
}

func (ing *Ingestor) emit(s Signal) {
	select {
	case ing.out <- s:
	default:
		ing.log.Warn().Msg("ingest: output channel full, dropping signal")
	}
}

func (ing *Ingestor) markMessage() {
	ing.mu.Lock()
	ing.lastMessageAt = time.Now()
	ing.mu.Unlock()
}

// Healthy reports whether a message has been seen recently, per spec.md
// §4.4: "Health is tracked by time since last message."
func (ing *Ingestor) Healthy(maxSilence time.Duration) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.lastMessageAt.IsZero() {
		return false
	}
	return time.Since(ing.lastMessageAt) <= maxSilence
}

// CheckRoundtrip performs a getBlockNumber roundtrip and records the result
// for Healthy's companion provider-health signal.
func (ing *Ingestor) CheckRoundtrip(ctx context.Context) bool {
	_, err := ing.source.GetBlockNumber(ctx)
	ing.mu.Lock()
	ing.lastRoundtripOK = err == nil
	ing.mu.Unlock()
	return err == nil
}
