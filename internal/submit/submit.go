// Package submit implements C12 PrivateTxSender + WriteRacer: private-relay
// submission with public fallback, and parallel multi-endpoint broadcast
// racing ordered by exponential-moving-average RTT.
package submit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Mode is PrivateTxSender's operating mode (spec.md §4.10).
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeProtect  Mode = "protect"
	ModeBundle   Mode = "bundle"
)

// FallbackMode controls what happens after a private submission fails.
type FallbackMode string

const (
	FallbackRace   FallbackMode = "race"
	FallbackDirect FallbackMode = "direct"
)

// SendMode tags where a Result's hash actually came from.
type SendMode string

const (
	SentPrivate SendMode = "private"
	SentPublic  SendMode = "public"
)

// Result is PrivateTxSender.Submit's outcome.
type Result struct {
	TxHash       string
	Mode         SendMode
	FallbackUsed bool
}

// PrivateRelay is the private-RPC collaborator.
type PrivateRelay interface {
	SubmitPrivate(ctx context.Context, signedTx []byte) (txHash string, err error)
}

// PrivateTxSender is C12's first half.
type PrivateTxSender struct {
	mode         Mode
	fallbackMode FallbackMode
	relay        PrivateRelay
	racer        *WriteRacer
	primary      Broadcaster
	privTimeout  time.Duration
}

// NewPrivateTxSender constructs a PrivateTxSender.
func NewPrivateTxSender(mode Mode, fallbackMode FallbackMode, relay PrivateRelay, racer *WriteRacer, primary Broadcaster, privTimeout time.Duration) *PrivateTxSender {
	return &PrivateTxSender{mode: mode, fallbackMode: fallbackMode, relay: relay, racer: racer, primary: primary, privTimeout: privTimeout}
}

// Submit implements the three steps of spec.md §4.10.
func (s *PrivateTxSender) Submit(ctx context.Context, signedTx []byte) (Result, error) {
	if s.mode == ModeDisabled {
		return s.fallthroughPublic(ctx, signedTx, false)
	}

	privCtx, cancel := context.WithTimeout(ctx, s.privTimeout)
	defer cancel()

	hash, err := s.relay.SubmitPrivate(privCtx, signedTx)
	if err == nil {
		return Result{TxHash: hash, Mode: SentPrivate}, nil
	}

	return s.fallthroughPublic(ctx, signedTx, true)
}

func (s *PrivateTxSender) fallthroughPublic(ctx context.Context, signedTx []byte, fallbackUsed bool) (Result, error) {
	if fallbackUsed && s.fallbackMode == FallbackRace && s.racer != nil {
		hash, err := s.racer.Broadcast(ctx, signedTx)
		if err != nil {
			return Result{}, err
		}
		return Result{TxHash: hash, Mode: SentPublic, FallbackUsed: true}, nil
	}
	if s.primary == nil {
		return Result{}, fmt.Errorf("submit: no primary broadcaster configured")
	}
	hash, err := s.primary.Broadcast(ctx, signedTx)
	if err != nil {
		return Result{}, err
	}
	return Result{TxHash: hash, Mode: SentPublic, FallbackUsed: fallbackUsed}, nil
}

// Broadcaster is a single public endpoint's send method.
type Broadcaster interface {
	Broadcast(ctx context.Context, signedTx []byte) (txHash string, err error)
}

type endpoint struct {
	name    string
	client  Broadcaster
	mu      sync.Mutex
	emaRtt  time.Duration
	seeded  bool
}

// emaAlpha weights the most recent RTT sample, a conventional smoothing
// factor for endpoint latency tracking.
const emaAlpha = 0.3

func (e *endpoint) record(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.seeded {
		e.emaRtt = d
		e.seeded = true
		return
	}
	e.emaRtt = time.Duration(emaAlpha*float64(d) + (1-emaAlpha)*float64(e.emaRtt))
}

func (e *endpoint) rtt() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emaRtt
}

// WriteRacer is C12's second half: broadcasts to N endpoints in parallel,
// returning the first accepted hash.
type WriteRacer struct {
	endpoints     []*endpoint
	raceTimeout   time.Duration
}

// NewWriteRacer constructs a WriteRacer over named endpoints.
func NewWriteRacer(named map[string]Broadcaster, raceTimeout time.Duration) *WriteRacer {
	eps := make([]*endpoint, 0, len(named))
	for name, c := range named {
		eps = append(eps, &endpoint{name: name, client: c})
	}
	return &WriteRacer{endpoints: eps, raceTimeout: raceTimeout}
}

type raceResult struct {
	hash string
	err  error
	ep   *endpoint
	rtt  time.Duration
}

// Broadcast races every endpoint (ordered by ascending EMA RTT, which only
// affects dispatch order since all endpoints are fired concurrently) and
// returns the first accepted hash. Slower calls finish in the background for
// metrics only, per spec.md §4.10.
func (r *WriteRacer) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	ordered := make([]*endpoint, len(r.endpoints))
	copy(ordered, r.endpoints)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].rtt() < ordered[j].rtt() })

	results := make(chan raceResult, len(ordered))

	for _, ep := range ordered {
		// Each endpoint gets its own derived context so the winner
		// returning doesn't cancel still-running slower broadcasts;
		// their RTT samples still feed the EMA that orders the next race.
		epCtx, epCancel := context.WithTimeout(ctx, r.raceTimeout)
		go func(ep *endpoint, epCtx context.Context, epCancel context.CancelFunc) {
			defer epCancel()
			start := time.Now()
			hash, err := ep.client.Broadcast(epCtx, signedTx)
			ep.record(time.Since(start))
			results <- raceResult{hash: hash, err: err, ep: ep}
		}(ep, epCtx, epCancel)
	}

	var firstErr error
	for i := 0; i < len(ordered); i++ {
		res := <-results
		if res.err == nil && res.hash != "" {
			go drain(results, len(ordered)-i-1)
			return res.hash, nil
		}
		if firstErr == nil {
			firstErr = res.err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("submit: all endpoints failed to accept the transaction")
	}
	return "", firstErr
}

func drain(results chan raceResult, remaining int) {
	for i := 0; i < remaining; i++ {
		<-results
	}
}
