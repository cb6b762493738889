package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/observability"
	"ShadowSettle/internal/oracle"
	"ShadowSettle/internal/state"
	"ShadowSettle/internal/transfer"
	"ShadowSettle/internal/zk"
)

// CallbackSubject is where the MPC collaborator set posts results.
const CallbackSubject = "shadow.mpc.callbacks"

// Engine is the single-threaded deterministic core. Every instruction and
// callback flows through ProcessEvent in total order; collaborator round
// trips overlap only through the pending markers persisted on entities.
type Engine struct {
	sequence       int64
	hasher         *hashChain
	idempotency    *IdempotencyChecker
	sequenceLedger *sequenceLedger
	metrics        *observability.Metrics

	orders       *state.OrderManager
	settlements  *state.SettlementManager
	positions    *state.PositionManager
	liquidations *state.LiquidationManager
	markets      *state.MarketManager
	prices       *oracle.Cache

	verifier  zk.Verifier
	mpcQueue  mpc.Queue
	transfers transfer.Engine

	// matchNonce feeds the correlator for match request ids. Monotonic,
	// included in snapshots, so replay mints the same ids.
	matchNonce uint64

	// replaying suppresses external side effects (MPC publishes,
	// transfer engine calls) while the log is re-applied at startup.
	replaying bool

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// Outbound is one privacy-constrained event for downstream consumers.
type Outbound struct {
	Kind    string
	Payload interface{}
}

// Result collects everything a handler touched: entity rows for the
// persistence worker and outbound payloads for the publisher.
type Result struct {
	Orders      []*state.Order
	Matches     []*state.PendingMatch
	Settlements []*state.SettlementRequest
	Positions   []*state.ConfidentialPosition
	Batches     []*state.LiquidationBatch
	Outbound    []Outbound
}

func (r *Result) touchOrder(o *state.Order)        { r.Orders = append(r.Orders, o) }
func (r *Result) touchMatch(m *state.PendingMatch) { r.Matches = append(r.Matches, m) }
func (r *Result) touchSettlement(s *state.SettlementRequest) {
	r.Settlements = append(r.Settlements, s)
}
func (r *Result) touchPosition(p *state.ConfidentialPosition) {
	r.Positions = append(r.Positions, p)
}
func (r *Result) touchBatch(b *state.LiquidationBatch) { r.Batches = append(r.Batches, b) }
func (r *Result) emit(kind string, payload interface{}) {
	r.Outbound = append(r.Outbound, Outbound{Kind: kind, Payload: payload})
}

// CoreOutput is what leaves the core per applied event.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Result     *Result
	StateDelta []byte
}

func NewEngine(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	verifier zk.Verifier,
	mpcQueue mpc.Queue,
	transfers transfer.Engine,
	prices *oracle.Cache,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		sequence:       startSequence,
		hasher:         newHashChain(),
		idempotency:    NewIdempotencyChecker(1_000_000, dbChecker),
		sequenceLedger: newSequenceLedger(),
		metrics:        metrics,
		orders:         state.NewOrderManager(),
		settlements:    state.NewSettlementManager(),
		positions:      state.NewPositionManager(),
		liquidations:   state.NewLiquidationManager(),
		markets:        state.NewMarketManager(),
		prices:         prices,
		verifier:       verifier,
		mpcQueue:       mpcQueue,
		transfers:      transfers,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// SetReplaying toggles replay mode. While replaying, the core re-applies
// state transitions but never re-queues computations or re-moves funds.
func (e *Engine) SetReplaying(replaying bool) {
	e.replaying = replaying
}

// ProcessEvent is the main processing pipeline.
func (e *Engine) ProcessEvent(ctx context.Context, evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := e.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation. Oracle price partitions tolerate gaps;
	// every other partition is strict.
	partition := e.getPartition(evt)
	sourceSequence := evt.SourceSequence()

	if priceEvt, ok := evt.(*event.OraclePriceUpdate); ok {
		if err := e.sequenceLedger.admitOracle(priceEvt.Market, priceEvt.Sequence); err != nil {
			return err
		}
	} else {
		if err := e.sequenceLedger.admit(partition, sourceSequence, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if e.metrics != nil {
			e.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch
	result, err := e.dispatchEvent(ctx, evt)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CoreEventsRejected.WithLabelValues(eventType, rejectReason(err)).Inc()
		}
		return fmt.Errorf("dispatch %s: %w", eventType, err)
	}

	// Step 4: Compute state digest over the touched entities
	stateDigest := computeStateDigest(result)

	// Step 5: Hash chain and envelope
	prevHash := e.hasher.currentTip()
	stateHash := e.hasher.extend(e.sequence, stateDigest)

	// The payload stored in the log is the typed event itself, so replay
	// re-applies exactly what was dispatched.
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	envelope := &event.EventEnvelope{
		Sequence:       e.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		MarketID:       evt.MarketID(),
		Timestamp:      e.getEventTimestamp(evt),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Result:     result,
		StateDelta: stateDigest,
	}
	e.sequence++

	// Step 6: Emit. Persistence is a blocking send so no applied event is
	// ever lost; projections drop on overflow and rebuild from the log.
	e.persistChan <- output
	select {
	case e.projectionChan <- output:
	default:
	}

	// Step 7: Mark processed
	e.idempotency.MarkProcessed(eventType, idempotencyKey)

	if e.metrics != nil {
		e.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}

	return nil
}

func (e *Engine) dispatchEvent(ctx context.Context, evt event.Event) (*Result, error) {
	switch ev := evt.(type) {
	case *event.PlaceOrder:
		return e.handlePlaceOrder(ctx, ev)
	case *event.CancelOrder:
		return e.handleCancelOrder(ev)
	case *event.MatchOrders:
		return e.handleMatchOrders(ctx, ev)
	case *event.MatchCallback:
		return e.handleMatchCallback(ev)
	case *event.InitiateSettlement:
		return e.handleInitiateSettlement(ev)
	case *event.RecordTransfer:
		return e.handleRecordTransfer(ev)
	case *event.FinalizeSettlement:
		return e.handleFinalizeSettlement(ev)
	case *event.FailSettlement:
		return e.handleFailSettlement(ev)
	case *event.ExpireSettlement:
		return e.handleExpireSettlement(ev)
	case *event.OpenPosition:
		return e.handleOpenPosition(ctx, ev)
	case *event.AddMargin:
		return e.handleAddMargin(ctx, ev)
	case *event.RemoveMargin:
		return e.handleRemoveMargin(ctx, ev)
	case *event.SettleFunding:
		return e.handleSettleFunding(ctx, ev)
	case *event.ClosePosition:
		return e.handleClosePosition(ctx, ev)
	case *event.ForceClearPosition:
		return e.handleForceClearPosition(ev)
	case *event.ThresholdCallback:
		return e.handleThresholdCallback(ev)
	case *event.MarginCallback:
		return e.handleMarginCallback(ctx, ev)
	case *event.FundingCallback:
		return e.handleFundingCallback(ev)
	case *event.CloseCallback:
		return e.handleCloseCallback(ctx, ev)
	case *event.LiquidatePosition:
		return e.handleLiquidatePosition(ctx, ev)
	case *event.AutoDeleverage:
		return e.handleAutoDeleverage(ctx, ev)
	case *event.CheckLiquidationBatch:
		return e.handleCheckLiquidationBatch(ctx, ev)
	case *event.LiquidationBatchCallback:
		return e.handleLiquidationBatchCallback(ev)
	case *event.OraclePriceUpdate:
		return e.handleOraclePriceUpdate(ev)
	case *event.MarketParamUpdate:
		return e.handleMarketParamUpdate(ev)
	case *event.FundingIndexUpdate:
		return e.handleFundingIndexUpdate(ev)
	case *event.PauseUpdate:
		return e.handlePauseUpdate(ev)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// getPartition determines the partition key for sequence validation.
func (e *Engine) getPartition(evt event.Event) string {
	if marketID := evt.MarketID(); marketID != nil {
		return fmt.Sprintf("market:%s", *marketID)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from an event. The
// core never calls time.Now for state transitions; every deadline check
// uses the triggering event's own timestamp.
func (e *Engine) getEventTimestamp(evt event.Event) time.Time {
	switch ev := evt.(type) {
	case *event.PlaceOrder:
		return ev.Timestamp
	case *event.CancelOrder:
		return ev.Timestamp
	case *event.MatchOrders:
		return ev.Timestamp
	case *event.MatchCallback:
		return ev.Timestamp
	case *event.InitiateSettlement:
		return ev.Timestamp
	case *event.RecordTransfer:
		return ev.Timestamp
	case *event.FinalizeSettlement:
		return ev.Timestamp
	case *event.FailSettlement:
		return ev.Timestamp
	case *event.ExpireSettlement:
		return ev.Timestamp
	case *event.OpenPosition:
		return ev.Timestamp
	case *event.AddMargin:
		return ev.Timestamp
	case *event.RemoveMargin:
		return ev.Timestamp
	case *event.SettleFunding:
		return ev.Timestamp
	case *event.ClosePosition:
		return ev.Timestamp
	case *event.ForceClearPosition:
		return ev.Timestamp
	case *event.ThresholdCallback:
		return ev.Timestamp
	case *event.MarginCallback:
		return ev.Timestamp
	case *event.FundingCallback:
		return ev.Timestamp
	case *event.CloseCallback:
		return ev.Timestamp
	case *event.LiquidatePosition:
		return ev.Timestamp
	case *event.AutoDeleverage:
		return ev.Timestamp
	case *event.CheckLiquidationBatch:
		return ev.Timestamp
	case *event.LiquidationBatchCallback:
		return ev.Timestamp
	case *event.OraclePriceUpdate:
		return time.Unix(ev.Timestamp, 0).UTC()
	case *event.MarketParamUpdate:
		return time.UnixMicro(ev.Timestamp)
	case *event.FundingIndexUpdate:
		return time.UnixMicro(ev.Timestamp)
	case *event.PauseUpdate:
		return time.UnixMicro(ev.Timestamp)
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T", evt))
	}
}

// queueMPC publishes one computation request unless replaying.
func (e *Engine) queueMPC(ctx context.Context, req mpc.Request) error {
	if e.replaying || e.mpcQueue == nil {
		return nil
	}
	if err := e.mpcQueue.Queue(ctx, req); err != nil {
		return fmt.Errorf("queue %s: %w", req.Op, err)
	}
	if e.metrics != nil {
		e.metrics.MPCRequestsQueued.WithLabelValues(req.Op.String()).Inc()
	}
	return nil
}

// moveFunds executes one transfer leg unless replaying. The returned id is
// advisory: deterministic state never stores it.
func (e *Engine) moveFunds(ctx context.Context, from, to uuid.UUID, asset string, amount int64) (transfer.ID, error) {
	if e.replaying || e.transfers == nil {
		return transfer.ID{}, nil
	}
	return e.transfers.Transfer(ctx, from, to, asset, amount)
}

// computeStateDigest builds canonical bytes over the touched entities,
// sorted by id so iteration order never leaks into the hash chain.
func computeStateDigest(result *Result) []byte {
	if result == nil {
		return nil
	}

	chunks := make([][]byte, 0,
		len(result.Orders)+len(result.Matches)+len(result.Settlements)+
			len(result.Positions)+len(result.Batches))

	for _, o := range result.Orders {
		chunks = append(chunks, o.CanonicalBytes())
	}
	for _, m := range result.Matches {
		chunks = append(chunks, m.CanonicalBytes())
	}
	for _, s := range result.Settlements {
		chunks = append(chunks, s.CanonicalBytes())
	}
	for _, p := range result.Positions {
		chunks = append(chunks, p.CanonicalBytes())
	}
	for _, b := range result.Batches {
		buf := make([]byte, 0, 64)
		buf = append(buf, b.RequestID[:]...)
		buf = append(buf, boolDigestByte(b.Completed))
		for _, r := range b.Results {
			buf = append(buf, boolDigestByte(r))
		}
		chunks = append(chunks, buf)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return lessBytes(chunks[i], chunks[j])
	})

	digest := make([]byte, 0, len(chunks)*128)
	for _, c := range chunks {
		digest = append(digest, byte(len(c)), byte(len(c)>>8))
		digest = append(digest, c...)
	}
	return digest
}

func lessBytes(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func boolDigestByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// rejectReason maps a dispatch error to a coarse metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, state.ErrOperationPending):
		return "pending"
	case errors.Is(err, state.ErrInvalidMPCRequest):
		return "stale_callback"
	case errors.Is(err, state.ErrEligibilityProofFailed):
		return "proof"
	case errors.Is(err, state.ErrExchangePaused):
		return "paused"
	default:
		return "invalid"
	}
}

// GetSequence returns the current global sequence number.
func (e *Engine) GetSequence() int64 {
	return e.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (e *Engine) GetStateHash() [32]byte {
	return e.hasher.currentTip()
}

// Markets exposes the market manager for query-side reads at startup.
func (e *Engine) Markets() *state.MarketManager {
	return e.markets
}
