package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ShadowSettle/internal/state"
)

// EventLogWriter writes the append-only event log and the current-state
// entity tables to Postgres using multi-row INSERT ... ON CONFLICT. The
// event log is immutable; entity rows are upserted to their latest version.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in shadow.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	MarketID       *string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// execer lets batch writes run inside the worker's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch appends a batch of events to shadow.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO shadow.events
		(sequence, event_type, idempotency_key, market_id, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, placeholders(base, 9))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.MarketID,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertOrders writes the latest version of each touched order. Version
// ordering guards against an out-of-order overwrite during replay overlap.
func (w *EventLogWriter) UpsertOrders(ctx context.Context, tx execer, orders []*state.Order) error {
	if len(orders) == 0 {
		return nil
	}

	query := `INSERT INTO shadow.orders
		(order_id, maker, pair, side, order_type, status, eligibility_verified,
		 encrypted_amount, encrypted_price, encrypted_filled, is_matching,
		 pending_request, created_at, version)
		VALUES `

	values := make([]string, 0, len(orders))
	args := make([]interface{}, 0, len(orders)*14)

	for i, o := range orders {
		base := i * 14
		values = append(values, placeholders(base, 14))
		args = append(args,
			o.OrderID[:], o.Maker, o.Pair, int32(o.Side), int32(o.Type), int32(o.Status),
			o.EligibilityVerified, o.EncryptedAmount[:], o.EncryptedPrice[:], o.EncryptedFilled[:],
			o.IsMatching, o.PendingMatchRequest[:], o.CreatedAt, o.Version,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (order_id) DO UPDATE SET
		status = EXCLUDED.status,
		eligibility_verified = EXCLUDED.eligibility_verified,
		encrypted_filled = EXCLUDED.encrypted_filled,
		is_matching = EXCLUDED.is_matching,
		pending_request = EXCLUDED.pending_request,
		version = EXCLUDED.version
		WHERE shadow.orders.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertMatches writes pending match cycles.
func (w *EventLogWriter) UpsertMatches(ctx context.Context, tx execer, matches []*state.PendingMatch) error {
	if len(matches) == 0 {
		return nil
	}

	query := `INSERT INTO shadow.matches
		(request_id, pair, buy_order_id, sell_order_id, status, created_at)
		VALUES `

	values := make([]string, 0, len(matches))
	args := make([]interface{}, 0, len(matches)*6)

	for i, m := range matches {
		base := i * 6
		values = append(values, placeholders(base, 6))
		args = append(args,
			m.RequestID[:], m.Pair, m.BuyOrderID[:], m.SellOrderID[:], int32(m.Status), m.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (request_id) DO UPDATE SET
		status = EXCLUDED.status`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertSettlements writes the latest version of each touched settlement.
func (w *EventLogWriter) UpsertSettlements(ctx context.Context, tx execer, settlements []*state.SettlementRequest) error {
	if len(settlements) == 0 {
		return nil
	}

	query := `INSERT INTO shadow.settlements
		(settlement_id, pair, buy_order_id, sell_order_id, buyer, seller, method, status,
		 encrypted_fill_amount, encrypted_fill_value,
		 base_transfer_id, base_transfer_set, quote_transfer_id, quote_transfer_set,
		 manual_intervention, created_at, expires_at, version)
		VALUES `

	values := make([]string, 0, len(settlements))
	args := make([]interface{}, 0, len(settlements)*18)

	for i, s := range settlements {
		base := i * 18
		values = append(values, placeholders(base, 18))
		args = append(args,
			s.SettlementID[:], s.Pair, s.BuyOrderID[:], s.SellOrderID[:], s.Buyer, s.Seller,
			int32(s.Method), int32(s.Status),
			s.EncryptedFillAmount[:], s.EncryptedFillValue[:],
			s.BaseTransferID, s.BaseTransferSet, s.QuoteTransferID, s.QuoteTransferSet,
			s.ManualIntervention, s.CreatedAt, s.ExpiresAt, s.Version,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (settlement_id) DO UPDATE SET
		status = EXCLUDED.status,
		base_transfer_id = EXCLUDED.base_transfer_id,
		base_transfer_set = EXCLUDED.base_transfer_set,
		quote_transfer_id = EXCLUDED.quote_transfer_id,
		quote_transfer_set = EXCLUDED.quote_transfer_set,
		manual_intervention = EXCLUDED.manual_intervention,
		version = EXCLUDED.version
		WHERE shadow.settlements.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertPositions writes the latest version of each touched position.
// Only public metadata and ciphertext handles land in the row; the
// database never sees a plaintext size, price, or collateral amount.
func (w *EventLogWriter) UpsertPositions(ctx context.Context, tx execer, positions []*state.ConfidentialPosition) error {
	if len(positions) == 0 {
		return nil
	}

	query := `INSERT INTO shadow.positions
		(position_id, trader, market, side, leverage, status,
		 encrypted_size, encrypted_entry_price, encrypted_collateral,
		 encrypted_realized_pnl, encrypted_liq_below, encrypted_liq_above,
		 threshold_commitment, threshold_verified, is_liquidatable, adl_priority,
		 pending_request, pending_since, entry_cumulative_funding, request_nonce,
		 created_at, version)
		VALUES `

	values := make([]string, 0, len(positions))
	args := make([]interface{}, 0, len(positions)*22)

	for i, p := range positions {
		base := i * 22
		values = append(values, placeholders(base, 22))
		args = append(args,
			p.PositionID[:], p.Trader, p.Market, int32(p.Side), int32(p.Leverage), int32(p.Status),
			p.EncryptedSize[:], p.EncryptedEntryPrice[:], p.EncryptedCollateral[:],
			p.EncryptedRealizedPnL[:], p.EncryptedLiqBelow[:], p.EncryptedLiqAbove[:],
			p.ThresholdCommitment[:], p.ThresholdVerified, p.IsLiquidatable, p.ADLPriority,
			p.PendingMPCRequest[:], p.PendingSince, p.EntryCumulativeFunding, int64(p.RequestNonce),
			p.CreatedAt, p.Version,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (position_id) DO UPDATE SET
		status = EXCLUDED.status,
		encrypted_size = EXCLUDED.encrypted_size,
		encrypted_collateral = EXCLUDED.encrypted_collateral,
		encrypted_realized_pnl = EXCLUDED.encrypted_realized_pnl,
		encrypted_liq_below = EXCLUDED.encrypted_liq_below,
		encrypted_liq_above = EXCLUDED.encrypted_liq_above,
		threshold_commitment = EXCLUDED.threshold_commitment,
		threshold_verified = EXCLUDED.threshold_verified,
		is_liquidatable = EXCLUDED.is_liquidatable,
		adl_priority = EXCLUDED.adl_priority,
		pending_request = EXCLUDED.pending_request,
		pending_since = EXCLUDED.pending_since,
		entry_cumulative_funding = EXCLUDED.entry_cumulative_funding,
		request_nonce = EXCLUDED.request_nonce,
		version = EXCLUDED.version
		WHERE shadow.positions.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertBatches writes liquidation batch verdicts. Results and priorities
// are stored as JSON arrays; both are public outputs of the batch check.
func (w *EventLogWriter) UpsertBatches(ctx context.Context, tx execer, batches []*state.LiquidationBatch) error {
	if len(batches) == 0 {
		return nil
	}

	query := `INSERT INTO shadow.liquidation_batches
		(request_id, market, mark_price, position_ids, results, priorities, completed, created_at)
		VALUES `

	values := make([]string, 0, len(batches))
	args := make([]interface{}, 0, len(batches)*8)

	for i, b := range batches {
		ids := make([]string, len(b.PositionIDs))
		for k, id := range b.PositionIDs {
			ids[k] = fmt.Sprintf("%x", id)
		}
		idsJSON, _ := json.Marshal(ids)
		resultsJSON, _ := json.Marshal(b.Results)
		prioritiesJSON, _ := json.Marshal(b.Priorities)

		base := i * 8
		values = append(values, placeholders(base, 8))
		args = append(args,
			b.RequestID[:], b.Market, b.MarkPrice, idsJSON, resultsJSON, prioritiesJSON,
			b.Completed, b.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (request_id) DO UPDATE SET
		results = EXCLUDED.results,
		priorities = EXCLUDED.priorities,
		completed = EXCLUDED.completed`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func placeholders(base, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", base+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// MarshalPayload is a convenience wrapper for JSON-encoding event payloads.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
