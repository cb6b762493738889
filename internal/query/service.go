package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ShadowSettle/internal/observability"
)

// QueryService provides read-only access to the projection tables. All
// responses include as_of_sequence for freshness semantics. Responses
// expose only public fields: entity ids, status words, and hex-encoded
// ciphertext handles. No plaintext amount, price, or size exists in the
// projections, so none can leak here.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// GetOrder returns one order by its 32-byte id.
func (qs *QueryService) GetOrder(ctx context.Context, orderID []byte) (*OrderResponse, error) {
	defer qs.observe("get_order", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT order_id, maker, pair, side, order_type, status, eligibility_verified,
		       encrypted_amount, encrypted_price, encrypted_filled, is_matching, created_at, version
		FROM shadow.orders
		WHERE order_id = $1
	`, orderID)

	var o OrderResponse
	var id, amount, price, filled []byte
	if err := row.Scan(
		&id, &o.Maker, &o.Pair, &o.Side, &o.OrderType, &o.Status, &o.EligibilityVerified,
		&amount, &price, &filled, &o.IsMatching, &o.CreatedAt, &o.Version,
	); err != nil {
		if err == sql.ErrNoRows {
			qs.countError("get_order", "not_found")
			return nil, ErrNotFound
		}
		qs.countError("get_order", "db")
		return nil, err
	}

	o.OrderID = hex.EncodeToString(id)
	o.EncryptedAmount = hex.EncodeToString(amount)
	o.EncryptedPrice = hex.EncodeToString(price)
	o.EncryptedFilled = hex.EncodeToString(filled)
	o.AsOfSequence = asOfSeq
	return &o, nil
}

// ListOrders returns a maker's orders, optionally filtered by pair.
func (qs *QueryService) ListOrders(
	ctx context.Context,
	maker uuid.UUID,
	pair *string,
	limit int,
) ([]OrderResponse, error) {
	defer qs.observe("list_orders", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT order_id, maker, pair, side, order_type, status, eligibility_verified,
		       encrypted_amount, encrypted_price, encrypted_filled, is_matching, created_at, version
		FROM shadow.orders
		WHERE maker = $1
	`
	args := []interface{}{maker}
	argIdx := 2

	if pair != nil {
		query += fmt.Sprintf(" AND pair = $%d", argIdx)
		args = append(args, *pair)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		qs.countError("list_orders", "db")
		return nil, err
	}
	defer rows.Close()

	var orders []OrderResponse
	for rows.Next() {
		var o OrderResponse
		var id, amount, price, filled []byte
		if err := rows.Scan(
			&id, &o.Maker, &o.Pair, &o.Side, &o.OrderType, &o.Status, &o.EligibilityVerified,
			&amount, &price, &filled, &o.IsMatching, &o.CreatedAt, &o.Version,
		); err != nil {
			return nil, err
		}
		o.OrderID = hex.EncodeToString(id)
		o.EncryptedAmount = hex.EncodeToString(amount)
		o.EncryptedPrice = hex.EncodeToString(price)
		o.EncryptedFilled = hex.EncodeToString(filled)
		o.AsOfSequence = asOfSeq
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// GetSettlement returns one settlement by its 32-byte id.
func (qs *QueryService) GetSettlement(ctx context.Context, settlementID []byte) (*SettlementResponse, error) {
	defer qs.observe("get_settlement", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT settlement_id, pair, buy_order_id, sell_order_id, buyer, seller, method, status,
		       base_transfer_id, base_transfer_set, quote_transfer_id, quote_transfer_set,
		       manual_intervention, created_at, expires_at, version
		FROM shadow.settlements
		WHERE settlement_id = $1
	`, settlementID)

	var s SettlementResponse
	var id, buyID, sellID []byte
	if err := row.Scan(
		&id, &s.Pair, &buyID, &sellID, &s.Buyer, &s.Seller, &s.Method, &s.Status,
		&s.BaseTransferID, &s.BaseTransferSet, &s.QuoteTransferID, &s.QuoteTransferSet,
		&s.ManualIntervention, &s.CreatedAt, &s.ExpiresAt, &s.Version,
	); err != nil {
		if err == sql.ErrNoRows {
			qs.countError("get_settlement", "not_found")
			return nil, ErrNotFound
		}
		qs.countError("get_settlement", "db")
		return nil, err
	}

	s.SettlementID = hex.EncodeToString(id)
	s.BuyOrderID = hex.EncodeToString(buyID)
	s.SellOrderID = hex.EncodeToString(sellID)
	s.AsOfSequence = asOfSeq
	return &s, nil
}

// ListExpiredSettlements returns non-terminal settlements whose deadline
// has passed. Keepers poll this to drive permissionless expiry.
func (qs *QueryService) ListExpiredSettlements(ctx context.Context, now int64, limit int) ([]SettlementResponse, error) {
	defer qs.observe("list_expired_settlements", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT settlement_id, pair, buy_order_id, sell_order_id, buyer, seller, method, status,
		       base_transfer_id, base_transfer_set, quote_transfer_id, quote_transfer_set,
		       manual_intervention, created_at, expires_at, version
		FROM shadow.settlements
		WHERE expires_at <= $1 AND manual_intervention = FALSE AND status IN (0, 1, 2, 6)
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		qs.countError("list_expired_settlements", "db")
		return nil, err
	}
	defer rows.Close()

	var results []SettlementResponse
	for rows.Next() {
		var s SettlementResponse
		var id, buyID, sellID []byte
		if err := rows.Scan(
			&id, &s.Pair, &buyID, &sellID, &s.Buyer, &s.Seller, &s.Method, &s.Status,
			&s.BaseTransferID, &s.BaseTransferSet, &s.QuoteTransferID, &s.QuoteTransferSet,
			&s.ManualIntervention, &s.CreatedAt, &s.ExpiresAt, &s.Version,
		); err != nil {
			return nil, err
		}
		s.SettlementID = hex.EncodeToString(id)
		s.BuyOrderID = hex.EncodeToString(buyID)
		s.SellOrderID = hex.EncodeToString(sellID)
		s.AsOfSequence = asOfSeq
		results = append(results, s)
	}

	return results, rows.Err()
}

// GetPosition returns one position by its 32-byte id.
func (qs *QueryService) GetPosition(ctx context.Context, positionID []byte) (*PositionResponse, error) {
	defer qs.observe("get_position", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT position_id, trader, market, side, leverage, status,
		       encrypted_size, encrypted_entry_price, encrypted_collateral,
		       threshold_verified, is_liquidatable, adl_priority, pending_since,
		       entry_cumulative_funding, created_at, version
		FROM shadow.positions
		WHERE position_id = $1
	`, positionID)

	p, err := scanPosition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			qs.countError("get_position", "not_found")
			return nil, ErrNotFound
		}
		qs.countError("get_position", "db")
		return nil, err
	}
	p.AsOfSequence = asOfSeq
	return p, nil
}

// ListPositions returns a trader's positions.
func (qs *QueryService) ListPositions(ctx context.Context, trader uuid.UUID, limit int) ([]PositionResponse, error) {
	defer qs.observe("list_positions", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT position_id, trader, market, side, leverage, status,
		       encrypted_size, encrypted_entry_price, encrypted_collateral,
		       threshold_verified, is_liquidatable, adl_priority, pending_since,
		       entry_cumulative_funding, created_at, version
		FROM shadow.positions
		WHERE trader = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, trader, limit)
	if err != nil {
		qs.countError("list_positions", "db")
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		p.AsOfSequence = asOfSeq
		positions = append(positions, *p)
	}

	return positions, rows.Err()
}

// ListLiquidatable returns positions the batch engine has flagged, for
// liquidator bots scanning a market.
func (qs *QueryService) ListLiquidatable(ctx context.Context, market string, limit int) ([]PositionResponse, error) {
	defer qs.observe("list_liquidatable", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT position_id, trader, market, side, leverage, status,
		       encrypted_size, encrypted_entry_price, encrypted_collateral,
		       threshold_verified, is_liquidatable, adl_priority, pending_since,
		       entry_cumulative_funding, created_at, version
		FROM shadow.positions
		WHERE market = $1 AND is_liquidatable = TRUE AND status = 1
		ORDER BY created_at ASC
		LIMIT $2
	`, market, limit)
	if err != nil {
		qs.countError("list_liquidatable", "db")
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		p.AsOfSequence = asOfSeq
		positions = append(positions, *p)
	}

	return positions, rows.Err()
}

// GetEvents returns a page of the event log for audit consumers.
func (qs *QueryService) GetEvents(ctx context.Context, fromSequence int64, limit int) ([]EventResponse, error) {
	defer qs.observe("get_events", time.Now())

	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, market_id, state_hash, prev_hash, timestamp
		FROM shadow.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		qs.countError("get_events", "db")
		return nil, err
	}
	defer rows.Close()

	var events []EventResponse
	for rows.Next() {
		var e EventResponse
		var stateHash, prevHash []byte
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.MarketID,
			&stateHash, &prevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.StateHash = hex.EncodeToString(stateHash)
		e.PrevHash = hex.EncodeToString(prevHash)
		events = append(events, e)
	}

	return events, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity over the event log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer qs.observe("verify_integrity", time.Now())

	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM shadow.events e1
		JOIN shadow.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		qs.countError("verify_integrity", "db")
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Intervention backlog is a health signal, not a chain break
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM shadow.settlements WHERE manual_intervention = TRUE
	`).Scan(&report.ManualInterventions); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*PositionResponse, error) {
	var p PositionResponse
	var id, size, entry, collateral []byte
	if err := row.Scan(
		&id, &p.Trader, &p.Market, &p.Side, &p.Leverage, &p.Status,
		&size, &entry, &collateral,
		&p.ThresholdVerified, &p.IsLiquidatable, &p.ADLPriority, &p.PendingSince,
		&p.EntryCumulativeFunding, &p.CreatedAt, &p.Version,
	); err != nil {
		return nil, err
	}
	p.PositionID = hex.EncodeToString(id)
	p.EncryptedSize = hex.EncodeToString(size)
	p.EncryptedEntryPrice = hex.EncodeToString(entry)
	p.EncryptedCollateral = hex.EncodeToString(collateral)
	p.HasPendingOp = p.PendingSince != 0
	return &p, nil
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := qs.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM shadow.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func (qs *QueryService) observe(endpoint string, start time.Time) {
	if qs.metrics == nil {
		return
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (qs *QueryService) countError(endpoint, kind string) {
	if qs.metrics != nil {
		qs.metrics.QueryErrors.WithLabelValues(endpoint, kind).Inc()
	}
}
