package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/query"
)

const defaultPageLimit = 100

// routes builds the HTTP mux. Every read endpoint returns snake_case JSON
// with an as_of_sequence watermark; encrypted fields come back as opaque
// hex handles.
func (s *Server) routes(deps *Deps) http.Handler {
	mux := http.NewServeMux()

	h := &httpHandlers{deps: deps, logger: s.logger}

	mux.HandleFunc("GET /v1/orders/{id}", h.getOrder)
	mux.HandleFunc("GET /v1/orders", h.listOrders)
	mux.HandleFunc("GET /v1/settlements/expired", h.listExpiredSettlements)
	mux.HandleFunc("GET /v1/settlements/{id}", h.getSettlement)
	mux.HandleFunc("GET /v1/positions/liquidatable", h.listLiquidatable)
	mux.HandleFunc("GET /v1/positions/{id}", h.getPosition)
	mux.HandleFunc("GET /v1/positions", h.listPositions)
	mux.HandleFunc("GET /v1/events", h.getEvents)
	mux.HandleFunc("GET /v1/integrity", h.verifyIntegrity)
	mux.HandleFunc("GET /v1/status", h.getStatus)

	mux.HandleFunc("POST /v1/admin/oracle-price", h.injectOraclePrice)
	mux.HandleFunc("POST /v1/admin/market-params", h.injectMarketParams)
	mux.HandleFunc("POST /v1/admin/funding-index", h.injectFundingIndex)
	mux.HandleFunc("POST /v1/admin/pause", h.injectPause)

	if s.healthChecker != nil {
		mux.HandleFunc("GET /healthz", s.healthChecker.LivenessHandler)
		mux.HandleFunc("GET /readyz", s.healthChecker.ReadinessHandler)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

type httpHandlers struct {
	deps   *Deps
	logger zerolog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseEntityID decodes a 32-byte hex entity id from a path segment.
func parseEntityID(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("id is not hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("id must be 32 bytes, got %d", len(b))
	}
	return b, nil
}

func parseLimit(r *http.Request) int {
	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return limit
}

func (h *httpHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseEntityID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.deps.QueryService.GetOrder(r.Context(), id)
	if err != nil {
		h.respondQueryError(w, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *httpHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	maker, err := uuid.Parse(r.URL.Query().Get("maker"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "maker must be a uuid")
		return
	}
	var pair *string
	if p := r.URL.Query().Get("pair"); p != "" {
		pair = &p
	}
	orders, err := h.deps.QueryService.ListOrders(r.Context(), maker, pair, parseLimit(r))
	if err != nil {
		h.respondQueryError(w, "orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (h *httpHandlers) getSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := parseEntityID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.deps.QueryService.GetSettlement(r.Context(), id)
	if err != nil {
		h.respondQueryError(w, "settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// listExpiredSettlements serves the keeper sweep: settlements past their
// deadline that still need an expire instruction.
func (h *httpHandlers) listExpiredSettlements(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UnixMicro()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be a unix-micro timestamp")
			return
		}
		now = n
	}
	settlements, err := h.deps.QueryService.ListExpiredSettlements(r.Context(), now, parseLimit(r))
	if err != nil {
		h.respondQueryError(w, "expired settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"settlements": settlements})
}

func (h *httpHandlers) getPosition(w http.ResponseWriter, r *http.Request) {
	id, err := parseEntityID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.deps.QueryService.GetPosition(r.Context(), id)
	if err != nil {
		h.respondQueryError(w, "position", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *httpHandlers) listPositions(w http.ResponseWriter, r *http.Request) {
	trader, err := uuid.Parse(r.URL.Query().Get("trader"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "trader must be a uuid")
		return
	}
	positions, err := h.deps.QueryService.ListPositions(r.Context(), trader, parseLimit(r))
	if err != nil {
		h.respondQueryError(w, "positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

// listLiquidatable serves the keeper scan that feeds liquidation batches.
func (h *httpHandlers) listLiquidatable(w http.ResponseWriter, r *http.Request) {
	market := r.URL.Query().Get("market")
	if market == "" {
		writeError(w, http.StatusBadRequest, "market is required")
		return
	}
	positions, err := h.deps.QueryService.ListLiquidatable(r.Context(), market, parseLimit(r))
	if err != nil {
		h.respondQueryError(w, "liquidatable positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

func (h *httpHandlers) getEvents(w http.ResponseWriter, r *http.Request) {
	var from int64
	if raw := r.URL.Query().Get("from"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "from must be a non-negative sequence")
			return
		}
		from = n
	}
	events, err := h.deps.QueryService.GetEvents(r.Context(), from, parseLimit(r))
	if err != nil {
		h.respondQueryError(w, "events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *httpHandlers) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		h.respondQueryError(w, "integrity", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *httpHandlers) getStatus(w http.ResponseWriter, r *http.Request) {
	lastSeq, err := h.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get latest sequence")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence": lastSeq,
		"uptime":        time.Since(h.deps.StartTime).String(),
	})
}

// ----------------------------------------------------------------------------
// Operator injection. These feed the same event channel as NATS ingestion;
// sequencing and idempotency are enforced downstream in the core.
// ----------------------------------------------------------------------------

func (h *httpHandlers) injectOraclePrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Market   string `json:"market"`
		Price    int64  `json:"price"`
		Sequence int64  `json:"sequence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Market == "" {
		writeError(w, http.StatusBadRequest, "market is required")
		return
	}
	if err := h.deps.IngestService.InjectOraclePrice(r.Context(), req.Market, req.Price, req.Sequence); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *httpHandlers) injectMarketParams(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Market                  string `json:"market"`
		MaxLeverage             uint8  `json:"max_leverage"`
		MaintenanceMarginBps    int64  `json:"maintenance_margin_bps"`
		TakerFeeBps             int64  `json:"taker_fee_bps"`
		LiquidationBonusBps     int64  `json:"liquidation_bonus_bps"`
		InsuranceFundShareBps   int64  `json:"insurance_fund_share_bps"`
		MaxLiquidationPerTx     int64  `json:"max_liquidation_per_tx"`
		MinLiquidationThreshold int64  `json:"min_liquidation_threshold"`
		ADLTriggerThreshold     int64  `json:"adl_trigger_threshold"`
		EffectiveSeq            int64  `json:"effective_seq"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Market == "" {
		writeError(w, http.StatusBadRequest, "market is required")
		return
	}
	update := &event.MarketParamUpdate{
		Market:                  req.Market,
		MaxLeverage:             req.MaxLeverage,
		MaintenanceMarginBps:    req.MaintenanceMarginBps,
		TakerFeeBps:             req.TakerFeeBps,
		LiquidationBonusBps:     req.LiquidationBonusBps,
		InsuranceFundShareBps:   req.InsuranceFundShareBps,
		MaxLiquidationPerTx:     req.MaxLiquidationPerTx,
		MinLiquidationThreshold: req.MinLiquidationThreshold,
		ADLTriggerThreshold:     req.ADLTriggerThreshold,
		EffectiveSeq:            req.EffectiveSeq,
	}
	if err := h.deps.IngestService.InjectMarketParams(r.Context(), update); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *httpHandlers) injectFundingIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Market     string `json:"market"`
		LongDelta  int64  `json:"long_delta"`
		ShortDelta int64  `json:"short_delta"`
		Epoch      int64  `json:"epoch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Market == "" {
		writeError(w, http.StatusBadRequest, "market is required")
		return
	}
	if err := h.deps.IngestService.InjectFundingIndex(r.Context(), req.Market, req.LongDelta, req.ShortDelta, req.Epoch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *httpHandlers) injectPause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.deps.IngestService.InjectPause(r.Context(), req.Paused); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *httpHandlers) respondQueryError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, query.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	h.logger.Warn().Err(err).Str("what", what).Msg("query failed")
	writeError(w, http.StatusInternalServerError, "query "+what)
}
