package ingestion

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts
// raw events before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "PlaceOrder":
		return parsePlaceOrder(raw.Data)
	case "CancelOrder":
		return parseCancelOrder(raw.Data)
	case "MatchOrders":
		return parseMatchOrders(raw.Data)
	case "InitiateSettlement":
		return parseInitiateSettlement(raw.Data)
	case "RecordTransfer":
		return parseRecordTransfer(raw.Data)
	case "FinalizeSettlement":
		return parseFinalizeSettlement(raw.Data)
	case "FailSettlement":
		return parseFailSettlement(raw.Data)
	case "ExpireSettlement":
		return parseExpireSettlement(raw.Data)
	case "OpenPosition":
		return parseOpenPosition(raw.Data)
	case "AddMargin":
		return parseAddMargin(raw.Data)
	case "RemoveMargin":
		return parseRemoveMargin(raw.Data)
	case "SettleFunding":
		return parseSettleFunding(raw.Data)
	case "ClosePosition":
		return parseClosePosition(raw.Data)
	case "ForceClearPosition":
		return parseForceClearPosition(raw.Data)
	case "LiquidatePosition":
		return parseLiquidatePosition(raw.Data)
	case "AutoDeleverage":
		return parseAutoDeleverage(raw.Data)
	case "CheckLiquidationBatch":
		return parseCheckLiquidationBatch(raw.Data)
	case "MPCCallback":
		return parseMPCCallback(raw.Data)
	case "OraclePriceUpdate":
		return parseOraclePriceUpdate(raw.Data)
	case "MarketParamUpdate":
		return parseMarketParamUpdate(raw.Data)
	case "FundingIndexUpdate":
		return parseFundingIndexUpdate(raw.Data)
	case "PauseUpdate":
		return parsePauseUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- shared decode helpers ---

func parseHex32(field, s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("parse %s: %w", field, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("parse %s: expected 32 bytes, got %d", field, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func parseCiphertext(field string, b []byte) (mpc.Ciphertext, error) {
	ct, err := mpc.CiphertextFromBytes(b)
	if err != nil {
		return mpc.Ciphertext{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return ct, nil
}

func parseRequestID(s string) (mpc.RequestID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return mpc.RequestID{}, fmt.Errorf("parse request_id: %w", err)
	}
	id, ok := mpc.RequestIDFromBytes(b)
	if !ok {
		return mpc.RequestID{}, fmt.Errorf("parse request_id: expected 32 bytes, got %d", len(b))
	}
	return id, nil
}

func parseSide(s string) (event.Side, error) {
	switch s {
	case "buy":
		return event.SideBuy, nil
	case "sell":
		return event.SideSell, nil
	default:
		return event.SideUnknown, fmt.Errorf("invalid side: %q", s)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Ciphertexts
// travel base64 encoded; 32-byte entity ids travel hex encoded.

type placeOrderJSON struct {
	InstructionID string   `json:"instruction_id"`
	Maker         string   `json:"maker"`
	Pair          string   `json:"pair"`
	Side          string   `json:"side"` // "buy" or "sell"
	OrderType     string   `json:"order_type"`
	Amount        []byte   `json:"encrypted_amount"`
	Price         []byte   `json:"encrypted_price"`
	ClientNonce   uint64   `json:"client_nonce"`
	Proof         []byte   `json:"proof"`
	PublicInputs  [][]byte `json:"public_inputs"`
	InstrSequence int64    `json:"instr_sequence"`
	TimestampUs   int64    `json:"timestamp_us"`
}

func parsePlaceOrder(data []byte) (*event.PlaceOrder, error) {
	var j placeOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PlaceOrder: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	maker, err := uuid.Parse(j.Maker)
	if err != nil {
		return nil, fmt.Errorf("parse maker: %w", err)
	}
	side, err := parseSide(j.Side)
	if err != nil {
		return nil, err
	}
	var orderType event.OrderType
	switch j.OrderType {
	case "limit", "":
		orderType = event.OrderTypeLimit
	case "market":
		orderType = event.OrderTypeMarket
	default:
		return nil, fmt.Errorf("invalid order_type: %q", j.OrderType)
	}
	amount, err := parseCiphertext("encrypted_amount", j.Amount)
	if err != nil {
		return nil, err
	}
	price, err := parseCiphertext("encrypted_price", j.Price)
	if err != nil {
		return nil, err
	}

	return &event.PlaceOrder{
		InstructionID:   instructionID,
		Maker:           maker,
		Pair:            j.Pair,
		OrderSide:       side,
		OrderType:       orderType,
		EncryptedAmount: amount,
		EncryptedPrice:  price,
		ClientNonce:     j.ClientNonce,
		Proof:           j.Proof,
		PublicInputs:    j.PublicInputs,
		InstrSequence:   j.InstrSequence,
		Timestamp:       time.UnixMicro(j.TimestampUs),
	}, nil
}

type cancelOrderJSON struct {
	InstructionID string `json:"instruction_id"`
	Maker         string `json:"maker"`
	Pair          string `json:"pair"`
	OrderID       string `json:"order_id"`
	InstrSequence int64  `json:"instr_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseCancelOrder(data []byte) (*event.CancelOrder, error) {
	var j cancelOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelOrder: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	maker, err := uuid.Parse(j.Maker)
	if err != nil {
		return nil, fmt.Errorf("parse maker: %w", err)
	}
	orderID, err := parseHex32("order_id", j.OrderID)
	if err != nil {
		return nil, err
	}

	return &event.CancelOrder{
		InstructionID: instructionID,
		Maker:         maker,
		Pair:          j.Pair,
		OrderID:       orderID,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type matchOrdersJSON struct {
	InstructionID string `json:"instruction_id"`
	Pair          string `json:"pair"`
	BuyOrderID    string `json:"buy_order_id"`
	SellOrderID   string `json:"sell_order_id"`
	InstrSequence int64  `json:"instr_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseMatchOrders(data []byte) (*event.MatchOrders, error) {
	var j matchOrdersJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MatchOrders: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	buyID, err := parseHex32("buy_order_id", j.BuyOrderID)
	if err != nil {
		return nil, err
	}
	sellID, err := parseHex32("sell_order_id", j.SellOrderID)
	if err != nil {
		return nil, err
	}

	return &event.MatchOrders{
		InstructionID: instructionID,
		Pair:          j.Pair,
		BuyOrderID:    buyID,
		SellOrderID:   sellID,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type initiateSettlementJSON struct {
	InstructionID string `json:"instruction_id"`
	Pair          string `json:"pair"`
	BuyOrderID    string `json:"buy_order_id"`
	SellOrderID   string `json:"sell_order_id"`
	Method        string `json:"method"`
	InstrSequence int64  `json:"instr_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseInitiateSettlement(data []byte) (*event.InitiateSettlement, error) {
	var j initiateSettlementJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitiateSettlement: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	buyID, err := parseHex32("buy_order_id", j.BuyOrderID)
	if err != nil {
		return nil, err
	}
	sellID, err := parseHex32("sell_order_id", j.SellOrderID)
	if err != nil {
		return nil, err
	}

	return &event.InitiateSettlement{
		InstructionID: instructionID,
		Pair:          j.Pair,
		BuyOrderID:    buyID,
		SellOrderID:   sellID,
		Method:        j.Method,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type recordTransferJSON struct {
	InstructionID     string `json:"instruction_id"`
	Pair              string `json:"pair"`
	SettlementID      string `json:"settlement_id"`
	Leg               string `json:"leg"` // "base" or "quote"
	TransferID        string `json:"transfer_id"`
	RevealedFillQty   int64  `json:"revealed_fill_qty,omitempty"`
	RevealedFillPrice int64  `json:"revealed_fill_price,omitempty"`
	InstrSequence     int64  `json:"instr_sequence"`
	TimestampUs       int64  `json:"timestamp_us"`
}

func parseRecordTransfer(data []byte) (*event.RecordTransfer, error) {
	var j recordTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RecordTransfer: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	settlementID, err := parseHex32("settlement_id", j.SettlementID)
	if err != nil {
		return nil, err
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	var leg event.TransferLeg
	switch j.Leg {
	case "base":
		leg = event.TransferLegBase
	case "quote":
		leg = event.TransferLegQuote
	default:
		return nil, fmt.Errorf("invalid leg: %q", j.Leg)
	}

	return &event.RecordTransfer{
		InstructionID:     instructionID,
		Pair:              j.Pair,
		SettlementID:      settlementID,
		Leg:               leg,
		TransferID:        transferID,
		RevealedFillQty:   j.RevealedFillQty,
		RevealedFillPrice: j.RevealedFillPrice,
		InstrSequence:     j.InstrSequence,
		Timestamp:         time.UnixMicro(j.TimestampUs),
	}, nil
}

type settlementRefJSON struct {
	InstructionID string `json:"instruction_id"`
	Pair          string `json:"pair"`
	SettlementID  string `json:"settlement_id"`
	Reason        string `json:"reason,omitempty"`
	InstrSequence int64  `json:"instr_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func (j *settlementRefJSON) decode() (uuid.UUID, [32]byte, error) {
	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return uuid.Nil, [32]byte{}, fmt.Errorf("parse instruction_id: %w", err)
	}
	settlementID, err := parseHex32("settlement_id", j.SettlementID)
	if err != nil {
		return uuid.Nil, [32]byte{}, err
	}
	return instructionID, settlementID, nil
}

func parseFinalizeSettlement(data []byte) (*event.FinalizeSettlement, error) {
	var j settlementRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FinalizeSettlement: %w", err)
	}
	instructionID, settlementID, err := j.decode()
	if err != nil {
		return nil, err
	}
	return &event.FinalizeSettlement{
		InstructionID: instructionID,
		Pair:          j.Pair,
		SettlementID:  settlementID,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseFailSettlement(data []byte) (*event.FailSettlement, error) {
	var j settlementRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FailSettlement: %w", err)
	}
	instructionID, settlementID, err := j.decode()
	if err != nil {
		return nil, err
	}
	return &event.FailSettlement{
		InstructionID: instructionID,
		Pair:          j.Pair,
		SettlementID:  settlementID,
		Reason:        j.Reason,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseExpireSettlement(data []byte) (*event.ExpireSettlement, error) {
	var j settlementRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ExpireSettlement: %w", err)
	}
	instructionID, settlementID, err := j.decode()
	if err != nil {
		return nil, err
	}
	return &event.ExpireSettlement{
		InstructionID: instructionID,
		Pair:          j.Pair,
		SettlementID:  settlementID,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type openPositionJSON struct {
	InstructionID string   `json:"instruction_id"`
	Trader        string   `json:"trader"`
	Market        string   `json:"market"`
	Side          string   `json:"side"`
	Leverage      uint8    `json:"leverage"`
	Size          []byte   `json:"encrypted_size"`
	Entry         []byte   `json:"encrypted_entry"`
	Collateral    []byte   `json:"encrypted_collateral"`
	CollateralAmt int64    `json:"collateral_amount"`
	ClientNonce   uint64   `json:"client_nonce"`
	Proof         []byte   `json:"proof"`
	PublicInputs  [][]byte `json:"public_inputs"`
	InstrSequence int64    `json:"instr_sequence"`
	TimestampUs   int64    `json:"timestamp_us"`
}

func parseOpenPosition(data []byte) (*event.OpenPosition, error) {
	var j openPositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OpenPosition: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	trader, err := uuid.Parse(j.Trader)
	if err != nil {
		return nil, fmt.Errorf("parse trader: %w", err)
	}
	side, err := parseSide(j.Side)
	if err != nil {
		return nil, err
	}
	size, err := parseCiphertext("encrypted_size", j.Size)
	if err != nil {
		return nil, err
	}
	entry, err := parseCiphertext("encrypted_entry", j.Entry)
	if err != nil {
		return nil, err
	}
	collateral, err := parseCiphertext("encrypted_collateral", j.Collateral)
	if err != nil {
		return nil, err
	}

	return &event.OpenPosition{
		InstructionID:       instructionID,
		Trader:              trader,
		Market:              j.Market,
		PositionSide:        side,
		Leverage:            j.Leverage,
		EncryptedSize:       size,
		EncryptedEntry:      entry,
		EncryptedCollateral: collateral,
		CollateralAmount:    j.CollateralAmt,
		ClientNonce:         j.ClientNonce,
		Proof:               j.Proof,
		PublicInputs:        j.PublicInputs,
		InstrSequence:       j.InstrSequence,
		Timestamp:           time.UnixMicro(j.TimestampUs),
	}, nil
}

type marginJSON struct {
	InstructionID string `json:"instruction_id"`
	Trader        string `json:"trader"`
	Market        string `json:"market"`
	PositionID    string `json:"position_id"`
	Amount        int64  `json:"amount"`
	InstrSequence int64  `json:"instr_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func (j *marginJSON) decode() (uuid.UUID, uuid.UUID, [32]byte, error) {
	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return uuid.Nil, uuid.Nil, [32]byte{}, fmt.Errorf("parse instruction_id: %w", err)
	}
	trader, err := uuid.Parse(j.Trader)
	if err != nil {
		return uuid.Nil, uuid.Nil, [32]byte{}, fmt.Errorf("parse trader: %w", err)
	}
	positionID, err := parseHex32("position_id", j.PositionID)
	if err != nil {
		return uuid.Nil, uuid.Nil, [32]byte{}, err
	}
	return instructionID, trader, positionID, nil
}

func parseAddMargin(data []byte) (*event.AddMargin, error) {
	var j marginJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AddMargin: %w", err)
	}
	instructionID, trader, positionID, err := j.decode()
	if err != nil {
		return nil, err
	}
	return &event.AddMargin{
		InstructionID: instructionID,
		Trader:        trader,
		Market:        j.Market,
		PositionID:    positionID,
		Amount:        j.Amount,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseRemoveMargin(data []byte) (*event.RemoveMargin, error) {
	var j marginJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RemoveMargin: %w", err)
	}
	instructionID, trader, positionID, err := j.decode()
	if err != nil {
		return nil, err
	}
	return &event.RemoveMargin{
		InstructionID: instructionID,
		Trader:        trader,
		Market:        j.Market,
		PositionID:    positionID,
		Amount:        j.Amount,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type positionRefJSON struct {
	InstructionID string `json:"instruction_id"`
	Market        string `json:"market"`
	PositionID    string `json:"position_id"`
	InstrSequence int64  `json:"instr_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func (j *positionRefJSON) decode() (uuid.UUID, [32]byte, error) {
	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return uuid.Nil, [32]byte{}, fmt.Errorf("parse instruction_id: %w", err)
	}
	positionID, err := parseHex32("position_id", j.PositionID)
	if err != nil {
		return uuid.Nil, [32]byte{}, err
	}
	return instructionID, positionID, nil
}

func parseSettleFunding(data []byte) (*event.SettleFunding, error) {
	var j positionRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SettleFunding: %w", err)
	}
	instructionID, positionID, err := j.decode()
	if err != nil {
		return nil, err
	}
	return &event.SettleFunding{
		InstructionID: instructionID,
		Market:        j.Market,
		PositionID:    positionID,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseForceClearPosition(data []byte) (*event.ForceClearPosition, error) {
	var j positionRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ForceClearPosition: %w", err)
	}
	instructionID, positionID, err := j.decode()
	if err != nil {
		return nil, err
	}
	return &event.ForceClearPosition{
		InstructionID: instructionID,
		Market:        j.Market,
		PositionID:    positionID,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type closePositionJSON struct {
	InstructionID string `json:"instruction_id"`
	Trader        string `json:"trader"`
	Market        string `json:"market"`
	PositionID    string `json:"position_id"`
	Full          bool   `json:"full"`
	CloseSize     []byte `json:"encrypted_close_size"`
	ExitPrice     []byte `json:"encrypted_exit_price"`
	InstrSequence int64  `json:"instr_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseClosePosition(data []byte) (*event.ClosePosition, error) {
	var j closePositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClosePosition: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	trader, err := uuid.Parse(j.Trader)
	if err != nil {
		return nil, fmt.Errorf("parse trader: %w", err)
	}
	positionID, err := parseHex32("position_id", j.PositionID)
	if err != nil {
		return nil, err
	}
	closeSize, err := parseCiphertext("encrypted_close_size", j.CloseSize)
	if err != nil {
		return nil, err
	}
	exitPrice, err := parseCiphertext("encrypted_exit_price", j.ExitPrice)
	if err != nil {
		return nil, err
	}

	return &event.ClosePosition{
		InstructionID:      instructionID,
		Trader:             trader,
		Market:             j.Market,
		PositionID:         positionID,
		Full:               j.Full,
		EncryptedCloseSize: closeSize,
		EncryptedExitPrice: exitPrice,
		InstrSequence:      j.InstrSequence,
		Timestamp:          time.UnixMicro(j.TimestampUs),
	}, nil
}

type liquidatePositionJSON struct {
	InstructionID string `json:"instruction_id"`
	Liquidator    string `json:"liquidator"`
	Market        string `json:"market"`
	PositionID    string `json:"position_id"`
	InstrSequence int64  `json:"instr_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseLiquidatePosition(data []byte) (*event.LiquidatePosition, error) {
	var j liquidatePositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidatePosition: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	liquidator, err := uuid.Parse(j.Liquidator)
	if err != nil {
		return nil, fmt.Errorf("parse liquidator: %w", err)
	}
	positionID, err := parseHex32("position_id", j.PositionID)
	if err != nil {
		return nil, err
	}

	return &event.LiquidatePosition{
		InstructionID: instructionID,
		Liquidator:    liquidator,
		Market:        j.Market,
		PositionID:    positionID,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type autoDeleverageJSON struct {
	InstructionID    string `json:"instruction_id"`
	Market           string `json:"market"`
	BankruptPosition string `json:"bankrupt_position"`
	TargetPosition   string `json:"target_position"`
	InstrSequence    int64  `json:"instr_sequence"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parseAutoDeleverage(data []byte) (*event.AutoDeleverage, error) {
	var j autoDeleverageJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AutoDeleverage: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	bankrupt, err := parseHex32("bankrupt_position", j.BankruptPosition)
	if err != nil {
		return nil, err
	}
	target, err := parseHex32("target_position", j.TargetPosition)
	if err != nil {
		return nil, err
	}

	return &event.AutoDeleverage{
		InstructionID:    instructionID,
		Market:           j.Market,
		BankruptPosition: bankrupt,
		TargetPosition:   target,
		InstrSequence:    j.InstrSequence,
		Timestamp:        time.UnixMicro(j.TimestampUs),
	}, nil
}

type checkLiquidationBatchJSON struct {
	InstructionID string   `json:"instruction_id"`
	Market        string   `json:"market"`
	PositionIDs   []string `json:"position_ids"`
	InstrSequence int64    `json:"instr_sequence"`
	TimestampUs   int64    `json:"timestamp_us"`
}

func parseCheckLiquidationBatch(data []byte) (*event.CheckLiquidationBatch, error) {
	var j checkLiquidationBatchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CheckLiquidationBatch: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	ids := make([][32]byte, 0, len(j.PositionIDs))
	for i, s := range j.PositionIDs {
		id, err := parseHex32(fmt.Sprintf("position_ids[%d]", i), s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return &event.CheckLiquidationBatch{
		InstructionID: instructionID,
		Market:        j.Market,
		PositionIDs:   ids,
		InstrSequence: j.InstrSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

// mpcCallbackJSON is the superset wire format for all callback kinds. The
// collaborator gateway publishes every callback to one subject with a
// discriminating "kind" field; unused fields stay at their zero values.
type mpcCallbackJSON struct {
	Kind       string `json:"kind"`
	RequestID  string `json:"request_id"`
	Market     string `json:"market"`
	Success    bool   `json:"success"`
	CbSequence int64  `json:"cb_sequence"`

	// match
	BuyOrderID    string `json:"buy_order_id,omitempty"`
	SellOrderID   string `json:"sell_order_id,omitempty"`
	PriceCrossed  bool   `json:"price_crossed,omitempty"`
	NewBuyFilled  []byte `json:"new_buy_filled,omitempty"`
	NewSellFilled []byte `json:"new_sell_filled,omitempty"`
	BuyDone       bool   `json:"buy_done,omitempty"`
	SellDone      bool   `json:"sell_done,omitempty"`

	// threshold / margin / funding
	PositionID          string `json:"position_id,omitempty"`
	EncryptedCollateral []byte `json:"encrypted_collateral,omitempty"`
	EncryptedLiqBelow   []byte `json:"encrypted_liq_below,omitempty"`
	EncryptedLiqAbove   []byte `json:"encrypted_liq_above,omitempty"`
	Commitment          string `json:"commitment,omitempty"`

	// close
	EncryptedSize    []byte `json:"encrypted_size,omitempty"`
	RevealedPayout   int64  `json:"revealed_payout,omitempty"`
	RevealedNotional int64  `json:"revealed_notional,omitempty"`

	// liq_batch
	Results    []bool  `json:"results,omitempty"`
	Priorities []int64 `json:"priorities,omitempty"`
	Completed  bool    `json:"completed,omitempty"`

	TimestampUs int64 `json:"timestamp_us"`
}

func parseMPCCallback(data []byte) (event.Event, error) {
	var j mpcCallbackJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MPCCallback: %w", err)
	}

	requestID, err := parseRequestID(j.RequestID)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMicro(j.TimestampUs)

	switch j.Kind {
	case "match":
		buyID, err := parseHex32("buy_order_id", j.BuyOrderID)
		if err != nil {
			return nil, err
		}
		sellID, err := parseHex32("sell_order_id", j.SellOrderID)
		if err != nil {
			return nil, err
		}
		cb := &event.MatchCallback{
			RequestID:    requestID,
			Pair:         j.Market,
			BuyOrderID:   buyID,
			SellOrderID:  sellID,
			PriceCrossed: j.PriceCrossed,
			BuyDone:      j.BuyDone,
			SellDone:     j.SellDone,
			Success:      j.Success,
			CbSequence:   j.CbSequence,
			Timestamp:    ts,
		}
		if j.Success && j.PriceCrossed {
			if cb.NewBuyFilled, err = parseCiphertext("new_buy_filled", j.NewBuyFilled); err != nil {
				return nil, err
			}
			if cb.NewSellFilled, err = parseCiphertext("new_sell_filled", j.NewSellFilled); err != nil {
				return nil, err
			}
		}
		return cb, nil

	case "threshold":
		positionID, err := parseHex32("position_id", j.PositionID)
		if err != nil {
			return nil, err
		}
		cb := &event.ThresholdCallback{
			RequestID:  requestID,
			Market:     j.Market,
			PositionID: positionID,
			Success:    j.Success,
			CbSequence: j.CbSequence,
			Timestamp:  ts,
		}
		if j.Success {
			if cb.EncryptedLiqBelow, err = parseCiphertext("encrypted_liq_below", j.EncryptedLiqBelow); err != nil {
				return nil, err
			}
			if cb.EncryptedLiqAbove, err = parseCiphertext("encrypted_liq_above", j.EncryptedLiqAbove); err != nil {
				return nil, err
			}
			if cb.Commitment, err = parseHex32("commitment", j.Commitment); err != nil {
				return nil, err
			}
		}
		return cb, nil

	case "margin":
		positionID, err := parseHex32("position_id", j.PositionID)
		if err != nil {
			return nil, err
		}
		cb := &event.MarginCallback{
			RequestID:  requestID,
			Market:     j.Market,
			PositionID: positionID,
			Success:    j.Success,
			CbSequence: j.CbSequence,
			Timestamp:  ts,
		}
		if j.Success {
			if cb.EncryptedCollateral, err = parseCiphertext("encrypted_collateral", j.EncryptedCollateral); err != nil {
				return nil, err
			}
			if cb.EncryptedLiqBelow, err = parseCiphertext("encrypted_liq_below", j.EncryptedLiqBelow); err != nil {
				return nil, err
			}
			if cb.EncryptedLiqAbove, err = parseCiphertext("encrypted_liq_above", j.EncryptedLiqAbove); err != nil {
				return nil, err
			}
			if cb.Commitment, err = parseHex32("commitment", j.Commitment); err != nil {
				return nil, err
			}
		}
		return cb, nil

	case "funding":
		positionID, err := parseHex32("position_id", j.PositionID)
		if err != nil {
			return nil, err
		}
		cb := &event.FundingCallback{
			RequestID:  requestID,
			Market:     j.Market,
			PositionID: positionID,
			Success:    j.Success,
			CbSequence: j.CbSequence,
			Timestamp:  ts,
		}
		if j.Success {
			if cb.EncryptedCollateral, err = parseCiphertext("encrypted_collateral", j.EncryptedCollateral); err != nil {
				return nil, err
			}
			if cb.EncryptedLiqBelow, err = parseCiphertext("encrypted_liq_below", j.EncryptedLiqBelow); err != nil {
				return nil, err
			}
			if cb.EncryptedLiqAbove, err = parseCiphertext("encrypted_liq_above", j.EncryptedLiqAbove); err != nil {
				return nil, err
			}
			if cb.Commitment, err = parseHex32("commitment", j.Commitment); err != nil {
				return nil, err
			}
		}
		return cb, nil

	case "close":
		positionID, err := parseHex32("position_id", j.PositionID)
		if err != nil {
			return nil, err
		}
		cb := &event.CloseCallback{
			RequestID:        requestID,
			Market:           j.Market,
			PositionID:       positionID,
			RevealedPayout:   j.RevealedPayout,
			RevealedNotional: j.RevealedNotional,
			Success:          j.Success,
			CbSequence:       j.CbSequence,
			Timestamp:        ts,
		}
		if j.Success {
			if cb.EncryptedSize, err = parseCiphertext("encrypted_size", j.EncryptedSize); err != nil {
				return nil, err
			}
			if cb.EncryptedCollateral, err = parseCiphertext("encrypted_collateral", j.EncryptedCollateral); err != nil {
				return nil, err
			}
		}
		return cb, nil

	case "liq_batch":
		return &event.LiquidationBatchCallback{
			RequestID:  requestID,
			Market:     j.Market,
			Results:    j.Results,
			Priorities: j.Priorities,
			Completed:  j.Completed,
			Success:    j.Success,
			CbSequence: j.CbSequence,
			Timestamp:  ts,
		}, nil

	default:
		return nil, fmt.Errorf("unknown callback kind: %q", j.Kind)
	}
}

type oraclePriceJSON struct {
	Market      string `json:"market"`
	Price       int64  `json:"price"`
	Confidence  int64  `json:"confidence"`
	PublishedAt int64  `json:"published_at"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOraclePriceUpdate(data []byte) (*event.OraclePriceUpdate, error) {
	var j oraclePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OraclePriceUpdate: %w", err)
	}
	if j.Price <= 0 {
		return nil, fmt.Errorf("invalid oracle price: %d", j.Price)
	}

	return &event.OraclePriceUpdate{
		Market:      j.Market,
		Price:       j.Price,
		Confidence:  j.Confidence,
		PublishedAt: j.PublishedAt,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

type marketParamJSON struct {
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
	Sequence                int64  `json:"sequence"`
	TimestampUs             int64  `json:"timestamp_us"`
}

func parseMarketParamUpdate(data []byte) (*event.MarketParamUpdate, error) {
	var j marketParamJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketParamUpdate: %w", err)
	}

	return &event.MarketParamUpdate{
		Market:                  j.Market,
		MaxLeverage:             j.MaxLeverage,
		MaintenanceMarginBps:    j.MaintenanceMarginBps,
		TakerFeeBps:             j.TakerFeeBps,
		LiquidationBonusBps:     j.LiquidationBonusBps,
		InsuranceFundShareBps:   j.InsuranceFundShareBps,
		MaxLiquidationPerTx:     j.MaxLiquidationPerTx,
		MinLiquidationThreshold: j.MinLiquidationThreshold,
		ADLTriggerThreshold:     j.ADLTriggerThreshold,
		EffectiveSeq:            j.EffectiveSeq,
		Sequence:                j.Sequence,
		Timestamp:               j.TimestampUs,
	}, nil
}

type fundingIndexJSON struct {
	Market      string `json:"market"`
	LongDelta   int64  `json:"long_delta"`
	ShortDelta  int64  `json:"short_delta"`
	Epoch       int64  `json:"epoch"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseFundingIndexUpdate(data []byte) (*event.FundingIndexUpdate, error) {
	var j fundingIndexJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundingIndexUpdate: %w", err)
	}

	return &event.FundingIndexUpdate{
		Market:     j.Market,
		LongDelta:  j.LongDelta,
		ShortDelta: j.ShortDelta,
		Epoch:      j.Epoch,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type pauseUpdateJSON struct {
	Paused      bool  `json:"paused"`
	Sequence    int64 `json:"sequence"`
	TimestampUs int64 `json:"timestamp_us"`
}

func parsePauseUpdate(data []byte) (*event.PauseUpdate, error) {
	var j pauseUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PauseUpdate: %w", err)
	}

	return &event.PauseUpdate{
		Paused:    j.Paused,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}
