package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// ExecuteSubject is the request/reply subject the relayer answers on.
const ExecuteSubject = "shadow.transfer.execute"

// NATSEngine calls the external relayer over NATS request/reply. The
// relayer either moves the full amount and replies with the transfer id,
// or replies with an error and nothing moved.
type NATSEngine struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSEngine(nc *nats.Conn, timeout time.Duration) *NATSEngine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSEngine{nc: nc, timeout: timeout}
}

type executeRequest struct {
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
	Asset  string    `json:"asset"`
	Amount int64     `json:"amount"`
}

type executeResponse struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Error      string    `json:"error,omitempty"`
}

func (e *NATSEngine) Transfer(ctx context.Context, from, to uuid.UUID, asset string, amount int64) (ID, error) {
	if amount <= 0 {
		return uuid.Nil, fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	data, err := json.Marshal(executeRequest{From: from, To: to, Asset: asset, Amount: amount})
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal transfer request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	msg, err := e.nc.RequestWithContext(timeoutCtx, ExecuteSubject, data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("transfer relayer: %w", err)
	}

	var resp executeResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return uuid.Nil, fmt.Errorf("decode transfer response: %w", err)
	}
	if resp.Error != "" {
		return uuid.Nil, fmt.Errorf("transfer relayer: %s", resp.Error)
	}
	if resp.TransferID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("transfer relayer returned no id")
	}
	return resp.TransferID, nil
}
