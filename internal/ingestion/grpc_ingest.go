package ingestion

import (
	"context"
	"fmt"
	"time"

	"ShadowSettle/internal/event"
)

// GRPCIngestService provides admin/manual event injection via gRPC.
// gRPC ingest is for admin operations and operational recovery, not for
// high-throughput ingestion (use NATS for that). Client instructions and
// MPC callbacks never enter here.
type GRPCIngestService struct {
	eventChan chan<- event.Event
}

func NewGRPCIngestService(eventChan chan<- event.Event) *GRPCIngestService {
	return &GRPCIngestService{eventChan: eventChan}
}

// InjectOraclePrice manually injects an OraclePriceUpdate event.
func (s *GRPCIngestService) InjectOraclePrice(
	ctx context.Context,
	market string,
	price int64,
	sequence int64,
) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive")
	}

	evt := &event.OraclePriceUpdate{
		Market:      market,
		Price:       price,
		Confidence:  0,
		PublishedAt: time.Now().Unix(),
		Sequence:    sequence,
		Timestamp:   time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectMarketParams manually injects a MarketParamUpdate event.
func (s *GRPCIngestService) InjectMarketParams(
	ctx context.Context,
	update *event.MarketParamUpdate,
) error {
	if update.Market == "" {
		return fmt.Errorf("market must be set")
	}
	if update.Timestamp == 0 {
		update.Timestamp = time.Now().UnixMicro()
	}
	if update.Sequence == 0 {
		update.Sequence = time.Now().UnixMicro() // Admin-injected: use timestamp as sequence
	}

	select {
	case s.eventChan <- update:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectFundingIndex manually injects a FundingIndexUpdate event.
func (s *GRPCIngestService) InjectFundingIndex(
	ctx context.Context,
	market string,
	longDelta, shortDelta int64,
	epoch int64,
) error {
	if market == "" {
		return fmt.Errorf("market must be set")
	}

	evt := &event.FundingIndexUpdate{
		Market:     market,
		LongDelta:  longDelta,
		ShortDelta: shortDelta,
		Epoch:      epoch,
		Sequence:   time.Now().UnixMicro(),
		Timestamp:  time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPause manually flips the exchange-wide pause flag.
func (s *GRPCIngestService) InjectPause(ctx context.Context, paused bool) error {
	evt := &event.PauseUpdate{
		Paused:    paused,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
