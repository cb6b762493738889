package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan. JetStream is the only
// ingestion surface: client instructions, admin updates, oracle prices
// and MPC callbacks all arrive here.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Each
// instruction type has its own subject so consumers scale independently;
// all MPC callbacks share one subject and carry their kind in the payload.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "shadow.instr.orders.place.>", EventType: "PlaceOrder", ConsumerName: "settle-order-place", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.orders.cancel.>", EventType: "CancelOrder", ConsumerName: "settle-order-cancel", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.orders.match.>", EventType: "MatchOrders", ConsumerName: "settle-order-match", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.settlement.initiate.>", EventType: "InitiateSettlement", ConsumerName: "settle-stl-initiate", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.settlement.transfer.>", EventType: "RecordTransfer", ConsumerName: "settle-stl-transfer", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.settlement.finalize.>", EventType: "FinalizeSettlement", ConsumerName: "settle-stl-finalize", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.settlement.fail.>", EventType: "FailSettlement", ConsumerName: "settle-stl-fail", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.settlement.expire.>", EventType: "ExpireSettlement", ConsumerName: "settle-stl-expire", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.positions.open.>", EventType: "OpenPosition", ConsumerName: "settle-pos-open", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.positions.margin.add.>", EventType: "AddMargin", ConsumerName: "settle-pos-margin-add", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.positions.margin.remove.>", EventType: "RemoveMargin", ConsumerName: "settle-pos-margin-remove", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.positions.funding.>", EventType: "SettleFunding", ConsumerName: "settle-pos-funding", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.positions.close.>", EventType: "ClosePosition", ConsumerName: "settle-pos-close", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.positions.forceclear.>", EventType: "ForceClearPosition", ConsumerName: "settle-pos-forceclear", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.liquidation.execute.>", EventType: "LiquidatePosition", ConsumerName: "settle-liq-execute", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.liquidation.adl.>", EventType: "AutoDeleverage", ConsumerName: "settle-liq-adl", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.instr.liquidation.batch.>", EventType: "CheckLiquidationBatch", ConsumerName: "settle-liq-batch", StreamName: "SHADOW_INSTRUCTIONS"},
		{Subject: "shadow.admin.params.>", EventType: "MarketParamUpdate", ConsumerName: "settle-admin-params", StreamName: "SHADOW_ADMIN"},
		{Subject: "shadow.admin.funding.>", EventType: "FundingIndexUpdate", ConsumerName: "settle-admin-funding", StreamName: "SHADOW_ADMIN"},
		{Subject: "shadow.admin.pause", EventType: "PauseUpdate", ConsumerName: "settle-admin-pause", StreamName: "SHADOW_ADMIN"},
		{Subject: "shadow.oracle.prices.>", EventType: "OraclePriceUpdate", ConsumerName: "settle-oracle-prices", StreamName: "SHADOW_ORACLE"},
		{Subject: "shadow.mpc.callbacks", EventType: "MPCCallback", ConsumerName: "settle-mpc-callbacks", StreamName: "SHADOW_MPC_CALLBACKS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "SHADOW_INSTRUCTIONS",
			Subjects:  []string{"shadow.instr.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SHADOW_ADMIN",
			Subjects:  []string{"shadow.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SHADOW_ORACLE",
			Subjects:  []string{"shadow.oracle.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SHADOW_MPC_CALLBACKS",
			Subjects:  []string{"shadow.mpc.callbacks"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
