package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/nkrishang/mad-protocol/internal/observability"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds raw
// events into the shell loop via eventChan. Each subject maps to one
// event type; the operations stream carries the gateway's contiguous
// op_sequence, the price stream runs on its own cadence.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the
// shell to validate and convert into a typed event.Event before sending
// to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after successful processing
	NakFunc   func() // NAK on failure (redelivered)
}

// SubjectConfig maps NATS subjects to event types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "mad.ops.mint.>", EventType: "MintRequested", ConsumerName: "ledger-mint", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.close.>", EventType: "CloseRequested", ConsumerName: "ledger-close", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.supply.>", EventType: "SupplyRequested", ConsumerName: "ledger-supply", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.withdraw.>", EventType: "WithdrawRequested", ConsumerName: "ledger-withdraw", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.redeem.>", EventType: "RedeemRequested", ConsumerName: "ledger-redeem", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.liquidate.>", EventType: "LiquidateRequested", ConsumerName: "ledger-liquidate", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.stake.>", EventType: "StakeRequested", ConsumerName: "ledger-stake", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.unstake.>", EventType: "UnstakeRequested", ConsumerName: "ledger-unstake", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.claim.>", EventType: "ClaimRequested", ConsumerName: "ledger-claim", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.deposit.>", EventType: "DepositConfirmed", ConsumerName: "ledger-deposit", StreamName: "MAD_OPS"},
		{Subject: "mad.ops.withdrawal.>", EventType: "WithdrawalConfirmed", ConsumerName: "ledger-withdrawal", StreamName: "MAD_OPS"},
		{Subject: "mad.prices.>", EventType: "PriceUpdate", ConsumerName: "ledger-prices", StreamName: "MAD_PRICES"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		logger:    observability.NewLogger("ingestion"),
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
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't
// exist. Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "MAD_OPS",
			Subjects:  []string{"mad.ops.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MAD_PRICES",
			Subjects:  []string{"mad.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	logger := observability.NewLogger("ingestion")
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
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
