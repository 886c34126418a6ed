package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MarketSettle/internal/event"
	"MarketSettle/internal/observability"
	"MarketSettle/internal/store"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// StreamName is the JetStream stream holding outbound settlement events.
const StreamName = "MARKET_SETTLE_EVENTS"

// Publisher drains committed settlement events from the engine's emit
// channel, appends each to the Postgres event log, and publishes it to NATS.
// Subjects follow market.settle.events.{event_type}.{market_id}.
type Publisher struct {
	js      jetstream.JetStream
	input   <-chan event.Envelope
	log     store.EventLog
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func New(js jetstream.JetStream, input <-chan event.Envelope, eventLog store.EventLog, metrics *observability.Metrics, logger zerolog.Logger) *Publisher {
	return &Publisher{
		js:      js,
		input:   input,
		log:     eventLog,
		metrics: metrics,
		logger:  logger.With().Str("component", "publisher").Logger(),
	}
}

// Run drains the input channel until it closes or ctx is cancelled. The
// event log write happens before the NATS publish: a consumer that misses a
// message can always recover from the log.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.input:
			if !ok {
				return nil
			}
			p.handle(ctx, env)
		}
	}
}

func (p *Publisher) handle(ctx context.Context, env event.Envelope) {
	if p.log != nil {
		if err := p.appendLog(ctx, env); err != nil {
			p.logger.Error().Err(err).Int64("sequence", env.Sequence).Msg("event log append failed")
			if p.metrics != nil {
				p.metrics.EventLogErrors.Inc()
			}
		} else if p.metrics != nil {
			p.metrics.EventLogWritten.Inc()
			p.metrics.EventLogLastSeq.Set(float64(env.Sequence))
		}
	}

	if err := p.publish(ctx, env); err != nil {
		// Non-fatal: consumers can recover from the event log.
		p.logger.Warn().Err(err).Int64("sequence", env.Sequence).Msg("outbound publish failed")
		if p.metrics != nil {
			p.metrics.PublishErrors.Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(env.TypeName).Inc()
	}
}

func (p *Publisher) appendLog(ctx context.Context, env event.Envelope) error {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return p.log.AppendEvent(ctx, store.EventRecord{
		Sequence:  env.Sequence,
		EventType: env.TypeName,
		MarketID:  env.MarketID,
		Payload:   payload,
		Timestamp: env.Timestamp,
	})
}

func (p *Publisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("market.settle.events.%s.%s", env.TypeName, env.MarketID)

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		p.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"market.settle.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
