package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anonto42/questlog/backend/pkg/metrics"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// KafkaPublisher writes events as JSON to a single topic.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: newWriter(brokers, topic)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: value,
	})
	metrics.EventsPublished.WithLabelValues(event.Type, metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("write event %s: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Retry bounds how often a message is handled before it is dead-lettered,
// and the backoff between attempts and after fetch errors.
type Retry struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

var DefaultRetry = Retry{Attempts: 5, MinDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second}

// delay doubles from MinDelay for each failed attempt, capped at MaxDelay.
func (r Retry) delay(attempt int) time.Duration {
	d := r.MinDelay
	for i := 1; i < attempt && d < r.MaxDelay; i++ {
		d *= 2
	}
	return min(d, r.MaxDelay)
}

// Consumer feeds events from a Kafka consumer group into a Handler.
// A message that still fails after Retry.Attempts is written to the
// dead-letter topic and only then committed, so no offset is skipped
// while its event is unaccounted for.
type Consumer struct {
	reader     messageReader
	deadLetter messageWriter
	handler    Handler
	retry      Retry
}

func NewConsumer(brokers []string, topic, groupID, deadLetterTopic string, handler Handler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		deadLetter: newWriter(brokers, deadLetterTopic),
		handler:    handler,
		retry:      DefaultRetry,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	fetchFailures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fetchFailures++
			log.Error().Err(err).Int("failures", fetchFailures).Msg("Error reading message")
			if !sleep(ctx, c.retry.delay(fetchFailures)) {
				return nil
			}
			continue
		}
		fetchFailures = 0

		if !c.process(ctx, msg) {
			return nil
		}
		c.commit(ctx, msg)
	}
}

// process returns false only when ctx is cancelled before msg is accounted for.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error().Err(err).Str("key", string(msg.Key)).Msg("Error unmarshalling event")
		return c.park(ctx, msg, err)
	}

	var err error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if err = c.handler.Handle(ctx, event); err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Warn().Err(err).Str("type", event.Type).Str("id", event.ID).Int("attempt", attempt).Msg("Error handling event")
		if attempt < c.retry.Attempts && !sleep(ctx, c.retry.delay(attempt)) {
			return false
		}
	}
	log.Error().Err(err).Str("type", event.Type).Str("id", event.ID).Msg("Giving up on event")
	return c.park(ctx, msg, err)
}

// park writes msg to the dead-letter topic, retrying until it succeeds or ctx ends.
func (c *Consumer) park(ctx context.Context, msg kafka.Message, cause error) bool {
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "source", Value: []byte(fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset))},
		),
	}
	for attempt := 1; ; attempt++ {
		err := c.deadLetter.WriteMessages(ctx, dead)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("Error writing dead letter")
		if !sleep(ctx, c.retry.delay(attempt)) {
			return false
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("Error committing offset")
	}
}

func (c *Consumer) Close() error {
	err := c.reader.Close()
	if derr := c.deadLetter.Close(); err == nil {
		err = derr
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
