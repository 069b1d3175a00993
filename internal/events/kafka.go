package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards bus events to a Kafka topic. Handle only enqueues;
// Run does the writes so publishers never wait on the broker.
type KafkaSink struct {
	writer  messageWriter
	queue   chan Event
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *zerolog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaSink(w, 1024, logger)
}

func newKafkaSink(w messageWriter, buffer int, logger *zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer:  w,
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Handle is an EventHandler. A full queue drops the event with a warning.
func (s *KafkaSink) Handle(ev Event) error {
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn().Str("event", ev.Type).Str("event_id", ev.ID).Msg("Kafka queue full, event dropped")
	}
	return nil
}

// Run writes queued events until ctx is done, then flushes what is left.
func (s *KafkaSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case ev := <-s.queue:
			s.write(ev)
		}
	}
}

func (s *KafkaSink) drain() {
	for {
		select {
		case ev := <-s.queue:
			s.write(ev)
		default:
			return
		}
	}
}

func (s *KafkaSink) write(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.Type),
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("event", ev.Type).Str("event_id", ev.ID).Msg("Kafka write failed")
		return
	}
	s.logger.Debug().Str("event", ev.Type).Str("event_id", ev.ID).Msg("Event sent to Kafka")
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
