package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"shelfcast/internal/domain"
)

const DefaultDecisionTopic = "shelfcast.decisions"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DecisionEvent is the payload written for every decision served.
type DecisionEvent struct {
	domain.DecisionRecord
	DecidedAt time.Time `json:"decided_at"`
}

// Publisher writes decision records to Kafka, keyed by store/dept so one
// location's decisions stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		topic = DefaultDecisionTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 5 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newPublisher(w, topic), nil
}

func newPublisher(w messageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic, now: time.Now}
}

func (p *Publisher) PublishDecision(ctx context.Context, rec domain.DecisionRecord) error {
	payload, err := json.Marshal(DecisionEvent{DecisionRecord: rec, DecidedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(rec.Store) + ":" + strconv.Itoa(rec.Dept)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "stock_status", Value: []byte(rec.StockStatus)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish decision to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
