package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicCart     = "cart_events"
	TopicCheckout = "checkout_events"
	TopicAuth     = "auth_events"
)

var Topics = []string{TopicCart, TopicCheckout, TopicAuth}

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
	Close() error
}

type CartEvent struct {
	Type      string    `json:"type"`
	VisitorID string    `json:"visitor_id"`
	Email     string    `json:"email,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	Lines     int       `json:"lines"`
	At        time.Time `json:"at"`
}

type CheckoutEvent struct {
	Type          string    `json:"type"`
	Email         string    `json:"email"`
	OrderID       string    `json:"order_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Amount        float64   `json:"amount"`
	Items         int       `json:"items"`
	At            time.Time `json:"at"`
}

type AuthEvent struct {
	Type      string    `json:"type"`
	VisitorID string    `json:"visitor_id"`
	Email     string    `json:"email,omitempty"`
	At        time.Time `json:"at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}}
}

func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// EnsureTopics creates topics on the cluster controller, ignoring ones that
// already exist.
func EnsureTopics(broker string, topics ...string) error {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka: dial: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: controller: %w", err)
	}
	admin, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: dial controller: %w", err)
	}
	defer admin.Close()

	cfgs := make([]kafka.TopicConfig, 0, len(topics))
	for _, tp := range topics {
		cfgs = append(cfgs, kafka.TopicConfig{Topic: tp, NumPartitions: 1, ReplicationFactor: 1})
	}
	err = admin.CreateTopics(cfgs...)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	return nil
}

// Nop drops every event. It stands in when no brokers are configured.
type Nop struct{}

func (Nop) PublishEvent(context.Context, string, string, any) error { return nil }

func (Nop) Close() error { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	Topic string
	Key   string
	Event any
}

func (r *Recorder) PublishEvent(_ context.Context, topic, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Topic: topic, Key: key, Event: event})
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Snapshot() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.Events...)
}

// Emit publishes on a detached context and only logs failures; events never
// fail the user operation that produced them.
func Emit(ctx context.Context, p Publisher, log *slog.Logger, topic, key string, event any) {
	if p == nil {
		return
	}
	if err := p.PublishEvent(context.WithoutCancel(ctx), topic, key, event); err != nil {
		log.Warn("event_publish_error", "topic", topic, "error", err)
	}
}
