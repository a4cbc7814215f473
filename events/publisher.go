package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"github.com/segmentio/kafka-go"
)

// MovementEvent is published once per committed ledger write or approval decision.
type MovementEvent struct {
	Id            int                      `json:"id"`
	MovementType  inventory.MovementType   `json:"movement_type"`
	Status        inventory.ApprovalStatus `json:"status"`
	Date          string                   `json:"date"`
	LockKeys      []string                 `json:"lock_keys"`
	Actor         string                   `json:"actor"`
	CorrelationId string                   `json:"correlation_id,omitempty"`
	PublishedAt   time.Time                `json:"published_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e MovementEvent) error
}

// messageWriter abstracts kafka.Writer for tests.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher writes to topic on a comma-separated broker list.
func NewKafkaPublisher(bootstrap string, topic string) *KafkaPublisher {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		if a = strings.TrimSpace(a); a != "" {
			brokers = append(brokers, a)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	}}
}

func NewKafkaPublisherWith(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish keys the message by the first lock key so one bucket's events stay ordered on a partition.
func (k *KafkaPublisher) Publish(ctx context.Context, e MovementEvent) error {
	b, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	key := fmt.Sprintf("%s#%d", e.MovementType, e.Id)
	if len(e.LockKeys) > 0 {
		key = e.LockKeys[0]
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: b,
		Headers: []kafka.Header{
			{Key: "movement_type", Value: []byte(e.MovementType)},
		},
	})
}

// Close flushes and closes the underlying kafka writer.
func (k *KafkaPublisher) Close() error {
	if c, ok := k.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, MovementEvent) error { return nil }

var (
	mu        sync.RWMutex
	publisher Publisher = nopPublisher{}
)

// Connect installs a kafka publisher when KAFKA_BROKERS is set. Topic defaults to stock.movements.
func Connect() {
	brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if brokers == "" {
		return
	}
	topic := strings.TrimSpace(os.Getenv("KAFKA_MOVEMENT_TOPIC"))
	if topic == "" {
		topic = "stock.movements"
	}
	SetPublisher(NewKafkaPublisher(brokers, topic))
	config.GetLogger().WithField("topic", topic).Info("movement events enabled")
}

func SetPublisher(p Publisher) {
	mu.Lock()
	defer mu.Unlock()
	if p == nil {
		p = nopPublisher{}
	}
	publisher = p
}

// Emit publishes e after the ledger commit. A failed publish is logged; the write already stands.
func Emit(ctx context.Context, e MovementEvent) {
	mu.RLock()
	p := publisher
	mu.RUnlock()
	if e.PublishedAt.IsZero() {
		e.PublishedAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		config.LogError(config.GetLogger(), "events", "Emit", "publishing movement event", e, err)
	}
}

// Close releases the installed publisher and falls back to a no-op one.
func Close() error {
	mu.Lock()
	p := publisher
	publisher = nopPublisher{}
	mu.Unlock()
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
