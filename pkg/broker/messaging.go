package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/events"
)

// ProgressionTopic carries JSON-encoded progression events.
const ProgressionTopic = "progression"

// Common errors
var (
	ErrBrokerClosed = errors.New("broker is closed")
	ErrQueueFull    = errors.New("queue is full")
)

// Message represents a generic message delivered to subscribers
type Message struct {
	ID          string            `json:"id"`
	Topic       string            `json:"topic"`
	Payload     []byte            `json:"payload"`
	PublishedAt time.Time         `json:"published_at"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// MessageHandler is a function that processes messages
type MessageHandler func(context.Context, *Message) error

// Subscription represents a subscription to a topic
type Subscription interface {
	ID() string
	Topic() string
	Unsubscribe() error
}

// InMemoryBroker fans messages out to in-process subscribers. It stands in
// for the Redis channel when Redis is not configured.
type InMemoryBroker struct {
	subscriptions map[string]map[string]MessageHandler
	mu            sync.RWMutex
	inflight      chan struct{}
	wg            sync.WaitGroup
	logger        *zap.Logger
	closed        bool
}

type subscription struct {
	id     string
	topic  string
	broker *InMemoryBroker
	once   sync.Once
}

// NewInMemoryBroker creates a broker allowing at most queueSize deliveries
// in flight at once.
func NewInMemoryBroker(logger *zap.Logger, queueSize int) *InMemoryBroker {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryBroker{
		subscriptions: make(map[string]map[string]MessageHandler),
		inflight:      make(chan struct{}, queueSize),
		logger:        logger,
	}
}

// Publish delivers payload to every current subscriber of topic
// asynchronously. Publishing to a topic without subscribers is a no-op.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, payload []byte, attributes map[string]string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	msg := &Message{
		ID:          uuid.New().String(),
		Topic:       topic,
		Payload:     payload,
		PublishedAt: time.Now(),
		Attributes:  attributes,
	}

	for _, handler := range b.subscriptions[topic] {
		select {
		case b.inflight <- struct{}{}:
		default:
			return ErrQueueFull
		}
		b.wg.Add(1)
		go b.processMessage(handler, msg)
	}
	return nil
}

// Subscribe registers handler for topic
func (b *InMemoryBroker) Subscribe(topic string, handler MessageHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	if _, ok := b.subscriptions[topic]; !ok {
		b.subscriptions[topic] = make(map[string]MessageHandler)
	}
	sub := &subscription{id: uuid.New().String(), topic: topic, broker: b}
	b.subscriptions[topic][sub.id] = handler
	return sub, nil
}

// PublishProgressionEvent publishes e on ProgressionTopic
func (b *InMemoryBroker) PublishProgressionEvent(ctx context.Context, e *events.ProgressionEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.Publish(ctx, ProgressionTopic, data, map[string]string{
		"event_type": e.EventType,
		"user":       e.UserID.String(),
	})
}

// SubscribeToProgressionEvents decodes progression events for callback
func (b *InMemoryBroker) SubscribeToProgressionEvents(callback func(*events.ProgressionEvent) error) (Subscription, error) {
	return b.Subscribe(ProgressionTopic, func(_ context.Context, msg *Message) error {
		var e events.ProgressionEvent
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return err
		}
		return callback(&e)
	})
}

func (b *InMemoryBroker) processMessage(handler MessageHandler, msg *Message) {
	defer func() {
		<-b.inflight
		b.wg.Done()
	}()

	// The publisher's context may already be gone by the time we run.
	if err := handler(context.Background(), msg); err != nil {
		b.logger.Error("Error processing message",
			zap.String("message_id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.Error(err))
	}
}

// Close stops accepting messages and waits for in-flight deliveries.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscriptions = nil
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (s *subscription) ID() string    { return s.id }
func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		if subs, ok := s.broker.subscriptions[s.topic]; ok {
			delete(subs, s.id)
		}
	})
	return nil
}
