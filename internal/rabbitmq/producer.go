// Package rabbitmq publishes payment outcomes to a RabbitMQ topic exchange
// for downstream consumers such as reconciliation and analytics.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher is implemented by types that can publish events
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// Fallback is a no-op publisher used when RabbitMQ is not configured or
// unreachable at startup.
type Fallback struct{}

func (Fallback) Publish(_ context.Context, exchange, routingKey string, _ interface{}) error {
	log.Printf("⚠ [EVENTS] RabbitMQ unavailable, skipped %s/%s", exchange, routingKey)
	return nil
}

func (Fallback) Close() {}

// Producer holds the RabbitMQ connection and channel
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	declared map[string]bool
}

// NewProducer dials RabbitMQ with a bounded timeout
func NewProducer(amqpURL string) (*Producer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Producer{conn: conn, channel: ch, declared: make(map[string]bool)}, nil
}

// Connect returns a Producer, or Fallback when amqpURL is empty or the broker
// cannot be reached.
func Connect(amqpURL string) Publisher {
	if amqpURL == "" {
		return Fallback{}
	}
	p, err := NewProducer(amqpURL)
	if err != nil {
		log.Printf("⚠ [EVENTS] RabbitMQ connect failed, outcomes will not be published: %v", err)
		return Fallback{}
	}
	log.Println("✓ [EVENTS] Connected to RabbitMQ")
	return p
}

// Publish sends body as JSON to a durable topic exchange. A failed publish
// reopens the channel and is tried once more.
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.publish(ctx, exchange, routingKey, payload); err == nil {
		return nil
	}
	log.Printf("⚠ [EVENTS] Publish to %s/%s failed, reopening channel: %v", exchange, routingKey, err)

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	p.declared = make(map[string]bool)
	return p.publish(ctx, exchange, routingKey, payload)
}

func (p *Producer) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		p.declared[exchange] = true
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

// Close closes the channel and connection
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
