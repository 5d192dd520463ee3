package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeName = "library.events"
	exchangeType = "topic"

	// Event types
	EventTypeLoanCreated  = "loan.created"
	EventTypeLoanReturned = "loan.returned"

	// Retry configuration
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

// errNacked reports a publish the broker refused.
var errNacked = errors.New("event not acknowledged")

// Publisher emits circulation events. Handlers publish through this
// interface so the broker can be swapped out or disabled entirely.
type Publisher interface {
	PublishLoanCreated(ctx context.Context, loanID, bookID, readerID uint, borrowDate time.Time) error
	PublishLoanReturned(ctx context.Context, loanID, bookID, readerID uint, returnDate time.Time) error
	IsHealthy() bool
	Close() error
}

// Event represents a domain event
type Event struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	EventVersion  string                 `json:"event_version"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID attaches a correlation id that published events
// will carry.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

func newEvent(ctx context.Context, eventType string, payload map[string]interface{}) Event {
	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  "1.0.0",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: correlationID(ctx),
		Payload:       payload,
	}
}

// RabbitMQPublisher publishes events to a RabbitMQ topic exchange.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

// NewPublisher connects to RabbitMQ and declares the events exchange.
func NewPublisher(url string, log *zap.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	if err := channel.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Enable publisher confirms for reliability
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Info("Connected to RabbitMQ", zap.String("exchange", exchangeName))

	return &RabbitMQPublisher{
		conn:    conn,
		channel: channel,
		log:     log,
	}, nil
}

// PublishLoanCreated publishes a loan created event
func (p *RabbitMQPublisher) PublishLoanCreated(ctx context.Context, loanID, bookID, readerID uint, borrowDate time.Time) error {
	event := newEvent(ctx, EventTypeLoanCreated, map[string]interface{}{
		"loan_id":     loanID,
		"book_id":     bookID,
		"reader_id":   readerID,
		"borrow_date": borrowDate.UTC().Format(time.RFC3339),
	})

	return p.publishWithRetry(ctx, EventTypeLoanCreated, event)
}

// PublishLoanReturned publishes a loan returned event
func (p *RabbitMQPublisher) PublishLoanReturned(ctx context.Context, loanID, bookID, readerID uint, returnDate time.Time) error {
	event := newEvent(ctx, EventTypeLoanReturned, map[string]interface{}{
		"loan_id":     loanID,
		"book_id":     bookID,
		"reader_id":   readerID,
		"return_date": returnDate.UTC().Format(time.RFC3339),
	})

	return p.publishWithRetry(ctx, EventTypeLoanReturned, event)
}

// publishWithRetry publishes an event with exponential backoff retry
func (p *RabbitMQPublisher) publishWithRetry(ctx context.Context, routingKey string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to marshal event", zap.Error(err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}

		// Publish with a per-message confirmation handle
		deferred, err := p.channel.PublishWithDeferredConfirmWithContext(
			ctx,
			exchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				MessageId:    event.EventID,
				Body:         body,
				Headers: amqp.Table{
					"event_type":    event.EventType,
					"event_version": event.EventVersion,
				},
			},
		)

		if err != nil {
			lastErr = err
			p.log.Warn("Failed to publish event, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		// Wait for confirmation
		attemptCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
		err = awaitConfirmation(attemptCtx, deferred)
		cancel()
		if err == nil {
			p.log.Info("Event published successfully",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
				zap.String("routing_key", routingKey),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		p.log.Warn("Event publish not confirmed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	p.log.Error("Failed to publish event after retries",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

// confirmation is the pending broker acknowledgement for one publish.
type confirmation interface {
	Done() <-chan struct{}
	Acked() bool
}

// awaitConfirmation blocks until the broker settles the publish or the
// context expires.
func awaitConfirmation(ctx context.Context, c confirmation) error {
	select {
	case <-c.Done():
		if c.Acked() {
			return nil
		}
		return errNacked
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsHealthy checks if the publisher connection is healthy
func (p *RabbitMQPublisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the publisher connection
func (p *RabbitMQPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}

// NopPublisher drops all events. Used when no broker is configured and
// in tests.
type NopPublisher struct{}

func NewNopPublisher() *NopPublisher { return &NopPublisher{} }

func (*NopPublisher) PublishLoanCreated(context.Context, uint, uint, uint, time.Time) error {
	return nil
}

func (*NopPublisher) PublishLoanReturned(context.Context, uint, uint, uint, time.Time) error {
	return nil
}

func (*NopPublisher) IsHealthy() bool { return true }

func (*NopPublisher) Close() error { return nil }
