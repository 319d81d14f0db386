package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"textingest/internal/domain"
	"textingest/internal/etl"
)

// Publisher delivers messages to an AMQP 0-9-1 broker. Each target queue
// is declared once (non-durable, non-exclusive) and messages are routed
// through the configured exchange using the queue name as routing key.
type Publisher struct {
	exchange string
	logger   *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// Dial connects to the broker and opens a channel.
func Dial(qc domain.QueueConnection, logger *zap.Logger) (*Publisher, error) {
	if qc.Addr == "" {
		return nil, errors.New("amqp: broker address is empty (set AMQP_ADDR)")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.DialConfig(qc.Addr, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	logger.Debug("amqp connected", zap.String("exchange", qc.Exchange))
	return &Publisher{
		exchange: qc.Exchange,
		logger:   logger,
		conn:     conn,
		ch:       ch,
		declared: map[string]bool{},
	}, nil
}

// Publish declares queue on first use then publishes msg to it.
func (p *Publisher) Publish(ctx context.Context, queue string, msg etl.Message) error {
	if queue == "" {
		return fmt.Errorf("%w: empty queue name", etl.ErrSinkRejected)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		return fmt.Errorf("%w: amqp channel closed", etl.ErrSinkConnection)
	}
	if !p.declared[queue] {
		if _, err := p.ch.QueueDeclare(queue, false, false, false, false, nil); err != nil {
			return classify(err)
		}
		p.declared[queue] = true
		p.logger.Debug("queue declared", zap.String("queue", queue))
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, queue, false, false, publishing(msg, time.Now())); err != nil {
		return classify(err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}

// publishing builds a transient message carrying the record's line number.
func publishing(msg etl.Message, now time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Transient,
		MessageId:    msg.ID,
		Timestamp:    now,
		Headers:      amqp.Table{"line": int64(msg.Line)},
		Body:         msg.Body,
	}
}

func classify(err error) error {
	var amqpErr *amqp.Error
	switch {
	case errors.Is(err, amqp.ErrClosed), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", etl.ErrSinkConnection, err)
	case errors.As(err, &amqpErr) && !amqpErr.Recover:
		return fmt.Errorf("%w: %v", etl.ErrSinkConnection, err)
	default:
		return fmt.Errorf("%w: %v", etl.ErrSinkRejected, err)
	}
}
