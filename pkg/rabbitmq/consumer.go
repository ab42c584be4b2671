package rabbitmq

import (
	"context"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery. Returning false drops the message without requeue.
type Handler func(ctx context.Context, body []byte) bool

// Consumer reads from one durable queue bound to a topic exchange.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	done chan struct{}
}

// NewConsumer connects to RabbitMQ and opens a consuming channel.
func NewConsumer(amqpURL string) (*Consumer, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, done: make(chan struct{})}, nil
}

// Done is closed when the delivery loop started by Consume stops.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Consume binds queueName to routingKey on exchange and dispatches deliveries to handler
// one at a time until ctx is cancelled or the channel closes.
func (c *Consumer) Consume(ctx context.Context, exchange, queueName, routingKey string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("no handler provided for %s", routingKey)
	}
	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return err
	}
	if err := c.ch.Qos(1, 0, false); err != nil {
		return err
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		defer close(c.done)
		deliver(ctx, q.Name, msgs, handler)
	}()

	return nil
}

// deliver dispatches deliveries until ctx is cancelled or msgs closes. It reports
// whether the broker closed the channel.
func deliver(ctx context.Context, queue string, msgs <-chan amqp.Delivery, handler Handler) (closed bool) {
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-msgs:
			if !ok {
				log.Printf("level=error component=rabbitmq_consumer queue=%s msg=\"delivery channel closed; consumer stopped\"", queue)
				return true
			}
			if handler(ctx, d.Body) {
				if err := d.Ack(false); err != nil {
					log.Printf("level=warn component=rabbitmq_consumer queue=%s msg=\"ack failed\" err=%v", queue, err)
				}
				continue
			}
			log.Printf("level=warn component=rabbitmq_consumer queue=%s routing_key=%s msg=\"handler rejected message; dropping\"", queue, d.RoutingKey)
			if err := d.Nack(false, false); err != nil {
				log.Printf("level=warn component=rabbitmq_consumer queue=%s msg=\"nack failed\" err=%v", queue, err)
			}
		}
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
