// Package rabbitmq connects the pipeline to the message broker: pass
// completion events go out, rescrape triggers come in.
package rabbitmq

import (
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"scraping_service/internal/config"
)

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

// New dials the broker and declares both durable queues up front so producer
// and consumer never race on topology.
func New(log *slog.Logger, cfg config.RabbitMQ) (*Client, error) {
	const op = "rabbitmq.New"

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, queue := range []string{cfg.EventQueue, cfg.RescrapeQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("%s: declare %s: %w", op, queue, err)
		}
	}

	return &Client{conn: conn, ch: ch, log: log}, nil
}

func (c *Client) Close() error {
	const op = "rabbitmq.Close"

	if err := c.ch.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
