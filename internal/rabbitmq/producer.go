package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"scraping_service/internal/models"
)

// PublishSummary emits one pass completion event to the event queue.
func (c *Client) PublishSummary(ctx context.Context, queue string, summary models.PassSummary) error {
	const op = "rabbitmq.PublishSummary"

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
