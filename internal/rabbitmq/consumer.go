package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	sl "scraping_service/internal/lib/logger"
	"scraping_service/internal/models"
)

// RescrapeHandler runs one rescrape request to completion.
type RescrapeHandler func(ctx context.Context, req models.RescrapeRequest) error

// ConsumeRescrapes drains the rescrape queue until ctx is cancelled. Messages
// are handled by a bounded worker pool; malformed payloads are dropped,
// handler failures are logged and dropped rather than requeued, since the
// flagged listings stay in the store for the next trigger anyway.
func (c *Client) ConsumeRescrapes(ctx context.Context, queue string, poolSize int, handler RescrapeHandler) error {
	const op = "rabbitmq.ConsumeRescrapes"

	if poolSize < 1 {
		poolSize = 1
	}

	deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sem := make(chan struct{}, poolSize)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case d, ok := <-deliveries:
			if !ok {
				wg.Wait()
				return fmt.Errorf("%s: delivery channel closed", op)
			}

			var req models.RescrapeRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				c.log.Error("malformed rescrape request", sl.Err(err))
				_ = d.Nack(false, false)
				continue
			}

			wg.Add(1)
			sem <- struct{}{}

			go func(d amqp.Delivery, req models.RescrapeRequest) {
				defer wg.Done()
				defer func() { <-sem }()

				if err := handler(ctx, req); err != nil {
					c.log.Error("rescrape request failed",
						slog.String("vendor", string(req.VendorKind)),
						slog.Int("listing_ids", len(req.ListingIDs)),
						sl.Err(err),
					)
				}
				_ = d.Ack(false)
			}(d, req)
		}
	}
}
