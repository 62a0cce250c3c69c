// Package notifier delivers the pass completion event to the external
// automation system. Delivery is fire-and-forget: a lost notification never
// invalidates persisted scrape results.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"scraping_service/internal/config"
	"scraping_service/internal/models"
	"scraping_service/internal/rabbitmq"
)

type Notifier interface {
	NotifyPassComplete(ctx context.Context, summary models.PassSummary) error
}

// New selects the sink from config: "amqp" publishes to the event queue,
// anything else posts to the webhook URL.
func New(cfg config.Notifier, mq *rabbitmq.Client, eventQueue string) Notifier {
	if cfg.Sink == "amqp" {
		return &AMQPNotifier{mq: mq, queue: eventQueue}
	}
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookPayload mirrors the contract the downstream automation flow expects.
type webhookPayload struct {
	SessionID     string  `json:"session_id"`
	VendorKind    string  `json:"vendor_kind"`
	TotalListings int     `json:"total_products"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	Duration      int64   `json:"duration_seconds"`
	RescrapeIDs   []int64 `json:"product_ids"`
	TriggeredAt   string  `json:"triggered_at"`
	Source        string  `json:"source"`
}

func (n *WebhookNotifier) NotifyPassComplete(ctx context.Context, summary models.PassSummary) error {
	const op = "notifier.Webhook.NotifyPassComplete"

	if n.url == "" {
		return fmt.Errorf("%s: webhook url not configured", op)
	}

	body, err := json.Marshal(webhookPayload{
		SessionID:     summary.SessionID,
		VendorKind:    string(summary.VendorKind),
		TotalListings: summary.TotalListings,
		Successful:    summary.Successful,
		Failed:        summary.Failed,
		Duration:      summary.DurationSeconds,
		RescrapeIDs:   summary.RescrapeListingIDs,
		TriggeredAt:   time.Now().UTC().Format(time.RFC3339),
		Source:        "scraping_service",
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	return nil
}

type AMQPNotifier struct {
	mq    *rabbitmq.Client
	queue string
}

func (n *AMQPNotifier) NotifyPassComplete(ctx context.Context, summary models.PassSummary) error {
	const op = "notifier.AMQP.NotifyPassComplete"

	if err := n.mq.PublishSummary(ctx, n.queue, summary); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
