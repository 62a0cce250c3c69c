package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scraping_service/internal/models"
)

func TestWebhookNotifier_PostsSummary(t *testing.T) {
	var received webhookPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &WebhookNotifier{url: srv.URL, client: &http.Client{Timeout: time.Second}}

	err := n.NotifyPassComplete(context.Background(), models.PassSummary{
		SessionID:          "2026-08-30_12-00-00",
		VendorKind:         models.VendorEbayAU,
		TotalListings:      120,
		Successful:         117,
		Failed:             3,
		DurationSeconds:    640,
		RescrapeListingIDs: []int64{4, 9},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if received.SessionID != "2026-08-30_12-00-00" {
		t.Errorf("session_id = %q", received.SessionID)
	}
	if received.TotalListings != 120 || received.Successful != 117 || received.Failed != 3 {
		t.Errorf("counts = %+v", received)
	}
	if len(received.RescrapeIDs) != 2 || received.RescrapeIDs[0] != 4 {
		t.Errorf("product_ids = %v", received.RescrapeIDs)
	}
	if received.Source != "scraping_service" {
		t.Errorf("source = %q", received.Source)
	}
	if received.TriggeredAt == "" {
		t.Error("triggered_at must be set")
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := &WebhookNotifier{url: srv.URL, client: &http.Client{Timeout: time.Second}}

	if err := n.NotifyPassComplete(context.Background(), models.PassSummary{}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestWebhookNotifier_MissingURL(t *testing.T) {
	n := &WebhookNotifier{url: "", client: http.DefaultClient}

	if err := n.NotifyPassComplete(context.Background(), models.PassSummary{}); err == nil {
		t.Fatal("expected error for unconfigured url")
	}
}
