// Package scraper defines the vendor adapter contract and the shared
// fetch machinery the per-vendor packages plug into.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"scraping_service/internal/models"
	"scraping_service/internal/retry"
)

// Page is one fetched vendor page.
type Page struct {
	Body   string
	Status int
}

// Adapter is the per-vendor fetch and extract strategy. Extract runs only on
// pages that passed the block and status checks.
type Adapter interface {
	Kind() models.VendorKind

	// BuildURL returns the product page URL for a listing, or false when the
	// listing's SKU cannot produce a valid URL.
	BuildURL(listing models.Listing) (string, bool)

	// Fetch acquires the page. attempt is zero-based and lets adapters rotate
	// identities between retries.
	Fetch(ctx context.Context, url string, attempt int) (Page, error)

	// Blocked reports whether the body is an anti-bot interstitial.
	Blocked(body string) bool

	// Extract pulls the vendor-specific raw field bag out of the body.
	Extract(body, url string) map[string]string
}

// TerminalChecker is implemented by adapters whose pages can carry an error
// heading that makes retrying pointless.
type TerminalChecker interface {
	TerminalError(body string) string
}

// UserAgents is the rotation pool shared by the HTTP-based adapters.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
}

func RandomUserAgent() string {
	return UserAgents[rand.Intn(len(UserAgents))]
}

var blockIndicators = []string{
	"captcha", "recaptcha", "verify you are human",
	"robot check", "security page", "access denied",
	"you have been blocked", "suspicious activity",
	"please enable cookies", "browser check", "just a moment",
	"checking your browser", "ddos protection", "cloudflare",
}

// BlockedContent detects anti-bot interstitials by keyword.
func BlockedContent(body string) bool {
	lower := strings.ToLower(body)
	for _, indicator := range blockIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// SleepJitter sleeps a uniformly random duration in [min, max], honoring
// cancellation. Used by adapters that pace their requests.
func SleepJitter(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetPage performs one HTTP GET and reads the full body regardless of status,
// since vendor error pages still carry extractable signals.
func GetPage(ctx context.Context, client *http.Client, url string, headers http.Header) (Page, error) {
	const op = "scraper.GetPage"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("%s: %w", op, err)
	}
	if headers != nil {
		req.Header = headers.Clone()
	}

	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("%s: %w", op, err)
	}

	return Page{Body: string(body), Status: resp.StatusCode}, nil
}

const blockedErrorStatus = "Blocked by security (CAPTCHA/Robot check)"

// Fetcher drives one adapter under a retry policy and turns the outcome into
// a RawResult. It never returns an error; failures are encoded in the result
// so the pass keeps moving.
type Fetcher struct {
	log     *slog.Logger
	adapter Adapter
	policy  retry.Policy
}

// NewFetcher installs a default retry classification when the policy carries
// none: transport errors, server-side statuses and block pages repeat, any
// other HTTP status is terminal.
func NewFetcher(log *slog.Logger, adapter Adapter, policy retry.Policy) *Fetcher {
	if policy.RetryOn == nil {
		policy.RetryOn = retryableOutcome
	}
	return &Fetcher{
		log:     log,
		adapter: adapter,
		policy:  policy,
	}
}

func retryableOutcome(o retry.Outcome) bool {
	if o.Blocked {
		return true
	}
	if o.Status == 0 {
		return o.Err != nil
	}
	return o.Status >= http.StatusInternalServerError
}

func (f *Fetcher) Kind() models.VendorKind {
	return f.adapter.Kind()
}

// Fetch resolves one representative listing to a raw field bag.
func (f *Fetcher) Fetch(ctx context.Context, listing models.Listing) models.RawResult {
	result := models.RawResult{
		ListingID: listing.ID,
		VendorSKU: listing.VendorSKU,
	}

	url, ok := f.adapter.BuildURL(listing)
	if !ok {
		result.ErrorStatus = "Missing vendor SKU for URL"
		return result
	}
	result.URL = url

	var page Page
	var terminal string

	out, attempts := retry.Do(ctx, f.policy, func(ctx context.Context, attempt int) retry.Outcome {
		p, err := f.adapter.Fetch(ctx, url, attempt)
		if err != nil {
			return retry.Outcome{Err: err}
		}
		page = p

		if tc, ok := f.adapter.(TerminalChecker); ok {
			if msg := tc.TerminalError(p.Body); msg != "" {
				terminal = msg
				return retry.Outcome{Status: p.Status}
			}
		}

		if f.adapter.Blocked(p.Body) {
			return retry.Outcome{Status: p.Status, Blocked: true}
		}

		if p.Status != http.StatusOK {
			return retry.Outcome{Status: p.Status, Err: fmt.Errorf("status %d", p.Status)}
		}

		return retry.Outcome{Status: p.Status}
	})

	switch {
	case terminal != "":
		result.ErrorStatus = terminal
	case out.Blocked:
		result.ErrorStatus = blockedErrorStatus
	case out.Err != nil && out.Status != 0:
		result.ErrorStatus = fmt.Sprintf("Failed to retrieve: Status %d", out.Status)
	case out.Err != nil:
		result.ErrorStatus = out.Err.Error()
	}

	if result.ErrorStatus != "" {
		f.log.Warn("fetch failed",
			slog.String("vendor", string(f.adapter.Kind())),
			slog.Int64("listing_id", listing.ID),
			slog.Int("attempts", attempts),
			slog.String("error_status", result.ErrorStatus),
		)
		return result
	}

	result.Success = true
	result.Fields = f.adapter.Extract(page.Body, url)

	return result
}
