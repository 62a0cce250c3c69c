// Package pipeline orchestrates a scrape pass: snapshot, dedup, batched
// fetching, rule normalization, fan-out persistence, progress checkpoints and
// the completion notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scraping_service/internal/config"
	"scraping_service/internal/dedup"
	sl "scraping_service/internal/lib/logger"
	"scraping_service/internal/metrics"
	"scraping_service/internal/models"
	"scraping_service/internal/notifier"
	"scraping_service/internal/retry"
	"scraping_service/internal/rules"
	"scraping_service/internal/runner"
	"scraping_service/internal/scraper"
	"scraping_service/internal/scraper/amazonau"
	"scraping_service/internal/scraper/costcoau"
	"scraping_service/internal/scraper/ebayau"
	"scraping_service/internal/scraper/ebayus"
)

var (
	ErrPassInProgress       = errors.New("pass already in progress for vendor")
	ErrNoRescrapeCandidates = errors.New("no rescrape candidates")
	ErrUnknownVendor        = errors.New("unknown vendor kind")
)

// Store is the relational surface the pipeline needs. SaveResults must treat
// write failures as partial (returning the saved count) and error only on
// unrecoverable conditions such as cancellation; a SaveResults error aborts
// the pass.
type Store interface {
	ActiveListings(ctx context.Context, kind models.VendorKind) ([]models.Listing, error)
	ListingsByIDs(ctx context.Context, ids []int64) ([]models.Listing, error)
	RescrapeCandidates(ctx context.Context, kind models.VendorKind) ([]int64, error)
	SaveResults(ctx context.Context, results []models.NormalizedResult, scrapeTime time.Time, chunkSize int) (int, error)
}

// ProgressStore checkpoints pass state at batch boundaries.
type ProgressStore interface {
	SaveProgress(ctx context.Context, p models.PassProgress) error
}

// Fetcher resolves one representative listing to a raw field bag.
type Fetcher interface {
	Kind() models.VendorKind
	Fetch(ctx context.Context, listing models.Listing) models.RawResult
}

type Pipeline struct {
	log      *slog.Logger
	vendors  config.Vendors
	store    Store
	progress ProgressStore
	notify   notifier.Notifier

	fetchers map[models.VendorKind]Fetcher
	engines  map[models.VendorKind]rules.Engine

	mu      sync.Mutex
	running map[models.VendorKind]string
}

// New wires the per-vendor fetchers and rule engines. The browser session is
// shared by the amazonau adapter and must already be started.
func New(log *slog.Logger, cfg *config.Config, store Store, progress ProgressStore, notify notifier.Notifier, browser *amazonau.Session) (*Pipeline, error) {
	const op = "pipeline.New"

	ebayAUAdapter, err := ebayau.New(
		cfg.Vendors.EbayAU.Timeout,
		cfg.Vendors.EbayAU.RequestDelayMin,
		cfg.Vendors.EbayAU.RequestDelayMax,
		cfg.Vendors.EbayAU.Rules.SessionCookies,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	adapters := map[models.VendorKind]scraper.Adapter{
		models.VendorEbayUS: ebayus.New(
			cfg.Vendors.EbayUS.Timeout,
			cfg.Vendors.EbayUS.RequestDelayMin,
			cfg.Vendors.EbayUS.RequestDelayMax,
		),
		models.VendorEbayAU: ebayAUAdapter,
		models.VendorCostcoAU: costcoau.New(
			cfg.Vendors.CostcoAU.Timeout,
			cfg.Vendors.CostcoAU.RequestDelayMin,
			cfg.Vendors.CostcoAU.RequestDelayMax,
		),
		models.VendorAmazonAU: amazonau.New(browser),
	}

	fetchers := make(map[models.VendorKind]Fetcher, len(adapters))
	engines := make(map[models.VendorKind]rules.Engine, len(adapters))
	for kind, adapter := range adapters {
		v := cfg.Vendors.ForKind(kind)
		fetchers[kind] = scraper.NewFetcher(log, adapter, policyFor(kind, v))
		engines[kind] = rules.ForKind(kind, v.Rules)
	}

	return &Pipeline{
		log:      log,
		vendors:  cfg.Vendors,
		store:    store,
		progress: progress,
		notify:   notify,
		fetchers: fetchers,
		engines:  engines,
		running:  make(map[models.VendorKind]string),
	}, nil
}

// policyFor maps vendor tuning onto the retry loop. The browser vendor treats
// a captcha as terminal; its session already reloads once internally.
func policyFor(kind models.VendorKind, v config.Vendor) retry.Policy {
	p := retry.Policy{
		MaxRetries: v.RetryLimit,
		BaseDelay:  v.BackoffBase,
		JitterMin:  v.JitterMin,
		JitterMax:  v.JitterMax,
	}
	if kind == models.VendorAmazonAU {
		p.RetryOn = func(o retry.Outcome) bool { return !o.Blocked }
	}
	return p
}

// Started describes a pass that has been accepted and is running detached.
type Started struct {
	SessionID string
	Queued    int
	Estimate  time.Duration
}

// StartPass launches a detached pass over every active listing of the vendor
// and returns its session id plus the queued listing count.
func (p *Pipeline) StartPass(ctx context.Context, kind models.VendorKind) (Started, error) {
	const op = "pipeline.StartPass"

	if _, ok := p.fetchers[kind]; !ok {
		return Started{}, fmt.Errorf("%s: %w", op, ErrUnknownVendor)
	}

	listings, err := p.store.ActiveListings(ctx, kind)
	if err != nil {
		return Started{}, fmt.Errorf("%s: %w", op, err)
	}

	sessionID := time.Now().Format("2006-01-02_15-04-05")
	if err := p.acquire(kind, sessionID); err != nil {
		return Started{}, fmt.Errorf("%s: %w", op, err)
	}

	go p.runPass(context.WithoutCancel(ctx), kind, sessionID, listings, true)

	return Started{
		SessionID: sessionID,
		Queued:    len(listings),
		Estimate:  p.estimate(kind, len(listings)),
	}, nil
}

// Rescrape launches a detached pass over an explicit id set, or over the
// currently flagged candidates when the set is empty.
func (p *Pipeline) Rescrape(ctx context.Context, req models.RescrapeRequest) (Started, error) {
	const op = "pipeline.Rescrape"

	if _, ok := p.fetchers[req.VendorKind]; !ok {
		return Started{}, fmt.Errorf("%s: %w", op, ErrUnknownVendor)
	}

	ids := req.ListingIDs
	if len(ids) == 0 {
		var err error
		ids, err = p.store.RescrapeCandidates(ctx, req.VendorKind)
		if err != nil {
			return Started{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if len(ids) == 0 {
		return Started{}, fmt.Errorf("%s: %w", op, ErrNoRescrapeCandidates)
	}

	listings, err := p.store.ListingsByIDs(ctx, ids)
	if err != nil {
		return Started{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(listings) == 0 {
		return Started{}, fmt.Errorf("%s: %w", op, ErrNoRescrapeCandidates)
	}

	sessionID := time.Now().Format("2006-01-02_15-04-05") + "_rescrape"
	if err := p.acquire(req.VendorKind, sessionID); err != nil {
		return Started{}, fmt.Errorf("%s: %w", op, err)
	}

	go p.runPass(context.WithoutCancel(ctx), req.VendorKind, sessionID, listings, false)

	return Started{
		SessionID: sessionID,
		Queued:    len(listings),
		Estimate:  p.estimate(req.VendorKind, len(listings)),
	}, nil
}

// estimate is a rough upper bound: batches run sequentially and a batch is
// bounded by one page timeout plus the inter-request delay.
func (p *Pipeline) estimate(kind models.VendorKind, queued int) time.Duration {
	v := p.vendors.ForKind(kind)
	if v.BatchSize < 1 || queued == 0 {
		return 0
	}
	batches := (queued + v.BatchSize - 1) / v.BatchSize
	return time.Duration(batches) * (v.Timeout + v.RequestDelayMax)
}

func (p *Pipeline) acquire(kind models.VendorKind, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, busy := p.running[kind]; busy {
		return fmt.Errorf("%w: session %s", ErrPassInProgress, current)
	}
	p.running[kind] = sessionID
	return nil
}

func (p *Pipeline) release(kind models.VendorKind) {
	p.mu.Lock()
	delete(p.running, kind)
	p.mu.Unlock()
}

// runPass executes one full pass. extraRound allows a single follow-up round
// over listings flagged for a rescrape; rescrape-triggered passes never chain
// further rounds.
func (p *Pipeline) runPass(ctx context.Context, kind models.VendorKind, sessionID string, listings []models.Listing, extraRound bool) {
	defer p.release(kind)

	metrics.PassesRunning.Inc()
	defer metrics.PassesRunning.Dec()

	log := p.log.With(
		slog.String("vendor", string(kind)),
		slog.String("session_id", sessionID),
	)
	log.Info("pass started", slog.Int("listings", len(listings)))

	start := time.Now()
	v := p.vendors.ForKind(kind)

	stats, err := p.runRound(ctx, kind, sessionID, listings, v.BatchSize, 0, len(listings))
	if err != nil {
		// Only cancellation reaches here; an aborted pass sends no
		// completion event.
		log.Error("pass aborted", sl.Err(err))
		return
	}

	remaining := stats.rescrape
	if extraRound && len(remaining) > 0 {
		log.Info("rescrape round", slog.Int("flagged", len(remaining)))

		relistings, err := p.store.ListingsByIDs(ctx, remaining)
		if err != nil {
			log.Error("rescrape round skipped", sl.Err(err))
		} else {
			second, err := p.runRound(ctx, kind, sessionID, relistings, v.RescrapeBatch, len(listings), len(listings))
			if err != nil {
				log.Error("rescrape round aborted", sl.Err(err))
			} else {
				remaining = second.rescrape
			}
		}
	}

	summary := models.PassSummary{
		SessionID:          sessionID,
		VendorKind:         kind,
		TotalListings:      len(listings),
		Successful:         stats.successful,
		Failed:             stats.failed,
		DurationSeconds:    int64(time.Since(start).Seconds()),
		RescrapeListingIDs: remaining,
	}

	p.checkpoint(ctx, sessionID, kind, models.PassStateCompleted, len(listings), len(listings))

	metrics.PassListings.WithLabelValues(string(kind)).Add(float64(len(listings)))
	metrics.RescrapeFlagged.WithLabelValues(string(kind)).Add(float64(len(remaining)))

	if err := p.notify.NotifyPassComplete(ctx, summary); err != nil {
		log.Error("completion notification failed", sl.Err(err))
	}

	log.Info("pass completed",
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
		slog.Int("rescrape_flagged", len(remaining)),
		slog.Int64("duration_seconds", summary.DurationSeconds),
	)
}

type roundStats struct {
	successful int
	failed     int
	rescrape   []int64
}

// runRound fetches every unique target once, fans results out to all group
// members and persists each batch before the next one starts. Progress
// checkpoints report against the pass-level total: progressBase is how many
// listings earlier rounds already covered, so a poller never sees the total
// shrink during a follow-up round.
func (p *Pipeline) runRound(ctx context.Context, kind models.VendorKind, sessionID string, listings []models.Listing, batchSize, progressBase, passTotal int) (roundStats, error) {
	const op = "pipeline.runRound"

	var stats roundStats

	groups := dedup.Build(listings)
	reps := dedup.Representatives(groups)

	groupByRep := make(map[int64]dedup.Group, len(groups))
	for _, g := range groups {
		groupByRep[g.Representative.ID] = g
	}

	fetcher := p.fetchers[kind]
	engine := p.engines[kind]
	v := p.vendors.ForKind(kind)

	fetch := func(ctx context.Context, listing models.Listing) models.NormalizedResult {
		begin := time.Now()
		raw := fetcher.Fetch(ctx, listing)
		metrics.FetchDuration.WithLabelValues(string(kind)).Observe(time.Since(begin).Seconds())

		status := "ok"
		if !raw.Success {
			status = "failed"
		}
		metrics.FetchesTotal.WithLabelValues(string(kind), status).Inc()

		return engine.Apply(raw)
	}

	processed := 0
	onBatch := func(ctx context.Context, results []models.NormalizedResult) error {
		byRep := make(map[int64]models.NormalizedResult, len(results))
		batchGroups := make([]dedup.Group, 0, len(results))
		for _, res := range results {
			byRep[res.ListingID] = res
			if g, ok := groupByRep[res.ListingID]; ok {
				batchGroups = append(batchGroups, g)
			}
		}

		fanned := dedup.FanOut(batchGroups, byRep)

		saved, err := p.store.SaveResults(ctx, fanned, time.Now().UTC(), v.PersistChunkSize)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		okCount, failCount := 0, 0
		for _, res := range fanned {
			if res.ErrorDetails == "" {
				okCount++
			} else {
				failCount++
			}
			if res.NeedsRescrape {
				stats.rescrape = append(stats.rescrape, res.ListingID)
			}
		}

		// Results the store could not persist count as failed.
		if unsaved := len(fanned) - saved; unsaved > 0 {
			metrics.PersistFailures.Inc()
			if unsaved > okCount {
				unsaved = okCount
			}
			okCount -= unsaved
			failCount += unsaved
		}

		stats.successful += okCount
		stats.failed += failCount

		processed += len(fanned)
		done := progressBase + processed
		if done > passTotal {
			done = passTotal
		}
		p.checkpoint(ctx, sessionID, kind, models.PassStateRunning, done, passTotal)

		return nil
	}

	r := runner.New(p.log, batchSize, v.Concurrency)
	if err := r.Run(ctx, reps, fetch, onBatch); err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}

	return stats, nil
}

// checkpoint failures degrade observability only, never the pass.
func (p *Pipeline) checkpoint(ctx context.Context, sessionID string, kind models.VendorKind, state string, processed, total int) {
	err := p.progress.SaveProgress(ctx, models.PassProgress{
		SessionID:  sessionID,
		VendorKind: kind,
		State:      state,
		Processed:  processed,
		Total:      total,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		p.log.Warn("progress checkpoint failed",
			slog.String("session_id", sessionID),
			sl.Err(err),
		)
	}
}
