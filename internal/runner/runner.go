// Package runner executes scrape work in sequential batches with a bounded
// number of in-flight fetches inside each batch.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"scraping_service/internal/models"
)

// FetchFunc performs the full fetch-retry-normalize path for one
// representative listing. It must not panic under normal operation; the
// runner still converts a panic into a terminal failed result so one bad
// page cannot take down the pass.
type FetchFunc func(ctx context.Context, listing models.Listing) models.NormalizedResult

// BatchFunc is invoked after every batch with that batch's results.
type BatchFunc func(ctx context.Context, results []models.NormalizedResult) error

type Runner struct {
	log         *slog.Logger
	batchSize   int
	concurrency int
}

func New(log *slog.Logger, batchSize, concurrency int) *Runner {
	if batchSize < 1 {
		batchSize = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		log:         log,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Run processes listings batch by batch. Batches run strictly one after
// another; within a batch at most `concurrency` fetches are in flight.
// Cancellation is honored between batches so an in-progress batch always
// drains before Run returns.
func (r *Runner) Run(ctx context.Context, listings []models.Listing, fetch FetchFunc, onBatch BatchFunc) error {
	const op = "runner.Run"

	for start := 0; start < len(listings); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		end := start + r.batchSize
		if end > len(listings) {
			end = len(listings)
		}
		batch := listings[start:end]

		results := r.runBatch(ctx, batch, fetch)

		if onBatch != nil {
			if err := onBatch(ctx, results); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	return nil
}

func (r *Runner) runBatch(ctx context.Context, batch []models.Listing, fetch FetchFunc) []models.NormalizedResult {
	results := make([]models.NormalizedResult, len(batch))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i, listing := range batch {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, listing models.Listing) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = r.fetchOne(ctx, listing, fetch)
		}(i, listing)
	}

	wg.Wait()

	return results
}

func (r *Runner) fetchOne(ctx context.Context, listing models.Listing, fetch FetchFunc) (res models.NormalizedResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("fetch panicked",
				slog.Int64("listing_id", listing.ID),
				slog.Any("panic", rec),
			)
			res = models.NormalizedResult{
				ListingID:    listing.ID,
				ErrorDetails: fmt.Sprintf("internal error: %v", rec),
			}
		}
	}()

	return fetch(ctx, listing)
}
