// Package postgres is the relational store behind the pipeline: the listing
// snapshot it reads and the audit/current-price tables it writes.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scraping_service/internal/config"
	sl "scraping_service/internal/lib/logger"
	"scraping_service/internal/models"
)

type Storage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func New(ctx context.Context, log *slog.Logger, cfg config.Postgres) (*Storage, error) {
	const op = "storage.postgres.New"

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool, log: log}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

const listingColumns = "id, vendor_id, vendor_kind, vendor_sku, marketplace_id, store_id"

// ActiveListings returns the read-only snapshot of active listings for one
// vendor kind, in stable id order.
func (s *Storage) ActiveListings(ctx context.Context, kind models.VendorKind) ([]models.Listing, error) {
	const op = "storage.postgres.ActiveListings"

	rows, err := s.pool.Query(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE vendor_kind = $1 AND is_active ORDER BY id",
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanListings(rows, op)
}

// ListingsByIDs returns the listings for an explicit id set, preserving only
// ids that still exist.
func (s *Storage) ListingsByIDs(ctx context.Context, ids []int64) ([]models.Listing, error) {
	const op = "storage.postgres.ListingsByIDs"

	rows, err := s.pool.Query(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE id = ANY($1) ORDER BY id",
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanListings(rows, op)
}

// RescrapeCandidates returns listing ids whose most recent audit record was
// flagged for a rescrape.
func (s *Storage) RescrapeCandidates(ctx context.Context, kind models.VendorKind) ([]int64, error) {
	const op = "storage.postgres.RescrapeCandidates"

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (a.listing_id) a.listing_id
		FROM scrape_audit a
		JOIN listings l ON l.id = a.listing_id
		WHERE l.vendor_kind = $1 AND a.needs_rescrape
		ORDER BY a.listing_id, a.scrape_time DESC`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ids, nil
}

func scanListings(rows pgx.Rows, op string) ([]models.Listing, error) {
	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		var kind string
		if err := rows.Scan(&l.ID, &l.VendorID, &kind, &l.VendorSKU, &l.MarketplaceID, &l.StoreID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		l.VendorKind = models.VendorKind(kind)
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return listings, nil
}

// SaveResults writes fanned-out results in chunks: one audit insert plus one
// current-price upsert per listing. Unknown listing ids are silently skipped
// by the guarded inserts. Persistence failures are chunk-scoped: a failed
// chunk is logged and skipped after a reconnect attempt and the remaining
// chunks still go through. Returns how many results were persisted; the only
// error is context cancellation.
func (s *Storage) SaveResults(ctx context.Context, results []models.NormalizedResult, scrapeTime time.Time, chunkSize int) (int, error) {
	const op = "storage.postgres.SaveResults"

	if chunkSize < 1 {
		chunkSize = 1
	}

	saved := 0
	for start := 0; start < len(results); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return saved, fmt.Errorf("%s: %w", op, err)
		}

		end := start + chunkSize
		if end > len(results) {
			end = len(results)
		}
		chunk := results[start:end]

		if err := s.saveChunk(ctx, chunk, scrapeTime); err != nil {
			s.log.Error("chunk save failed, skipping",
				slog.Int("offset", start),
				slog.Int("size", len(chunk)),
				sl.Err(err),
			)
			// Transient connection failures poison subsequent chunks unless
			// the pool re-establishes itself first.
			if pingErr := s.pool.Ping(ctx); pingErr != nil {
				s.log.Error("reconnect ping failed", sl.Err(pingErr))
			}
			continue
		}

		saved += len(chunk)
	}

	return saved, nil
}

func (s *Storage) saveChunk(ctx context.Context, chunk []models.NormalizedResult, scrapeTime time.Time) error {
	const op = "storage.postgres.saveChunk"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	for _, res := range chunk {
		rawJSON, err := json.Marshal(res.Raw)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO scrape_audit
				(listing_id, scrape_time, raw_response, final_price, final_inventory,
				 calculated_shipping_price, needs_rescrape, error_details)
			SELECT id, $2, $3, $4, $5, $6, $7, $8 FROM listings WHERE id = $1`,
			res.ListingID, scrapeTime, rawJSON, res.FinalPrice, res.FinalInventory,
			res.ShippingPrice, res.NeedsRescrape, res.ErrorDetails,
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO current_prices (listing_id, price, stock, error_code, scraped_at)
			SELECT id, $2, $3, $4, $5 FROM listings WHERE id = $1
			ON CONFLICT (listing_id) DO UPDATE SET
				price = EXCLUDED.price,
				stock = EXCLUDED.stock,
				error_code = EXCLUDED.error_code,
				scraped_at = EXCLUDED.scraped_at`,
			res.ListingID, res.FinalPrice, res.FinalInventory, res.ErrorDetails, scrapeTime,
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
