package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type VendorKind string

const (
	VendorEbayUS   VendorKind = "ebayus"
	VendorEbayAU   VendorKind = "ebayau"
	VendorCostcoAU VendorKind = "costcoau"
	VendorAmazonAU VendorKind = "amazonau"
)

func ParseVendorKind(s string) (VendorKind, bool) {
	switch VendorKind(strings.ToLower(strings.TrimSpace(s))) {
	case VendorEbayUS:
		return VendorEbayUS, true
	case VendorEbayAU:
		return VendorEbayAU, true
	case VendorCostcoAU:
		return VendorCostcoAU, true
	case VendorAmazonAU:
		return VendorAmazonAU, true
	}
	return "", false
}

// Listing is a read-only row from the catalog snapshot. Identity fields are
// owned by the catalog service; the scraper never writes them.
type Listing struct {
	ID            int64      `json:"id" db:"id"`
	VendorID      int64      `json:"vendor_id" db:"vendor_id"`
	VendorKind    VendorKind `json:"vendor_kind" db:"vendor_kind"`
	VendorSKU     string     `json:"vendor_sku" db:"vendor_sku"`
	MarketplaceID int64      `json:"marketplace_id" db:"marketplace_id"`
	StoreID       int64      `json:"store_id" db:"store_id"`
}

// FetchTarget is the dedup key: one network fetch per distinct target.
type FetchTarget struct {
	VendorID int64
	SKU      string
}

// NormalizeSKU strips the trailing ".N" variation suffix the marketplace feed
// appends to vendor SKUs and trims whitespace.
func NormalizeSKU(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "."); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Target builds the dedup key for a listing.
func (l Listing) Target() FetchTarget {
	return FetchTarget{VendorID: l.VendorID, SKU: NormalizeSKU(l.VendorSKU)}
}

// RawResult is what a vendor adapter produced for one representative listing.
// Fields is an untyped bag; the set of keys differs per vendor.
type RawResult struct {
	ListingID   int64             `json:"listing_id"`
	VendorSKU   string            `json:"vendor_sku"`
	URL         string            `json:"url"`
	Success     bool              `json:"success"`
	ErrorStatus string            `json:"error_status"`
	Fields      map[string]string `json:"fields"`
}

// NormalizedResult is the rule engine's verdict for one representative. It is
// fanned out verbatim (modulo ListingID) to every member of the dedup group.
type NormalizedResult struct {
	ListingID      int64             `json:"listing_id"`
	FinalPrice     decimal.Decimal   `json:"final_price"`
	FinalInventory int               `json:"final_inventory"`
	ShippingPrice  decimal.Decimal   `json:"calculated_shipping_price"`
	NeedsRescrape  bool              `json:"needs_rescrape"`
	ErrorDetails   string            `json:"error_details"`
	Raw            map[string]string `json:"raw"`
}

// WithListingID returns a copy of the result re-addressed to another member
// of the same dedup group.
func (n NormalizedResult) WithListingID(id int64) NormalizedResult {
	n.ListingID = id
	return n
}

// AuditRecord is one append-only scrape history row.
type AuditRecord struct {
	ListingID      int64           `json:"listing_id"`
	ScrapeTime     time.Time       `json:"scrape_time"`
	RawResponse    RawResult       `json:"raw_response"`
	FinalPrice     decimal.Decimal `json:"final_price"`
	FinalInventory int             `json:"final_inventory"`
	ShippingPrice  decimal.Decimal `json:"calculated_shipping_price"`
	NeedsRescrape  bool            `json:"needs_rescrape"`
	ErrorDetails   string          `json:"error_details"`
}

// CurrentPriceState is the mutable per-listing row downstream sync reads.
// It is replaced wholesale on every pass, never patched.
type CurrentPriceState struct {
	ListingID int64           `json:"listing_id"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	ErrorCode string          `json:"error_code"`
	ScrapedAt time.Time       `json:"scraped_at"`
}

// PassSummary is the completion event payload.
type PassSummary struct {
	SessionID          string     `json:"session_id"`
	VendorKind         VendorKind `json:"vendor_kind"`
	TotalListings      int        `json:"total_listings"`
	Successful         int        `json:"successful"`
	Failed             int        `json:"failed"`
	DurationSeconds    int64      `json:"duration_seconds"`
	RescrapeListingIDs []int64    `json:"rescrape_listing_ids"`
}

// PassProgress is the batch-boundary checkpoint the job-tracking service polls.
type PassProgress struct {
	SessionID  string     `json:"session_id"`
	VendorKind VendorKind `json:"vendor_kind"`
	State      string     `json:"state"`
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

const (
	PassStateRunning   = "running"
	PassStateCompleted = "completed"
)

// RescrapeRequest is the message an external system publishes to re-run the
// pipeline over previously flagged listings.
type RescrapeRequest struct {
	VendorKind VendorKind `json:"vendor_kind"`
	ListingIDs []int64    `json:"listing_ids"`
}
