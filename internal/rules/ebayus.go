package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"scraping_service/internal/config"
	"scraping_service/internal/models"
)

// EbayUS normalizes the domestic eBay scrapes. The listing pages carry the
// same signals as the AU variant but shipping is not folded into the price.
type EbayUS struct {
	cfg config.Rules
}

func NewEbayUS(cfg config.Rules) *EbayUS {
	return &EbayUS{cfg: cfg}
}

func (e *EbayUS) Kind() models.VendorKind { return models.VendorEbayUS }

func (e *EbayUS) Apply(raw models.RawResult) models.NormalizedResult {
	return models.NormalizedResult{
		ListingID:      raw.ListingID,
		FinalPrice:     CleanPrice(raw.Fields["price"], fallbackPrice(e.cfg)),
		FinalInventory: ValidateInventory(e.inventory(raw.ErrorStatus, raw.Fields)),
		ShippingPrice:  decimal.Zero,
		NeedsRescrape:  false,
		ErrorDetails:   raw.ErrorStatus,
		Raw:            raw.Fields,
	}
}

func (e *EbayUS) inventory(errorStatus string, fields map[string]string) int {
	handling := fields["handling_time"]
	sellerAway := fields["seller_away"]
	ended := fields["ended_listings"]
	quantity := fields["quantity"]
	stock := strings.ToLower(fields["stock"])

	if strings.Contains(errorStatus, "We looked everywhere") {
		return 0
	}

	if strings.Contains(handling, "Will usually ship within") {
		if days := FirstNumber(handling); days > e.cfg.MaxHandlingDays {
			return 0
		}
	}

	if strings.TrimSpace(sellerAway) != "" {
		return 0
	}

	if strings.TrimSpace(ended) != "" {
		return 0
	}

	if strings.Contains(stock, "out of stock") {
		return 0
	}

	if m := maxQuantityPattern.FindStringSubmatch(quantity); m != nil {
		return FirstNumber(m[1])
	}

	if n := FirstNumber(stock); n >= 0 {
		return n
	}

	if strings.Contains(stock, "last") || strings.Contains(stock, "only") {
		return e.cfg.LimitedSentinel
	}

	if strings.Contains(stock, "available") || strings.Contains(stock, "in stock") {
		return e.cfg.InStockSentinel
	}

	return 0
}
