package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"scraping_service/internal/config"
	"scraping_service/internal/models"
)

// CostcoAU normalizes Costco scrapes. The add-to-cart button text is the
// whole availability signal; the page never exposes a numeric stock count.
type CostcoAU struct {
	cfg config.Rules
}

func NewCostcoAU(cfg config.Rules) *CostcoAU {
	return &CostcoAU{cfg: cfg}
}

func (e *CostcoAU) Kind() models.VendorKind { return models.VendorCostcoAU }

func (e *CostcoAU) Apply(raw models.RawResult) models.NormalizedResult {
	return models.NormalizedResult{
		ListingID:      raw.ListingID,
		FinalPrice:     CleanPrice(raw.Fields["price"], fallbackPrice(e.cfg)),
		FinalInventory: ValidateInventory(e.inventory(raw.Fields["add_to_cart"])),
		ShippingPrice:  decimal.Zero,
		NeedsRescrape:  false,
		ErrorDetails:   raw.ErrorStatus,
		Raw:            raw.Fields,
	}
}

func (e *CostcoAU) inventory(addToCart string) int {
	text := strings.ToLower(strings.TrimSpace(addToCart))

	switch {
	case text == "" || strings.Contains(text, "out of stock"):
		return 0
	case strings.Contains(text, "add to cart"):
		return e.cfg.InStockSentinel
	default:
		return 0
	}
}
