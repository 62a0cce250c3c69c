package rules

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"scraping_service/internal/config"
	"scraping_service/internal/models"
)

// Shipping phrases that mean no shipping charge applies.
var ebayAUFreeShipping = []string{
	"Free",
	"Does not ship to Australia",
	"Item does not ship to you",
	"No shipping info",
	"Will ship to Australia.",
}

var (
	maxQuantityPattern  = regexp.MustCompile(`Max: (\d+)`)
	approxPattern       = regexp.MustCompile(`\(approx[^)]*\)`)
	starDollarPattern   = regexp.MustCompile(`\*\$`)
	auShippingPattern   = regexp.MustCompile(`AU \$([\d,]+\.?\d*)`)
	anyShippingPattern  = regexp.MustCompile(`\$([\d,]+\.?\d*)`)
	currencyStripperSet = []string{"AU $", "US $", "EUR $"}
)

// EbayAU normalizes ebay.com.au scrapes. Shipping is added to the item price,
// and a 503 after exhausted retries is the one signal that earns a rescrape.
type EbayAU struct {
	cfg config.Rules
}

func NewEbayAU(cfg config.Rules) *EbayAU {
	return &EbayAU{cfg: cfg}
}

func (e *EbayAU) Kind() models.VendorKind { return models.VendorEbayAU }

func (e *EbayAU) Apply(raw models.RawResult) models.NormalizedResult {
	price := raw.Fields["price"]
	shipping := raw.Fields["shipping"]

	inventory := e.inventory(raw.ErrorStatus, raw.Fields)
	shippingPrice := e.shippingPrice(shipping)

	cleaned := e.cleanPrice(price)
	finalPrice := cleaned
	if cleaned.IsZero() {
		finalPrice = fallbackPrice(e.cfg)
	} else {
		finalPrice = cleaned.Add(shippingPrice)
	}
	finalPrice = ValidatePrice(finalPrice, fallbackPrice(e.cfg))

	return models.NormalizedResult{
		ListingID:      raw.ListingID,
		FinalPrice:     finalPrice,
		FinalInventory: ValidateInventory(inventory),
		ShippingPrice:  shippingPrice,
		NeedsRescrape:  strings.Contains(raw.ErrorStatus, "Status 503"),
		ErrorDetails:   raw.ErrorStatus,
		Raw:            raw.Fields,
	}
}

// inventory walks the ordered rule list; the first depleting condition wins.
func (e *EbayAU) inventory(errorStatus string, fields map[string]string) int {
	handling := fields["handling_time"]
	sellerAway := fields["seller_away"]
	ended := fields["ended_listings"]
	price := fields["price"]
	quantity := fields["quantity"]

	if strings.Contains(errorStatus, "We looked everywhere") {
		return 0
	}

	if strings.Contains(handling, "Will usually post/ship within") {
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

	if price != "" && !strings.Contains(price, e.cfg.CurrencyMarker) {
		return 0
	}

	if strings.Contains(quantity, "Quantity info not found") {
		return 0
	}

	if strings.Contains(quantity, "This item is out of stock") {
		return 0
	}

	if strings.TrimSpace(quantity) == "" {
		return 0
	}

	if m := maxQuantityPattern.FindStringSubmatch(quantity); m != nil {
		return FirstNumber(m[1])
	}

	return 0
}

func (e *EbayAU) shippingPrice(shipping string) decimal.Decimal {
	if shipping == "" {
		return decimal.Zero
	}

	for _, phrase := range ebayAUFreeShipping {
		if strings.Contains(shipping, phrase) {
			return decimal.Zero
		}
	}

	cleaned := approxPattern.ReplaceAllString(shipping, "")
	cleaned = starDollarPattern.ReplaceAllString(cleaned, "")

	if m := auShippingPattern.FindStringSubmatch(cleaned); m != nil {
		if p, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
			return p
		}
	}
	if m := anyShippingPattern.FindStringSubmatch(cleaned); m != nil {
		if p, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
			return p
		}
	}

	return decimal.Zero
}

func (e *EbayAU) cleanPrice(price string) decimal.Decimal {
	if price == "" {
		return fallbackPrice(e.cfg)
	}

	cleaned := price
	for _, marker := range currencyStripperSet {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}

	if m := priceExtractPattern.FindStringSubmatch(cleaned); m != nil {
		if p, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
			return p
		}
	}

	return fallbackPrice(e.cfg)
}
