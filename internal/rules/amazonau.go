package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"scraping_service/internal/config"
	"scraping_service/internal/models"
)

var deliveryDaysPattern = regexp.MustCompile(`(\d+)\s+day`)

// Availability phrases that read as no sellable stock.
var amazonUnavailablePhrases = []string{
	"currently unavailable",
	"usually dispatched within",
	"temporarily out of stock",
	"n/a",
}

// AmazonAU normalizes browser-rendered Amazon scrapes. Fulfillment signals
// (who ships, import badge, delivery window) gate the stock verdict before
// the availability text is even consulted.
type AmazonAU struct {
	cfg config.Rules
}

func NewAmazonAU(cfg config.Rules) *AmazonAU {
	return &AmazonAU{cfg: cfg}
}

func (e *AmazonAU) Kind() models.VendorKind { return models.VendorAmazonAU }

func (e *AmazonAU) Apply(raw models.RawResult) models.NormalizedResult {
	// The audit record carries a combined shipping summary; the input bag is
	// copied so Apply stays side-effect-free.
	auditFields := make(map[string]string, len(raw.Fields)+1)
	for k, v := range raw.Fields {
		auditFields[k] = v
	}
	auditFields["shipping"] = strings.TrimSpace(fmt.Sprintf(
		"Ship By: %s | Shipping Date: %s", raw.Fields["ship_by"], raw.Fields["shipping_date"]))

	return models.NormalizedResult{
		ListingID:      raw.ListingID,
		FinalPrice:     e.cleanPrice(raw.Fields["main_price"]),
		FinalInventory: ValidateInventory(e.inventory(raw.Fields)),
		ShippingPrice:  decimal.Zero,
		NeedsRescrape:  false,
		ErrorDetails:   raw.ErrorStatus,
		Raw:            auditFields,
	}
}

func (e *AmazonAU) cleanPrice(price string) decimal.Decimal {
	switch strings.ToLower(strings.TrimSpace(price)) {
	case "n/a", "na", "none", "null", "":
		return fallbackPrice(e.cfg)
	}
	return CleanPrice(price, fallbackPrice(e.cfg))
}

func (e *AmazonAU) inventory(fields map[string]string) int {
	importInfo := strings.ToLower(fields["import"])
	shipBy := fields["ship_by"]
	handling := fields["handling_time"]
	shippingDate := strings.ToLower(fields["shipping_date"])

	if strings.Contains(importInfo, "imports may differ from local products") {
		return 0
	}

	if shipBy != "" && !strings.Contains(strings.ToLower(shipBy), "amazon") {
		return 0
	}

	if days := FirstNumber(handling); handling != "" && days > e.cfg.MaxHandlingDays {
		return 0
	}

	if m := deliveryDaysPattern.FindStringSubmatch(shippingDate); m != nil {
		if FirstNumber(m[1]) > e.cfg.MaxDeliveryDays {
			return 0
		}
	}

	invText := strings.ToLower(strings.TrimSpace(fields["inventory"] + " " + fields["currently_unavailable"]))
	if invText == "" {
		return 0
	}
	for _, phrase := range amazonUnavailablePhrases {
		if strings.Contains(invText, phrase) {
			return 0
		}
	}

	switch {
	case strings.Contains(invText, "only"):
		return e.cfg.LimitedSentinel
	case strings.Contains(invText, "in stock"):
		return e.cfg.InStockSentinel
	}

	return 0
}
