// Package rules holds the per-vendor decision trees that turn raw scraped
// field bags into a normalized price/stock verdict. Engines are pure: the
// same input always yields the same output, so they test without a network.
package rules

import (
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	"scraping_service/internal/config"
	"scraping_service/internal/models"
)

// Engine normalizes one vendor's raw results.
type Engine interface {
	Kind() models.VendorKind
	Apply(raw models.RawResult) models.NormalizedResult
}

// ForKind builds the engine for a vendor kind with that vendor's tuning.
func ForKind(kind models.VendorKind, cfg config.Rules) Engine {
	switch kind {
	case models.VendorEbayUS:
		return NewEbayUS(cfg)
	case models.VendorEbayAU:
		return NewEbayAU(cfg)
	case models.VendorCostcoAU:
		return NewCostcoAU(cfg)
	case models.VendorAmazonAU:
		return NewAmazonAU(cfg)
	}
	return nil
}

var (
	priceCleanPattern   = regexp.MustCompile(`[^\d.]`)
	priceExtractPattern = regexp.MustCompile(`([\d,]+\.?\d*)`)
	firstNumberPattern  = regexp.MustCompile(`(\d+)`)
)

// CleanPrice strips everything but digits and the decimal point, parses the
// remainder, and substitutes fallback for anything unparseable or non-positive.
// Downstream consumers never see an absent price.
func CleanPrice(text string, fallback decimal.Decimal) decimal.Decimal {
	cleaned := priceCleanPattern.ReplaceAllString(text, "")
	if cleaned == "" {
		return fallback
	}
	p, err := decimal.NewFromString(cleaned)
	if err != nil || p.LessThanOrEqual(decimal.Zero) {
		return fallback
	}
	return p
}

// ValidatePrice enforces the price-is-always-positive contract.
func ValidatePrice(p, fallback decimal.Decimal) decimal.Decimal {
	if p.LessThanOrEqual(decimal.Zero) {
		return fallback
	}
	return p
}

// ValidateInventory clamps inventory to a non-negative integer.
func ValidateInventory(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// FirstNumber returns the first integer embedded in text, or -1 if none.
func FirstNumber(text string) int {
	m := firstNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

func fallbackPrice(cfg config.Rules) decimal.Decimal {
	return decimal.NewFromFloat(cfg.FallbackPrice)
}
