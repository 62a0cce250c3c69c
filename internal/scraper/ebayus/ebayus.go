// Package ebayus scrapes ebay.ca product pages for US-market listings.
package ebayus

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"scraping_service/internal/models"
	"scraping_service/internal/scraper"
)

// CSS selectors for the eBay product page.
var selectors = map[string]string{
	"title":          ".x-item-title__mainTitle span",
	"status_message": ".ux-layout-section__textual-display--statusMessage span",
	"price":          ".x-price-primary span",
	"seller_away":    ".x-alert--ALERT_SA div.ux-message",
	"shipping":       ".ux-labels-values--shipping .ux-labels-values__values-content div:nth-of-type(1)",
	"stock":          "div.x-quantity__availability",
	"message":        "div.ux-message__content",
	"select_boxes":   "button.btn--truncated",
	"breadcrumb":     ".breadcrumbs li",
}

var (
	quantityPattern = regexp.MustCompile(`"NumberValidation","minValue":"(\d+)","maxValue":"(\d+)"`)
	handlingPattern = regexp.MustCompile(`"textSpans":\[\{"_type":"TextSpan","text":"Will usually ship within ([^"]*)"`)
)

type Adapter struct {
	client   *http.Client
	delayMin time.Duration
	delayMax time.Duration
}

func New(timeout, delayMin, delayMax time.Duration) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: timeout},
		delayMin: delayMin,
		delayMax: delayMax,
	}
}

func (a *Adapter) Kind() models.VendorKind { return models.VendorEbayUS }

// ValidItemNumber reports whether a normalized SKU is a plausible eBay item
// number: all digits, 10 to 12 of them.
func ValidItemNumber(sku string) bool {
	if len(sku) < 10 || len(sku) > 12 {
		return false
	}
	for _, r := range sku {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a *Adapter) BuildURL(l models.Listing) (string, bool) {
	item := models.NormalizeSKU(l.VendorSKU)
	if !ValidItemNumber(item) {
		return "", false
	}
	return fmt.Sprintf("https://www.ebay.ca/itm/%s", item), true
}

func (a *Adapter) Fetch(ctx context.Context, url string, attempt int) (scraper.Page, error) {
	// Pacing applies to the first attempt; the retry loop backs off after it.
	if attempt == 0 {
		if err := scraper.SleepJitter(ctx, a.delayMin, a.delayMax); err != nil {
			return scraper.Page{}, err
		}
	}
	return scraper.GetPage(ctx, a.client, url, a.headers())
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	h.Set("accept-language", "en-US,en;q=0.9")
	h.Set("cache-control", "max-age=0")
	h.Set("sec-ch-ua", `"Not)A;Brand";v="8", "Chromium";v="138", "Google Chrome";v="138"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	h.Set("sec-fetch-dest", "document")
	h.Set("sec-fetch-mode", "navigate")
	h.Set("sec-fetch-site", "none")
	h.Set("sec-fetch-user", "?1")
	h.Set("upgrade-insecure-requests", "1")
	h.Set("user-agent", scraper.RandomUserAgent())
	h.Set("referer", "https://www.ebay.ca/")
	h.Set("dnt", "1")
	return h
}

func (a *Adapter) Blocked(body string) bool {
	return scraper.BlockedContent(body)
}

// Extract pulls the raw field bag from a product page.
func (a *Adapter) Extract(body, url string) map[string]string {
	fields := map[string]string{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fields
	}

	fields["title"] = textOr(doc, selectors["title"], "Title not found")
	fields["price"] = text(doc, selectors["price"])
	fields["stock"] = text(doc, selectors["stock"])
	fields["ended_listings"] = text(doc, selectors["status_message"])
	fields["seller_away"] = text(doc, selectors["seller_away"])
	fields["shipping"] = textOr(doc, selectors["shipping"], "No shipping info")
	fields["quantity"] = extractQuantity(body, doc)
	fields["handling_time"] = extractHandlingTime(body)
	fields["category"] = extractCategory(doc)
	fields["variation_count"] = strconv.Itoa(doc.Find(selectors["select_boxes"]).Length())

	return fields
}

func extractQuantity(body string, doc *goquery.Document) string {
	if m := quantityPattern.FindStringSubmatch(body); m != nil {
		return fmt.Sprintf("Min: %s, Max: %s", m[1], m[2])
	}
	// The inline message often explains why no quantity is present.
	if msg := text(doc, selectors["message"]); msg != "" {
		return msg
	}
	return "Quantity info not found"
}

func extractHandlingTime(body string) string {
	if m := handlingPattern.FindStringSubmatch(body); m != nil {
		return "Will usually ship within " + m[1]
	}
	return "Handling time info not found"
}

func extractCategory(doc *goquery.Document) string {
	var parts []string
	doc.Find(selectors["breadcrumb"]).Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(s.Text()))
	})
	if len(parts) == 0 {
		return "Category not found"
	}
	return strings.Join(parts, " > ")
}

func text(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func textOr(doc *goquery.Document, selector, fallback string) string {
	if s := text(doc, selector); s != "" {
		return s
	}
	return fallback
}
