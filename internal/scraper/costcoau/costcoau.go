// Package costcoau scrapes costco.com.au product pages. The site rate-limits
// aggressively, so every request is preceded by a randomized delay and the
// user agent rotates across retry attempts.
package costcoau

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"scraping_service/internal/models"
	"scraping_service/internal/scraper"
)

var selectors = map[string]string{
	"title":           "h1",
	"item_number":     "p.product-code",
	"price":           `meta[property="product:price:amount"]`,
	"price_currency":  `meta[property="product:price:currency"]`,
	"add_to_cart":     "button.btn-block",
	"add_to_cart_alt": "button.notranslate",
}

// The max add-to-cart quantity hides in two different inline script shapes
// depending on the page variant.
var (
	maxQtyEncodedPattern = regexp.MustCompile(`;maximum\.quantity\.addtocart&q;:&q;(\d+)&q;`)
	maxQtyConfigPattern  = regexp.MustCompile(`Costco\.config\.addToCartMaxQty\s*=\s*"(\d+)"`)
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

func (a *Adapter) Kind() models.VendorKind { return models.VendorCostcoAU }

func (a *Adapter) BuildURL(l models.Listing) (string, bool) {
	sku := models.NormalizeSKU(l.VendorSKU)
	if sku == "" {
		return "", false
	}
	return fmt.Sprintf("https://www.costco.com.au/p/%s", sku), true
}

func (a *Adapter) Fetch(ctx context.Context, url string, attempt int) (scraper.Page, error) {
	if err := scraper.SleepJitter(ctx, a.delayMin, a.delayMax); err != nil {
		return scraper.Page{}, err
	}
	return scraper.GetPage(ctx, a.client, url, a.headers(attempt))
}

func (a *Adapter) headers(attempt int) http.Header {
	h := http.Header{}
	h.Set("User-Agent", scraper.UserAgents[attempt%len(scraper.UserAgents)])
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-AU,en-US;q=0.7,en;q=0.3")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Cache-Control", "max-age=0")
	return h
}

func (a *Adapter) Blocked(body string) bool {
	return scraper.BlockedContent(body)
}

func (a *Adapter) Extract(body, url string) map[string]string {
	fields := map[string]string{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fields
	}

	fields["title"] = strings.TrimSpace(doc.Find(selectors["title"]).First().Text())
	fields["item_number"] = strings.TrimSpace(doc.Find(selectors["item_number"]).First().Text())
	fields["price"], _ = doc.Find(selectors["price"]).First().Attr("content")
	fields["price_currency"], _ = doc.Find(selectors["price_currency"]).First().Attr("content")
	fields["add_to_cart"] = extractAddToCart(doc)
	fields["max_quantity"] = extractMaxQuantity(body)

	return fields
}

func extractAddToCart(doc *goquery.Document) string {
	if s := strings.TrimSpace(doc.Find(selectors["add_to_cart"]).First().Text()); s != "" {
		return s
	}
	return strings.TrimSpace(doc.Find(selectors["add_to_cart_alt"]).First().Text())
}

func extractMaxQuantity(body string) string {
	if m := maxQtyEncodedPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	if m := maxQtyConfigPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}
