// Package amazonau scrapes amazon.com.au product pages through a real browser.
// Amazon serves most pricing data from scripts that plain HTTP clients never
// execute, so pages render in a shared headless session first and extraction
// runs on the resulting HTML.
package amazonau

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scraping_service/internal/models"
	"scraping_service/internal/scraper"
)

var selectors = map[string]string{
	"price_data":    "div.a-section.aok-hidden.twister-plus-buying-options-price-data",
	"visible_price": "#corePrice_feature_div span.a-offscreen",
	"availability":  "#availability span",
	"unavailable":   "span.a-color-price.a-text-bold, .a-spacing-base a.a-button-text",
	"shipping_date": "#mir-layout-DELIVERY_BLOCK-slot-PRIMARY_DELIVERY_MESSAGE_LARGE span.a-text-bold",
	"ship_by":       "#fulfillerInfoFeature_feature_div span.offer-display-feature-text-message",
	"sold_by":       ".offer-display-feature-text-message a",
	"import":        "#globalStoreBadgePopoverInsideBuybox_feature_div div.a-section",
}

var handlingPattern = regexp.MustCompile(`(?i)Usually (?:ships|dispatched) within[^<"]*`)

type Adapter struct {
	session *Session
}

func New(session *Session) *Adapter {
	return &Adapter{session: session}
}

func (a *Adapter) Kind() models.VendorKind { return models.VendorAmazonAU }

func (a *Adapter) BuildURL(l models.Listing) (string, bool) {
	sku := models.NormalizeSKU(l.VendorSKU)
	if sku == "" {
		return "", false
	}
	return "https://www.amazon.com.au/dp/" + sku, true
}

func (a *Adapter) Fetch(ctx context.Context, url string, attempt int) (scraper.Page, error) {
	html, err := a.session.HTML(ctx, url)
	if err != nil {
		return scraper.Page{}, err
	}
	// The browser follows redirects and renders whatever comes back; a body
	// means the navigation succeeded.
	return scraper.Page{Body: html, Status: 200}, nil
}

func (a *Adapter) Blocked(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "enter the characters you see below")
}

func (a *Adapter) Extract(body, url string) map[string]string {
	fields := map[string]string{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fields
	}

	inventory := textOr(doc, selectors["availability"], "N/A")

	fields["main_price"] = extractPrice(doc)
	fields["inventory"] = inventory
	fields["currently_unavailable"] = extractUnavailable(doc, inventory)
	fields["shipping_date"] = textOr(doc, selectors["shipping_date"], "N/A")
	fields["ship_by"] = textOr(doc, selectors["ship_by"], "N-A")
	fields["sold_by"] = textOr(doc, selectors["sold_by"], "N-A")
	fields["import"] = textOr(doc, selectors["import"], "N-A")
	fields["handling_time"] = extractHandlingTime(body)

	return fields
}

// buyboxPriceData is the hidden JSON blob Amazon renders for the buying
// options twister.
type buyboxPriceData struct {
	DesktopBuyboxGroup1 []struct {
		DisplayPrice string `json:"displayPrice"`
	} `json:"desktop_buybox_group_1"`
}

func extractPrice(doc *goquery.Document) string {
	raw := strings.TrimSpace(doc.Find(selectors["price_data"]).First().Text())
	if raw != "" {
		var data buyboxPriceData
		if err := json.Unmarshal([]byte(raw), &data); err == nil &&
			len(data.DesktopBuyboxGroup1) > 0 && data.DesktopBuyboxGroup1[0].DisplayPrice != "" {
			return data.DesktopBuyboxGroup1[0].DisplayPrice
		}
	}

	return textOr(doc, selectors["visible_price"], "N/A")
}

func extractUnavailable(doc *goquery.Document, inventory string) string {
	if s := text(doc, selectors["unavailable"]); s != "" {
		return s
	}
	if strings.Contains(strings.ToLower(inventory), "in stock") {
		return "In Stock"
	}
	return "N/A"
}

func extractHandlingTime(body string) string {
	return strings.TrimSpace(handlingPattern.FindString(body))
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
