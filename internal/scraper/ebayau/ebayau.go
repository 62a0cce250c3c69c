// Package ebayau scrapes ebay.com.au listings. Requests go to the ebay.ca
// mirror, which serves the same listing data with less aggressive rate
// limiting, while result URLs keep the ebay.com.au form.
package ebayau

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"scraping_service/internal/models"
	"scraping_service/internal/scraper"
)

var selectors = map[string]string{
	"status_message":        ".ux-layout-section__textual-display--statusMessage span",
	"price":                 ".x-price-primary span",
	"seller_away":           ".x-alert--ALERT_SA div.ux-message",
	"shipping":              ".ux-labels-values--shipping .ux-labels-values__values-content div:nth-of-type(1)",
	"stock":                 "div.x-quantity__availability",
	"stock_fallback":        "div.ux-message",
	"select_boxes":          "button.btn--truncated",
	"specific_error_header": "p.error-header-v2__title",
}

var (
	quantityPattern = regexp.MustCompile(`"NumberValidation","minValue":"(\d+)","maxValue":"(\d+)"`)
	handlingPattern = regexp.MustCompile(`"textSpans":\[\{"_type":"TextSpan","text":"Will usually (?:post|ship) within ([^"]*)"`)
)

type Adapter struct {
	client   *http.Client
	delayMin time.Duration
	delayMax time.Duration
}

// New builds the adapter. sessionCookies is a "name=value; name=value" string
// applied to the mirror domain so listings render with an established session.
func New(timeout, delayMin, delayMax time.Duration, sessionCookies string) (*Adapter, error) {
	const op = "ebayau.New"

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if sessionCookies != "" {
		mirror, err := url.Parse("https://www.ebay.ca/")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		jar.SetCookies(mirror, parseCookies(sessionCookies))
	}

	return &Adapter{
		client:   &http.Client{Timeout: timeout, Jar: jar},
		delayMin: delayMin,
		delayMax: delayMax,
	}, nil
}

func parseCookies(raw string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies
}

func (a *Adapter) Kind() models.VendorKind { return models.VendorEbayAU }

func (a *Adapter) BuildURL(l models.Listing) (string, bool) {
	item := models.NormalizeSKU(l.VendorSKU)
	if item == "" {
		return "", false
	}
	return fmt.Sprintf("https://www.ebay.com.au/itm/%s", item), true
}

func (a *Adapter) Fetch(ctx context.Context, pageURL string, attempt int) (scraper.Page, error) {
	if attempt == 0 {
		if err := scraper.SleepJitter(ctx, a.delayMin, a.delayMax); err != nil {
			return scraper.Page{}, err
		}
	}
	return scraper.GetPage(ctx, a.client, MirrorURL(pageURL), a.headers())
}

// MirrorURL swaps the ebay.com.au host for the ebay.ca mirror.
func MirrorURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Host = strings.Replace(u.Host, "ebay.com.au", "ebay.ca", 1)
	return u.String()
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36 Edg/138.0.0.0")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Referer", "https://www.ebay.com.au/")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("DNT", "1")
	return h
}

func (a *Adapter) Blocked(body string) bool {
	return scraper.BlockedContent(body)
}

// TerminalError surfaces the page-level error heading. Listings that were
// removed or never existed render it, so retrying cannot help.
func (a *Adapter) TerminalError(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(selectors["specific_error_header"]).First().Text())
}

func (a *Adapter) Extract(body, pageURL string) map[string]string {
	fields := map[string]string{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fields
	}

	stock := text(doc, selectors["stock"])
	if stock == "" {
		stock = text(doc, selectors["stock_fallback"])
	}

	fields["stock"] = stock
	fields["price"] = text(doc, selectors["price"])
	fields["ended_listings"] = text(doc, selectors["status_message"])
	fields["seller_away"] = text(doc, selectors["seller_away"])
	fields["shipping"] = textOr(doc, selectors["shipping"], "No shipping info")
	fields["quantity"] = extractQuantity(body)
	fields["handling_time"] = extractHandlingTime(body)
	fields["variation_count"] = strconv.Itoa(doc.Find(selectors["select_boxes"]).Length())
	fields["item_number"] = itemNumberFromURL(pageURL)

	return fields
}

func extractQuantity(body string) string {
	if m := quantityPattern.FindStringSubmatch(body); m != nil {
		return fmt.Sprintf("Min: %s, Max: %s", m[1], m[2])
	}
	return "Quantity info not found"
}

func extractHandlingTime(body string) string {
	if m := handlingPattern.FindStringSubmatch(body); m != nil {
		return "Will usually post/ship within " + m[1]
	}
	return "Handling time info not found"
}

func itemNumberFromURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
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
