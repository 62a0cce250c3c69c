package ebayau

import (
	"testing"
	"time"

	"scraping_service/internal/models"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(time.Second, 0, 0, "s=abc; dp1=xyz")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestBuildURL(t *testing.T) {
	a := newAdapter(t)

	url, ok := a.BuildURL(models.Listing{VendorSKU: "265012345678.2"})
	if !ok {
		t.Fatal("expected URL")
	}
	if url != "https://www.ebay.com.au/itm/265012345678" {
		t.Errorf("got %q", url)
	}

	if _, ok := a.BuildURL(models.Listing{VendorSKU: "   "}); ok {
		t.Error("expected no URL for blank SKU")
	}
}

func TestMirrorURL(t *testing.T) {
	got := MirrorURL("https://www.ebay.com.au/itm/265012345678")
	if got != "https://www.ebay.ca/itm/265012345678" {
		t.Errorf("got %q", got)
	}
}

func TestParseCookies(t *testing.T) {
	cookies := parseCookies("s=abc; __uzma=def;empty")

	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	if cookies[0].Name != "s" || cookies[0].Value != "abc" {
		t.Errorf("first cookie = %+v", cookies[0])
	}
	if cookies[1].Name != "__uzma" || cookies[1].Value != "def" {
		t.Errorf("second cookie = %+v", cookies[1])
	}
}

func TestTerminalError(t *testing.T) {
	a := newAdapter(t)

	body := `<html><p class="error-header-v2__title">We looked everywhere.</p></html>`
	if got := a.TerminalError(body); got != "We looked everywhere." {
		t.Errorf("got %q", got)
	}

	if got := a.TerminalError("<html><body>fine</body></html>"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

const samplePage = `<html><body>
<div class="x-price-primary"><span>AU $89.00</span></div>
<div class="x-quantity__availability">2 available</div>
<div class="ux-labels-values--shipping"><div class="ux-labels-values__values-content"><div>Free postage</div></div></div>
<script>{"NumberValidation","minValue":"1","maxValue":"2"}</script>
<script>{"textSpans":[{"_type":"TextSpan","text":"Will usually post within 2 business days"}]}</script>
</body></html>`

func TestExtract(t *testing.T) {
	a := newAdapter(t)

	fields := a.Extract(samplePage, "https://www.ebay.com.au/itm/265012345678")

	if fields["price"] != "AU $89.00" {
		t.Errorf("price = %q", fields["price"])
	}
	if fields["stock"] != "2 available" {
		t.Errorf("stock = %q", fields["stock"])
	}
	if fields["quantity"] != "Min: 1, Max: 2" {
		t.Errorf("quantity = %q", fields["quantity"])
	}
	if fields["shipping"] != "Free postage" {
		t.Errorf("shipping = %q", fields["shipping"])
	}
	if fields["handling_time"] != "Will usually post/ship within 2 business days" {
		t.Errorf("handling_time = %q", fields["handling_time"])
	}
	if fields["item_number"] != "265012345678" {
		t.Errorf("item_number = %q", fields["item_number"])
	}
}

func TestExtract_StockFallback(t *testing.T) {
	a := newAdapter(t)

	body := `<html><div class="ux-message">This item is out of stock.</div></html>`
	fields := a.Extract(body, "https://www.ebay.com.au/itm/1")

	if fields["stock"] != "This item is out of stock." {
		t.Errorf("stock = %q", fields["stock"])
	}
	if fields["quantity"] != "Quantity info not found" {
		t.Errorf("quantity = %q", fields["quantity"])
	}
}
