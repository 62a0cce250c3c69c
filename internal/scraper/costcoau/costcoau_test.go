package costcoau

import (
	"testing"
	"time"

	"scraping_service/internal/models"
)

func TestBuildURL(t *testing.T) {
	a := New(time.Second, 0, 0)

	url, ok := a.BuildURL(models.Listing{VendorSKU: " 4123456 "})
	if !ok {
		t.Fatal("expected URL")
	}
	if url != "https://www.costco.com.au/p/4123456" {
		t.Errorf("got %q", url)
	}

	if _, ok := a.BuildURL(models.Listing{VendorSKU: ""}); ok {
		t.Error("expected no URL for empty SKU")
	}
}

const samplePage = `<html><head>
<meta property="product:price:amount" content="499.99">
<meta property="product:price:currency" content="AUD">
</head><body>
<h1>LG 65 Inch TV</h1>
<p class="product-code">Item 4123456</p>
<button class="btn-block">Add to Cart</button>
<script>foo;maximum.quantity.addtocart&q;:&q;5&q;bar</script>
</body></html>`

func TestExtract(t *testing.T) {
	a := New(time.Second, 0, 0)

	fields := a.Extract(samplePage, "https://www.costco.com.au/p/4123456")

	if fields["title"] != "LG 65 Inch TV" {
		t.Errorf("title = %q", fields["title"])
	}
	if fields["item_number"] != "Item 4123456" {
		t.Errorf("item_number = %q", fields["item_number"])
	}
	if fields["price"] != "499.99" {
		t.Errorf("price = %q", fields["price"])
	}
	if fields["price_currency"] != "AUD" {
		t.Errorf("price_currency = %q", fields["price_currency"])
	}
	if fields["add_to_cart"] != "Add to Cart" {
		t.Errorf("add_to_cart = %q", fields["add_to_cart"])
	}
	if fields["max_quantity"] != "5" {
		t.Errorf("max_quantity = %q", fields["max_quantity"])
	}
}

func TestExtract_FallbacksAndConfigQty(t *testing.T) {
	a := New(time.Second, 0, 0)

	body := `<html><body>
<button class="notranslate">Out of Stock</button>
<script>Costco.config.addToCartMaxQty = "3";</script>
</body></html>`

	fields := a.Extract(body, "")

	if fields["add_to_cart"] != "Out of Stock" {
		t.Errorf("add_to_cart = %q", fields["add_to_cart"])
	}
	if fields["max_quantity"] != "3" {
		t.Errorf("max_quantity = %q", fields["max_quantity"])
	}
	if fields["price"] != "" {
		t.Errorf("price = %q", fields["price"])
	}
}
