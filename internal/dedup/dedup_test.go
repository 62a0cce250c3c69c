package dedup

import (
	"testing"

	"scraping_service/internal/models"

	"github.com/shopspring/decimal"
)

func TestBuild_GroupsByVendorAndNormalizedSKU(t *testing.T) {
	listings := []models.Listing{
		{ID: 1, VendorID: 10, VendorSKU: "ABC123"},
		{ID: 2, VendorID: 10, VendorSKU: "ABC123.2"},
		{ID: 3, VendorID: 10, VendorSKU: " ABC123.5 "},
		{ID: 4, VendorID: 11, VendorSKU: "ABC123"},
		{ID: 5, VendorID: 10, VendorSKU: "XYZ"},
	}

	groups := Build(listings)

	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}

	if groups[0].Representative.ID != 1 {
		t.Errorf("representative must be first-seen, got listing %d", groups[0].Representative.ID)
	}
	if len(groups[0].Members) != 3 {
		t.Errorf("expected 3 members in first group, got %d", len(groups[0].Members))
	}
	if groups[1].Representative.ID != 4 {
		t.Errorf("expected listing 4 as second representative, got %d", groups[1].Representative.ID)
	}
	if groups[2].Representative.ID != 5 {
		t.Errorf("expected listing 5 as third representative, got %d", groups[2].Representative.ID)
	}
}

func TestBuild_PreservesInsertionOrder(t *testing.T) {
	listings := []models.Listing{
		{ID: 1, VendorID: 1, VendorSKU: "C"},
		{ID: 2, VendorID: 1, VendorSKU: "A"},
		{ID: 3, VendorID: 1, VendorSKU: "B"},
	}

	groups := Build(listings)

	want := []string{"C", "A", "B"}
	for i, g := range groups {
		if g.Target.SKU != want[i] {
			t.Errorf("group %d: expected SKU %q, got %q", i, want[i], g.Target.SKU)
		}
	}
}

func TestBuild_EmptySKUsShareOneGroup(t *testing.T) {
	listings := []models.Listing{
		{ID: 1, VendorID: 1, VendorSKU: ""},
		{ID: 2, VendorID: 1, VendorSKU: "   "},
	}

	groups := Build(listings)

	if len(groups) != 1 {
		t.Fatalf("expected empty SKUs to collapse into one group, got %d groups", len(groups))
	}
	if len(groups[0].Members) != 2 {
		t.Errorf("expected 2 members, got %d", len(groups[0].Members))
	}
}

func TestFanOut_EveryMemberGetsOwnListingID(t *testing.T) {
	listings := []models.Listing{
		{ID: 1, VendorID: 1, VendorSKU: "A"},
		{ID: 2, VendorID: 1, VendorSKU: "A.2"},
		{ID: 3, VendorID: 1, VendorSKU: "B"},
	}
	groups := Build(listings)

	results := map[int64]models.NormalizedResult{
		1: {ListingID: 1, FinalPrice: decimal.NewFromFloat(49.99), FinalInventory: 3},
		3: {ListingID: 3, FinalPrice: decimal.NewFromFloat(10), FinalInventory: 0},
	}

	out := FanOut(groups, results)

	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}

	byID := make(map[int64]models.NormalizedResult, len(out))
	for _, r := range out {
		byID[r.ListingID] = r
	}

	for _, id := range []int64{1, 2} {
		r, ok := byID[id]
		if !ok {
			t.Fatalf("missing result for listing %d", id)
		}
		if !r.FinalPrice.Equal(decimal.NewFromFloat(49.99)) {
			t.Errorf("listing %d: expected shared price 49.99, got %s", id, r.FinalPrice)
		}
	}

	if r := byID[3]; r.FinalInventory != 0 {
		t.Errorf("listing 3: expected inventory 0, got %d", r.FinalInventory)
	}
}

func TestFanOut_SkipsGroupsWithoutResult(t *testing.T) {
	groups := Build([]models.Listing{
		{ID: 1, VendorID: 1, VendorSKU: "A"},
		{ID: 2, VendorID: 1, VendorSKU: "B"},
	})

	out := FanOut(groups, map[int64]models.NormalizedResult{
		1: {ListingID: 1},
	})

	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].ListingID != 1 {
		t.Errorf("expected result for listing 1, got %d", out[0].ListingID)
	}
}
