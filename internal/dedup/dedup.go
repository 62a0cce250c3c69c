// Package dedup collapses listings that resolve to the same vendor page so
// each page is fetched at most once per pass.
package dedup

import "scraping_service/internal/models"

// Group is one unique fetch target plus every listing that shares it. The
// representative is the first listing seen for the target.
type Group struct {
	Target         models.FetchTarget
	Representative models.Listing
	Members        []models.Listing
}

// Build groups listings by (vendor_id, normalized SKU), preserving first-seen
// order. Listings with an empty normalized SKU still group together under the
// empty key; callers that consider that a data error should filter upstream.
func Build(listings []models.Listing) []Group {
	index := make(map[models.FetchTarget]int, len(listings))
	groups := make([]Group, 0, len(listings))

	for _, l := range listings {
		target := l.Target()

		i, ok := index[target]
		if !ok {
			index[target] = len(groups)
			groups = append(groups, Group{
				Target:         target,
				Representative: l,
				Members:        []models.Listing{l},
			})
			continue
		}

		groups[i].Members = append(groups[i].Members, l)
	}

	return groups
}

// Representatives returns the one listing to fetch per group, in group order.
func Representatives(groups []Group) []models.Listing {
	reps := make([]models.Listing, 0, len(groups))
	for _, g := range groups {
		reps = append(reps, g.Representative)
	}
	return reps
}

// FanOut replicates a representative's result to every member of its group.
// The returned slice holds one result per member, each stamped with the
// member's own listing ID.
func FanOut(groups []Group, results map[int64]models.NormalizedResult) []models.NormalizedResult {
	out := make([]models.NormalizedResult, 0, len(groups))

	for _, g := range groups {
		res, ok := results[g.Representative.ID]
		if !ok {
			continue
		}
		for _, m := range g.Members {
			out = append(out, res.WithListingID(m.ID))
		}
	}

	return out
}
