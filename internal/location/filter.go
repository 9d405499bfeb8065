package location

import (
	"iter"
	"strings"

	"backend-pilanitrails/internal/shared/geo"
)

// Filter yields the locations matching c, in input order. The sequence is
// lazy and may be ranged over any number of times.
//
// A location matches when q is empty or appears, ignoring case, in its name
// or description, and the category criterion is "All" (or empty) or equal
// to the location's category.
func Filter(locations []Location, c Criteria) iter.Seq[Location] {
	q := strings.ToLower(c.Q)
	return func(yield func(Location) bool) {
		for _, loc := range locations {
			if !matches(loc, q, c.Category) {
				continue
			}
			if !yield(loc) {
				return
			}
		}
	}
}

func matches(loc Location, q, category string) bool {
	matchesQ := q == "" ||
		strings.Contains(strings.ToLower(loc.Name), q) ||
		strings.Contains(strings.ToLower(loc.Description), q)
	matchesCategory := category == "" || category == AllCategories || loc.Category == category
	return matchesQ && matchesCategory
}

// DistinctCategories lists "All" and then each observed category once, in
// first-seen order. Locations without a category count as "Other".
func DistinctCategories(locations []Location) []string {
	out := []string{AllCategories}
	seen := map[string]bool{}
	for _, loc := range locations {
		c := loc.Category
		if c == "" {
			c = OtherCategory
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// WithinRadius yields the locations at most radiusKm from origin, in input
// order. Locations without coordinates never match.
func WithinRadius(locations []Location, origin geo.Coordinates, radiusKm float64) iter.Seq[Location] {
	return func(yield func(Location) bool) {
		for _, loc := range locations {
			if loc.Coordinates == nil || geo.Distance(origin, *loc.Coordinates) > radiusKm {
				continue
			}
			if !yield(loc) {
				return
			}
		}
	}
}
