package directory

import (
	"cmp"
	"errors"
	"slices"
	"strings"
)

var ErrUnknownSort = errors.New("unknown sort order")

type SortOrder string

const (
	SortNone       SortOrder = ""
	SortPriceAsc   SortOrder = "price-asc"
	SortPriceDesc  SortOrder = "price-desc"
	SortRating     SortOrder = "rating"
	SortPopularity SortOrder = "popularity"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case SortNone, SortPriceAsc, SortPriceDesc, SortRating, SortPopularity:
		return o, nil
	default:
		return SortNone, ErrUnknownSort
	}
}

// Search keeps the products whose title, category or description contains
// query, ignoring case, and orders them by order. Ties keep catalog order.
// The input is not modified.
func Search(products []Product, query string, order SortOrder) []Product {
	q := strings.ToLower(strings.TrimSpace(query))

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if q == "" || matches(p, q) {
			out = append(out, p)
		}
	}

	switch order {
	case SortPriceAsc:
		slices.SortStableFunc(out, func(a, b Product) int { return a.Price.Cmp(b.Price) })
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b Product) int { return b.Price.Cmp(a.Price) })
	case SortRating:
		slices.SortStableFunc(out, func(a, b Product) int { return cmp.Compare(b.Rating.Rate, a.Rating.Rate) })
	case SortPopularity:
		slices.SortStableFunc(out, func(a, b Product) int { return cmp.Compare(b.Rating.Count, a.Rating.Count) })
	}
	return out
}

func matches(p Product, q string) bool {
	for _, field := range []string{p.Title, p.Category, p.Description} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
