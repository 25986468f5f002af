package order

import (
	"cmp"
	"slices"
	"strings"
)

// RankOffers returns a sorted copy: cheapest first, then fastest, then best
// rated. Offer id breaks remaining ties.
func RankOffers(offers []DriverOffer) []DriverOffer {
	out := slices.Clone(offers)
	slices.SortStableFunc(out, compareOffers)
	return out
}

func compareOffers(a, b DriverOffer) int {
	if c := cmp.Compare(a.Price.Amount, b.Price.Amount); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ETAMinutes, b.ETAMinutes); c != 0 {
		return c
	}
	if c := cmp.Compare(b.DriverRating, a.DriverRating); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
