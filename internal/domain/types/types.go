// Package types contains the wire shapes returned by the HTTP API.
package types

import (
	"math"

	"github.com/okian/trending/internal/domain/model"
)

// TrendingItem is one element of a GET /trending response.
type TrendingItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// RankedItem is the response of a single-item rank lookup.
type RankedItem struct {
	Rank   int     `json:"rank"`
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// Round rounds v half away from zero to precision decimal places.
// A negative precision leaves v untouched.
func Round(v float64, precision int) float64 {
	if precision < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(precision))
	r := math.Round(v*p) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return v
	}
	return r
}

// FromItemScores converts engine output into the trending response, rounding for display.
func FromItemScores(items []model.ItemScore, precision int) []TrendingItem {
	out := make([]TrendingItem, len(items))
	for i, it := range items {
		out[i] = TrendingItem{ItemID: it.ItemID, Score: Round(it.Score, precision)}
	}
	return out
}

// FromItemScore converts a single ranked entry.
func FromItemScore(it model.ItemScore, precision int) RankedItem {
	return RankedItem{Rank: it.Rank, ItemID: it.ItemID, Score: Round(it.Score, precision)}
}
