package testevents

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/trending/pkg/logger"
)

// verifyResults checks that the trending list is ordered and agrees with
// per-item ranks.
func verifyResults(ctx context.Context, trending, rankings []Entry, log logger.Logger) error {
	log.Info(ctx, "verifying results")

	if len(trending) == 0 {
		return fmt.Errorf("empty trending list")
	}
	if err := verifyOrder(trending); err != nil {
		return err
	}

	byRank := make(map[int]Entry, len(rankings))
	for _, e := range rankings {
		if prev, dup := byRank[e.Rank]; dup {
			return fmt.Errorf("items %s and %s share rank %d", prev.ItemID, e.ItemID, e.Rank)
		}
		byRank[e.Rank] = e
	}
	for i, e := range trending {
		ranked, ok := byRank[i+1]
		if !ok {
			continue // position held by an item this run did not submit
		}
		if ranked.ItemID != e.ItemID {
			return fmt.Errorf("trending position %d is %s but %s reports that rank", i+1, e.ItemID, ranked.ItemID)
		}
	}

	sorted := append([]Entry(nil), rankings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })
	if err := verifyOrder(sorted); err != nil {
		return fmt.Errorf("ranks: %w", err)
	}

	log.Info(ctx, "result verification completed",
		logger.Int("trending", len(trending)),
		logger.Int("ranked", len(rankings)))
	return nil
}

// verifyOrder checks scores never increase down the list. Displayed scores
// are rounded, so equal neighbours may appear in any id order.
func verifyOrder(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		if entries[i].Score > entries[i-1].Score {
			return fmt.Errorf("not sorted: %s (%.6f) follows %s (%.6f)",
				entries[i].ItemID, entries[i].Score, entries[i-1].ItemID, entries[i-1].Score)
		}
	}
	return nil
}

// displayTop logs the head of the trending list.
func displayTop(ctx context.Context, trending []Entry, n int, log logger.Logger) {
	n = min(n, len(trending))
	for i := range n {
		log.Info(ctx, "trending",
			logger.Int("position", i+1),
			logger.String("item_id", trending[i].ItemID),
			logger.Float64("score", trending[i].Score))
	}
}
