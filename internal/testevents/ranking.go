package testevents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/trending/pkg/logger"
)

// distinctItems returns the item ids touched by events, sorted.
func distinctItems(events []Event) []string {
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		seen[ev.ItemID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// retrieveRankings fetches the rank of every item concurrently. Items the
// service no longer knows (evicted) are skipped.
func retrieveRankings(ctx context.Context, client *Client, cfg *Config, items []string, stats *Stats, log logger.Logger) ([]Entry, error) {
	log.Info(ctx, "retrieving rankings", logger.Int("items", len(items)), logger.Int("workers", cfg.Workers))

	rankings := make([]Entry, len(items))
	found := make([]bool, len(items))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, id := range items {
		g.Go(func() error {
			entry, err := client.Rank(gctx, id)
			switch {
			case err == nil:
				rankings[i], found[i] = entry, true
			case errors.Is(err, ErrNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "rank lookup failed", logger.String("item_id", id), logger.Error(err))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieve rankings: %w", err)
	}

	out := make([]Entry, 0, len(rankings))
	for i, e := range rankings {
		if found[i] {
			out = append(out, e)
		}
	}
	stats.RankingsRetrieved = len(out)
	if n := failed.Load(); n > 0 {
		return out, fmt.Errorf("%d rank lookups failed", n)
	}
	return out, nil
}
