// Package testevents generates synthetic load against the trending API and
// verifies the resulting ranking.
package testevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/trending/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes a complete load run: generate, submit, settle, verify.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	log.Info(ctx, "starting trending load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("events", cfg.NumEvents),
		logger.Int("items", cfg.NumItems),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", int64(seed)))

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	events := NewGenerator(seed, cfg.NumItems, cfg.MaxAge).Generate(cfg.NumEvents)
	stats.EventsGenerated = len(events)

	processedBefore := processedCount(ctx, client)
	if err := submitEvents(ctx, client, cfg, events, stats, log); err != nil {
		return stats, fmt.Errorf("event submission failed: %w", err)
	}
	if stats.EventsQueued > 0 {
		waitForDrain(ctx, client, cfg.Settle, processedBefore+int64(stats.EventsQueued), log)
	}

	items := distinctItems(events)
	stats.ItemsTouched = len(items)

	rankings, err := retrieveRankings(ctx, client, cfg, items, stats, log)
	if err != nil {
		return stats, fmt.Errorf("ranking retrieval failed: %w", err)
	}

	trending, err := client.Trending(ctx, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("trending retrieval failed: %w", err)
	}
	stats.TrendingEntries = len(trending)

	if err := verifyResults(ctx, trending, rankings, log); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}
	if cfg.Verbose {
		displayTop(ctx, trending, 10, log)
	}

	if cfg.OutputFile != "" {
		if err := saveEventsToFile(cfg.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats, log)
	return stats, nil
}

// submitEvents posts events with at most cfg.Workers requests in flight.
func submitEvents(ctx context.Context, client *Client, cfg *Config, events []Event, stats *Stats, log logger.Logger) error {
	log.Info(ctx, "submitting events", logger.Int("count", len(events)))

	var accepted, queued, duplicate, rejected, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, ev := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ack, err := client.AddEvent(gctx, ev)
			var se *StatusError
			switch {
			case err == nil && ack.Duplicate:
				duplicate.Add(1)
			case err == nil && ack.Status == "queued":
				queued.Add(1)
			case err == nil:
				accepted.Add(1)
			case errors.As(err, &se) && se.Status == http.StatusBadRequest:
				rejected.Add(1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "submit failed", logger.String("item_id", ev.ItemID), logger.Error(err))
				}
			}
			return nil
		})
	}
	err := g.Wait()

	stats.EventsAccepted = int(accepted.Load())
	stats.EventsQueued = int(queued.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsRejected = int(rejected.Load())
	stats.EventsFailed = int(failed.Load())
	stats.EventsSubmitted = stats.EventsAccepted + stats.EventsQueued + stats.EventsDuplicate +
		stats.EventsRejected + stats.EventsFailed

	log.Info(ctx, "event submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("queued", stats.EventsQueued),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("rejected", stats.EventsRejected),
		logger.Int("failed", stats.EventsFailed))
	if err != nil {
		return fmt.Errorf("submit events: %w", err)
	}
	return nil
}

// processedCount reads the async workers' success counter; 0 in sync mode.
func processedCount(ctx context.Context, client *Client) int64 {
	stats, err := client.Stats(ctx)
	if err != nil {
		return 0
	}
	n, _ := stats["processed"].(float64)
	return int64(n)
}

// waitForDrain polls /stats until the workers have recorded target events in
// total or timeout passes.
func waitForDrain(ctx context.Context, client *Client, timeout time.Duration, target int64, log logger.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()
	for {
		if processedCount(ctx, client) >= target {
			return
		}
		select {
		case <-ctx.Done():
			log.Warn(ctx, "queue did not drain before verification", logger.Duration("waited", timeout))
			return
		case <-ticker.C:
		}
	}
}

// saveEventsToFile writes the generated events as a JSON array.
func saveEventsToFile(filename string, events []Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

// displayFinalStats logs the run summary.
func displayFinalStats(ctx context.Context, stats *Stats, log logger.Logger) {
	var successRate, eventsPerSecond float64
	if stats.EventsSubmitted > 0 {
		ok := stats.EventsAccepted + stats.EventsQueued + stats.EventsDuplicate
		successRate = float64(ok) / float64(stats.EventsSubmitted) * percentage
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("itemsTouched", stats.ItemsTouched),
		logger.Int("rankingsRetrieved", stats.RankingsRetrieved),
		logger.Int("trendingEntries", stats.TrendingEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
