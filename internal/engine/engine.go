// Package engine implements the incremental feed-sync and delivery run.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"feedrelay/internal/config"
	"feedrelay/internal/feed"
	"feedrelay/internal/format"
	"feedrelay/internal/store"
)

// Sender delivers one formatted notification to a destination.
type Sender interface {
	SendMessage(destinationID, html string) error
}

// Fetcher downloads and parses one feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*feed.Feed, error)
}

// DestinationSummary reports one destination's share of a run.
type DestinationSummary struct {
	ID        string `json:"id"`
	FeedCount int    `json:"feedCount"`
	Posted    int    `json:"posted"`
}

// Summary is the per-run result.
type Summary struct {
	Destinations []DestinationSummary `json:"destinations"`
}

// Engine walks every destination in the index and delivers new feed items.
type Engine struct {
	store        *store.Store
	fetcher      Fetcher
	sender       Sender
	formatter    *format.Formatter
	log          *slog.Logger
	policy       config.DeltaPolicy
	fallbackTake int
}

// New creates an Engine.
func New(st *store.Store, fetcher Fetcher, sender Sender, formatter *format.Formatter, cfg *config.Config, log *slog.Logger) *Engine {
	return &Engine{
		store:        st,
		fetcher:      fetcher,
		sender:       sender,
		formatter:    formatter,
		log:          log,
		policy:       cfg.DeltaPolicy,
		fallbackTake: cfg.FallbackTake,
	}
}

// Run performs one sync pass over all destinations. Destinations and,
// within a destination, feeds are processed sequentially; a failing feed
// never aborts its siblings or other destinations.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	ids, err := e.store.ListDestinationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}

	summary := &Summary{Destinations: []DestinationSummary{}}
	for _, id := range ids {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Destinations = append(summary.Destinations, e.syncDestination(ctx, id))
	}
	return summary, nil
}

func (e *Engine) syncDestination(ctx context.Context, destinationID string) DestinationSummary {
	result := DestinationSummary{ID: destinationID}

	cfg, err := e.store.GetConfig(ctx, destinationID)
	if err != nil {
		e.log.Error("load destination config", "destination", destinationID, "error", err)
		return result
	}
	result.FeedCount = len(cfg.Feeds)

	for _, feedURL := range cfg.Feeds {
		if ctx.Err() != nil {
			break
		}
		result.Posted += e.syncFeed(ctx, destinationID, feedURL, cfg.Cursors)
	}

	// One write per destination, after all its feeds.
	if err := e.store.SaveConfig(ctx, destinationID, cfg); err != nil {
		e.log.Error("save destination config", "destination", destinationID, "error", err)
	}
	return result
}

// syncFeed fetches one feed, delivers its new items oldest-first, and
// advances the cursor in cursors. The cursor advances whenever the fetch
// yielded items, regardless of delivery outcome, so a poisoned item cannot
// cause an infinite re-delivery loop.
func (e *Engine) syncFeed(ctx context.Context, destinationID, feedURL string, cursors map[string]string) int {
	fetched, err := e.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		e.log.Error("fetch feed", "destination", destinationID, "url", feedURL, "error", err)
		return 0
	}

	delta := e.newItems(fetched.Items, cursors[feedURL])

	posted := 0
	// Deliver oldest-first so the destination reads newest-last.
	for i := len(delta) - 1; i >= 0; i-- {
		body := e.formatter.Item(delta[i], fetched.Title, feedURL)
		if err := e.sender.SendMessage(destinationID, body); err != nil {
			e.log.Error("deliver item",
				"destination", destinationID,
				"url", feedURL,
				"link", delta[i].Link,
				"error", err)
			break
		}
		posted++
	}

	if len(fetched.Items) > 0 && fetched.Items[0].Link != "" {
		cursors[feedURL] = fetched.Items[0].Link
	}

	if posted > 0 {
		e.log.Info("posted items", "destination", destinationID, "url", feedURL, "count", posted)
	}
	return posted
}

// newItems computes the delivery delta from a newest-first item list and
// the stored cursor link.
func (e *Engine) newItems(items []feed.Item, lastLink string) []feed.Item {
	if len(items) == 0 {
		return nil
	}

	take := min(e.fallbackTake, len(items))

	if e.policy == config.PolicyNewestOnly {
		return items[:take]
	}

	// First run for this feed: deliver only the newest few to avoid
	// flooding the destination with the whole backlog.
	if lastLink == "" {
		return items[:take]
	}

	for i, item := range items {
		if item.Link == lastLink {
			return items[:i]
		}
	}

	// Cursor link no longer present: the feed reordered or rewrote its
	// links. Degrade to the anti-spam bound.
	return items[:take]
}
