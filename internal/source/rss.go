package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/webhunter-dev/webhunter/internal/config"
	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// RSS polls a feed URL and yields one candidate listing per item. It covers
// sites that publish new-listing feeds instead of scrapeable result pages.
type RSS struct {
	name    string
	feedURL string
	parser  *gofeed.Parser
	limiter *Limiter
	log     *slog.Logger
	nowFunc func() time.Time
}

// NewRSS creates an RSS adapter for the configured feed.
func NewRSS(cfg config.SourceConfig, deps Deps) *RSS {
	parser := gofeed.NewParser()
	parser.Client = deps.Client
	parser.UserAgent = deps.UserAgent

	return &RSS{
		name:    cfg.Name,
		feedURL: cfg.URL,
		parser:  parser,
		limiter: deps.Limiter,
		log:     deps.Logger.With("source", cfg.Name, "kind", "rss"),
		nowFunc: time.Now,
	}
}

// SourceID implements Adapter.
func (r *RSS) SourceID() string {
	return r.name
}

// Fetch implements Adapter. Items are returned in feed order.
func (r *RSS) Fetch(ctx context.Context) ([]domain.Listing, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, transientErr(r.name, err)
	}

	feed, err := r.parser.ParseURLWithContext(r.feedURL, ctx)
	if err != nil {
		return nil, r.classify(err)
	}

	now := r.nowFunc()
	listings := make([]domain.Listing, 0, len(feed.Items))
	dupes := make(map[string]struct{}, len(feed.Items))

	for _, item := range feed.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			r.log.Debug("skipping feed item without guid or link", "title", item.Title)
			continue
		}
		if _, dup := dupes[id]; dup {
			continue
		}
		dupes[id] = struct{}{}

		observed := now
		if item.PublishedParsed != nil {
			observed = *item.PublishedParsed
		}

		listings = append(listings, domain.Listing{
			SourceID:   r.name,
			ListingID:  id,
			URL:        item.Link,
			Title:      item.Title,
			ObservedAt: observed,
		})
	}

	return listings, nil
}

func (r *RSS) classify(err error) *FetchError {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return classifyHTTPStatus(r.name, httpErr.StatusCode)
	}
	if isNetworkErr(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return transientErr(r.name, err)
	}
	// Anything left is a feed that fetched but would not parse.
	return permanentErr(r.name, err)
}
