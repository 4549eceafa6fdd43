package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/webhunter-dev/webhunter/internal/config"
	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// listingIDPattern extracts the site-assigned numeric key from a Funda
// detail URL, e.g. /koop/amsterdam/huis-43012345-kerkstraat-12/.
var listingIDPattern = regexp.MustCompile(`-(\d{6,})-`)

// itemSelector matches one search result block. Funda has shipped both the
// data-test-id markup and the older search-result class, so both are tried.
const itemSelector = `[data-test-id="search-result-item"], div.search-result`

// Funda scrapes a Funda search-result page into candidate listings.
type Funda struct {
	name      string
	pageURL   string
	client    *http.Client
	limiter   *Limiter
	userAgent string
	log       *slog.Logger
	nowFunc   func() time.Time
}

// NewFunda creates a Funda adapter for the configured search page.
func NewFunda(cfg config.SourceConfig, deps Deps) *Funda {
	return &Funda{
		name:      cfg.Name,
		pageURL:   cfg.URL,
		client:    deps.Client,
		limiter:   deps.Limiter,
		userAgent: deps.UserAgent,
		log:       deps.Logger.With("source", cfg.Name, "kind", "funda"),
		nowFunc:   time.Now,
	}
}

// SourceID implements Adapter.
func (f *Funda) SourceID() string {
	return f.name
}

// Fetch implements Adapter. Listings are returned in page order.
func (f *Funda) Fetch(ctx context.Context) ([]domain.Listing, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, transientErr(f.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.pageURL, nil)
	if err != nil {
		return nil, permanentErr(f.name, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		// client.Do failures are connectivity faults; a later cycle may succeed.
		return nil, transientErr(f.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyHTTPStatus(f.name, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, permanentErr(f.name, fmt.Errorf("parsing result page: %w", err))
	}

	return f.parse(doc)
}

// parse walks the result blocks in document order. Individual malformed
// blocks are skipped; a page where every block fails to parse is a shape
// mismatch.
func (f *Funda) parse(doc *goquery.Document) ([]domain.Listing, error) {
	items := doc.Find(itemSelector)
	if items.Length() == 0 {
		// A result page with zero candidates is a normal cycle.
		f.log.Debug("no result blocks on page")
		return nil, nil
	}

	now := f.nowFunc()
	var listings []domain.Listing
	var skipped int

	items.Each(func(i int, sel *goquery.Selection) {
		listing, ok := f.parseItem(sel, now)
		if !ok {
			skipped++
			f.log.Debug("skipping unparseable result block", "index", i)
			return
		}
		listings = append(listings, listing)
	})

	if len(listings) == 0 && skipped > 0 {
		return nil, permanentErr(f.name,
			fmt.Errorf("page markup changed: %d result blocks, none parseable", skipped))
	}

	return listings, nil
}

func (f *Funda) parseItem(sel *goquery.Selection, now time.Time) (domain.Listing, bool) {
	link := sel.Find("a[href]").First()
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return domain.Listing{}, false
	}

	absolute := f.resolveURL(href)

	title := strings.TrimSpace(sel.Find(`[data-test-id="street-name-house-number"]`).First().Text())
	if title == "" {
		title = strings.TrimSpace(link.Text())
	}
	if title == "" {
		return domain.Listing{}, false
	}

	price := strings.TrimSpace(sel.Find(`[data-test-id="price-sale"], .search-result-price`).First().Text())

	return domain.Listing{
		SourceID:   f.name,
		ListingID:  listingID(absolute),
		URL:        absolute,
		Title:      title,
		Price:      price,
		ObservedAt: now,
	}, true
}

func (f *Funda) resolveURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(f.pageURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// listingID prefers the site-assigned numeric key embedded in the detail
// URL and falls back to a content hash of the URL when the site has none.
func listingID(detailURL string) string {
	if m := listingIDPattern.FindStringSubmatch(detailURL); m != nil {
		return m[1]
	}
	sum := sha256.Sum256([]byte(detailURL))
	return hex.EncodeToString(sum[:8])
}
