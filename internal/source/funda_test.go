package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhunter-dev/webhunter/internal/config"
	"github.com/webhunter-dev/webhunter/pkg/logger"
)

const fundaResultPage = `<!DOCTYPE html>
<html><body>
<div data-test-id="search-result-item">
  <a href="/koop/amsterdam/huis-43012345-kerkstraat-12/">
    <span data-test-id="street-name-house-number">Kerkstraat 12</span>
  </a>
  <p data-test-id="price-sale">&euro; 450.000 k.k.</p>
</div>
<div data-test-id="search-result-item">
  <a href="/koop/amsterdam/appartement-43099887-prinsengracht-8/">
    <span data-test-id="street-name-house-number">Prinsengracht 8</span>
  </a>
  <p data-test-id="price-sale">&euro; 625.000 k.k.</p>
</div>
</body></html>`

func fundaAdapter(t *testing.T, baseURL string) *Funda {
	t.Helper()
	return NewFunda(
		config.SourceConfig{Name: "funda-ams", Kind: "funda", URL: baseURL},
		Deps{Client: http.DefaultClient, Logger: logger.Nop(), UserAgent: "webhunter-test"},
	)
}

func TestFunda_FetchParsesListingsInPageOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fundaResultPage))
	}))
	t.Cleanup(srv.Close)

	listings, err := fundaAdapter(t, srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "43012345", listings[0].ListingID)
	assert.Equal(t, "funda-ams", listings[0].SourceID)
	assert.Equal(t, "Kerkstraat 12", listings[0].Title)
	assert.Contains(t, listings[0].URL, "/koop/amsterdam/huis-43012345-kerkstraat-12/")
	assert.Contains(t, listings[0].Price, "450.000")

	assert.Equal(t, "43099887", listings[1].ListingID)
	assert.Equal(t, "Prinsengracht 8", listings[1].Title)
}

func TestFunda_EmptyPageIsNormalCycle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Geen resultaten</p></body></html>`))
	}))
	t.Cleanup(srv.Close)

	listings, err := fundaAdapter(t, srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestFunda_UnparseableBlocksAreShapeMismatch(t *testing.T) {
	t.Parallel()

	// Result blocks exist but carry none of the expected markup.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<div data-test-id="search-result-item"><span>redesigned</span></div>
		</body></html>`))
	}))
	t.Cleanup(srv.Close)

	_, err := fundaAdapter(t, srv.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.False(t, IsTransient(err), "shape mismatch must be permanent")
}

func TestFunda_ServerFaultIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := fundaAdapter(t, srv.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestFunda_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	_, err := fundaAdapter(t, srv.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestListingID_FallsBackToURLHash(t *testing.T) {
	t.Parallel()

	withKey := listingID("https://example.org/koop/ams/huis-43012345-kerkstraat-12/")
	assert.Equal(t, "43012345", withKey)

	hashed := listingID("https://example.org/listing/no-numeric-key")
	assert.Len(t, hashed, 16)
	assert.Equal(t, hashed, listingID("https://example.org/listing/no-numeric-key"),
		"hash fallback must be stable")
}
