// Package source defines the adapter capability that turns one configured
// site into a sequence of candidate listings. One adapter implementation per
// site; the core treats adapters as opaque fetchers and never looks inside
// their parsing.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/webhunter-dev/webhunter/internal/config"
	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// Adapter fetches the current candidate listings for one source.
// Implementations must honor ctx cancellation on all network I/O.
type Adapter interface {
	// SourceID returns the configured source name.
	SourceID() string
	// Fetch returns candidate listings in site order. Failures are
	// reported as *FetchError.
	Fetch(ctx context.Context) ([]domain.Listing, error)
}

// FetchError classifies an adapter failure. Transient failures (network,
// timeout, throttling) may succeed on a later cycle; permanent failures
// (parse/shape mismatch) need operator attention. Both are cycle-scoped and
// never process-fatal.
type FetchError struct {
	Source    string
	Err       error
	Transient bool
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient fetch failure.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// transientErr wraps err as a transient fetch failure.
func transientErr(source string, err error) *FetchError {
	return &FetchError{Source: source, Err: err, Transient: true}
}

// permanentErr wraps err as a permanent fetch failure.
func permanentErr(source string, err error) *FetchError {
	return &FetchError{Source: source, Err: err, Transient: false}
}

// classifyHTTPStatus maps a non-2xx response to a fetch error. Throttling
// and server faults are transient; anything else client-side is permanent.
func classifyHTTPStatus(source string, status int) *FetchError {
	err := fmt.Errorf("unexpected status %d", status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return transientErr(source, err)
	}
	return permanentErr(source, err)
}

// isNetworkErr reports whether err looks like a connectivity/timeout fault.
func isNetworkErr(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Deps carries the shared collaborators handed to every adapter.
type Deps struct {
	Client    *http.Client
	Limiter   *Limiter
	UserAgent string
	Logger    *slog.Logger
}

// New builds the adapter for a source configuration, dispatching on kind.
func New(cfg config.SourceConfig, deps Deps) (Adapter, error) {
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	switch cfg.Kind {
	case "funda":
		return NewFunda(cfg, deps), nil
	case "rss":
		return NewRSS(cfg, deps), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
