// Package engine orchestrates the change-detection pipeline: per-source
// workers that fetch, diff, and deliver, and the scheduler that drives them.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/webhunter-dev/webhunter/internal/metrics"
	"github.com/webhunter-dev/webhunter/internal/source"
	"github.com/webhunter-dev/webhunter/internal/store"
	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// seenMarkTimeout bounds the detached seen-mark write after a terminal
// delivery outcome.
const seenMarkTimeout = 5 * time.Second

// Deliverer drives one listing to a terminal delivery outcome.
type Deliverer interface {
	Deliver(ctx context.Context, listing *domain.Listing) domain.DeliveryOutcome
}

// Worker owns one source's poll cycle: invoke the adapter, diff against the
// seen store, hand new listings to the dispatcher, and record each terminal
// outcome. All faults are contained in the CycleReport; RunCycle never
// returns an error.
type Worker struct {
	adapter    source.Adapter
	store      store.Store
	dispatcher Deliverer
	log        *slog.Logger
	tracer     trace.Tracer
	nowFunc    func() time.Time
}

// NewWorker creates a Worker for one source.
func NewWorker(adapter source.Adapter, s store.Store, d Deliverer, opts ...WorkerOption) *Worker {
	w := &Worker{
		adapter:    adapter,
		store:      s,
		dispatcher: d,
		log:        slog.Default(),
		tracer:     otel.Tracer("webhunter/engine"),
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("source", adapter.SourceID())
	return w
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets a custom logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.log = l
	}
}

// SourceID returns the worker's source name.
func (w *Worker) SourceID() string {
	return w.adapter.SourceID()
}

// RunCycle executes one poll-fetch-diff-deliver pass. Candidates are
// processed in adapter order, and the seen-mark for a listing is committed
// only after that listing's terminal delivery outcome.
func (w *Worker) RunCycle(ctx context.Context) domain.CycleReport {
	start := w.nowFunc()
	report := domain.CycleReport{
		CycleID:   uuid.NewString(),
		SourceID:  w.SourceID(),
		StartedAt: start,
	}

	ctx, span := w.tracer.Start(ctx, "cycle",
		trace.WithAttributes(attribute.String("source", w.SourceID())),
	)
	defer func() {
		report.Duration = w.nowFunc().Sub(start)
		metrics.CyclesTotal.WithLabelValues(w.SourceID()).Inc()
		metrics.CycleDuration.Observe(report.Duration.Seconds())
		span.SetAttributes(
			attribute.Int("fetched", report.Fetched),
			attribute.Int("new", report.New),
			attribute.Int("delivered", report.Delivered),
			attribute.Int("abandoned", report.Abandoned),
		)
		span.End()
	}()

	listings, err := w.adapter.Fetch(ctx)
	if err != nil {
		report.FetchFailed = true
		report.FetchError = err.Error()
		metrics.FetchFailuresTotal.WithLabelValues(w.SourceID()).Inc()
		w.log.Warn("fetch failed", "transient", source.IsTransient(err), "error", err)
		return report
	}

	report.Fetched = len(listings)
	metrics.ListingsFetchedTotal.Add(float64(len(listings)))

	for i := range listings {
		if ctx.Err() != nil {
			w.log.Info("cycle interrupted", "processed", i, "of", len(listings))
			return report
		}
		w.processListing(ctx, &listings[i], &report)
	}

	w.log.Debug("cycle complete", "report", report.String())
	return report
}

func (w *Worker) processListing(
	ctx context.Context,
	listing *domain.Listing,
	report *domain.CycleReport,
) {
	seen, err := w.store.HasSeen(ctx, listing.SourceID, listing.ListingID)
	if err != nil {
		// Without a trustworthy answer, delivering risks a duplicate.
		// Skip; the next cycle sees the listing again.
		report.MarkFailed++
		w.log.Error("seen lookup failed", "listing", listing.ListingID, "error", err)
		return
	}
	if seen {
		return
	}

	report.New++
	metrics.ListingsNewTotal.Inc()

	outcome := w.dispatcher.Deliver(ctx, listing)
	if outcome.Interrupted() {
		// Not a terminal outcome: nothing is marked, the next start sees
		// the listing again.
		w.log.Info("delivery interrupted before a terminal outcome",
			"listing", listing.ListingID, "attempts", outcome.Attempts)
		return
	}
	if outcome.Delivered() {
		report.Delivered++
		metrics.NotificationsDeliveredTotal.Inc()
	} else {
		report.Abandoned++
		metrics.NotificationsAbandonedTotal.Inc()
		w.log.Warn("listing abandoned",
			"listing", listing.ListingID,
			"attempts", outcome.Attempts,
			"reason", outcome.Reason,
		)
	}

	// Mark immediately after the terminal outcome to keep the
	// crash-duplicate window as small as possible. The mark runs on a
	// detached context: once the outcome is terminal it must land even if
	// shutdown cancelled ctx mid-delivery. Only a crash may lose it.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), seenMarkTimeout)
	defer cancel()
	if err := w.store.MarkSeen(markCtx, listing.SourceID, listing.ListingID, outcome.SeenStatus()); err != nil {
		report.MarkFailed++
		metrics.StoreWriteFailuresTotal.Inc()
		w.log.Error("seen mark failed after terminal outcome",
			"listing", listing.ListingID,
			"status", outcome.SeenStatus(),
			"error", err,
		)
	}
}

// Seed fetches the source once and marks every unseen candidate as
// delivered without notifying. Used to initialize the store so that only
// listings appearing after startup produce notifications.
func (w *Worker) Seed(ctx context.Context) (marked int, err error) {
	listings, err := w.adapter.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	for i := range listings {
		l := &listings[i]
		seen, err := w.store.HasSeen(ctx, l.SourceID, l.ListingID)
		if err != nil {
			return marked, err
		}
		if seen {
			continue
		}
		if err := w.store.MarkSeen(ctx, l.SourceID, l.ListingID, domain.StatusDelivered); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}
