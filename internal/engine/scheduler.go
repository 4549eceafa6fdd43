package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/webhunter-dev/webhunter/internal/metrics"
	"github.com/webhunter-dev/webhunter/internal/store"
	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// Entry pairs a worker with its polling policy.
type Entry struct {
	Worker   *Worker
	Interval time.Duration
	Jitter   time.Duration
}

// Scheduler owns the lifecycle of all source workers. Each source polls on
// its own goroutine: the first cycle runs immediately at startup, then the
// loop sleeps interval plus a uniform random jitter before the next cycle.
// A fault in one source never stalls another; a panic is recovered at the
// loop boundary and logged as that source's fault.
type Scheduler struct {
	entries   []Entry
	store     store.Store
	log       *slog.Logger
	cron      *cron.Cron
	retention time.Duration

	mu        sync.Mutex
	states    map[string]*domain.SourceState
	startedAt time.Time
}

// NewScheduler creates a Scheduler over the given entries.
func NewScheduler(entries []Entry, s store.Store, opts ...SchedulerOption) *Scheduler {
	sch := &Scheduler{
		entries: entries,
		store:   s,
		log:     slog.Default(),
		states:  make(map[string]*domain.SourceState, len(entries)),
	}
	for _, opt := range opts {
		opt(sch)
	}
	for _, e := range entries {
		sch.states[e.Worker.SourceID()] = &domain.SourceState{SourceID: e.Worker.SourceID()}
	}
	return sch
}

// SchedulerOption configures the Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets a custom logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithRetention enables the periodic prune job: seen records older than
// retention are deleted on the given cron schedule.
func WithRetention(retention time.Duration, schedule string) SchedulerOption {
	return func(s *Scheduler) {
		if retention <= 0 {
			return
		}
		s.retention = retention
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(schedule, s.runPrune); err != nil {
			// An invalid schedule disables pruning rather than the service.
			s.log.Error("invalid prune schedule, retention disabled",
				"schedule", schedule, "error", err)
			s.cron = nil
		}
	}
}

// Run loads the store, launches one polling loop per source, and blocks
// until ctx is canceled and every loop has exited. A corrupt store is the
// only startup-fatal condition.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.store.Load(ctx); err != nil {
		return fmt.Errorf("loading seen store: %w", err)
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if n, err := s.store.Count(ctx); err == nil {
		metrics.SeenRecords.Set(float64(n))
	}

	if s.cron != nil {
		s.cron.Start()
		s.log.Info("retention prune job scheduled", "retention", s.retention)
	}

	s.log.Info("scheduler started", "sources", len(s.entries))

	var wg sync.WaitGroup
	for i := range s.entries {
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()
			s.pollLoop(ctx, e)
		}(s.entries[i])
	}

	<-ctx.Done()
	s.log.Info("scheduler stopping, waiting for in-flight cycles")
	wg.Wait()

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	s.log.Info("scheduler stopped")
	return nil
}

// RunOnce executes one cycle for every source sequentially and returns the
// reports. Used by the one-shot CLI mode.
func (s *Scheduler) RunOnce(ctx context.Context) ([]domain.CycleReport, error) {
	if err := s.store.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading seen store: %w", err)
	}

	reports := make([]domain.CycleReport, 0, len(s.entries))
	for _, e := range s.entries {
		if ctx.Err() != nil {
			break
		}
		reports = append(reports, s.runProtected(ctx, e.Worker))
	}
	return reports, nil
}

// Seed loads the store and marks every currently visible listing as seen
// without notifying.
func (s *Scheduler) Seed(ctx context.Context) (int, error) {
	if err := s.store.Load(ctx); err != nil {
		return 0, fmt.Errorf("loading seen store: %w", err)
	}

	var total int
	for _, e := range s.entries {
		n, err := e.Worker.Seed(ctx)
		total += n
		if err != nil {
			s.log.Warn("seeding source failed", "source", e.Worker.SourceID(), "error", err)
		}
	}
	return total, nil
}

// Status returns a snapshot of every source loop for the status API.
func (s *Scheduler) Status() domain.StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := domain.StatusReport{StartedAt: s.startedAt}
	for _, e := range s.entries {
		report.Sources = append(report.Sources, *s.states[e.Worker.SourceID()])
	}
	return report
}

func (s *Scheduler) pollLoop(ctx context.Context, e Entry) {
	sourceID := e.Worker.SourceID()
	timer := time.NewTimer(0) // first cycle runs immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		report := s.runProtected(ctx, e.Worker)

		delay := e.Interval
		if e.Jitter > 0 {
			delay += rand.N(e.Jitter)
		}
		s.recordReport(sourceID, report, time.Now().Add(delay))
		timer.Reset(delay)
	}
}

// runProtected runs one cycle with a panic boundary so an adapter or
// dispatcher fault can never take down the scheduler or another source.
func (s *Scheduler) runProtected(ctx context.Context, w *Worker) (report domain.CycleReport) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			s.log.Error("panic in poll cycle",
				"source", w.SourceID(),
				"panic", fmt.Sprint(r),
				"stack", string(buf[:n]),
			)
			report.SourceID = w.SourceID()
			report.FetchFailed = true
			report.FetchError = fmt.Sprintf("panic: %v", r)
		}
	}()
	return w.RunCycle(ctx)
}

func (s *Scheduler) recordReport(sourceID string, report domain.CycleReport, nextPoll time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.states[sourceID]
	r := report
	state.LastReport = &r
	state.NextPollAt = nextPoll
	if report.FetchFailed {
		state.ConsecutiveFailures++
	} else {
		state.ConsecutiveFailures = 0
	}
}

func (s *Scheduler) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.store.Prune(ctx, s.retention)
	if err != nil {
		s.log.Error("retention prune failed", "error", err)
		return
	}
	if n, err := s.store.Count(ctx); err == nil {
		metrics.SeenRecords.Set(float64(n))
	}
	s.log.Info("retention prune complete", "removed", removed)
}
