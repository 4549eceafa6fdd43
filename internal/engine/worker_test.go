package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhunter-dev/webhunter/internal/store"
	"github.com/webhunter-dev/webhunter/pkg/logger"
	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

func TestRunCycle_DeliversNewListingsInPageOrder(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{
			listing("funda-ams", "1"),
			listing("funda-ams", "2"),
			listing("funda-ams", "3"),
		}},
	}}
	st := newMemStore()
	disp := deliverAll()
	w := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop()))

	report := w.RunCycle(context.Background())

	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 3, report.New)
	assert.Equal(t, 3, report.Delivered)
	assert.Zero(t, report.Abandoned)
	assert.False(t, report.FetchFailed)
	assert.NotEmpty(t, report.CycleID)
	assert.Equal(t, []string{"funda-ams/1", "funda-ams/2", "funda-ams/3"}, disp.delivered())
}

func TestRunCycle_SecondCycleDeliversOnlyUnseen(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{
			listing("funda-ams", "1"),
			listing("funda-ams", "2"),
			listing("funda-ams", "3"),
		}},
		{listings: []domain.Listing{
			listing("funda-ams", "2"),
			listing("funda-ams", "3"),
			listing("funda-ams", "4"),
		}},
	}}
	st := newMemStore()
	disp := deliverAll()
	w := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop()))

	first := w.RunCycle(context.Background())
	second := w.RunCycle(context.Background())

	assert.Equal(t, 3, first.Delivered)
	assert.Equal(t, 1, second.New)
	assert.Equal(t, 1, second.Delivered)
	assert.Equal(t, []string{"funda-ams/1", "funda-ams/2", "funda-ams/3", "funda-ams/4"}, disp.delivered())
}

func TestRunCycle_SameListingIDAcrossSourcesIsIndependent(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	disp := deliverAll()

	a := NewWorker(&fakeAdapter{id: "src-a", script: []fetchResult{
		{listings: []domain.Listing{listing("src-a", "42")}},
	}}, st, disp, WithWorkerLogger(logger.Nop()))
	b := NewWorker(&fakeAdapter{id: "src-b", script: []fetchResult{
		{listings: []domain.Listing{listing("src-b", "42")}},
	}}, st, disp, WithWorkerLogger(logger.Nop()))

	a.RunCycle(context.Background())
	b.RunCycle(context.Background())

	assert.Equal(t, []string{"src-a/42", "src-b/42"}, disp.delivered())
}

func TestRunCycle_FetchFailureTouchesNothing(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{err: errors.New("503 from upstream")},
	}}
	st := newMemStore()
	disp := deliverAll()
	w := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop()))

	report := w.RunCycle(context.Background())

	assert.True(t, report.FetchFailed)
	assert.Contains(t, report.FetchError, "503")
	assert.Empty(t, disp.delivered())
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a failed fetch must leave the seen store untouched")
}

func TestRunCycle_EmptyFetchIsANormalCycle(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{{listings: nil}}}
	w := NewWorker(adapter, newMemStore(), deliverAll(), WithWorkerLogger(logger.Nop()))

	report := w.RunCycle(context.Background())

	assert.False(t, report.FetchFailed)
	assert.Zero(t, report.Fetched)
	assert.Zero(t, report.New)
}

func TestRunCycle_AbandonedListingIsMarkedAndNotRedelivered(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{listing("funda-ams", "1")}},
		{listings: []domain.Listing{listing("funda-ams", "1")}},
	}}
	st := newMemStore()
	disp := abandonAll("invalid user key")
	w := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop()))

	first := w.RunCycle(context.Background())
	second := w.RunCycle(context.Background())

	assert.Equal(t, 1, first.Abandoned)
	assert.Zero(t, second.New, "an abandoned listing is spent, not retried next cycle")
	assert.Len(t, disp.delivered(), 1)

	status, ok := st.statusOf("funda-ams", "1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusAbandoned, status)
}

func TestRunCycle_SeenLookupFailureSkipsDelivery(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{listing("funda-ams", "1")}},
	}}
	st := newMemStore()
	st.seenErr = errors.New("disk gone")
	disp := deliverAll()
	w := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop()))

	report := w.RunCycle(context.Background())

	assert.Equal(t, 1, report.MarkFailed)
	assert.Empty(t, disp.delivered(), "an unverifiable listing must not be delivered")
}

func TestRunCycle_MarkFailureIsCountedButDeliveryStands(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{listing("funda-ams", "1")}},
	}}
	st := newMemStore()
	st.markErr = store.ErrStoreUnavailable
	disp := deliverAll()
	w := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop()))

	report := w.RunCycle(context.Background())

	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.MarkFailed)
}

func TestRunCycle_ExactlyOnceAcrossRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seen.db")
	ctx := context.Background()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{
			listing("funda-ams", "1"),
			listing("funda-ams", "2"),
		}},
	}}

	st, err := store.OpenSQLite(path, store.WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NoError(t, st.Load(ctx))

	disp := deliverAll()
	report := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop())).RunCycle(ctx)
	require.Equal(t, 2, report.Delivered)
	require.NoError(t, st.Close())

	// Same process boundary as a crash-and-restart: fresh store handle,
	// fresh worker, same candidates visible upstream.
	st2, err := store.OpenSQLite(path, store.WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer st2.Close()
	require.NoError(t, st2.Load(ctx))

	disp2 := deliverAll()
	adapter2 := &fakeAdapter{id: "funda-ams", script: adapter.script}
	report2 := NewWorker(adapter2, st2, disp2, WithWorkerLogger(logger.Nop())).RunCycle(ctx)

	assert.Zero(t, report2.New)
	assert.Empty(t, disp2.delivered(), "a restart must not replay notifications")
}

// shutdownDeliverer cancels the cycle context during delivery, as a
// graceful stop arriving mid-send does, then reports the inner outcome.
type shutdownDeliverer struct {
	cancel context.CancelFunc
	inner  *fakeDispatcher
}

func (s *shutdownDeliverer) Deliver(ctx context.Context, l *domain.Listing) domain.DeliveryOutcome {
	s.cancel()
	return s.inner.Deliver(ctx, l)
}

func TestRunCycle_MarkSurvivesShutdownDuringDelivery(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seen.db")
	bg := context.Background()

	st, err := store.OpenSQLite(path, store.WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NoError(t, st.Load(bg))

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{listing("funda-ams", "1")}},
	}}
	ctx, cancel := context.WithCancel(bg)
	defer cancel()
	disp := &shutdownDeliverer{cancel: cancel, inner: deliverAll()}

	report := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop())).RunCycle(ctx)
	require.Equal(t, 1, report.Delivered)
	assert.Zero(t, report.MarkFailed,
		"the mark after a terminal outcome must not fail on a cancelled cycle context")
	require.NoError(t, st.Close())

	st2, err := store.OpenSQLite(path, store.WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer st2.Close()
	require.NoError(t, st2.Load(bg))

	disp2 := deliverAll()
	adapter2 := &fakeAdapter{id: "funda-ams", script: adapter.script}
	report2 := NewWorker(adapter2, st2, disp2, WithWorkerLogger(logger.Nop())).RunCycle(bg)

	assert.Zero(t, report2.New)
	assert.Empty(t, disp2.delivered(),
		"a delivery completed during shutdown must not be replayed after restart")
}

func TestRunCycle_InterruptedDeliveryLeavesNoRecord(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{listing("funda-ams", "1")}},
	}}
	st := newMemStore()

	report := NewWorker(adapter, st, interruptAll("context canceled"),
		WithWorkerLogger(logger.Nop())).RunCycle(context.Background())

	assert.Equal(t, 1, report.New)
	assert.Zero(t, report.Delivered)
	assert.Zero(t, report.Abandoned,
		"an interrupted sequence is not an exhaustion and must not count as abandoned")
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "no seen record may be written without a terminal outcome")

	// The next start delivers the listing normally.
	adapter2 := &fakeAdapter{id: "funda-ams", script: adapter.script}
	disp2 := deliverAll()
	report2 := NewWorker(adapter2, st, disp2, WithWorkerLogger(logger.Nop())).RunCycle(context.Background())

	assert.Equal(t, 1, report2.Delivered)
	assert.Equal(t, []string{"funda-ams/1"}, disp2.delivered())
}

func TestSeed_MarksWithoutNotifying(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{id: "funda-ams", script: []fetchResult{
		{listings: []domain.Listing{
			listing("funda-ams", "1"),
			listing("funda-ams", "2"),
		}},
		{listings: []domain.Listing{
			listing("funda-ams", "1"),
			listing("funda-ams", "2"),
			listing("funda-ams", "3"),
		}},
	}}
	st := newMemStore()
	disp := deliverAll()
	w := NewWorker(adapter, st, disp, WithWorkerLogger(logger.Nop()))

	marked, err := w.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, marked)
	assert.Empty(t, disp.delivered())

	// Only the listing that appeared after seeding gets a notification.
	report := w.RunCycle(context.Background())
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, []string{"funda-ams/3"}, disp.delivered())
}
