package engine

import (
	"context"
	"sync"
	"time"

	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// fakeAdapter returns one scripted result per Fetch call, repeating the
// last script entry once the script runs out.
type fakeAdapter struct {
	id     string
	mu     sync.Mutex
	script []fetchResult
	calls  int
}

type fetchResult struct {
	listings []domain.Listing
	err      error
}

func (f *fakeAdapter) SourceID() string { return f.id }

func (f *fakeAdapter) Fetch(context.Context) ([]domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	res := f.script[idx]
	return res.listings, res.err
}

func (f *fakeAdapter) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// panicAdapter panics on every fetch.
type panicAdapter struct{ id string }

func (p *panicAdapter) SourceID() string { return p.id }

func (p *panicAdapter) Fetch(context.Context) ([]domain.Listing, error) {
	panic("adapter exploded")
}

// memStore is an in-memory store.Store for tests that don't need a file.
type memStore struct {
	mu      sync.Mutex
	seen    map[string]domain.SeenStatus
	markErr error
	seenErr error
	marks   []string
	loadErr error
	loads   int
}

func newMemStore() *memStore {
	return &memStore{seen: make(map[string]domain.SeenStatus)}
}

func key(sourceID, listingID string) string { return sourceID + "/" + listingID }

func (m *memStore) Load(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return m.loadErr
}

func (m *memStore) HasSeen(_ context.Context, sourceID, listingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seenErr != nil {
		return false, m.seenErr
	}
	_, ok := m.seen[key(sourceID, listingID)]
	return ok, nil
}

func (m *memStore) MarkSeen(_ context.Context, sourceID, listingID string, status domain.SeenStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	k := key(sourceID, listingID)
	if _, ok := m.seen[k]; !ok {
		m.seen[k] = status
	}
	m.marks = append(m.marks, k+":"+string(status))
	return nil
}

func (m *memStore) Prune(context.Context, time.Duration) (int, error) { return 0, nil }

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen), nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) Close() error { return nil }

func (m *memStore) statusOf(sourceID, listingID string) (domain.SeenStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seen[key(sourceID, listingID)]
	return s, ok
}

// fakeDispatcher records deliveries and returns a configurable outcome.
type fakeDispatcher struct {
	mu       sync.Mutex
	outcome  func(*domain.Listing) domain.DeliveryOutcome
	delivery []string
}

func deliverAll() *fakeDispatcher {
	return &fakeDispatcher{outcome: func(*domain.Listing) domain.DeliveryOutcome {
		return domain.DeliveryOutcome{State: domain.DeliveryDelivered, Attempts: 1}
	}}
}

func interruptAll(reason string) *fakeDispatcher {
	return &fakeDispatcher{outcome: func(*domain.Listing) domain.DeliveryOutcome {
		return domain.DeliveryOutcome{State: domain.DeliveryInterrupted, Attempts: 1, Reason: reason}
	}}
}

func abandonAll(reason string) *fakeDispatcher {
	return &fakeDispatcher{outcome: func(*domain.Listing) domain.DeliveryOutcome {
		return domain.DeliveryOutcome{State: domain.DeliveryAbandoned, Attempts: 1, Reason: reason}
	}}
}

func (f *fakeDispatcher) Deliver(_ context.Context, l *domain.Listing) domain.DeliveryOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivery = append(f.delivery, l.Key())
	return f.outcome(l)
}

func (f *fakeDispatcher) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.delivery))
	copy(out, f.delivery)
	return out
}

func listing(sourceID, listingID string) domain.Listing {
	return domain.Listing{
		SourceID:   sourceID,
		ListingID:  listingID,
		URL:        "https://example.org/" + listingID,
		Title:      "Listing " + listingID,
		ObservedAt: time.Now(),
	}
}
