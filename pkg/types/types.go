// Package domain defines the core business types for webhunter.
package domain

import (
	"fmt"
	"time"
)

// SeenStatus records how a listing's notification attempt sequence ended.
type SeenStatus string

// Seen status constants.
const (
	// StatusDelivered means the notification was accepted by the push channel.
	StatusDelivered SeenStatus = "delivered"
	// StatusAbandoned means delivery failed permanently and will not be retried.
	StatusAbandoned SeenStatus = "abandoned"
)

// Valid reports whether s is a known seen status.
func (s SeenStatus) Valid() bool {
	return s == StatusDelivered || s == StatusAbandoned
}

// Listing is one candidate item observed from a source. Identity is the
// (SourceID, ListingID) pair; every other field is descriptive payload and
// may vary between observations without creating a new listing.
type Listing struct {
	SourceID   string    `json:"source_id"`
	ListingID  string    `json:"listing_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Price      string    `json:"price,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Key returns the composite dedup identity for the listing.
func (l *Listing) Key() string {
	return l.SourceID + "/" + l.ListingID
}

// SeenRecord is durable evidence that a listing has already been notified
// (or permanently abandoned). Records are immutable once written.
type SeenRecord struct {
	SourceID  string     `json:"source_id"`
	ListingID string     `json:"listing_id"`
	Status    SeenStatus `json:"status"`
	SeenAt    time.Time  `json:"seen_at"`
}

// DeliveryState is the terminal classification of one listing's delivery.
type DeliveryState string

// Delivery state constants.
const (
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryAbandoned DeliveryState = "abandoned"
	// DeliveryInterrupted means shutdown cut the attempt sequence short.
	// It is not a terminal outcome: no seen record is written and the
	// listing is picked up again on the next start.
	DeliveryInterrupted DeliveryState = "interrupted"
)

// DeliveryOutcome is the terminal result of dispatching one listing.
type DeliveryOutcome struct {
	State    DeliveryState `json:"state"`
	Attempts int           `json:"attempts"`
	Reason   string        `json:"reason,omitempty"`
}

// Delivered reports whether the outcome was a successful delivery.
func (o DeliveryOutcome) Delivered() bool {
	return o.State == DeliveryDelivered
}

// Interrupted reports whether cancellation stopped the attempt sequence
// before reaching a terminal outcome.
func (o DeliveryOutcome) Interrupted() bool {
	return o.State == DeliveryInterrupted
}

// SeenStatus converts a terminal outcome into the status persisted in the
// store. Interrupted outcomes must never be persisted.
func (o DeliveryOutcome) SeenStatus() SeenStatus {
	if o.Delivered() {
		return StatusDelivered
	}
	return StatusAbandoned
}

// CycleReport summarizes one poll-fetch-diff-deliver pass for a single
// source. It is the only thing a cycle surfaces to callers; faults inside
// the cycle never propagate as errors.
type CycleReport struct {
	CycleID     string        `json:"cycle_id"`
	SourceID    string        `json:"source_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Fetched     int           `json:"fetched"`
	New         int           `json:"new"`
	Delivered   int           `json:"delivered"`
	Abandoned   int           `json:"abandoned"`
	MarkFailed  int           `json:"mark_failed"`
	FetchFailed bool          `json:"fetch_failed"`
	FetchError  string        `json:"fetch_error,omitempty"`
}

// String renders a compact one-line summary for logs.
func (r CycleReport) String() string {
	if r.FetchFailed {
		return fmt.Sprintf("source=%s fetch failed: %s", r.SourceID, r.FetchError)
	}
	return fmt.Sprintf("source=%s fetched=%d new=%d delivered=%d abandoned=%d",
		r.SourceID, r.Fetched, r.New, r.Delivered, r.Abandoned)
}

// SourceState is a point-in-time view of one source's polling loop, exposed
// through the status API.
type SourceState struct {
	SourceID            string       `json:"source_id"`
	LastReport          *CycleReport `json:"last_report,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	NextPollAt          time.Time    `json:"next_poll_at"`
}

// StatusReport is the full status API payload.
type StatusReport struct {
	StartedAt time.Time     `json:"started_at"`
	Sources   []SourceState `json:"sources"`
}
