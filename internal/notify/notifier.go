// Package notify defines the push-notification channel interface, its
// concrete providers, and the dispatcher that applies the retry/backoff
// policy around them.
package notify

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// Message is one rendered outbound notification.
type Message struct {
	Title string
	Body  string
	URL   string
}

// Render builds the notification message for a listing.
func Render(l *domain.Listing) Message {
	body := l.Title
	if l.Price != "" {
		body = fmt.Sprintf("%s — %s", l.Title, l.Price)
	}
	return Message{
		Title: fmt.Sprintf("New listing on %s", l.SourceID),
		Body:  body,
		URL:   l.URL,
	}
}

// Sender delivers one message to a push channel. Implementations report
// failures as *DeliveryError and must honor ctx cancellation.
type Sender interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DeliveryError classifies a send failure. Rejected means the request
// itself is invalid (bad token, bad recipient) and repeating it cannot
// succeed; everything else is transient and retryable.
type DeliveryError struct {
	Provider string
	Err      error
	Rejected bool
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Rejected {
		kind = "rejected"
	}
	return fmt.Sprintf("%s delivery (%s): %v", e.Provider, kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is a non-retryable delivery failure.
func IsRejected(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Rejected
}

func rejectedErr(provider string, err error) *DeliveryError {
	return &DeliveryError{Provider: provider, Err: err, Rejected: true}
}

func transientErr(provider string, err error) *DeliveryError {
	return &DeliveryError{Provider: provider, Err: err, Rejected: false}
}
