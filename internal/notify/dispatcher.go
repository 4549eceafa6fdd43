package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/webhunter-dev/webhunter/internal/metrics"
	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// Dispatcher turns a new listing into an outbound message and drives it to
// a terminal outcome: delivered, or abandoned after the attempt ceiling.
// It holds no cross-listing state, so deliveries for different listings may
// run concurrently.
type Dispatcher struct {
	sender      Sender
	log         *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryHook   func(attempt uint, err error)
}

// NewDispatcher creates a Dispatcher around the given sender.
func NewDispatcher(sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:      sender,
		log:         slog.Default(),
		maxAttempts: 3,
		baseDelay:   2 * time.Second,
		maxDelay:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets a custom logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// WithMaxAttempts sets the delivery attempt ceiling.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxAttempts = n
	}
}

// WithBackoff sets the base delay (doubled per attempt) and its cap.
func WithBackoff(base, maxDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.baseDelay = base
		d.maxDelay = maxDelay
	}
}

// WithRetryHook registers a callback invoked before each retry sleep.
// Used by tests to observe the backoff schedule.
func WithRetryHook(hook func(attempt uint, err error)) DispatcherOption {
	return func(d *Dispatcher) {
		d.retryHook = hook
	}
}

// Deliver drives one listing to a terminal delivery outcome. Transient
// failures are retried with exponential backoff up to the attempt ceiling;
// a rejected request is abandoned after its first attempt since repeating
// an inherently invalid request cannot succeed. Context cancellation stops
// the sequence at the next suspension point.
func (d *Dispatcher) Deliver(ctx context.Context, listing *domain.Listing) domain.DeliveryOutcome {
	msg := Render(listing)

	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			metrics.DeliveryAttemptsTotal.Inc()

			sendErr := d.sender.Send(ctx, msg)
			if sendErr == nil {
				return nil
			}
			if IsRejected(sendErr) {
				return retry.Unrecoverable(sendErr)
			}
			return sendErr
		},
		retry.Attempts(uint(d.maxAttempts)),
		retry.Delay(d.baseDelay),
		retry.MaxDelay(d.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			if d.retryHook != nil {
				d.retryHook(n, retryErr)
			}
			d.log.Warn("retrying delivery",
				"listing", listing.Key(), "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		// A rejection is terminal even when shutdown began meanwhile, but
		// a sequence stopped by cancellation is neither a success nor an
		// exhaustion: no seen record may be written for it.
		if !IsRejected(err) && ctx.Err() != nil {
			d.log.Info("delivery interrupted by cancellation",
				"listing", listing.Key(), "attempts", attempts)
			return domain.DeliveryOutcome{
				State:    domain.DeliveryInterrupted,
				Attempts: attempts,
				Reason:   err.Error(),
			}
		}
		d.log.Warn("delivery abandoned",
			"listing", listing.Key(), "attempts", attempts, "error", err)
		return domain.DeliveryOutcome{
			State:    domain.DeliveryAbandoned,
			Attempts: attempts,
			Reason:   err.Error(),
		}
	}

	d.log.Debug("delivery succeeded", "listing", listing.Key(), "attempts", attempts)
	return domain.DeliveryOutcome{State: domain.DeliveryDelivered, Attempts: attempts}
}
