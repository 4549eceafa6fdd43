package client

import (
	"context"

	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// Status fetches the per-source polling state snapshot.
func (c *Client) Status(ctx context.Context) (*domain.StatusReport, error) {
	var report domain.StatusReport
	if err := c.get(ctx, "/api/v1/status", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Ready reports whether the service considers itself ready.
func (c *Client) Ready(ctx context.Context) error {
	return c.get(ctx, "/readyz", nil)
}
