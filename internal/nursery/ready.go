package nursery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// WaitReady polls the health endpoint with exponential backoff until the
// server answers with a non-5xx status or timeout elapses.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (*Response, error) {
		attempt++
		resp, err := c.Health(ctx)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("api not reachable yet")
			return nil, err
		}
		if resp.Status >= 500 {
			return nil, fmt.Errorf("health returned status %d", resp.Status)
		}
		return resp, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(timeout))
	if err != nil {
		return fmt.Errorf("api at %s not ready after %s: %w", c.env.APIBaseURL, timeout, err)
	}

	log.Debug().Int("attempts", attempt).Str("url", c.env.APIBaseURL).Msg("api ready")
	return nil
}
