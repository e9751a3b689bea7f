package llm

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single completion when no explicit timeout is
// configured.
const DefaultTimeout = 45 * time.Second

// timeoutClient wraps a Client and puts a deadline on every completion so a
// stalled provider cannot hold a reconciliation run open.
type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

var _ Client = (*timeoutClient)(nil)

// WithTimeout returns a Client whose completions are cancelled after timeout.
// A non-positive timeout falls back to DefaultTimeout.
func WithTimeout(inner Client, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutClient{inner: inner, timeout: timeout}
}

func (c *timeoutClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.GenerateResponse(ctx, prompt, systemMessage)
}

func (c *timeoutClient) Model() string {
	return c.inner.Model()
}
