package llm

import (
	"context"

	"github.com/reconlab/recon-engine/pkg/retry"
)

// retryClient wraps a Client and retries transient completion failures so a
// momentary provider hiccup does not fail a whole reconciliation pass.
type retryClient struct {
	inner Client
	cfg   *retry.Config
}

var _ Client = (*retryClient)(nil)

// WithRetry returns a Client that retries transient provider failures with
// exponential backoff. A nil cfg uses retry.DefaultConfig. Wrap the timeout
// decorator so each attempt gets its own deadline.
func WithRetry(inner Client, cfg *retry.Config) Client {
	if cfg == nil {
		cfg = retry.DefaultConfig()
	}
	return &retryClient{inner: inner, cfg: cfg}
}

func (c *retryClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string) (string, error) {
	return retry.DoWithResult(ctx, c.cfg, func() (string, error) {
		return c.inner.GenerateResponse(ctx, prompt, systemMessage)
	})
}

func (c *retryClient) Model() string {
	return c.inner.Model()
}
