package capability

import (
	"context"
	"fmt"
	"time"
)

// RetryModel wraps a TextModel with a bounded retry policy for transient
// provider failures. This is the adapter-level retry the orchestration
// core deliberately does not own.
type RetryModel struct {
	inner    TextModel
	attempts int
	backoff  time.Duration
}

// NewRetryModel wraps model with up to attempts tries per call, with
// exponential backoff starting at backoff. attempts below 1 is treated
// as 1; a zero backoff defaults to one second.
func NewRetryModel(model TextModel, attempts int, backoff time.Duration) *RetryModel {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &RetryModel{inner: model, attempts: attempts, backoff: backoff}
}

// Generate calls the wrapped model, retrying on error until the attempt
// ceiling. Context cancellation stops the loop immediately.
func (m *RetryModel) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	delay := m.backoff

	for attempt := 1; attempt <= m.attempts; attempt++ {
		response, err := m.inner.Generate(ctx, prompt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == m.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return "", fmt.Errorf("after %d attempts: %w", m.attempts, lastErr)
}
