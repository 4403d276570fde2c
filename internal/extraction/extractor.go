package extraction

import (
	"context"
	"errors"
	"time"
)

// ErrService indicates the extraction service could not be reached after the
// configured retries. The caller may resubmit the document later.
var ErrService = errors.New("extraction service unavailable")

// ErrNoStructure indicates the service response contained no structured data
// region at all. This is not fatal to the pipeline; it activates the fallback
// extractor with an empty candidate.
var ErrNoStructure = errors.New("no structured data found in response")

// Config holds the extraction service settings. It is passed explicitly into
// each extractor; there is no process-wide state.
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string        // Ollama only
	RequestTimeout time.Duration // per attempt
	MaxRetries     int           // additional attempts after the first
	RetryBackoff   time.Duration // initial delay, doubled each retry
}

// withDefaults fills unset knobs with conservative values.
func (c Config) withDefaults() Config {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// Extractor defines the boundary to the external AI extraction service. The
// service returns free-form text expected, but not guaranteed, to contain a
// JSON object; parsing is the response parser's job.
type Extractor interface {
	// ExtractText sends a normalized PNG to the service and returns the raw
	// response text. The context cancels an in-flight call.
	ExtractText(ctx context.Context, imageData []byte) (string, error)
	// Close closes the extractor and releases resources
	Close() error
}

// retry runs fn up to 1+maxRetries times with doubling backoff, stopping early
// when the context is cancelled. Cancellation is not retried; the caller
// abandoned the document.
func retry(ctx context.Context, maxRetries int, backoff time.Duration, fn func() (string, error)) (string, error) {
	var lastErr error
	delay := backoff
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		text, err := fn()
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", lastErr
}
