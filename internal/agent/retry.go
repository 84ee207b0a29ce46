package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/agentd-dev/agentd/internal/provider"
)

const (
	maxRetries       = 5
	retryInitialWait = 2 * time.Second
	retryMaxWait     = 30 * time.Second
	retryMultiplier  = 2
)

// callBackend wraps the model call with exponential backoff for retryable
// errors (rate limits, overloads). The server's Retry-After wins over the
// computed backoff when present.
func (s *Session) callBackend(ctx context.Context, req provider.ModelRequest) (*provider.ModelResponse, error) {
	wait := retryInitialWait

	for attempt := 0; ; attempt++ {
		resp, err := s.backend.Call(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= maxRetries {
			return nil, err
		}

		var apiErr *provider.APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}

		retryWait := wait
		if apiErr.RetryAfterMs > 0 {
			retryWait = time.Duration(apiErr.RetryAfterMs) * time.Millisecond
		} else if retryWait > retryMaxWait {
			retryWait = retryMaxWait
		}
		fmt.Fprintf(os.Stderr, "agent: %s, retrying in %s (attempt %d/%d)\n",
			retryLabel(apiErr), retryWait.Round(time.Millisecond), attempt+1, maxRetries)

		timer := time.NewTimer(retryWait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}

		wait *= retryMultiplier
		if wait > retryMaxWait {
			wait = retryMaxWait
		}
	}
}

func retryLabel(err *provider.APIError) string {
	if err.StatusCode == 529 || err.ErrorType == "overloaded_error" {
		return "API overloaded"
	}
	if err.StatusCode == 503 {
		return "service unavailable"
	}
	return "rate limited"
}
