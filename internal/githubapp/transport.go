package githubapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	acceptHeader = "application/vnd.github.v3+json"
	userAgent    = "branchguard/" + Version
)

// Version identifies this client in the User-Agent header so GitHub's
// request logs stay meaningful.
const Version = "0.2.0"

// Doer executes a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryPolicy bounds how network-level failures are retried.
type RetryPolicy struct {
	// BaseDelay is the delay before the first retry; each further retry
	// doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the per-attempt delay.
	MaxDelay time.Duration
	// TotalBudget caps the cumulative elapsed time since the first attempt.
	TotalBudget time.Duration
}

// DefaultRetryPolicy retries with delays 1s, 2s, 4s, ... capped at 60s, for
// a total of up to five minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		TotalBudget: 5 * time.Minute,
	}
}

// retryingTransport wraps a Doer and retries network-level failures with
// exponential backoff under a total time budget. It never inspects HTTP
// status codes; classifying responses is the caller's concern, which keeps
// retry policy independent of application semantics.
type retryingTransport struct {
	next   Doer
	policy RetryPolicy

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetryingTransport(next Doer, policy RetryPolicy) *retryingTransport {
	return &retryingTransport{
		next:   next,
		policy: policy,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// execute sends one logical request, transparently retrying network-level
// failures. It returns the raw status code and body of the first response
// that arrived, whatever its status.
func (t *retryingTransport) execute(ctx context.Context, method, url, bearer string, body any) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	start := time.Now()
	delay := t.policy.BaseDelay
	attempts := 0

	for {
		attempts++

		status, respBody, err := t.attempt(ctx, method, url, bearer, payload)
		if err == nil {
			return status, respBody, nil
		}
		if ctx.Err() != nil {
			return 0, nil, &TransportError{URL: url, Attempts: attempts, Elapsed: time.Since(start), Err: err}
		}

		if time.Since(start)+delay > t.policy.TotalBudget {
			return 0, nil, &TransportError{URL: url, Attempts: attempts, Elapsed: time.Since(start), Err: err}
		}
		if serr := t.sleep(ctx, delay); serr != nil {
			return 0, nil, &TransportError{URL: url, Attempts: attempts, Elapsed: time.Since(start), Err: serr}
		}
		delay = min(delay*2, t.policy.MaxDelay)
	}
}

// attempt performs a single HTTP exchange.
func (t *retryingTransport) attempt(ctx context.Context, method, url, bearer string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := t.next.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
