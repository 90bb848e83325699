package githubapp

import (
	"fmt"
	"time"
)

// ClientError reports a 4xx response from the GitHub API. The raw response
// body is kept for diagnostics.
type ClientError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("github api client error (status %d) at %s: %s", e.StatusCode, e.URL, e.Body)
}

// ServerError reports a 5xx response from the GitHub API.
type ServerError struct {
	StatusCode int
	URL        string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("github api server error (status %d) at %s", e.StatusCode, e.URL)
}

// TransportError reports a request that kept failing at the network level
// until the retry budget was exhausted.
type TransportError struct {
	URL      string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("github api request to %s failed after %d attempts over %s: %v",
		e.URL, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BootstrapError reports a failure to obtain an installation access token.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("obtain github app installation access token: %v", e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// DecodeError reports a response body that is not valid JSON or does not
// match the expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode github api response body: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
