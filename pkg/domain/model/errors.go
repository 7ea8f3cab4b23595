package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrSourceUnavailable is returned when the version-control provider cannot be
	// reached after bounded retries. Transient by nature; the run fails and the next
	// run resumes from the persisted cursor.
	ErrSourceUnavailable = goerr.New("source unavailable")

	// ErrSourceNotFound is returned by providers when the repository or object does not exist
	ErrSourceNotFound = goerr.New("source not found")

	// ErrSourceUnauthorized is returned by providers when credentials are rejected
	ErrSourceUnauthorized = goerr.New("source unauthorized")

	// ErrDimensionMismatch rejects a single index operation whose vector length
	// differs from the index dimension
	ErrDimensionMismatch = goerr.New("vector dimension mismatch")

	// ErrSummarizationFailed is returned when generation exhausted its retries
	ErrSummarizationFailed = goerr.New("summarization failed")

	// ErrInvalidTransition is returned for a transition not allowed from the current draft status
	ErrInvalidTransition = goerr.New("invalid draft transition")

	// ErrRunCoalesced is an informational notice: the trigger was dropped because
	// the per-repository queue is full
	ErrRunCoalesced = goerr.New("run coalesced")

	// ErrNotFound is returned by repositories when the requested entity does not exist
	ErrNotFound = goerr.New("not found")

	// ErrDuplicateName is returned when registering a repository whose name is taken
	ErrDuplicateName = goerr.New("duplicate repository name")

	// ErrInvalidArgument is returned for malformed caller input
	ErrInvalidArgument = goerr.New("invalid argument")
)

// RateLimitError is returned by providers when the remote API signals rate limiting.
// It is distinguishable from not-found and unauthorized conditions.
type RateLimitError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Cause)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// IsRateLimit reports whether err carries a RateLimitError
func IsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsPermanentSourceError reports whether the provider error must not be retried
func IsPermanentSourceError(err error) bool {
	return errors.Is(err, ErrSourceNotFound) || errors.Is(err, ErrSourceUnauthorized)
}
