package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/whalewatcher/watcher/internal/model"
)

// ErrorKind classifies a failed fetch so the retry controller can pick a policy.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1
	KindRateLimited
	KindMalformed
	KindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Sentinel errors matched with errors.Is against a *FetchError.
var (
	ErrNetwork     = errors.New("network failure")
	ErrRateLimited = errors.New("rate limited")
	ErrMalformed   = errors.New("malformed payload")
	ErrAuth        = errors.New("credential rejected")
)

// FetchError is returned by every venue client when a fetch fails.
type FetchError struct {
	Venue      model.Venue
	Kind       ErrorKind
	StatusCode int           // HTTP status, 0 for transport failures
	RetryAfter time.Duration // set by the venue on 429, zero if absent
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch %s (status %d): %v", e.Venue, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch %s: %v", e.Venue, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a FetchError against the sentinel of its kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrAuth:
		return e.Kind == KindAuth
	}
	return false
}

// AsFetchError extracts a *FetchError. Errors of any other type are treated as network failures.
func AsFetchError(venue model.Venue, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Venue: venue, Kind: KindNetwork, Err: err}
}

func networkError(venue model.Venue, err error) *FetchError {
	return &FetchError{Venue: venue, Kind: KindNetwork, Err: err}
}

func malformedError(venue model.Venue, err error) *FetchError {
	return &FetchError{Venue: venue, Kind: KindMalformed, Err: err}
}
