package diffdetect

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotExist = errors.New("the item could not be found")
var ErrAlreadyExists = errors.New("the item already exists")

// ErrConfig is returned for resources which can't be fetched as configured.
// It is detected before any network access and not worth retrying.
var ErrConfig = errors.New("invalid resource configuration")

// Transient fetch errors. A scheduler may try again on the next interval.
var (
	ErrNetwork          = errors.New("network error")
	ErrTimeout          = errors.New("request timed out")
	ErrTooManyRedirects = errors.New("too many redirects")
)

// ErrInProgress is returned if a fetch of the same resource is still running.
var ErrInProgress = errors.New("fetch of resource already in progress")

// ErrStatus is matched by every StatusError.
var ErrStatus = errors.New("HTTP status code not ok")

// ErrFeedParse is returned if a snapshot of an RSS resource is not a valid feed.
var ErrFeedParse = errors.New("feed could not be parsed")

// ErrDiff is returned for an invalid selection of snapshots to compare.
var ErrDiff = errors.New("invalid diff selection")

// StatusError is returned when the final response of a fetch had a non-success status code.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status code %d (%s)", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}
