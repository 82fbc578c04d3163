package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// statusCoder is implemented by errors that know their HTTP status.
type statusCoder interface {
	httpStatus() int
}

// MissingParameterError is returned when the media id is absent.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string   { return "Missing movie/show ID" }
func (e *MissingParameterError) httpStatus() int { return http.StatusBadRequest }

// UnsupportedProviderError is returned for a provider name the registry
// does not know.
type UnsupportedProviderError struct {
	Provider  string
	Supported []string
}

func (e *UnsupportedProviderError) Error() string {
	return "Unsupported provider. Use 'vidsrc', 'vidsrc-to', or 'vidsrc-me'"
}
func (e *UnsupportedProviderError) httpStatus() int { return http.StatusBadRequest }

// FetchTimeoutError means the upstream did not answer within the deadline.
type FetchTimeoutError struct {
	Target  string
	Timeout time.Duration
}

func (e *FetchTimeoutError) Error() string {
	return fmt.Sprintf("upstream timeout after %s fetching %s", e.Timeout, e.Target)
}
func (e *FetchTimeoutError) httpStatus() int { return http.StatusInternalServerError }

// FetchFailedError covers transport failures, non-2xx answers and bodies
// over the size cap. StatusCode is zero when no response was received.
type FetchFailedError struct {
	Target     string
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchFailedError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("upstream %s returned %s: %v", e.Target, e.statusText(), e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream %s returned %s", e.Target, e.statusText())
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.Target, e.Err)
	}
	return "fetch " + e.Target + " failed"
}

func (e *FetchFailedError) statusText() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *FetchFailedError) Unwrap() error   { return e.Err }
func (e *FetchFailedError) httpStatus() int { return http.StatusInternalServerError }

// statusOf maps err to the response status. Anything untyped is a 500.
func statusOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.httpStatus()
	}
	return http.StatusInternalServerError
}

// errBodyTooLarge is wrapped in FetchFailedError when the cap is hit.
var errBodyTooLarge = errors.New("response body exceeds size limit")
