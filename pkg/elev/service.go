// Package elev fetches elevations for batches of sample points from a
// remote elevation service. It is the only part of altimap that talks to
// the network.
package elev

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/paulmach/orb"
)

// A Reading is the elevation of one point; OK is false when the service
// has no data for it.
type Reading struct {
	Elevation float64
	OK        bool
}

// A Service knows one remote API's wire format. Readings must be returned in
// the order of the points in the request.
type Service interface {
	Name() string
	// MaxBatch is the most points the service accepts in one request.
	MaxBatch() int
	// MinInterval is the documented minimum spacing between requests.
	MinInterval() time.Duration
	NewRequest(ctx context.Context, pts []orb.Point) (*http.Request, error)
	Decode(body []byte, n int) ([]Reading, error)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code       int
	Status     string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elevation service returned %s", e.Status)
}

// Transient reports whether repeating the request might succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// DecodeError is a response body that could not be understood.
type DecodeError struct {
	Service string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: bad response: %v", e.Service, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func countError(svc string, got, want int) error {
	return &DecodeError{Service: svc, Err: fmt.Errorf("%d elevations for %d points", got, want)}
}

// ByName returns the named service with its default endpoint when endpoint
// is empty. dataset is only meaningful for services with several datasets.
func ByName(name, endpoint, dataset string) (Service, error) {
	switch name {
	case "ign", "":
		return NewIGN(endpoint, dataset), nil
	case "opentopo", "opentopodata":
		return NewOpenTopoData(endpoint, dataset), nil
	}
	return nil, fmt.Errorf("unknown elevation service %q (ign, opentopo)", name)
}
