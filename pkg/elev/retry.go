package elev

import (
	"context"
	"errors"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/stronnag/altimap/pkg/geo"
)

// Backoff is an exponential delay schedule: Initial before the second
// attempt, multiplied by Factor each time, never more than Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

var DefaultBackoff = Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2}

// Delay returns the wait after the given failed attempt (1 based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || b.Initial <= 0 {
		return 0
	}
	f := b.Factor
	if f < 1 {
		f = 1
	}
	d := float64(b.Initial) * math.Pow(f, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

type batchState uint8

const (
	statePending batchState = iota
	stateRetrying
	stateSucceeded
	stateExhausted
)

func (s batchState) String() string {
	return [...]string{"pending", "retrying", "succeeded", "exhausted"}[s]
}

// A batch is one request's worth of points and where it is in its
// Pending -> Retrying(n) -> Succeeded|Exhausted life.
type batch struct {
	index    int
	first    int
	points   []geo.SamplePoint
	state    batchState
	attempts int
	err      error
	readings []Reading

	// cut short by cancellation
	abandoned bool
}

func (b *batch) done() bool {
	return b.state == stateSucceeded || b.state == stateExhausted
}

// advance records the outcome of one attempt and returns how long to wait
// before the next one. Only a batch left in stateRetrying is tried again.
func (b *batch) advance(readings []Reading, err error, maxAttempts int, bo Backoff) time.Duration {
	b.attempts++
	b.err = err
	if err == nil {
		b.state = stateSucceeded
		b.readings = readings
		return 0
	}
	if !transient(err) || b.attempts >= maxAttempts {
		b.state = stateExhausted
		return 0
	}
	d := bo.Delay(b.attempts)
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > d {
		// a server asking for longer than Max is not waited for
		if bo.Max > 0 && se.RetryAfter > bo.Max {
			b.state = stateExhausted
			return 0
		}
		d = se.RetryAfter
	}
	b.state = stateRetrying
	return d
}

// abandon exhausts the batch without another attempt, on cancellation.
func (b *batch) abandon(err error) {
	b.state = stateExhausted
	b.err = err
	b.abandoned = true
}

// transient classifies failures worth another attempt: timeouts, transport
// errors, 5xx and 429. Cancellation and malformed answers are final.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
