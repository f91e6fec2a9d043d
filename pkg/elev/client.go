package elev

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/stronnag/altimap/pkg/geo"
	"github.com/stronnag/altimap/pkg/grid"
)

// Largest response body read; a 100 point answer is a few KB.
const maxBody = 8 << 20

type Config struct {
	// Points per request; 0 or more than the service allows means the
	// service maximum.
	BatchSize int
	// Concurrent requests in flight; 1 is strictly sequential.
	Workers int
	// Minimum spacing between request starts; negative means the
	// service's documented interval.
	MinDelay    time.Duration
	MaxAttempts int
	Backoff     Backoff
	// Per request timeout.
	Timeout time.Duration
	Verbose int
}

var DefaultConfig = Config{
	Workers:     2,
	MinDelay:    -1,
	MaxAttempts: 5,
	Backoff:     DefaultBackoff,
	Timeout:     30 * time.Second,
}

// FetchError describes a batch that produced no elevations.
type FetchError struct {
	Batch    int
	First    int
	Count    int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("batch %d (points %d-%d) failed after %d attempt(s): %v",
		e.Batch, e.First, e.First+e.Count-1, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result has exactly one sample per requested point, in request order.
type Result struct {
	Samples []grid.Sample
	Errors  []*FetchError
}

// Missing counts the samples without an elevation.
func (r *Result) Missing() int {
	n := 0
	for _, s := range r.Samples {
		if !s.OK {
			n++
		}
	}
	return n
}

type Client struct {
	svc     Service
	cfg     Config
	hc      *http.Client
	clock   Clock
	limiter *Limiter
	// Progress, if set, is called from a single goroutine after each batch.
	Progress func(done, total int)
}

func NewClient(svc Service, cfg Config, clock Clock) *Client {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MinDelay < 0 {
		cfg.MinDelay = svc.MinInterval()
	}
	return &Client{
		svc:     svc,
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.Timeout},
		clock:   clock,
		limiter: NewLimiter(clock, cfg.MinDelay),
	}
}

func (c *Client) Service() Service {
	return c.svc
}

// BatchSize is the number of points sent per request.
func (c *Client) BatchSize() int {
	n := c.svc.MaxBatch()
	if c.cfg.BatchSize > 0 && c.cfg.BatchSize < n {
		n = c.cfg.BatchSize
	}
	return n
}

func (c *Client) logf(val int, ofmt string, params ...interface{}) {
	if c.cfg.Verbose > val {
		log.Printf(ofmt, params...)
	}
}

// Fetch queries the service for every point. Failed batches leave their
// samples without elevation and add a FetchError; they never abort the
// fetch. The error return is only set if ctx was cancelled before every
// batch had finished, in which case the result is still complete in shape.
func (c *Client) Fetch(ctx context.Context, pts []geo.SamplePoint) (*Result, error) {
	out := make([]grid.Sample, len(pts))
	for i, p := range pts {
		out[i].Point = p
	}
	size := c.BatchSize()
	var batches []*batch
	for i := 0; i < len(pts); i += size {
		end := min(i+size, len(pts))
		batches = append(batches, &batch{index: len(batches), first: i, points: pts[i:end]})
	}
	res := &Result{Samples: out}
	if len(batches) == 0 {
		return res, nil
	}

	workers := min(c.cfg.Workers, len(batches))
	c.logf(0, "%s: %d points in %d requests, %d worker(s)", c.svc.Name(), len(pts), len(batches), workers)

	jobs := make(chan *batch)
	results := make(chan *batch)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				c.run(ctx, b)
				results <- b
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, b := range batches {
			select {
			case jobs <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	ndone := 0
	for b := range results {
		ndone++
		if b.state == stateSucceeded {
			for j, r := range b.readings {
				out[b.first+j].Elevation = r.Elevation
				out[b.first+j].OK = r.OK
			}
		}
		if c.Progress != nil {
			c.Progress(ndone, len(batches))
		}
	}

	interrupted := false
	for _, b := range batches {
		if !b.done() {
			b.abandon(ctx.Err())
		}
		interrupted = interrupted || b.abandoned
		if b.state == stateExhausted {
			res.Errors = append(res.Errors, &FetchError{
				Batch:    b.index,
				First:    b.first,
				Count:    len(b.points),
				Attempts: b.attempts,
				Err:      b.err,
			})
		}
	}
	if interrupted {
		return res, ctx.Err()
	}
	return res, nil
}

// run drives one batch through its retry states.
func (c *Client) run(ctx context.Context, b *batch) {
	pts := make([]orb.Point, len(b.points))
	for i, p := range b.points {
		pts[i] = p.Point()
	}
	for !b.done() {
		if err := c.limiter.Wait(ctx); err != nil {
			b.abandon(err)
			return
		}
		readings, err := c.lookup(ctx, pts)
		if err != nil && ctx.Err() != nil {
			b.attempts++
			b.abandon(ctx.Err())
			return
		}
		delay := b.advance(readings, err, c.cfg.MaxAttempts, c.cfg.Backoff)
		switch b.state {
		case stateRetrying:
			c.logf(1, "%s: batch %d attempt %d: %v (retry in %v)", c.svc.Name(), b.index, b.attempts, err, delay)
			if err := sleep(ctx, c.clock, delay); err != nil {
				b.abandon(err)
				return
			}
		case stateExhausted:
			c.logf(0, "%s: batch %d abandoned after %d attempt(s): %v", c.svc.Name(), b.index, b.attempts, err)
		}
	}
}

func (c *Client) lookup(ctx context.Context, pts []orb.Point) ([]Reading, error) {
	req, err := c.svc.NewRequest(ctx, pts)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", c.svc.Name(), err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Status:     resp.Status,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After"), c.clock.Now()),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", c.svc.Name(), err)
	}
	return c.svc.Decode(body, len(pts))
}

// retryAfter understands both delta-seconds and HTTP-date forms.
func retryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
