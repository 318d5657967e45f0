// Package fetch downloads playlists and media segments over HTTP. Segment
// lists are fetched in fixed-size batches: every request of a batch runs
// concurrently and the whole batch is awaited before the next one starts,
// which bounds open connections and buffered bytes per run.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize = 5
	DefaultDelay     = 200 * time.Millisecond
)

// Options tunes a Pipeline. Zero values select the defaults.
type Options struct {
	// BatchSize is the number of segments fetched concurrently.
	BatchSize int
	// Delay is the minimum spacing between batch starts. Negative disables it.
	Delay time.Duration
	// Timeout bounds a single request. Zero leaves it to the transport.
	Timeout time.Duration
}

// Unit is the outcome of fetching one segment. Data is nil when Err is set.
type Unit struct {
	Index int
	URL   string
	Data  []byte
	Err   error
}

// OK reports whether the segment was fetched.
func (u Unit) OK() bool {
	return u.Err == nil
}

// ProgressFunc receives the number of attempted segments after each batch.
type ProgressFunc func(done, total int)

// Pipeline fetches segment lists with bounded concurrency.
type Pipeline struct {
	client    *http.Client
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewPipeline creates a pipeline that issues requests through client.
func NewPipeline(client *http.Client, opts Options, log zerolog.Logger) *Pipeline {
	if client == nil {
		client = &http.Client{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	return &Pipeline{
		client:    client,
		batchSize: opts.BatchSize,
		timeout:   opts.Timeout,
		limiter:   rate.NewLimiter(limit, 1),
		log:       log,
	}
}

// BatchSize reports the configured batch size.
func (p *Pipeline) BatchSize() int {
	return p.batchSize
}

// FetchAll downloads urls and returns one Unit per URL in input order.
//
// A failed segment is recorded on its unit and logged; it does not stop the
// run. A batch that has started always runs to completion: ctx is only
// consulted between batches, and an error is returned if it is done by then.
func (p *Pipeline) FetchAll(ctx context.Context, urls []string, onProgress ProgressFunc) ([]Unit, error) {
	if len(urls) == 0 {
		return nil, ErrNoSegments
	}

	units := make([]Unit, len(urls))
	inflight := context.WithoutCancel(ctx)
	var received uint64

	for start := 0; start < len(urls); start += p.batchSize {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch stopped after %d of %d segments: %w", start, len(urls), err)
		}

		end := min(start+p.batchSize, len(urls))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				units[i] = p.fetchSegment(inflight, i, urls[i])
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			received += uint64(len(units[i].Data))
		}
		p.log.Debug().
			Int("done", end).
			Int("total", len(urls)).
			Str("received", humanize.Bytes(received)).
			Msg("batch complete")

		if onProgress != nil {
			onProgress(end, len(urls))
		}
	}

	return units, nil
}

func (p *Pipeline) fetchSegment(ctx context.Context, index int, url string) Unit {
	unit := Unit{Index: index, URL: url}

	data, status, err := p.get(ctx, url)
	switch {
	case err != nil:
		unit.Err = &SegmentError{Index: index, URL: url, Err: err}
	case status/100 != 2:
		unit.Err = &SegmentError{Index: index, URL: url, Status: status}
	default:
		unit.Data = data
		return unit
	}

	p.log.Warn().Err(unit.Err).Int("index", index).Msg("segment download failed")
	return unit
}

// Present returns the payloads of successful units in order.
func Present(units []Unit) ([][]byte, error) {
	var out [][]byte
	for _, u := range units {
		if u.OK() {
			out = append(out, u.Data)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoSegments
	}
	return out, nil
}

// Join concatenates the payloads of successful units in order, skipping
// failed ones.
func Join(units []Unit) ([]byte, error) {
	parts, err := Present(units)
	if err != nil {
		return nil, err
	}

	size := 0
	for _, p := range parts {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// Failed counts units without data.
func Failed(units []Unit) int {
	n := 0
	for _, u := range units {
		if !u.OK() {
			n++
		}
	}
	return n
}

// FetchText downloads a playlist body.
func (p *Pipeline) FetchText(ctx context.Context, url string) (string, error) {
	data, status, err := p.get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to download playlist: %w", err)
	}
	if status/100 != 2 {
		return "", fmt.Errorf("failed to download playlist: unexpected status code: %d", status)
	}
	return string(data), nil
}

func (p *Pipeline) get(ctx context.Context, url string) ([]byte, int, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, resp.StatusCode, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	return data, resp.StatusCode, nil
}
