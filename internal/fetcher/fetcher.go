// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

/*
fetcher.go - Rate-Limited HTTP Fetcher

All outbound HTTP traffic funnels through one Fetcher instance so that
request spacing is respected globally, not per caller. Each endpoint
class (upstream catalog, hosting API) carries its own minimum interval,
timeout and retry budget.

Behavior:
  - Spacing: a per-class rate gate blocks the caller until the minimum
    interval since the last dispatched request has elapsed. This is a
    gate, not a queue.
  - Retries: transient failures (connection errors, timeouts, DNS
    failures, HTTP 408/429/5xx) are retried with exponential backoff,
    doubling from a base delay up to a cap. HTTP 429 honors Retry-After.
  - Fatal: any other response is returned to the caller immediately;
    the caller owns payload-level classification.
  - Cancellation: the gate wait and every backoff wait abort when the
    context is canceled, so in-flight sync can stop between attempts.
*/

//nolint:staticcheck // File documentation, not package doc
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/metrics"
)

// Class identifies one upstream endpoint class with its own spacing gate.
type Class string

const (
	// ClassUpstream is the catalog info service.
	ClassUpstream Class = "upstream"
	// ClassHosting is the version-control hosting API.
	ClassHosting Class = "hosting"
)

var (
	// ErrRetriesExhausted wraps the last transient cause after the retry
	// budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrFatal marks non-retryable failures (malformed payloads,
	// rejected requests). Callers wrap their classification with it.
	ErrFatal = errors.New("fatal fetch error")
	// ErrUnknownClass is returned for an unregistered endpoint class.
	ErrUnknownClass = errors.New("unknown endpoint class")
)

// Options configures one endpoint class.
type Options struct {
	// MinInterval is the minimum spacing between dispatched requests.
	MinInterval time.Duration
	// Timeout bounds one HTTP attempt.
	Timeout time.Duration
	// MaxRetries bounds transient-failure retries (0 = no retries).
	MaxRetries int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the backoff.
	RetryMaxDelay time.Duration
}

type endpoint struct {
	gate   *rate.Limiter
	client *http.Client
	opts   Options
}

// Fetcher enforces per-class request spacing and bounded retries for
// all outbound HTTP traffic. Safe for concurrent use.
type Fetcher struct {
	mu        sync.RWMutex
	endpoints map[Class]*endpoint
}

// New creates an empty Fetcher. Register endpoint classes before use.
func New() *Fetcher {
	return &Fetcher{endpoints: make(map[Class]*endpoint)}
}

// Register configures an endpoint class. Calling it again replaces the
// class configuration and resets its spacing gate.
func (f *Fetcher) Register(class Class, opts Options) {
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 30 * time.Second
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints[class] = &endpoint{
		// Burst 1: the first caller passes immediately, every later
		// dispatch waits out the interval.
		gate:   rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Do executes one logical request against the given endpoint class.
//
// The request is rebuilt per attempt from method/url/header/body so
// retries never reuse a consumed body. Transient failures are retried
// with exponential backoff; any other response is returned as-is for
// the caller to interpret (a 404 is a legitimate state, not an error).
func (f *Fetcher) Do(ctx context.Context, class Class, method, url string, header http.Header, body []byte) (*http.Response, error) {
	f.mu.RLock()
	ep, ok := f.endpoints[class]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	var lastErr error
	for attempt := 0; attempt <= ep.opts.MaxRetries; attempt++ {
		if err := f.waitGate(ctx, class, ep); err != nil {
			return nil, err
		}

		resp, err := f.attempt(ctx, ep, method, url, header, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isTransientErr(err) {
				metrics.FetchRequests.WithLabelValues(string(class), "fatal").Inc()
				return nil, fmt.Errorf("%w: %v", ErrFatal, err)
			}
			lastErr = err
		} else if !isTransientStatus(resp.StatusCode) {
			// Labeled by status class: a 404 probe or a 422 CAS conflict
			// is a completed exchange, not a "success".
			metrics.FetchRequests.WithLabelValues(string(class), statusClass(resp.StatusCode)).Inc()
			return resp, nil
		} else {
			lastErr = fmt.Errorf("transient status %d %s", resp.StatusCode, resp.Status)
			delay := retryAfter(resp)
			_ = resp.Body.Close() // retrying; drained error is irrelevant
			if delay > 0 {
				if err := sleepCtx(ctx, delay); err != nil {
					return nil, err
				}
				metrics.FetchRetries.WithLabelValues(string(class)).Inc()
				continue
			}
		}

		if attempt == ep.opts.MaxRetries {
			break
		}

		if err := sleepCtx(ctx, f.backoffDelay(ep, attempt)); err != nil {
			return nil, err
		}
		metrics.FetchRetries.WithLabelValues(string(class)).Inc()
	}

	metrics.FetchRequests.WithLabelValues(string(class), "retries_exhausted").Inc()
	logging.Warn().Str("class", string(class)).Str("url", url).Err(lastErr).Msg("fetch retries exhausted")
	return nil, fmt.Errorf("%w after %d retries: %v", ErrRetriesExhausted, ep.opts.MaxRetries, lastErr)
}

// waitGate blocks until the class spacing gate admits a request.
func (f *Fetcher) waitGate(ctx context.Context, class Class, ep *endpoint) error {
	start := time.Now()
	if err := ep.gate.Wait(ctx); err != nil {
		return err
	}
	metrics.FetchWaitSeconds.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())
	return nil
}

func (f *Fetcher) attempt(ctx context.Context, ep *endpoint, method, url string, header http.Header, body []byte) (*http.Response, error) {
	var reqBody *bytes.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return ep.client.Do(req)
}

// backoffDelay computes the capped exponential delay for an attempt.
func (f *Fetcher) backoffDelay(ep *endpoint, attempt int) time.Duration {
	delay := ep.opts.RetryBaseDelay << uint(attempt)
	if delay > ep.opts.RetryMaxDelay || delay <= 0 {
		delay = ep.opts.RetryMaxDelay
	}
	return delay
}

// retryAfter extracts a Retry-After delay from a 429 response (RFC 6585).
func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return 0
}

// statusClass buckets a returned status code for the outcome label.
func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// isTransientStatus reports whether a status code warrants a retry:
// 408 Request Timeout, 429 Too Many Requests, and all 5xx.
func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// isTransientErr reports whether a transport error warrants a retry.
// Timeouts, connection resets and DNS failures qualify; anything else
// (bad URL, protocol misuse) is fatal.
func isTransientErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
