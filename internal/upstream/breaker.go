// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/metrics"
)

// BreakerClient wraps Client with a circuit breaker so a failing or
// slow upstream cannot stall a whole batch run. When the circuit is
// open, calls fail fast with ErrUnavailable instead of burning the
// retry budget per title.
//
// The breaker uses real time for its interval and timeout windows.
// Unit tests exercise the wrapped Client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient wraps a catalog resolver with circuit breaker
// protection. The circuit opens after a 60% failure rate over at least
// 10 requests, and probes recovery after 2 minutes.
func NewBreakerClient(client *Client) *BreakerClient {
	cbName := "upstream-catalog"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit to upstream catalog")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},

		// ErrNotFound is a valid upstream answer, not a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if errors.Is(err, ErrNotFound) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result, nil
}

// castResult type-casts a breaker result, propagating the call error.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// Info resolves full title info with circuit breaker protection.
func (bc *BreakerClient) Info(ctx context.Context, titleID string) (*AppInfo, error) {
	return castResult[*AppInfo](bc.execute(func() (interface{}, error) {
		return bc.client.Info(ctx, titleID)
	}))
}

// ResolveManifests resolves the depot table with circuit breaker protection.
func (bc *BreakerClient) ResolveManifests(ctx context.Context, titleID string) (map[string]string, error) {
	return castResult[map[string]string](bc.execute(func() (interface{}, error) {
		return bc.client.ResolveManifests(ctx, titleID)
	}))
}

// ResolveDLCIDs resolves declared DLC with circuit breaker protection.
func (bc *BreakerClient) ResolveDLCIDs(ctx context.Context, titleID string) ([]string, error) {
	return castResult[[]string](bc.execute(func() (interface{}, error) {
		return bc.client.ResolveDLCIDs(ctx, titleID)
	}))
}

// AppName resolves a display name with circuit breaker protection.
func (bc *BreakerClient) AppName(ctx context.Context, titleID string) (string, error) {
	return castResult[string](bc.execute(func() (interface{}, error) {
		return bc.client.AppName(ctx, titleID)
	}))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
