package geo

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/retry"
)

const (
	providerAttempts = 3
	providerBackoff  = 200 * time.Millisecond
)

// GuardedResolver wraps an external Resolver with a circuit breaker and the
// bounded retry budget. Once the breaker opens, calls fail fast as
// ExternalError instead of waiting out timeouts.
type GuardedResolver struct {
	inner Resolver
	cb    *gobreaker.CircuitBreaker
}

func NewGuardedResolver(inner Resolver) *GuardedResolver {
	return &GuardedResolver{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "geo-resolver",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (g *GuardedResolver) Resolve(ctx context.Context, text string) (Point, string, error) {
	type result struct {
		p    Point
		addr string
	}
	var res result
	err := retry.Do(ctx, providerAttempts, providerBackoff, func(ctx context.Context) error {
		out, err := g.cb.Execute(func() (any, error) {
			p, addr, err := g.inner.Resolve(ctx, text)
			if err != nil {
				return nil, err
			}
			return result{p: p, addr: addr}, nil
		})
		if err != nil {
			return err
		}
		res = out.(result)
		return nil
	})
	if err != nil {
		return Point{}, "", apperr.External("geocoding", err)
	}
	return res.p, res.addr, nil
}

func (g *GuardedResolver) Reverse(ctx context.Context, p Point) (string, error) {
	var addr string
	err := retry.Do(ctx, providerAttempts, providerBackoff, func(ctx context.Context) error {
		out, err := g.cb.Execute(func() (any, error) {
			return g.inner.Reverse(ctx, p)
		})
		if err != nil {
			return err
		}
		addr = out.(string)
		return nil
	})
	if err != nil {
		return "", apperr.External("geocoding", err)
	}
	return addr, nil
}

// GuardedDistance wraps an external DistanceProvider the same way.
type GuardedDistance struct {
	inner DistanceProvider
	cb    *gobreaker.CircuitBreaker
}

func NewGuardedDistance(inner DistanceProvider) *GuardedDistance {
	return &GuardedDistance{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "geo-distance",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (g *GuardedDistance) DistanceKm(ctx context.Context, from Point, to []Point) ([]float64, error) {
	var dists []float64
	err := retry.Do(ctx, providerAttempts, providerBackoff, func(ctx context.Context) error {
		out, err := g.cb.Execute(func() (any, error) {
			return g.inner.DistanceKm(ctx, from, to)
		})
		if err != nil {
			return err
		}
		dists = out.([]float64)
		return nil
	})
	if err != nil {
		return nil, apperr.External("distance", err)
	}
	return dists, nil
}
