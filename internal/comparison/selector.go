// Package comparison ranks candidate routes by travel time and pollution
// exposure.
package comparison

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/routing"
)

// DefaultConcurrency bounds how many candidates are scored at once.
const DefaultConcurrency = 4

// RouteScorer scores a route geometry. *exposure.Scorer satisfies it.
type RouteScorer interface {
	Score(points []exposure.Coordinate) (exposure.Score, error)
}

// ScoredRoute is a candidate route with its exposure.
type ScoredRoute struct {
	// Index is the position of the route in the provider's response.
	// Routes dropped before scoring keep their slot, so indexes can skip.
	Index    int
	Route    routing.Route
	Exposure exposure.Score
}

// Result is the outcome of comparing the candidates for one trip.
type Result struct {
	Fastest  ScoredRoute
	Cleanest ScoredRoute

	// Alternatives holds every scored candidate in candidate order.
	Alternatives []ScoredRoute

	// SameRoute is set when one candidate is both fastest and cleanest.
	SameRoute bool
}

// Selector scores candidates and picks the fastest and cleanest.
type Selector struct {
	scorer      RouteScorer
	concurrency int
}

// NewSelector creates a selector. A non-positive concurrency selects
// DefaultConcurrency.
func NewSelector(scorer RouteScorer, concurrency int) *Selector {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Selector{scorer: scorer, concurrency: concurrency}
}

// Select scores every candidate once and ranks them. It fails with
// ErrNoCandidates for an empty list; a candidate that cannot be scored
// fails the whole selection.
func (s *Selector) Select(ctx context.Context, candidates []routing.Route) (*Result, error) {
	return s.selectIndexed(ctx, candidates, nil)
}

// selectIndexed is Select with the provider index of each candidate.
// A nil indexes numbers the candidates by position.
func (s *Selector) selectIndexed(ctx context.Context, candidates []routing.Route, indexes []int) (*Result, error) {
	if len(candidates) == 0 {
		return nil, &Error{Kind: KindNoCandidates, RouteIndex: -1, Err: ErrNoCandidates}
	}

	scored := make([]ScoredRoute, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range candidates {
		index := i
		if indexes != nil {
			index = indexes[i]
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			score, err := s.scorer.Score(candidates[i].Points)
			if err != nil {
				return routeError(index, err)
			}
			scored[i] = ScoredRoute{Index: index, Route: candidates[i], Exposure: score}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fastest := Fastest(scored)
	cleanest := Cleanest(scored)

	return &Result{
		Fastest:      fastest,
		Cleanest:     cleanest,
		Alternatives: scored,
		SameRoute:    fastest.Index == cleanest.Index,
	}, nil
}

// Fastest returns the route with the shortest duration, breaking ties by
// lower exposure and then by lower index. scored must not be empty.
func Fastest(scored []ScoredRoute) ScoredRoute {
	best := scored[0]
	for _, r := range scored[1:] {
		if fasterThan(r, best) {
			best = r
		}
	}
	return best
}

// Cleanest returns the route with the lowest exposure, breaking ties by
// shorter duration and then by lower index. scored must not be empty.
func Cleanest(scored []ScoredRoute) ScoredRoute {
	best := scored[0]
	for _, r := range scored[1:] {
		if cleanerThan(r, best) {
			best = r
		}
	}
	return best
}

func fasterThan(a, b ScoredRoute) bool {
	if a.Route.DurationSeconds != b.Route.DurationSeconds {
		return a.Route.DurationSeconds < b.Route.DurationSeconds
	}
	if a.Exposure.Value != b.Exposure.Value {
		return a.Exposure.Value < b.Exposure.Value
	}
	return a.Index < b.Index
}

func cleanerThan(a, b ScoredRoute) bool {
	if a.Exposure.Value != b.Exposure.Value {
		return a.Exposure.Value < b.Exposure.Value
	}
	if a.Route.DurationSeconds != b.Route.DurationSeconds {
		return a.Route.DurationSeconds < b.Route.DurationSeconds
	}
	return a.Index < b.Index
}
