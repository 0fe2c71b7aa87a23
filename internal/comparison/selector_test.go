package comparison_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/cleanroute/internal/comparison"
	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/routing"
)

// tableScorer returns a preset score keyed on the first vertex latitude.
type tableScorer struct {
	mu     sync.Mutex
	scores map[float64]float64
	calls  map[float64]int
	err    map[float64]error
}

func newTableScorer() *tableScorer {
	return &tableScorer{
		scores: make(map[float64]float64),
		calls:  make(map[float64]int),
		err:    make(map[float64]error),
	}
}

func (s *tableScorer) Score(points []exposure.Coordinate) (exposure.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := points[0].Lat
	s.calls[key]++
	if err := s.err[key]; err != nil {
		return exposure.Score{}, err
	}
	return exposure.Score{Value: s.scores[key]}, nil
}

// candidate builds a route identified by id with the given duration and
// registers its exposure with the scorer.
func candidate(s *tableScorer, id int, duration, score float64) routing.Route {
	lat := 28.4 + float64(id)*0.001
	s.scores[lat] = score
	return routing.Route{
		Points: []routing.Coordinate{
			{Lat: lat, Lon: 77.0},
			{Lat: lat, Lon: 77.01},
		},
		DurationSeconds: duration,
	}
}

func TestSelect_FastestAndCleanestDiffer(t *testing.T) {
	scorer := newTableScorer()
	a := candidate(scorer, 0, 600, 1200)
	b := candidate(scorer, 1, 650, 900)

	result, err := comparison.NewSelector(scorer, 2).Select(context.Background(), []routing.Route{a, b})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Fastest.Index)
	assert.Equal(t, 1, result.Cleanest.Index)
	assert.Equal(t, 1200.0, result.Fastest.Exposure.Value)
	assert.Equal(t, 900.0, result.Cleanest.Exposure.Value)
	assert.False(t, result.SameRoute)
	assert.Len(t, result.Alternatives, 2)
}

func TestSelect_SingleCandidate(t *testing.T) {
	scorer := newTableScorer()
	only := candidate(scorer, 0, 700, 500)

	result, err := comparison.NewSelector(scorer, 0).Select(context.Background(), []routing.Route{only})
	require.NoError(t, err)

	assert.Equal(t, result.Fastest, result.Cleanest)
	assert.True(t, result.SameRoute)
	assert.Equal(t, only, result.Fastest.Route)
}

func TestSelect_NoCandidates(t *testing.T) {
	_, err := comparison.NewSelector(newTableScorer(), 1).Select(context.Background(), nil)
	require.ErrorIs(t, err, comparison.ErrNoCandidates)
	assert.Equal(t, comparison.KindNoCandidates, comparison.KindOf(err))
}

func TestSelect_ScoresEachCandidateOnce(t *testing.T) {
	scorer := newTableScorer()
	var routes []routing.Route
	for i := 0; i < 5; i++ {
		routes = append(routes, candidate(scorer, i, float64(600+i), float64(1000-i)))
	}

	_, err := comparison.NewSelector(scorer, 3).Select(context.Background(), routes)
	require.NoError(t, err)

	require.Len(t, scorer.calls, 5)
	for lat, n := range scorer.calls {
		assert.Equal(t, 1, n, "route at %.3f", lat)
	}
}

func TestSelect_TieBreaks(t *testing.T) {
	t.Run("fastest tie uses exposure", func(t *testing.T) {
		scorer := newTableScorer()
		routes := []routing.Route{
			candidate(scorer, 0, 600, 1500),
			candidate(scorer, 1, 600, 1100),
			candidate(scorer, 2, 700, 1000),
		}

		result, err := comparison.NewSelector(scorer, 1).Select(context.Background(), routes)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Fastest.Index)
		assert.Equal(t, 2, result.Cleanest.Index)
	})

	t.Run("cleanest tie uses duration", func(t *testing.T) {
		scorer := newTableScorer()
		routes := []routing.Route{
			candidate(scorer, 0, 500, 1500),
			candidate(scorer, 1, 800, 900),
			candidate(scorer, 2, 650, 900),
		}

		result, err := comparison.NewSelector(scorer, 1).Select(context.Background(), routes)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Fastest.Index)
		assert.Equal(t, 2, result.Cleanest.Index)
	})

	t.Run("full tie uses lowest index", func(t *testing.T) {
		scorer := newTableScorer()
		routes := []routing.Route{
			candidate(scorer, 0, 600, 900),
			candidate(scorer, 1, 600, 900),
		}

		result, err := comparison.NewSelector(scorer, 2).Select(context.Background(), routes)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Fastest.Index)
		assert.Equal(t, 0, result.Cleanest.Index)
		assert.True(t, result.SameRoute)
	})
}

func TestSelect_MembershipAndMinimality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		scorer := newTableScorer()
		n := 1 + rng.Intn(6)
		routes := make([]routing.Route, n)
		for i := range routes {
			routes[i] = candidate(scorer, i, float64(300+rng.Intn(5)*60), float64(500+rng.Intn(5)*100))
		}

		result, err := comparison.NewSelector(scorer, 2).Select(context.Background(), routes)
		require.NoError(t, err)

		assert.Equal(t, routes[result.Fastest.Index], result.Fastest.Route)
		assert.Equal(t, routes[result.Cleanest.Index], result.Cleanest.Route)

		for _, alt := range result.Alternatives {
			assert.LessOrEqual(t, result.Fastest.Route.DurationSeconds, alt.Route.DurationSeconds)
			assert.LessOrEqual(t, result.Cleanest.Exposure.Value, alt.Exposure.Value)
		}
	}
}

func TestSelect_EmptyRouteIsSurfaced(t *testing.T) {
	scorer := newTableScorer()
	good := candidate(scorer, 0, 600, 1000)
	bad := candidate(scorer, 1, 500, 0)
	scorer.err[bad.Points[0].Lat] = &exposure.RouteError{Points: 2, Err: exposure.ErrEmptyRoute}

	_, err := comparison.NewSelector(scorer, 2).Select(context.Background(), []routing.Route{good, bad})
	require.ErrorIs(t, err, exposure.ErrEmptyRoute)

	var cmpErr *comparison.Error
	require.True(t, errors.As(err, &cmpErr))
	assert.Equal(t, comparison.KindEmptyRoute, cmpErr.Kind)
	assert.Equal(t, 1, cmpErr.RouteIndex)
}

func TestSelect_RealScorerEmptyGeometry(t *testing.T) {
	scorer := exposure.NewScorer(exposure.ScorerConfig{Estimator: constantEstimator(50)})
	route := routing.Route{
		Points:          []routing.Coordinate{{Lat: 28.46, Lon: 77.03}, {Lat: 28.46, Lon: 77.03}},
		DurationSeconds: 10,
	}

	_, err := comparison.NewSelector(scorer, 1).Select(context.Background(), []routing.Route{route})
	assert.ErrorIs(t, err, exposure.ErrEmptyRoute)
}

func TestFastestAndCleanestArePure(t *testing.T) {
	scored := []comparison.ScoredRoute{
		{Index: 0, Route: routing.Route{DurationSeconds: 900}, Exposure: exposure.Score{Value: 100}},
		{Index: 1, Route: routing.Route{DurationSeconds: 300}, Exposure: exposure.Score{Value: 400}},
		{Index: 2, Route: routing.Route{DurationSeconds: 600}, Exposure: exposure.Score{Value: 200}},
	}
	snapshot := append([]comparison.ScoredRoute(nil), scored...)

	assert.Equal(t, 1, comparison.Fastest(scored).Index)
	assert.Equal(t, 0, comparison.Cleanest(scored).Index)
	assert.Equal(t, snapshot, scored)
}
