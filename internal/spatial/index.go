package spatial

import (
	"errors"
	"math"
	"sort"

	"github.com/tidwall/rtree"
)

// ErrInvalidK is returned when a nearest-neighbour query asks for fewer than one result.
var ErrInvalidK = errors.New("k must be at least 1")

// Entry is a point stored in an Index together with its payload.
type Entry[T any] struct {
	Coordinate Coordinate
	Value      T
}

// Neighbor is a query result: a stored entry and its great-circle distance
// to the query point in meters.
type Neighbor[T any] struct {
	Entry[T]
	Distance float64
	seq      int
}

type indexed[T any] struct {
	seq   int
	entry Entry[T]
}

// Index answers k-nearest-neighbour queries over a fixed set of points.
//
// Points are stored in an R-tree over an equirectangular projection centred
// on the mean latitude of the set. The tree yields candidates in projected
// order, which are then re-ranked by great-circle distance. An Index is
// never mutated after NewIndex returns and is safe for concurrent use.
type Index[T any] struct {
	tr     rtree.RTreeG[indexed[T]]
	cosLat float64
	size   int
}

// NewIndex builds an index over entries. Insertion order is used as the
// final tie-break between equidistant neighbours.
func NewIndex[T any](entries []Entry[T]) *Index[T] {
	ix := &Index[T]{cosLat: 1}

	if len(entries) > 0 {
		var sumLat float64
		for _, e := range entries {
			sumLat += e.Coordinate.Lat
		}
		ix.cosLat = math.Cos(sumLat / float64(len(entries)) * math.Pi / 180)
		if ix.cosLat < 0.01 {
			ix.cosLat = 0.01
		}
	}

	for i, e := range entries {
		p := ix.project(e.Coordinate)
		ix.tr.Insert(p, p, indexed[T]{seq: i, entry: e})
	}
	ix.size = len(entries)

	return ix
}

// Len returns the number of indexed points.
func (ix *Index[T]) Len() int {
	return ix.size
}

// Nearest returns up to k entries closest to q, ordered by ascending
// great-circle distance. If the index holds fewer than k points, all of
// them are returned.
func (ix *Index[T]) Nearest(q Coordinate, k int) ([]Neighbor[T], error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if ix.size == 0 {
		return nil, nil
	}

	// Projected order can differ slightly from great-circle order, so fetch
	// a wider candidate set and re-rank.
	want := 2 * k
	if want < k+8 {
		want = k + 8
	}

	target := ix.project(q)
	candidates := make([]Neighbor[T], 0, min(want, ix.size))

	ix.tr.Nearby(
		rtree.BoxDist[float64, indexed[T]](target, target, nil),
		func(_, _ [2]float64, item indexed[T], _ float64) bool {
			candidates = append(candidates, Neighbor[T]{
				Entry:    item.entry,
				Distance: Distance(q, item.entry.Coordinate),
				seq:      item.seq,
			})
			return len(candidates) < want
		},
	)

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Within reports whether any indexed point lies within radius meters of q.
func (ix *Index[T]) Within(q Coordinate, radius float64) bool {
	nn, err := ix.Nearest(q, 1)
	if err != nil || len(nn) == 0 {
		return false
	}
	return nn[0].Distance <= radius
}

func (ix *Index[T]) project(c Coordinate) [2]float64 {
	return [2]float64{c.Lon * ix.cosLat, c.Lat}
}
