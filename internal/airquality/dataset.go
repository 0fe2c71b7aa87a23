package airquality

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Aggregation selects how several readings at one location collapse into a
// single sensor value.
type Aggregation string

const (
	// AggregateLatest keeps the reading from the most recent hour.
	AggregateLatest Aggregation = "latest"

	// AggregateMean averages all readings at the location.
	AggregateMean Aggregation = "mean"
)

// ParseAggregation parses an aggregation name. The empty string selects AggregateLatest.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(s))) {
	case "", AggregateLatest:
		return AggregateLatest, nil
	case AggregateMean:
		return AggregateMean, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// Dataset is an immutable set of sensors with one value per distinct location.
type Dataset struct {
	sensors     []Sensor
	readings    []Reading
	aggregation Aggregation
	mean        float64
	rejected    int
	latest      time.Time
}

// NewDataset aggregates readings into one sensor per exact location.
// Invalid readings are dropped and counted. Sensors keep the order in which
// their location first appears.
//
// With AggregateLatest only each station's most recent hour contributes, so
// a station whose coordinates drift between hours yields one sensor.
func NewDataset(readings []Reading, agg Aggregation) (*Dataset, error) {
	if agg == "" {
		agg = AggregateLatest
	}
	if agg != AggregateLatest && agg != AggregateMean {
		return nil, fmt.Errorf("unknown aggregation %q", agg)
	}

	ds := &Dataset{readings: make([]Reading, 0, len(readings)), aggregation: agg}

	stationLatest := make(map[string]time.Time)
	for _, r := range readings {
		if !r.Valid() {
			ds.rejected++
			continue
		}
		r.Timestamp = r.Timestamp.Truncate(time.Hour)
		ds.readings = append(ds.readings, r)

		if r.Timestamp.After(ds.latest) {
			ds.latest = r.Timestamp
		}
		if r.Timestamp.After(stationLatest[r.StationName]) {
			stationLatest[r.StationName] = r.Timestamp
		}
	}

	byLocation := make(map[Coordinate]int)
	sums := make([]float64, 0)

	for _, r := range ds.readings {
		if agg == AggregateLatest && r.Timestamp.Before(stationLatest[r.StationName]) {
			continue
		}

		idx, ok := byLocation[r.Location]
		if !ok {
			byLocation[r.Location] = len(ds.sensors)
			ds.sensors = append(ds.sensors, Sensor{
				Name:      r.StationName,
				Location:  r.Location,
				Value:     r.Value,
				Timestamp: r.Timestamp,
				Readings:  1,
			})
			sums = append(sums, r.Value)
			continue
		}

		s := &ds.sensors[idx]
		s.Readings++
		sums[idx] += r.Value

		if r.Timestamp.After(s.Timestamp) {
			s.Timestamp = r.Timestamp
			if agg == AggregateLatest {
				s.Name = r.StationName
				s.Value = r.Value
			}
		}
	}

	if len(ds.sensors) == 0 {
		return nil, ErrEmptyDataset
	}

	var total float64
	for i := range ds.sensors {
		if agg == AggregateMean {
			ds.sensors[i].Value = sums[i] / float64(ds.sensors[i].Readings)
		}
		total += ds.sensors[i].Value
	}
	ds.mean = total / float64(len(ds.sensors))

	return ds, nil
}

// Sensors returns a copy of the aggregated sensors.
func (d *Dataset) Sensors() []Sensor {
	out := make([]Sensor, len(d.sensors))
	copy(out, d.sensors)
	return out
}

// Aggregation returns how readings were combined per location.
func (d *Dataset) Aggregation() Aggregation {
	return d.aggregation
}

// Len returns the number of distinct sensor locations.
func (d *Dataset) Len() int {
	return len(d.sensors)
}

// Mean returns the mean of all sensor values.
func (d *Dataset) Mean() float64 {
	return d.mean
}

// Rejected returns the number of invalid readings dropped at construction.
func (d *Dataset) Rejected() int {
	return d.rejected
}

// Latest returns the most recent reading hour in the dataset.
func (d *Dataset) Latest() time.Time {
	return d.latest
}

// Hours returns the distinct reading hours in ascending order.
func (d *Dataset) Hours() []time.Time {
	seen := make(map[time.Time]struct{})
	hours := make([]time.Time, 0)
	for _, r := range d.readings {
		if _, ok := seen[r.Timestamp]; ok {
			continue
		}
		seen[r.Timestamp] = struct{}{}
		hours = append(hours, r.Timestamp)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })
	return hours
}

// AtHour returns a dataset built only from readings taken in the hour containing t.
func (d *Dataset) AtHour(t time.Time) (*Dataset, error) {
	hour := t.Truncate(time.Hour)
	slice := make([]Reading, 0)
	for _, r := range d.readings {
		if r.Timestamp.Equal(hour) {
			slice = append(slice, r)
		}
	}
	return NewDataset(slice, AggregateLatest)
}
