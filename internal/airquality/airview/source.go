// Package airview reads hourly PM2.5 readings from an Air View+ Clear Skies
// CSV export, from a local file or over HTTP.
package airview

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
)

// SourceName identifies this source.
const SourceName = "airview-csv"

// Parse errors.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmptyFile     = errors.New("csv has no header")
)

// Required columns of the export. Header matching is case-insensitive.
const (
	ColumnStation   = "station_name"
	ColumnTime      = "local_time"
	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
	ColumnPM25      = "pm2_5"
)

// pm25Aliases are accepted alternative headers for the PM2.5 column.
var pm25Aliases = []string{ColumnPM25, "pm2.5", "pm25", "pm2.5_corrected"}

// timeLayouts are tried in order. Dates are day-first.
var timeLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"02/01/2006",
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SourceConfig holds configuration for the CSV source.
type SourceConfig struct {
	// Path is a local file path or an http(s) URL.
	Path string

	// Location is the time zone of local_time values (default: UTC).
	Location *time.Location

	// HTTPClient fetches remote exports. If nil, a resilient client is created.
	HTTPClient HTTPDoer

	// Timeout for remote fetches (default: 30s).
	Timeout time.Duration

	// Registry tracks the health of remote fetches (optional).
	Registry *resilience.Registry

	// Logger for parse diagnostics.
	Logger zerolog.Logger
}

// Source loads readings from a CSV export.
type Source struct {
	path       string
	location   *time.Location
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewSource creates a CSV source.
func NewSource(cfg SourceConfig) *Source {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil && isRemote(cfg.Path) {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            SourceName,
			Timeout:         timeout,
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Registry:        cfg.Registry,
			Logger:          cfg.Logger,
		})
	}

	return &Source{
		path:       cfg.Path,
		location:   loc,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return SourceName
}

// Load reads and parses the export.
func (s *Source) Load(ctx context.Context) ([]airquality.Reading, error) {
	rc, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	readings, report, err := Parse(rc, s.location)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	s.logger.Info().
		Str("path", s.path).
		Int("rows", report.Rows).
		Int("skipped", report.Skipped).
		Msg("sensor csv parsed")

	return readings, nil
}

func (s *Source) open(ctx context.Context) (io.ReadCloser, error) {
	if !isRemote(s.path) {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("open sensor csv: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sensor csv: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch sensor csv: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func isRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Report summarises a parse.
type Report struct {
	// Rows is the number of data rows read.
	Rows int

	// Skipped is the number of rows dropped for missing or malformed values.
	Skipped int
}

// Parse reads readings from r. Rows with an empty or malformed station,
// time, coordinate or PM2.5 value are skipped.
func Parse(r io.Reader, loc *time.Location) ([]airquality.Reading, Report, error) {
	if loc == nil {
		loc = time.UTC
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, Report{}, ErrEmptyFile
	}
	if err != nil {
		return nil, Report{}, fmt.Errorf("read header: %w", err)
	}

	cols, err := columnIndex(header)
	if err != nil {
		return nil, Report{}, err
	}

	var (
		readings []airquality.Reading
		report   Report
	)

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("read row %d: %w", report.Rows+2, err)
		}
		report.Rows++

		reading, ok := parseRecord(record, cols, loc)
		if !ok {
			report.Skipped++
			continue
		}
		readings = append(readings, reading)
	}

	return readings, report, nil
}

type columns struct {
	station, time, lat, lon, pm25 int
}

func columnIndex(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}

	lookup := func(names ...string) (int, error) {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, names[0])
	}

	var (
		c   columns
		err error
	)
	if c.station, err = lookup(ColumnStation); err != nil {
		return c, err
	}
	if c.time, err = lookup(ColumnTime); err != nil {
		return c, err
	}
	if c.lat, err = lookup(ColumnLatitude); err != nil {
		return c, err
	}
	if c.lon, err = lookup(ColumnLongitude); err != nil {
		return c, err
	}
	if c.pm25, err = lookup(pm25Aliases...); err != nil {
		return c, err
	}
	return c, nil
}

func parseRecord(record []string, c columns, loc *time.Location) (airquality.Reading, bool) {
	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	name := field(c.station)
	if name == "" {
		return airquality.Reading{}, false
	}

	ts, ok := parseTime(field(c.time), loc)
	if !ok {
		return airquality.Reading{}, false
	}

	lat, err := strconv.ParseFloat(field(c.lat), 64)
	if err != nil {
		return airquality.Reading{}, false
	}
	lon, err := strconv.ParseFloat(field(c.lon), 64)
	if err != nil {
		return airquality.Reading{}, false
	}
	value, err := strconv.ParseFloat(field(c.pm25), 64)
	if err != nil {
		return airquality.Reading{}, false
	}

	reading := airquality.Reading{
		StationName: name,
		Location:    airquality.Coordinate{Lat: lat, Lon: lon},
		Value:       value,
		Timestamp:   ts,
	}
	return reading, reading.Valid()
}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
