// Package postgres loads and stores PM2.5 sensor readings in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/breatheroute/cleanroute/internal/airquality"
)

// SourceName identifies this source.
const SourceName = "postgres"

// TableName is the readings table.
const TableName = "pm25_readings"

// Schema creates the readings table if it does not exist.
const Schema = `
	CREATE TABLE IF NOT EXISTS pm25_readings (
		station_name TEXT NOT NULL,
		latitude     DOUBLE PRECISION NOT NULL,
		longitude    DOUBLE PRECISION NOT NULL,
		measured_at  TIMESTAMPTZ NOT NULL,
		pm25         DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (station_name, measured_at)
	);
	CREATE INDEX IF NOT EXISTS pm25_readings_measured_at_idx ON pm25_readings (measured_at);
`

// DB is the subset of *pgxpool.Pool used by Source.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Source reads sensor readings from PostgreSQL.
type Source struct {
	db     DB
	window time.Duration
	now    func() time.Time
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithWindow limits Load to readings measured within d of now.
func WithWindow(d time.Duration) SourceOption {
	return func(s *Source) {
		s.window = d
	}
}

// NewSource creates a new PostgreSQL reading source.
func NewSource(db DB, opts ...SourceOption) *Source {
	s := &Source{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return SourceName
}

// EnsureSchema creates the readings table.
func (s *Source) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create %s: %w", TableName, err)
	}
	return nil
}

// Load returns all stored readings, oldest first.
func (s *Source) Load(ctx context.Context) ([]airquality.Reading, error) {
	query := `
		SELECT station_name, latitude, longitude, measured_at, pm25
		FROM pm25_readings
	`
	args := []any{}
	if s.window > 0 {
		query += ` WHERE measured_at >= $1`
		args = append(args, s.now().Add(-s.window))
	}
	query += ` ORDER BY measured_at, station_name`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []airquality.Reading
	for rows.Next() {
		var r airquality.Reading
		if err := rows.Scan(
			&r.StationName,
			&r.Location.Lat,
			&r.Location.Lon,
			&r.Timestamp,
			&r.Value,
		); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	return readings, nil
}

// Import bulk-inserts readings with COPY. Invalid readings are skipped.
// It returns the number of rows written.
func (s *Source) Import(ctx context.Context, readings []airquality.Reading) (int64, error) {
	rows := make([][]any, 0, len(readings))
	for _, r := range readings {
		if !r.Valid() {
			continue
		}
		rows = append(rows, []any{r.StationName, r.Location.Lat, r.Location.Lon, r.Timestamp, r.Value})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := s.db.CopyFrom(
		ctx,
		pgx.Identifier{TableName},
		[]string{"station_name", "latitude", "longitude", "measured_at", "pm25"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy readings: %w", err)
	}
	return n, nil
}
