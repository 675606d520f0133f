package crime

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// TableName is the PostGIS table holding crime incidents.
const TableName = "crime_incidents"

// sridWGS84 is the spatial reference id for stored geometries.
const sridWGS84 = 4326

var copyColumns = []string{"crime_type", "severity", "occurred_at", "block_address", "neighborhood", "geom"}

// Pool is the subset of pgxpool.Pool used by PostgresRepository.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a PostgreSQL/PostGIS implementation of Repository.
type PostgresRepository struct {
	pool     Pool
	location *time.Location
}

// NewPostgresRepository creates a new PostgreSQL crime repository. Listed
// records carry their occurrence time in loc (UTC when nil), matching what
// the file parsers produce for the same dataset.
func NewPostgresRepository(pool Pool, loc *time.Location) *PostgresRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresRepository{pool: pool, location: loc}
}

// EnsureSchema creates the incidents table and its spatial index.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS crime_incidents (
			id BIGSERIAL PRIMARY KEY,
			crime_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			block_address TEXT NOT NULL DEFAULT '',
			neighborhood TEXT NOT NULL DEFAULT '',
			geom geometry(Point, 4326) NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create crime_incidents table: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_crime_incidents_geom ON crime_incidents USING gist (geom)`)
	if err != nil {
		return fmt.Errorf("create spatial index: %w", err)
	}

	return nil
}

// ReplaceAll truncates the table and bulk-loads records in one transaction.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, records []Record) (int64, error) {
	rows := make([][]any, 0, len(records))
	for i := range records {
		rec := &records[i]
		point, err := EncodePoint(rec.Longitude, rec.Latitude)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			rec.CrimeType,
			string(rec.Severity),
			rec.OccurredAt,
			rec.BlockAddress,
			rec.Neighborhood,
			point,
		})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE crime_incidents`); err != nil {
		return 0, fmt.Errorf("truncate crime_incidents: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{TableName}, copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy crime_incidents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return n, nil
}

// List returns every stored record. Severity is reclassified from the crime
// type so that table changes apply without re-importing.
func (r *PostgresRepository) List(ctx context.Context) ([]Record, error) {
	query := `
		SELECT crime_type, occurred_at, block_address, neighborhood, ST_AsEWKB(geom)
		FROM crime_incidents
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query crime_incidents: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			crimeType, block, hood string
			occurredAt             time.Time
			wkb                    []byte
		)
		if err := rows.Scan(&crimeType, &occurredAt, &block, &hood, &wkb); err != nil {
			return nil, fmt.Errorf("scan crime row: %w", err)
		}

		lon, lat, err := DecodePoint(wkb)
		if err != nil {
			return nil, err
		}
		records = append(records, NewRecord(crimeType, occurredAt.In(r.location), lat, lon, block, hood))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crime rows: %w", err)
	}

	return records, nil
}

// Count returns the number of stored records.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM crime_incidents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count crime_incidents: %w", err)
	}
	return n, nil
}

// EncodePoint converts lon/lat to little-endian EWKB with SRID 4326.
func EncodePoint(lon, lat float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(sridWGS84)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("encode point: %w", err)
	}
	return data, nil
}

// DecodePoint parses an EWKB point and returns lon, lat.
func DecodePoint(data []byte) (lon, lat float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, fmt.Errorf("decode point: %w", err)
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, fmt.Errorf("decode point: unexpected geometry %T", g)
	}
	return p.X(), p.Y(), nil
}

var _ Repository = (*PostgresRepository)(nil)
var _ Repository = (*InMemoryRepository)(nil)
