// Package store persists matched records in PostgreSQL.
package store

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/match"
)

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS aodmatch`,
	`CREATE TABLE IF NOT EXISTS aodmatch.matched (
    station            text             NOT NULL,
    observed_at        timestamptz      NOT NULL,
    run_id             uuid             NOT NULL,
    latitude           double precision,
    longitude          double precision,
    features           double precision[] NOT NULL,
    aod_ground_mean    double precision,
    ae_ground_mean     double precision,
    fmf_ground_mean    double precision,
    num_ground_matches integer          NOT NULL,
    created_at         timestamptz      NOT NULL DEFAULT NOW(),
    updated_at         timestamptz      NOT NULL DEFAULT NOW(),
    PRIMARY KEY (station, observed_at)
)`,
}

const upsertMatched = `INSERT INTO aodmatch.matched (station, observed_at, run_id, latitude, longitude, features, aod_ground_mean, ae_ground_mean, fmf_ground_mean, num_ground_matches, created_at, updated_at)
VALUES ($1,$2,$3::uuid,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
ON CONFLICT (station, observed_at) DO UPDATE
SET run_id = EXCLUDED.run_id,
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    features = EXCLUDED.features,
    aod_ground_mean = EXCLUDED.aod_ground_mean,
    ae_ground_mean = EXCLUDED.ae_ground_mean,
    fmf_ground_mean = EXCLUDED.fmf_ground_mean,
    num_ground_matches = EXCLUDED.num_ground_matches,
    updated_at = NOW()`

// Store writes matched records to a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at url.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping")
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "create schema")
		}
	}
	return nil
}

// SaveMatched upserts records keyed by station and satellite time.
func (s *Store) SaveMatched(ctx context.Context, run uuid.UUID, recs []match.Record) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range recs {
		batch.Queue(upsertMatched, matchedArgs(run, &recs[i])...)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for i := range recs {
		if _, err := res.Exec(); err != nil {
			return errors.Wrapf(err, "upsert %s %s", recs[i].Sat.Station, recs[i].Sat.Time)
		}
	}

	return nil
}

// matchedArgs returns the query arguments of one record. The pixel
// coordinates and ground means become NULL when NaN.
func matchedArgs(run uuid.UUID, r *match.Record) []any {
	features := r.Sat.Features()
	return []any{
		r.Sat.Station,
		r.Sat.Time.UTC(),
		run.String(),
		nullable(r.Sat.Lat),
		nullable(r.Sat.Lon),
		features,
		nullable(r.AOD),
		nullable(r.AE),
		nullable(r.FMF),
		r.Matches,
	}
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
