// Package postgis stores sites in a PostgreSQL/PostGIS table for
// server-side spatial queries.
package postgis

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/kass/go-mt-sites/pkg/config"
	"github.com/kass/go-mt-sites/pkg/models"
)

const batchSize = 10000

type PostGISIndex struct {
	db *sql.DB
}

// NewPostGISIndex opens and pings a PostGIS connection
func NewPostGISIndex(ctx context.Context, cfg config.PostGIS) (*PostGISIndex, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostGISIndex{db: db}, nil
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis;`,
	`CREATE TABLE IF NOT EXISTS mt_sites (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		project     TEXT NOT NULL DEFAULT '',
		survey      TEXT NOT NULL DEFAULT '',
		acquired_by TEXT NOT NULL DEFAULT '',
		start_time  TIMESTAMPTZ,
		stop_time   TIMESTAMPTZ,
		provides    TEXT[] NOT NULL DEFAULT '{}',
		data_types  TEXT[] NOT NULL DEFAULT '{}',
		links       JSONB NOT NULL DEFAULT '[]',
		source      TEXT NOT NULL DEFAULT '',
		location    GEOMETRY(POINT, 4326) NOT NULL
	);`,
}

// InitSchema creates the sites table if it does not exist
func (p *PostGISIndex) InitSchema(ctx context.Context) error {
	for _, query := range schema {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// DropSchema removes the sites table
func (p *PostGISIndex) DropSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DROP TABLE IF EXISTS mt_sites;`); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return nil
}

// CreateSpatialIndex creates a GIST index on the geometry column
func (p *PostGISIndex) CreateSpatialIndex(ctx context.Context) error {
	start := time.Now()
	if _, err := p.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_mt_sites_location ON mt_sites USING GIST(location);`); err != nil {
		return fmt.Errorf("failed to create spatial index: %w", err)
	}

	// Analyze table for better query planning
	if _, err := p.db.ExecContext(ctx, "ANALYZE mt_sites;"); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}

	log.Info().Dur("duration", time.Since(start)).Msg("Created spatial index")
	return nil
}

const upsertSite = `
	INSERT INTO mt_sites (id, name, project, survey, acquired_by, start_time, stop_time,
		provides, data_types, links, source, location)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, ST_SetSRID(ST_MakePoint($12, $13), 4326))
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		project = EXCLUDED.project,
		survey = EXCLUDED.survey,
		acquired_by = EXCLUDED.acquired_by,
		start_time = EXCLUDED.start_time,
		stop_time = EXCLUDED.stop_time,
		provides = EXCLUDED.provides,
		data_types = EXCLUDED.data_types,
		links = EXCLUDED.links,
		source = EXCLUDED.source,
		location = EXCLUDED.location
`

// siteArgs returns the upsert parameters for site
func siteArgs(site *models.Site) ([]interface{}, error) {
	if site.Location == nil {
		return nil, fmt.Errorf("site %s has no location", site.ID)
	}
	links := site.Links
	if links == nil {
		links = []models.Link{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("failed to encode links of %s: %w", site.ID, err)
	}
	return []interface{}{
		site.ID, site.Name, site.Project, site.Survey, site.AcquiredBy,
		nullTime(site.Start), nullTime(site.Stop),
		pq.Array(nonNil(site.Provides)), pq.Array(nonNil(site.DataTypes)),
		string(linksJSON), site.Source,
		site.Location.Lon, site.Location.Lat,
	}, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// BulkInsertSites upserts sites, committing every batchSize rows
func (p *PostGISIndex) BulkInsertSites(ctx context.Context, sites []*models.Site) error {
	stmt, err := p.db.PrepareContext(ctx, upsertSite)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for start := 0; start < len(sites); start += batchSize {
		end := min(start+batchSize, len(sites))
		if err := p.insertBatch(ctx, stmt, sites[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostGISIndex) insertBatch(ctx context.Context, stmt *sql.Stmt, sites []*models.Site) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStmt := tx.StmtContext(ctx, stmt)

	for _, site := range sites {
		args, err := siteArgs(site)
		if err == nil {
			_, err = txStmt.ExecContext(ctx, args...)
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert site %s: %w", site.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

const selectSites = `
	SELECT id, name, project, survey, acquired_by, start_time, stop_time,
		provides, data_types, links, source, ST_Y(location) AS lat, ST_X(location) AS lon
	FROM mt_sites
`

// QueryBox returns the sites inside box, ordered by id
func (p *PostGISIndex) QueryBox(ctx context.Context, box models.BoundingBox) ([]*models.Site, error) {
	rows, err := p.db.QueryContext(ctx, selectSites+`
		WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY id`,
		box.BottomLeft.Lon, box.BottomLeft.Lat,
		box.TopRight.Lon, box.TopRight.Lat)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return scanSites(rows)
}

// QueryRadius returns the sites within radiusKm of center, nearest first
func (p *PostGISIndex) QueryRadius(ctx context.Context, center models.Location, radiusKm float64) ([]*models.Site, error) {
	rows, err := p.db.QueryContext(ctx, selectSites+`
		WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY location::geography <-> ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, id`,
		center.Lon, center.Lat, radiusKm*1000)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return scanSites(rows)
}

func scanSites(rows *sql.Rows) ([]*models.Site, error) {
	defer rows.Close()

	var results []*models.Site
	for rows.Next() {
		var (
			site        models.Site
			start, stop sql.NullTime
			links       []byte
			loc         models.Location
		)
		if err := rows.Scan(&site.ID, &site.Name, &site.Project, &site.Survey, &site.AcquiredBy,
			&start, &stop, pq.Array(&site.Provides), pq.Array(&site.DataTypes),
			&links, &site.Source, &loc.Lat, &loc.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(links, &site.Links); err != nil {
			return nil, fmt.Errorf("failed to decode links of %s: %w", site.ID, err)
		}
		if start.Valid {
			site.Start = start.Time.UTC()
		}
		if stop.Valid {
			site.Stop = stop.Time.UTC()
		}
		site.Location = &loc
		results = append(results, &site)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// Count returns the number of sites in the database
func (p *PostGISIndex) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM mt_sites").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sites: %w", err)
	}
	return count, nil
}

// Stats describes the size of the store
type Stats struct {
	DatabaseSize string `json:"database_size"`
	TableSize    string `json:"table_size"`
	IndexSize    string `json:"index_size"`
	RowCount     int64  `json:"row_count"`
}

// GetDatabaseStats returns database size and table statistics
func (p *PostGISIndex) GetDatabaseStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := p.db.QueryRowContext(ctx,
		`SELECT pg_size_pretty(pg_database_size(current_database()))`).Scan(&stats.DatabaseSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get database size: %w", err)
	}

	err = p.db.QueryRowContext(ctx, `
		SELECT
			pg_size_pretty(pg_total_relation_size('mt_sites')) as total_size,
			pg_size_pretty(pg_indexes_size('mt_sites')) as index_size
	`).Scan(&stats.TableSize, &stats.IndexSize)
	if err != nil {
		// Table might not exist yet
		stats.TableSize = "0 bytes"
		stats.IndexSize = "0 bytes"
		return stats, nil
	}

	if stats.RowCount, err = p.Count(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

// Close closes the database connection
func (p *PostGISIndex) Close() error {
	return p.db.Close()
}
