package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"trafficcam-capture/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
    incident_id   BIGINT PRIMARY KEY,
    source_id     VARCHAR(50),
    roadway_name  VARCHAR(200),
    county        VARCHAR(100),
    region        VARCHAR(50),
    incident_type VARCHAR(100),
    severity      VARCHAR(50),
    direction     VARCHAR(50),
    description   TEXT,
    start_date    VARCHAR(50),
    last_updated  VARCHAR(50),
    source        VARCHAR(200),
    scraped_at    TIMESTAMPTZ,
    updated_at    TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cameras (
    camera_id    VARCHAR(50) PRIMARY KEY,
    image_id     VARCHAR(50),
    video_url    TEXT,
    description  TEXT,
    location     TEXT,
    roadway_name VARCHAR(200),
    region       VARCHAR(50),
    county       VARCHAR(100),
    direction    VARCHAR(50),
    latitude     DOUBLE PRECISION,
    longitude    DOUBLE PRECISION,
    updated_at   TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS capture_runs (
    run_id             UUID PRIMARY KEY,
    incident_id        BIGINT,
    cameras_targeted   TEXT[],
    cameras_attempted  INTEGER,
    cameras_successful INTEGER,
    cameras_failed     INTEGER,
    segments_captured  INTEGER,
    total_size_bytes   BIGINT,
    started_at         TIMESTAMPTZ,
    completed_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS video_segments (
    id                 SERIAL PRIMARY KEY,
    camera_id          VARCHAR(50) NOT NULL,
    incident_id        BIGINT,
    segment_filename   VARCHAR(200) NOT NULL,
    storage_bucket     VARCHAR(100),
    storage_path       VARCHAR(500),
    storage_url        TEXT,
    segment_duration   DOUBLE PRECISION,
    segment_size_bytes BIGINT,
    segment_index      INTEGER,
    program_date_time  TIMESTAMPTZ,
    capture_timestamp  TIMESTAMPTZ,
    created_at         TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (camera_id, segment_filename)
);
`

// PostgresStore is the relational MetadataStore. *sql.DB pools connections, so a single
// store is shared by all capture workers.
type PostgresStore struct {
	DB      *sql.DB
	timeout time.Duration
}

// OpenPostgres connects, verifies the connection and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, maxOpenConns int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Keep the pool bounded so parallel capture workers cannot exhaust the server.
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db, timeout: 10 * time.Second}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveIncident(ctx context.Context, inc models.Incident) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO incidents
			(incident_id, source_id, roadway_name, county, region, incident_type, severity,
			 direction, description, start_date, last_updated, source, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (incident_id) DO UPDATE SET
			last_updated = EXCLUDED.last_updated,
			description  = EXCLUDED.description,
			updated_at   = CURRENT_TIMESTAMP
	`
	_, err := s.DB.ExecContext(ctx, query,
		inc.ID, inc.SourceID, inc.Roadway, inc.County, inc.Region, inc.Type, inc.Severity,
		inc.Direction, inc.Description, inc.StartDate, inc.LastUpdated, inc.Source, inc.SeenAt,
	)
	if err != nil {
		return writeFailed(fmt.Sprintf("incident %d", inc.ID), err)
	}
	return nil
}

func (s *PostgresStore) SaveCamera(ctx context.Context, cam models.CameraTarget) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO cameras
			(camera_id, image_id, video_url, description, location, roadway_name, region,
			 county, direction, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (camera_id) DO UPDATE SET
			image_id   = EXCLUDED.image_id,
			video_url  = EXCLUDED.video_url,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.DB.ExecContext(ctx, query,
		cam.ID, cam.ImageID, cam.VideoURL, cam.Description, cam.Location, cam.Roadway, cam.Region,
		cam.County, cam.Direction, nullFloat(cam.Latitude), nullFloat(cam.Longitude),
	)
	if err != nil {
		return writeFailed("camera "+cam.ID, err)
	}
	return nil
}

func (s *PostgresStore) SaveSegment(ctx context.Context, seg models.StoredSegment) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO video_segments
			(camera_id, incident_id, segment_filename, storage_bucket, storage_path, storage_url,
			 segment_duration, segment_size_bytes, segment_index, program_date_time, capture_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (camera_id, segment_filename) DO UPDATE SET
			storage_path       = EXCLUDED.storage_path,
			storage_url        = EXCLUDED.storage_url,
			segment_size_bytes = EXCLUDED.segment_size_bytes
	`
	var pdt sql.NullTime
	if seg.ProgramDateTime != nil {
		pdt = sql.NullTime{Time: *seg.ProgramDateTime, Valid: true}
	}
	var incidentID sql.NullInt64
	if seg.IncidentID != 0 {
		incidentID = sql.NullInt64{Int64: seg.IncidentID, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, query,
		seg.CameraID, incidentID, seg.Filename, seg.Bucket, seg.Path, seg.URL,
		seg.Duration, seg.Size, seg.Index, pdt, seg.CapturedAt,
	)
	if err != nil {
		return writeFailed(fmt.Sprintf("segment %s/%s", seg.CameraID, seg.Filename), err)
	}
	return nil
}

func (s *PostgresStore) SaveCaptureRun(ctx context.Context, res models.CaptureResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cameraIDs := make([]string, 0, len(res.Cameras))
	for _, c := range res.Cameras {
		cameraIDs = append(cameraIDs, c.CameraID)
	}

	query := `
		INSERT INTO capture_runs
			(run_id, incident_id, cameras_targeted, cameras_attempted, cameras_successful,
			 cameras_failed, segments_captured, total_size_bytes, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err := s.DB.ExecContext(ctx, query,
		res.RunID, res.IncidentID, pq.Array(cameraIDs), res.CamerasAttempted, res.CamerasSuccessful,
		res.CamerasFailed, res.SegmentsCaptured, res.TotalBytes, res.StartedAt, res.FinishedAt,
	)
	if err != nil {
		return writeFailed("capture run "+res.RunID, err)
	}
	return nil
}

// IncidentIDs returns every stored incident id. The poll loop seeds its processed set with it.
func (s *PostgresStore) IncidentIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT incident_id FROM incidents`)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan incident id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}
