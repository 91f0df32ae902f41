package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"storyweaver/harvester/internal/fsutil"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository keeps the raw metadata document of each story for audit and debugging.
// Saving the same slug twice overwrites the earlier snapshot.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, slug, remoteID string, raw []byte) error
}

type fileSnapshotRepository struct {
	dir string
}

func NewFileSnapshotRepository(dir string) SnapshotRepository {
	return &fileSnapshotRepository{dir: dir}
}

func (r *fileSnapshotRepository) SaveSnapshot(_ context.Context, slug, _ string, raw []byte) error {
	path := filepath.Join(r.dir, slug+".json")
	if err := fsutil.WriteBytes(path, raw); err != nil {
		return fmt.Errorf("failed to save metadata snapshot: %w", err)
	}
	return nil
}

type pgSnapshotRepository struct {
	db *pgxpool.Pool
}

func NewPostgresSnapshotRepository(db *pgxpool.Pool) SnapshotRepository {
	return &pgSnapshotRepository{
		db: db,
	}
}

// EnsureSnapshotSchema creates the snapshot table when it is missing
func EnsureSnapshotSchema(ctx context.Context, db *pgxpool.Pool) error {
	query := `
	CREATE TABLE IF NOT EXISTS metadata_snapshots (
		slug       TEXT PRIMARY KEY,
		remote_id  TEXT NOT NULL,
		data       JSONB NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create metadata_snapshots table: %w", err)
	}
	return nil
}

func (r *pgSnapshotRepository) SaveSnapshot(ctx context.Context, slug, remoteID string, raw []byte) error {
	query := `
	INSERT INTO metadata_snapshots (slug, remote_id, data, fetched_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (slug)
	DO UPDATE SET remote_id = $2, data = $3, fetched_at = $4`
	_, err := r.db.Exec(ctx, query, slug, remoteID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save metadata snapshot: %w", err)
	}

	return nil
}
