package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/internal/domain/valueobject"
)

// ErrMediaNotFound is returned when no local record has the given ID.
var ErrMediaNotFound = apperror.ErrMediaNotFound

var _ port.MediaStore = (*MediaStore)(nil)

// MediaStore - локальное хранилище снятых медиа. Порядок записей - порядок добавления.
type MediaStore struct {
	db *sql.DB
}

// NewMediaStore создает хранилище и применяет миграции.
func NewMediaStore(db *sql.DB) (*MediaStore, error) {
	s := &MediaStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

const currentSchemaVersion = 1

func (s *MediaStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	migrations := []func() error{
		s.migrateV1,
	}
	if len(migrations) != currentSchemaVersion {
		return fmt.Errorf("expected %d migrations, have %d", currentSchemaVersion, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *MediaStore) migrateV1() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS media (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT NOT NULL UNIQUE,
	kind             TEXT NOT NULL,
	local_uri        TEXT NOT NULL,
	captured_at      TEXT NOT NULL,
	step_index       INTEGER NOT NULL,
	duration_seconds INTEGER,
	muted            INTEGER,
	load_id          TEXT NOT NULL DEFAULT '',
	load_number      TEXT NOT NULL DEFAULT '',
	size_bytes       INTEGER NOT NULL DEFAULT 0,
	remote_key       TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	etag             TEXT NOT NULL DEFAULT '',
	uploaded_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_media_load ON media(load_id);
`)
	return err
}

func (s *MediaStore) Append(ctx context.Context, artifact entity.MediaArtifact) error {
	var duration, muted sql.NullInt64
	if artifact.DurationSeconds != nil {
		duration = sql.NullInt64{Int64: int64(*artifact.DurationSeconds), Valid: true}
	}
	if artifact.Muted != nil {
		muted = sql.NullInt64{Int64: boolToInt(*artifact.Muted), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO media (id, kind, local_uri, captured_at, step_index, duration_seconds, muted, load_id, load_number, size_bytes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		artifact.ID,
		artifact.Kind.String(),
		artifact.LocalURI,
		artifact.CapturedAt.UTC().Format(time.RFC3339Nano),
		artifact.StepIndex,
		duration,
		muted,
		artifact.LoadID,
		artifact.LoadNumber,
		artifact.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("insert media %s: %w", artifact.ID, err)
	}
	return nil
}

func (s *MediaStore) ListAll(ctx context.Context) ([]port.StoredMedia, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, kind, local_uri, captured_at, step_index, duration_seconds, muted,
       load_id, load_number, size_bytes, remote_key, location, etag, uploaded_at
FROM media ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	records := make([]port.StoredMedia, 0)
	for rows.Next() {
		record, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *MediaStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete media %s: %w", id, err)
	}
	return requireAffected(res, id)
}

func (s *MediaStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM media`); err != nil {
		return fmt.Errorf("clear media: %w", err)
	}
	return nil
}

func (s *MediaStore) MarkUploaded(ctx context.Context, id string, info port.RemoteInfo) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE media SET remote_key = ?, location = ?, etag = ?, uploaded_at = ? WHERE id = ?`,
		info.RemoteKey, info.Location, info.ETag, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark media %s uploaded: %w", id, err)
	}
	return requireAffected(res, id)
}

func (s *MediaStore) UploadStatus(ctx context.Context) (port.UploadStatus, error) {
	var status port.UploadStatus
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN remote_key <> '' AND location <> '' THEN 1 ELSE 0 END), 0)
FROM media`).Scan(&status.Total, &status.Uploaded)
	if err != nil {
		return port.UploadStatus{}, fmt.Errorf("media status: %w", err)
	}

	status.Pending = status.Total - status.Uploaded
	if status.Total > 0 {
		status.UploadPercentage = int(math.Round(float64(status.Uploaded) * 100 / float64(status.Total)))
	}
	return status, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMedia(row scanner) (port.StoredMedia, error) {
	var (
		record     port.StoredMedia
		kind       string
		capturedAt string
		duration   sql.NullInt64
		muted      sql.NullInt64
		uploadedAt sql.NullString
	)
	err := row.Scan(
		&record.Artifact.ID,
		&kind,
		&record.Artifact.LocalURI,
		&capturedAt,
		&record.Artifact.StepIndex,
		&duration,
		&muted,
		&record.Artifact.LoadID,
		&record.Artifact.LoadNumber,
		&record.Artifact.SizeBytes,
		&record.RemoteKey,
		&record.Location,
		&record.ETag,
		&uploadedAt,
	)
	if err != nil {
		return port.StoredMedia{}, fmt.Errorf("scan media: %w", err)
	}

	record.Artifact.Kind = valueobject.MediaKind(kind)
	if t, err := time.Parse(time.RFC3339Nano, capturedAt); err == nil {
		record.Artifact.CapturedAt = t
	}
	if duration.Valid {
		d := int(duration.Int64)
		record.Artifact.DurationSeconds = &d
	}
	if muted.Valid {
		m := muted.Int64 == 1
		record.Artifact.Muted = &m
	}
	if uploadedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, uploadedAt.String); err == nil {
			record.UploadedAt = t
		}
	}
	return record, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrMediaNotFound, id)
	}
	return nil
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
