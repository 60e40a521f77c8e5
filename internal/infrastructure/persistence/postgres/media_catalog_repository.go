package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS media_catalog (
	remote_key   TEXT PRIMARY KEY,
	load_id      TEXT NOT NULL DEFAULT '',
	load_number  TEXT NOT NULL DEFAULT '',
	step_index   INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	content_type TEXT,
	size_bytes   BIGINT NOT NULL DEFAULT 0,
	captured_at  TIMESTAMPTZ NOT NULL,
	uploaded_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_media_catalog_load ON media_catalog (load_number, captured_at DESC);
`

// upsert: повторная загрузка того же ключа перезаписывает метаданные
const upsertQuery = `
	INSERT INTO media_catalog (remote_key, load_id, load_number, step_index, kind, content_type, size_bytes, captured_at, uploaded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (remote_key) DO UPDATE SET
		size_bytes = EXCLUDED.size_bytes,
		content_type = EXCLUDED.content_type,
		uploaded_at = EXCLUDED.uploaded_at
`

// MediaCatalogRepository реализует port.MediaCatalog для PostgreSQL
type MediaCatalogRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ port.MediaCatalog = (*MediaCatalogRepository)(nil)

// NewMediaCatalogRepository создает новый PostgreSQL repository
func NewMediaCatalogRepository(db *sql.DB) *MediaCatalogRepository {
	return &MediaCatalogRepository{
		db:  db,
		now: time.Now,
	}
}

// EnsureSchema создает таблицу каталога, если ее нет
func (r *MediaCatalogRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create media_catalog schema: %w", err)
	}
	return nil
}

// PutBatch сохраняет записи одной транзакцией
func (r *MediaCatalogRepository) PutBatch(ctx context.Context, records []port.CatalogRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		model := ToDBModel(record, r.now())
		if model.RemoteKey == "" {
			return fmt.Errorf("remote_key is required")
		}

		_, err = stmt.ExecContext(ctx,
			model.RemoteKey,
			model.LoadID,
			model.LoadNumber,
			model.StepIndex,
			model.Kind,
			model.ContentType,
			model.SizeBytes,
			model.CapturedAt,
			model.UploadedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert media record %s: %w", model.RemoteKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
