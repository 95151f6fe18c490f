package repository

import (
	"context"
	"errors"

	"paggo-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrFileNotFound is returned when no file row matches the lookup
var ErrFileNotFound = errors.New("file record not found")

// FilesSchema creates the user_files table and its owner listing index
const FilesSchema = `
CREATE TABLE IF NOT EXISTS user_files (
    id UUID PRIMARY KEY,
    owner_id UUID NOT NULL,
    storage_key TEXT NOT NULL UNIQUE,
    original_name VARCHAR(255) NOT NULL,
    mime_type VARCHAR(100) NOT NULL,
    size BIGINT NOT NULL,
    url TEXT NOT NULL,
    extracted_text TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_files_owner_created
    ON user_files (owner_id, created_at DESC);`

const fileColumns = `id, owner_id, storage_key, original_name, mime_type, size, url, extracted_text, created_at`

// FileRepository handles database operations for files
type FileRepository struct {
	db *pgxpool.Pool
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *pgxpool.Pool) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a new file record. CreatedAt is assigned by the database.
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO user_files (
			id, owner_id, storage_key, original_name, mime_type, size, url, extracted_text
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	return r.db.QueryRow(
		ctx, query,
		file.ID,
		file.OwnerID,
		file.StorageKey,
		file.OriginalName,
		file.MimeType,
		file.Size,
		file.URL,
		file.ExtractedText,
	).Scan(&file.CreatedAt)
}

// GetByIDAndOwner retrieves a file only if it belongs to ownerID
func (r *FileRepository) GetByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.File, error) {
	query := `SELECT ` + fileColumns + `
		FROM user_files
		WHERE id = $1 AND owner_id = $2`

	file, err := scanFile(r.db.QueryRow(ctx, query, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}

	return file, nil
}

// ListByOwnerID retrieves all files for an owner, newest first
func (r *FileRepository) ListByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + `
		FROM user_files
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]*models.File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	return files, rows.Err()
}

// UpdateExtractedText stores extracted text. It reports false when the row
// no longer exists.
func (r *FileRepository) UpdateExtractedText(ctx context.Context, id uuid.UUID, text string) (bool, error) {
	query := `UPDATE user_files SET extracted_text = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, text)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete deletes a file record owned by ownerID. It reports false when no
// row matched.
func (r *FileRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) (bool, error) {
	query := `DELETE FROM user_files WHERE id = $1 AND owner_id = $2`
	tag, err := r.db.Exec(ctx, query, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanFile(row pgx.Row) (*models.File, error) {
	file := &models.File{}
	err := row.Scan(
		&file.ID,
		&file.OwnerID,
		&file.StorageKey,
		&file.OriginalName,
		&file.MimeType,
		&file.Size,
		&file.URL,
		&file.ExtractedText,
		&file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return file, nil
}
