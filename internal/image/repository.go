// Package image implements content-addressed image uploads: admission
// checks, deduplication by content hash, object-storage persistence, and
// time-based retention.
package image

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Image is the durable record of one unique uploaded asset. Exactly one row
// exists per content hash. Rows are inserted and deleted, never updated, so
// CreatedAt marks first-seen time and is the sole retention signal — reuse
// of duplicate content does not reset the clock.
type Image struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	ContentHash  string    `json:"contentHash"`
	URL          string    `json:"url"`
	StorageKey   string    `json:"storageKey"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ErrNotFound is returned when no image matches the lookup.
var ErrNotFound = errors.New("image not found")

// ErrHashExists is returned when an insert collides with an existing content hash.
var ErrHashExists = errors.New("image with this content hash already exists")

// Store is the metadata registry the upload pipeline and the retention
// sweeper operate on.
type Store interface {
	// FindByHash returns the image with the given content hash, or ErrNotFound.
	FindByHash(ctx context.Context, hash string) (*Image, error)
	// FindOlderThan returns every image created strictly before cutoff.
	FindOlderThan(ctx context.Context, cutoff time.Time) ([]Image, error)
	// Create inserts a new image, assigning ID and CreatedAt. It returns
	// ErrHashExists when a record with the same content hash already exists.
	Create(ctx context.Context, img *Image) (*Image, error)
	// Delete removes the image with the given ID.
	Delete(ctx context.Context, id string) error
}

// Repository is the Postgres-backed Store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FindByHash fetches an image by its content hash.
func (r *Repository) FindByHash(ctx context.Context, hash string) (*Image, error) {
	img := &Image{}
	err := r.db.QueryRow(ctx,
		`SELECT id, original_name, content_hash, url, storage_key, size, mime_type, created_at
		 FROM images WHERE content_hash = $1`,
		hash,
	).Scan(&img.ID, &img.OriginalName, &img.ContentHash, &img.URL,
		&img.StorageKey, &img.Size, &img.MimeType, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find image by hash: %w", err)
	}
	return img, nil
}

// FindOlderThan lists every image created before cutoff, oldest first.
func (r *Repository) FindOlderThan(ctx context.Context, cutoff time.Time) ([]Image, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, original_name, content_hash, url, storage_key, size, mime_type, created_at
		 FROM images WHERE created_at < $1
		 ORDER BY created_at`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("find expired images: %w", err)
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.OriginalName, &img.ContentHash, &img.URL,
			&img.StorageKey, &img.Size, &img.MimeType, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expired image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired images: %w", err)
	}
	return images, nil
}

// Create inserts a new image record and returns it with the database-assigned
// id and created_at. The unique constraint on content_hash is the backstop
// for concurrent identical uploads; a violation surfaces as ErrHashExists.
func (r *Repository) Create(ctx context.Context, img *Image) (*Image, error) {
	created := *img
	err := r.db.QueryRow(ctx,
		`INSERT INTO images (original_name, content_hash, url, storage_key, size, mime_type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		img.OriginalName, img.ContentHash, img.URL, img.StorageKey, img.Size, img.MimeType,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrHashExists
		}
		return nil, fmt.Errorf("create image: %w", err)
	}
	return &created, nil
}

// Delete removes the image row with the given ID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
