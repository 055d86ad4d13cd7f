package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/domain"
)

// PostgresStore implements Store using a PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database using the provided connection string.
func NewPostgresStore(ctx context.Context, conn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(conn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveFile inserts the completed-upload record and returns it with the
// generated id and creation timestamp filled in.
func (s *PostgresStore) SaveFile(ctx context.Context, rec *domain.FileRecord) (*domain.FileRecord, error) {
	saved := *rec
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	query := `
		INSERT INTO files (id, filename, size_bytes, object_key, status, checksum, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		RETURNING created_at
	`
	err := s.pool.QueryRow(ctx, query,
		saved.ID, saved.Filename, saved.SizeBytes, saved.ObjectKey, saved.Status, saved.Checksum,
	).Scan(&saved.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateObjectKey
		}
		return nil, err
	}
	return &saved, nil
}

// FindFileByObjectKey loads the record stored for the object key.
func (s *PostgresStore) FindFileByObjectKey(ctx context.Context, objectKey string) (*domain.FileRecord, error) {
	query := `
		SELECT id, filename, size_bytes, object_key, status, checksum, created_at
		FROM files
		WHERE object_key = $1
	`
	row := s.pool.QueryRow(ctx, query, objectKey)
	var rec domain.FileRecord
	err := row.Scan(
		&rec.ID,
		&rec.Filename,
		&rec.SizeBytes,
		&rec.ObjectKey,
		&rec.Status,
		&rec.Checksum,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
