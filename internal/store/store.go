package store

import (
	"context"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/domain"
)

// Store defines persistence behavior for completed upload records.
type Store interface {
	SaveFile(ctx context.Context, rec *domain.FileRecord) (*domain.FileRecord, error)
	FindFileByObjectKey(ctx context.Context, objectKey string) (*domain.FileRecord, error)
}
