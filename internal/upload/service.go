package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/config"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/domain"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/objectstore"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/store"
)

type (
	InitRequest      = domain.InitRequest
	InitResponse     = domain.InitResponse
	PresignRequest   = domain.PresignRequest
	CompleteRequest  = domain.CompleteRequest
	CompleteResponse = domain.CompleteResponse
	DownloadResponse = domain.DownloadResponse
)

// Service orchestrates client-driven multipart uploads between the object
// store and the metadata store. The server holds no session state of its
// own: the store-side multipart session is the session.
type Service struct {
	cfg     *config.Config
	objects objectstore.Client
	store   store.Store
	logger  *slog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg *config.Config, objects objectstore.Client, st store.Store, logger *slog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		objects: objects,
		store:   st,
		logger:  logger,
	}
}

// InitUpload opens a multipart session and returns part-numbering
// instructions. Validation happens before any store call. The client may
// pick any positive chunk size; the store enforces its own minimum when
// parts are actually uploaded.
func (s *Service) InitUpload(ctx context.Context, req InitRequest) (*InitResponse, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, errors.New("filename is required")
	}
	if err := checkContentType(s.cfg.AcceptedContentTypes, req.ContentType); err != nil {
		return nil, err
	}
	if req.Size <= 0 {
		return nil, errors.New("file size must be greater than zero")
	}
	if req.Size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("file size exceeds max limit (%d bytes)", s.cfg.MaxUploadBytes)
	}

	partSize := req.ChunkSize
	if partSize <= 0 {
		partSize = s.cfg.DefaultPartSizeBytes
	}

	objectKey := domain.NewObjectKey(req.FileName)
	uploadID, err := s.objects.CreateMultipartUpload(ctx, objectKey, req.ContentType)
	if err != nil {
		return nil, err
	}

	s.logger.Info("multipart upload initialized",
		"uploadId", uploadID, "objectKey", objectKey, "partSize", partSize)

	return &InitResponse{
		UploadID:      uploadID,
		ObjectKey:     objectKey,
		PartSize:      partSize,
		MinPartNumber: 1,
		MaxPartNumber: domain.PartCount(req.Size, partSize),
	}, nil
}

// PresignParts issues pre-signed PUT URLs for an inclusive part-number
// range. Every entry in the batch reports the same expiry instant, computed
// once at call time.
func (s *Service) PresignParts(ctx context.Context, req PresignRequest) ([]domain.PresignedPart, error) {
	if req.UploadID == "" || req.ObjectKey == "" {
		return nil, errors.New("uploadId and objectKey are required")
	}
	if req.StartPart < 1 {
		return nil, errors.New("startPart must be at least 1")
	}
	if req.EndPart < req.StartPart {
		return nil, errors.New("endPart must not precede startPart")
	}
	batch := int(req.EndPart-req.StartPart) + 1
	if batch > s.cfg.MaxPresignBatch {
		return nil, fmt.Errorf("presign batch of %d exceeds limit (%d)", batch, s.cfg.MaxPresignBatch)
	}

	expiresAt := time.Now().Add(s.cfg.PresignExpiry).UTC()
	parts := make([]domain.PresignedPart, 0, batch)
	for n := req.StartPart; n <= req.EndPart; n++ {
		url, err := s.objects.PresignUploadPart(ctx, req.UploadID, req.ObjectKey, n, s.cfg.PresignExpiry)
		if err != nil {
			return nil, err
		}
		parts = append(parts, domain.PresignedPart{
			PartNumber: n,
			URL:        url,
			ExpiresAt:  expiresAt,
		})
	}
	return parts, nil
}

// UploadStatus reports the store-authoritative list of uploaded parts.
// Clients diff the result against their expected part range to resume.
func (s *Service) UploadStatus(ctx context.Context, uploadID, objectKey string) ([]domain.PartRecord, error) {
	if uploadID == "" || objectKey == "" {
		return nil, errors.New("uploadId and objectKey are required")
	}
	return s.objects.ListParts(ctx, uploadID, objectKey)
}

// CompleteUpload finalizes the store session, persists the completed-file
// record, and returns it with a pre-signed download URL. Part integrity is
// the store's to validate; parts are only sorted here because the store
// requires ascending order.
func (s *Service) CompleteUpload(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	if req.UploadID == "" || req.ObjectKey == "" {
		return nil, errors.New("uploadId and objectKey are required")
	}
	if len(req.Parts) == 0 {
		return nil, errors.New("at least one part is required")
	}

	parts := make([]domain.CompletedPart, len(req.Parts))
	copy(parts, req.Parts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	finalETag, err := s.objects.CompleteMultipartUpload(ctx, req.UploadID, req.ObjectKey, parts)
	if err != nil {
		return nil, err
	}

	info, err := s.objects.HeadObject(ctx, req.ObjectKey)
	if err != nil {
		s.logger.Error("upload completed but size lookup failed; object may be orphaned",
			"objectKey", req.ObjectKey, "uploadId", req.UploadID, "error", err)
		return nil, err
	}

	rec, err := s.store.SaveFile(ctx, &domain.FileRecord{
		Filename:  path.Base(req.ObjectKey),
		SizeBytes: info.SizeBytes,
		ObjectKey: req.ObjectKey,
		Status:    domain.FileStatusCompleted,
		Checksum:  finalETag,
	})
	if err != nil {
		s.logger.Error("upload completed but metadata write failed; object is orphaned",
			"objectKey", req.ObjectKey, "uploadId", req.UploadID, "error", err)
		return nil, err
	}

	downloadURL, err := s.objects.PresignGetObject(ctx, req.ObjectKey, s.cfg.DownloadExpiry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("multipart upload completed",
		"objectKey", req.ObjectKey, "size", info.SizeBytes, "parts", len(parts))

	return &CompleteResponse{
		ID:          rec.ID.String(),
		Filename:    rec.Filename,
		Size:        rec.SizeBytes,
		ObjectKey:   rec.ObjectKey,
		Status:      rec.Status,
		DownloadURL: downloadURL,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// AbortUpload discards the multipart session. Abort semantics for unknown or
// already-finished sessions are whatever the store reports.
func (s *Service) AbortUpload(ctx context.Context, uploadID, objectKey string) error {
	if uploadID == "" || objectKey == "" {
		return errors.New("uploadId and objectKey are required")
	}
	return s.objects.AbortMultipartUpload(ctx, uploadID, objectKey)
}

// DownloadURL re-issues a pre-signed download URL for a completed upload.
func (s *Service) DownloadURL(ctx context.Context, objectKey string) (*DownloadResponse, error) {
	if objectKey == "" {
		return nil, errors.New("objectKey is required")
	}
	rec, err := s.store.FindFileByObjectKey(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.PresignGetObject(ctx, rec.ObjectKey, s.cfg.DownloadExpiry)
	if err != nil {
		return nil, err
	}
	return &DownloadResponse{
		DownloadURL: url,
		Filename:    rec.Filename,
		Size:        rec.SizeBytes,
	}, nil
}

func checkContentType(accepted []string, contentType string) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, prefix := range accepted {
		if strings.HasPrefix(ct, prefix) {
			return nil
		}
	}
	return fmt.Errorf("unsupported content type %q", contentType)
}
