package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus captures the lifecycle of a server-side upload job.
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobUploading JobStatus = "UPLOADING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"

	// JobNotFound is the sentinel status reported when a job id is unknown,
	// whether it never existed or its snapshot was already evicted.
	JobNotFound JobStatus = "NOT_FOUND"
)

// FileStatusCompleted is the status recorded for a successfully finished upload.
const FileStatusCompleted = "COMPLETED"

// JobProgress is the whole-value snapshot a job publishes to the registry.
// The owning background task is its only writer; readers receive copies.
type JobProgress struct {
	JobID         string
	Status        JobStatus
	UploadID      string
	ObjectKey     string
	TempPath      string
	UploadedParts int32
	TotalParts    int32
	UploadedBytes int64
	TotalBytes    int64
	Progress      float64
	ErrorMessage  string
	DownloadURL   string
}

// FileRecord is the metadata row persisted once per completed upload.
type FileRecord struct {
	ID        uuid.UUID
	Filename  string
	SizeBytes int64
	ObjectKey string
	Status    string
	Checksum  string
	CreatedAt time.Time
}

// ObjectInfo is the store-reported metadata for a finished object.
type ObjectInfo struct {
	SizeBytes int64
	ETag      string
}

// PartRecord describes one uploaded part as reported by the object store.
type PartRecord struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
	SizeBytes  int64  `json:"size"`
}

// CompletedPart is the caller-supplied pair identifying one finished part.
type CompletedPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

// PresignedPart carries one pre-signed part-upload URL.
type PresignedPart struct {
	PartNumber int32     `json:"partNumber"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// InitRequest contains the payload sent by clients to open an upload session.
type InitRequest struct {
	FileName    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	ChunkSize   int64  `json:"chunkSize,omitempty"`
}

// InitResponse describes the opened session and its part numbering.
type InitResponse struct {
	UploadID      string `json:"uploadId"`
	ObjectKey     string `json:"objectKey"`
	PartSize      int64  `json:"partSize"`
	MinPartNumber int32  `json:"minPartNumber"`
	MaxPartNumber int32  `json:"maxPartNumber"`
}

// PresignRequest asks for pre-signed part URLs over an inclusive range.
type PresignRequest struct {
	UploadID  string `json:"uploadId"`
	ObjectKey string `json:"objectKey"`
	StartPart int32  `json:"startPart"`
	EndPart   int32  `json:"endPart"`
}

// CompleteRequest finalizes a session with the parts the client uploaded.
type CompleteRequest struct {
	UploadID  string          `json:"uploadId"`
	ObjectKey string          `json:"objectKey"`
	Parts     []CompletedPart `json:"parts"`
}

// CompleteResponse is the persisted record returned after completion.
type CompleteResponse struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ObjectKey   string    `json:"objectKey"`
	Status      string    `json:"status"`
	DownloadURL string    `json:"downloadUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AbortRequest identifies the session to discard.
type AbortRequest struct {
	UploadID  string `json:"uploadId"`
	ObjectKey string `json:"objectKey"`
}

// SubmitJobResponse acknowledges an accepted server-side upload job.
type SubmitJobResponse struct {
	JobID     string `json:"jobId"`
	ObjectKey string `json:"objectKey"`
	Message   string `json:"message"`
}

// JobStatusResponse exposes job progress for polling.
type JobStatusResponse struct {
	JobID         string    `json:"jobId"`
	Status        JobStatus `json:"status"`
	Progress      float64   `json:"progress"`
	UploadedParts int32     `json:"uploadedParts"`
	TotalParts    int32     `json:"totalParts"`
	UploadedBytes int64     `json:"uploadedBytes"`
	TotalBytes    int64     `json:"totalBytes"`
	ObjectKey     string    `json:"objectKey,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	DownloadURL   string    `json:"downloadUrl,omitempty"`
}

// DownloadResponse carries a freshly issued download URL for a stored file.
type DownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}
