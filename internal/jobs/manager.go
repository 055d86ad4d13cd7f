package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/config"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/domain"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/objectstore"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/store"
)

// Manager owns server-side streaming upload jobs: it validates submissions,
// schedules them on a bounded worker pool, and publishes progress snapshots
// to the registry for polling.
type Manager struct {
	cfg      *config.Config
	objects  objectstore.Client
	store    store.Store
	registry *Registry
	pool     *Pool
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	rootCtx context.Context
	stop    context.CancelFunc
	sweepWG sync.WaitGroup
}

// NewManager creates a Manager and starts its workers and registry sweeper.
func NewManager(cfg *config.Config, objects objectstore.Client, st store.Store, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		objects:  objects,
		store:    st,
		registry: NewRegistry(),
		pool:     NewPool(cfg.JobWorkers, cfg.JobQueueDepth),
		logger:   logger,
		cancels:  make(map[string]context.CancelFunc),
		rootCtx:  ctx,
		stop:     cancel,
	}
	m.sweepWG.Add(1)
	go m.sweepLoop()
	return m
}

// Submit validates a spooled file and schedules its upload. It returns the
// job id and destination object key without waiting for the transfer; when
// the queue is saturated the transfer runs on the calling goroutine instead
// of being dropped.
func (m *Manager) Submit(tempPath, filename, contentType string, partSize int64) (string, string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", "", errors.New("filename is required")
	}
	if !m.acceptsContentType(contentType) {
		return "", "", fmt.Errorf("unsupported content type %q", contentType)
	}
	info, err := os.Stat(tempPath)
	if err != nil {
		return "", "", fmt.Errorf("temp file unavailable: %w", err)
	}
	size := info.Size()
	if size <= 0 {
		return "", "", errors.New("file is empty")
	}
	if size > m.cfg.MaxUploadBytes {
		return "", "", fmt.Errorf("file size exceeds max limit (%d bytes)", m.cfg.MaxUploadBytes)
	}
	if partSize <= 0 {
		partSize = m.cfg.DefaultPartSizeBytes
	}
	if partSize < config.MinPartSizeBytes {
		return "", "", fmt.Errorf("chunk size must be at least %d bytes", config.MinPartSizeBytes)
	}
	if partSize > m.cfg.MaxPartSizeBytes {
		return "", "", fmt.Errorf("chunk size must not exceed %d bytes", m.cfg.MaxPartSizeBytes)
	}

	jobID := uuid.New().String()
	jobCtx, cancel := context.WithCancel(m.rootCtx)
	m.mu.Lock()
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	prog := domain.JobProgress{
		JobID:      jobID,
		Status:     domain.JobQueued,
		ObjectKey:  domain.NewObjectKey(filename),
		TempPath:   tempPath,
		TotalParts: domain.PartCount(size, partSize),
		TotalBytes: size,
	}
	m.registry.Put(prog)

	m.logger.Info("upload job queued",
		"jobId", jobID, "objectKey", prog.ObjectKey, "size", size, "parts", prog.TotalParts)

	m.pool.Submit(func() {
		m.run(jobCtx, prog, contentType, partSize)
	})

	return jobID, prog.ObjectKey, nil
}

// Status reports the job's latest snapshot. Unknown and already-evicted ids
// report the NOT_FOUND sentinel status rather than an error.
func (m *Manager) Status(jobID string) domain.JobProgress {
	if prog, ok := m.registry.Get(jobID); ok {
		return prog
	}
	return domain.JobProgress{JobID: jobID, Status: domain.JobNotFound}
}

// Cancel requests cooperative cancellation of a live job. The flag is
// observed between part uploads and by in-flight store calls; the job then
// terminates as FAILED with a canceled message. Cancel reports whether a
// live job was found.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	m.logger.Info("upload job cancellation requested", "jobId", jobID)
	return true
}

// Close drains queued jobs, then stops the workers and the sweeper. It must
// be called after the HTTP layer has stopped accepting submissions.
func (m *Manager) Close() {
	m.pool.Close()
	m.stop()
	m.sweepWG.Wait()
}

// run executes one job. It is the only writer of the job's snapshot.
func (m *Manager) run(ctx context.Context, prog domain.JobProgress, contentType string, partSize int64) {
	defer func() {
		if err := os.Remove(prog.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("temp file cleanup failed",
				"jobId", prog.JobID, "path", prog.TempPath, "error", err)
		}
		m.registry.ExpireAfter(prog.JobID, m.cfg.JobRetention)
		m.clearCancel(prog.JobID)
	}()

	fail := func(err error) {
		if ctx.Err() != nil {
			err = errors.New("upload canceled")
		}
		if prog.UploadID != "" {
			// Best effort: the session may already be gone.
			if abortErr := m.objects.AbortMultipartUpload(context.Background(), prog.UploadID, prog.ObjectKey); abortErr != nil {
				m.logger.Warn("session abort after failure failed",
					"jobId", prog.JobID, "uploadId", prog.UploadID, "error", abortErr)
			}
		}
		prog.Status = domain.JobFailed
		prog.ErrorMessage = err.Error()
		m.registry.Put(prog)
		m.logger.Error("upload job failed",
			"jobId", prog.JobID, "objectKey", prog.ObjectKey, "error", err)
	}

	if ctx.Err() != nil {
		fail(ctx.Err())
		return
	}

	prog.Status = domain.JobUploading
	m.registry.Put(prog)

	uploadID, err := m.objects.CreateMultipartUpload(ctx, prog.ObjectKey, contentType)
	if err != nil {
		fail(err)
		return
	}
	prog.UploadID = uploadID
	m.registry.Put(prog)

	file, err := os.Open(prog.TempPath)
	if err != nil {
		fail(fmt.Errorf("open temp file: %w", err))
		return
	}
	defer file.Close()

	// One reused buffer per job; parts go up strictly in order.
	buf := make([]byte, partSize)
	completed := make([]domain.CompletedPart, 0, prog.TotalParts)
	var partNumber int32

	for {
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}
		n, readErr := io.ReadFull(file, buf)
		if n > 0 {
			partNumber++
			etag, uploadErr := m.objects.UploadPart(ctx, uploadID, prog.ObjectKey, partNumber, bytes.NewReader(buf[:n]), int64(n))
			if uploadErr != nil {
				fail(uploadErr)
				return
			}
			completed = append(completed, domain.CompletedPart{PartNumber: partNumber, ETag: etag})
			prog.UploadedParts = partNumber
			prog.UploadedBytes += int64(n)
			prog.Progress = percent(prog.UploadedBytes, prog.TotalBytes)
			m.registry.Put(prog)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			fail(fmt.Errorf("read temp file: %w", readErr))
			return
		}
	}

	finalETag, err := m.objects.CompleteMultipartUpload(ctx, uploadID, prog.ObjectKey, completed)
	if err != nil {
		fail(err)
		return
	}

	info, err := m.objects.HeadObject(ctx, prog.ObjectKey)
	if err != nil {
		fail(err)
		return
	}

	rec, err := m.store.SaveFile(ctx, &domain.FileRecord{
		Filename:  path.Base(prog.ObjectKey),
		SizeBytes: info.SizeBytes,
		ObjectKey: prog.ObjectKey,
		Status:    domain.FileStatusCompleted,
		Checksum:  finalETag,
	})
	if err != nil {
		m.logger.Error("object uploaded but metadata write failed; object is orphaned",
			"jobId", prog.JobID, "objectKey", prog.ObjectKey, "error", err)
		fail(err)
		return
	}

	downloadURL, err := m.objects.PresignGetObject(ctx, prog.ObjectKey, m.cfg.DownloadExpiry)
	if err != nil {
		fail(err)
		return
	}

	prog.Status = domain.JobCompleted
	prog.Progress = 100
	prog.DownloadURL = downloadURL
	m.registry.Put(prog)

	m.logger.Info("upload job completed",
		"jobId", prog.JobID, "objectKey", prog.ObjectKey, "size", info.SizeBytes, "fileId", rec.ID)
}

func (m *Manager) sweepLoop() {
	defer m.sweepWG.Done()
	ticker := time.NewTicker(m.cfg.JobSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.rootCtx.Done():
			return
		case now := <-ticker.C:
			if n := m.registry.Sweep(now); n > 0 {
				m.logger.Debug("evicted finished jobs", "count", n)
			}
		}
	}
}

func (m *Manager) clearCancel(jobID string) {
	m.mu.Lock()
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
		delete(m.cancels, jobID)
	}
	m.mu.Unlock()
}

func (m *Manager) acceptsContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, prefix := range m.cfg.AcceptedContentTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
