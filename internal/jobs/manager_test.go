package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/config"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/domain"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/store"
)

type fakeObjectStore struct {
	mu sync.Mutex

	createCalls   int
	uploadCalls   int
	completeCalls int
	abortCalls    int

	createErr   error
	completeErr error
	failAtPart  int32
	onUpload    func(partNumber int32)
	headSize    int64

	uploadedSizes  []int64
	completedParts []domain.CompletedPart
}

func (f *fakeObjectStore) CreateMultipartUpload(_ context.Context, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "upload-1", nil
}

func (f *fakeObjectStore) UploadPart(ctx context.Context, uploadID, key string, partNumber int32, body io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.uploadCalls++
	f.uploadedSizes = append(f.uploadedSizes, size)
	failAt := f.failAtPart
	onUpload := f.onUpload
	f.mu.Unlock()

	if failAt != 0 && partNumber == failAt {
		return "", errors.New("upload part: connection reset by peer")
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	if onUpload != nil {
		onUpload(partNumber)
	}
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (f *fakeObjectStore) ListParts(_ context.Context, uploadID, key string) ([]domain.PartRecord, error) {
	return nil, nil
}

func (f *fakeObjectStore) CompleteMultipartUpload(_ context.Context, uploadID, key string, parts []domain.CompletedPart) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return "", f.completeErr
	}
	f.completedParts = parts
	return "final-etag", nil
}

func (f *fakeObjectStore) AbortMultipartUpload(_ context.Context, uploadID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCalls++
	return nil
}

func (f *fakeObjectStore) HeadObject(_ context.Context, key string) (domain.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.ObjectInfo{SizeBytes: f.headSize, ETag: "final-etag"}, nil
}

func (f *fakeObjectStore) PresignUploadPart(_ context.Context, uploadID, key string, partNumber int32, expiry time.Duration) (string, error) {
	return "https://store.local/presigned", nil
}

func (f *fakeObjectStore) PresignGetObject(_ context.Context, key string, expiry time.Duration) (string, error) {
	return "https://store.local/" + key, nil
}

func (f *fakeObjectStore) counts() (create, upload, complete, abort int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.uploadCalls, f.completeCalls, f.abortCalls
}

func (f *fakeObjectStore) sizes() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.uploadedSizes))
	copy(out, f.uploadedSizes)
	return out
}

func (f *fakeObjectStore) completed() []domain.CompletedPart {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CompletedPart, len(f.completedParts))
	copy(out, f.completedParts)
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	saveCalls int
	saveErr   error
	saved     []domain.FileRecord
}

func (f *fakeStore) SaveFile(_ context.Context, rec *domain.FileRecord) (*domain.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	saved := *rec
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	saved.CreatedAt = time.Now().UTC()
	f.saved = append(f.saved, saved)
	return &saved, nil
}

func (f *fakeStore) FindFileByObjectKey(_ context.Context, objectKey string) (*domain.FileRecord, error) {
	return nil, store.ErrFileNotFound
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

func (f *fakeStore) savedRecords() []domain.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.FileRecord, len(f.saved))
	copy(out, f.saved)
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		AcceptedContentTypes: []string{"video/"},
		MaxUploadBytes:       1 << 30,
		DefaultPartSizeBytes: 8 * 1024 * 1024,
		MaxPartSizeBytes:     64 * 1024 * 1024,
		DownloadExpiry:       15 * time.Minute,
		JobWorkers:           2,
		JobQueueDepth:        4,
		JobRetention:         10 * time.Minute,
		JobSweepInterval:     time.Hour,
	}
}

func newTestManager(t *testing.T, cfg *config.Config, objects *fakeObjectStore, st *fakeStore) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(cfg, objects, st, logger)
	t.Cleanup(m.Close)
	return m
}

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4.upload")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// queueJob registers a snapshot the way Submit does, so run can be driven
// directly with part sizes below the protocol minimum.
func queueJob(m *Manager, jobID, tempPath string, size, partSize int64) domain.JobProgress {
	prog := domain.JobProgress{
		JobID:      jobID,
		Status:     domain.JobQueued,
		ObjectKey:  domain.NewObjectKey("clip.mp4"),
		TempPath:   tempPath,
		TotalParts: domain.PartCount(size, partSize),
		TotalBytes: size,
	}
	m.registry.Put(prog)
	return prog
}

func TestRunUploadsSequentialParts(t *testing.T) {
	objects := &fakeObjectStore{headSize: 25}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 25)
	prog := queueJob(m, "job-1", path, 25, 10)

	m.run(context.Background(), prog, "video/mp4", 10)

	got := m.Status("job-1")
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, "upload-1", got.UploadID)
	assert.Equal(t, int32(3), got.UploadedParts)
	assert.Equal(t, int64(25), got.UploadedBytes)
	assert.Equal(t, float64(100), got.Progress)
	assert.NotEmpty(t, got.DownloadURL)
	assert.Empty(t, got.ErrorMessage)

	assert.Equal(t, []int64{10, 10, 5}, objects.sizes(), "the final short part keeps its real size")
	parts := objects.completed()
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, int32(i+1), p.PartNumber)
	}

	recs := st.savedRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, "clip.mp4", recs[0].Filename)
	assert.Equal(t, int64(25), recs[0].SizeBytes)
	assert.Equal(t, "final-etag", recs[0].Checksum)
	assert.Equal(t, domain.FileStatusCompleted, recs[0].Status)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "temp file is deleted on success")
}

func TestRunReportsMonotonicProgress(t *testing.T) {
	objects := &fakeObjectStore{headSize: 25}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 25)
	prog := queueJob(m, "job-1", path, 25, 10)

	var seen []int64
	objects.onUpload = func(int32) {
		seen = append(seen, m.Status("job-1").UploadedBytes)
	}

	m.run(context.Background(), prog, "video/mp4", 10)

	require.Len(t, seen, 3)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, int64(25), m.Status("job-1").UploadedBytes)
}

func TestRunFailureMidTransfer(t *testing.T) {
	objects := &fakeObjectStore{headSize: 25, failAtPart: 2}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 25)
	prog := queueJob(m, "job-1", path, 25, 10)

	m.run(context.Background(), prog, "video/mp4", 10)

	got := m.Status("job-1")
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "connection reset")
	assert.Equal(t, int32(1), got.UploadedParts, "only the acknowledged part counts")

	_, _, complete, abort := objects.counts()
	assert.Equal(t, 0, complete)
	assert.Equal(t, 1, abort, "failed jobs abort the store session")
	assert.Equal(t, 0, st.saveCount())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "temp file is deleted on failure")
}

func TestRunCreateSessionFailure(t *testing.T) {
	objects := &fakeObjectStore{createErr: errors.New("create multipart upload: bucket not found")}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 25)
	prog := queueJob(m, "job-1", path, 25, 10)

	m.run(context.Background(), prog, "video/mp4", 10)

	got := m.Status("job-1")
	assert.Equal(t, domain.JobFailed, got.Status)

	_, _, _, abort := objects.counts()
	assert.Equal(t, 0, abort, "no session was opened, nothing to abort")
}

func TestRunMetadataFailureAfterComplete(t *testing.T) {
	objects := &fakeObjectStore{headSize: 25}
	st := &fakeStore{saveErr: errors.New("connection refused")}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 25)
	prog := queueJob(m, "job-1", path, 25, 10)

	m.run(context.Background(), prog, "video/mp4", 10)

	got := m.Status("job-1")
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "connection refused")

	_, _, complete, _ := objects.counts()
	assert.Equal(t, 1, complete, "the object itself was already assembled")
}

func TestRunCanceledBeforeStart(t *testing.T) {
	objects := &fakeObjectStore{}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 25)
	prog := queueJob(m, "job-1", path, 25, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.run(ctx, prog, "video/mp4", 10)

	got := m.Status("job-1")
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Equal(t, "upload canceled", got.ErrorMessage)

	create, _, _, abort := objects.counts()
	assert.Equal(t, 0, create)
	assert.Equal(t, 0, abort)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCancelMidTransfer(t *testing.T) {
	objects := &fakeObjectStore{headSize: 25}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 25)
	prog := queueJob(m, "job-1", path, 25, 10)

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels["job-1"] = cancel
	m.mu.Unlock()

	objects.onUpload = func(partNumber int32) {
		if partNumber == 1 {
			require.True(t, m.Cancel("job-1"))
		}
	}

	m.run(ctx, prog, "video/mp4", 10)

	got := m.Status("job-1")
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Equal(t, "upload canceled", got.ErrorMessage)

	_, upload, complete, abort := objects.counts()
	assert.Equal(t, 1, upload, "no further parts go up after cancellation")
	assert.Equal(t, 0, complete)
	assert.Equal(t, 1, abort)

	assert.False(t, m.Cancel("job-1"), "finished jobs cannot be canceled")
}

func TestSubmitLifecycle(t *testing.T) {
	const size = 6 * 1024 * 1024

	objects := &fakeObjectStore{headSize: size}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, size)
	jobID, objectKey, err := m.Submit(path, "clip.mp4", "video/mp4", 0)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	assert.Contains(t, objectKey, "uploads/")

	require.Eventually(t, func() bool {
		return m.Status(jobID).Status == domain.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	got := m.Status(jobID)
	assert.Equal(t, int32(1), got.TotalParts)
	assert.Equal(t, int64(size), got.TotalBytes)
	assert.Equal(t, int64(size), got.UploadedBytes)
	assert.Equal(t, float64(100), got.Progress)
	assert.NotEmpty(t, got.DownloadURL)
	assert.Equal(t, 1, st.saveCount())

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond, "temp file is deleted once the job finishes")
}

func TestSubmitValidation(t *testing.T) {
	objects := &fakeObjectStore{}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 1024)
	missing := filepath.Join(t.TempDir(), "missing.upload")

	cases := []struct {
		name        string
		tempPath    string
		filename    string
		contentType string
		partSize    int64
	}{
		{"missing filename", path, "", "video/mp4", 0},
		{"unsupported content type", path, "doc.pdf", "application/pdf", 0},
		{"missing temp file", missing, "clip.mp4", "video/mp4", 0},
		{"chunk below protocol minimum", path, "clip.mp4", "video/mp4", 1024},
		{"chunk above configured maximum", path, "clip.mp4", "video/mp4", 128 * 1024 * 1024},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jobID, _, err := m.Submit(tc.tempPath, tc.filename, tc.contentType, tc.partSize)
			require.Error(t, err)
			assert.Empty(t, jobID)
		})
	}

	create, _, _, _ := objects.counts()
	assert.Equal(t, 0, create, "rejected submissions never reach the store")
	assert.Equal(t, 0, m.registry.Len(), "rejected submissions are not registered")
}

func TestSubmitRejectsEmptyFile(t *testing.T) {
	m := newTestManager(t, testConfig(), &fakeObjectStore{}, &fakeStore{})

	path := writeTempFile(t, 0)
	_, _, err := m.Submit(path, "clip.mp4", "video/mp4", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestSubmitRejectsOversizeFile(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 512
	m := newTestManager(t, cfg, &fakeObjectStore{}, &fakeStore{})

	path := writeTempFile(t, 1024)
	_, _, err := m.Submit(path, "clip.mp4", "video/mp4", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max limit")
}

func TestSubmitAcceptsProtocolMinimumChunk(t *testing.T) {
	objects := &fakeObjectStore{headSize: 1024}
	st := &fakeStore{}
	m := newTestManager(t, testConfig(), objects, st)

	path := writeTempFile(t, 1024)
	jobID, _, err := m.Submit(path, "clip.mp4", "video/mp4", config.MinPartSizeBytes)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status(jobID).Status == domain.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStatusUnknownJob(t *testing.T) {
	m := newTestManager(t, testConfig(), &fakeObjectStore{}, &fakeStore{})

	got := m.Status("ghost")
	assert.Equal(t, "ghost", got.JobID)
	assert.Equal(t, domain.JobNotFound, got.Status)
}

func TestCancelUnknownJob(t *testing.T) {
	m := newTestManager(t, testConfig(), &fakeObjectStore{}, &fakeStore{})
	assert.False(t, m.Cancel("ghost"))
}

func TestTerminalJobsEvictedAfterRetention(t *testing.T) {
	objects := &fakeObjectStore{headSize: 25}
	st := &fakeStore{}
	cfg := testConfig()
	m := newTestManager(t, cfg, objects, st)

	path := writeTempFile(t, 25)
	prog := queueJob(m, "job-1", path, 25, 10)
	m.run(context.Background(), prog, "video/mp4", 10)
	require.Equal(t, domain.JobCompleted, m.Status("job-1").Status)

	assert.Equal(t, 0, m.registry.Sweep(time.Now()), "retention window still open")
	assert.Equal(t, 1, m.registry.Sweep(time.Now().Add(cfg.JobRetention+time.Minute)))
	assert.Equal(t, domain.JobNotFound, m.Status("job-1").Status)
}

func TestSubmitRunsInlineWhenSaturated(t *testing.T) {
	objects := &fakeObjectStore{headSize: 1024}
	st := &fakeStore{}

	var firstBlocked atomic.Bool
	blockFirst := make(chan struct{})
	started := make(chan struct{})
	objects.onUpload = func(int32) {
		if firstBlocked.CompareAndSwap(false, true) {
			close(started)
			<-blockFirst
		}
	}

	cfg := testConfig()
	cfg.JobWorkers = 1
	cfg.JobQueueDepth = 1
	m := newTestManager(t, cfg, objects, st)

	var unblockOnce sync.Once
	unblock := func() { unblockOnce.Do(func() { close(blockFirst) }) }
	t.Cleanup(unblock)

	jobA, _, err := m.Submit(writeTempFile(t, 1024), "a.mp4", "video/mp4", 0)
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first job never started")
	}

	jobB, _, err := m.Submit(writeTempFile(t, 1024), "b.mp4", "video/mp4", 0)
	require.NoError(t, err)

	jobC, _, err := m.Submit(writeTempFile(t, 1024), "c.mp4", "video/mp4", 0)
	require.NoError(t, err)

	assert.Equal(t, domain.JobCompleted, m.Status(jobC).Status,
		"with the worker busy and the queue full, the submission itself ran the job")
	assert.Equal(t, domain.JobUploading, m.Status(jobA).Status)
	assert.Equal(t, domain.JobQueued, m.Status(jobB).Status)

	unblock()
	require.Eventually(t, func() bool {
		return m.Status(jobA).Status == domain.JobCompleted &&
			m.Status(jobB).Status == domain.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, st.saveCount())
}
