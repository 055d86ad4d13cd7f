package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/config"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/domain"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/jobs"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/objectstore"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/store"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/temp"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/upload"
)

// maxFormMemoryBytes caps how much of a multipart form stays in memory;
// larger bodies spill to disk during parsing.
const maxFormMemoryBytes = 10 * 1024 * 1024

// Handler wires HTTP routes to the upload service and job manager.
type Handler struct {
	cfg    *config.Config
	svc    *upload.Service
	jobs   *jobs.Manager
	spool  *temp.Store
	logger *slog.Logger
}

// NewHandler creates a Handler instance.
func NewHandler(cfg *config.Config, svc *upload.Service, mgr *jobs.Manager, spool *temp.Store, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		svc:    svc,
		jobs:   mgr,
		spool:  spool,
		logger: logger,
	}
}

// Router returns a configured chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Route("/uploads", func(r chi.Router) {
		r.Post("/init", h.withAuth(h.handleInit))
		r.Post("/presign", h.withAuth(h.handlePresign))
		r.Get("/status", h.withAuth(h.handleUploadStatus))
		r.Post("/complete", h.withAuth(h.handleComplete))
		r.Post("/abort", h.withAuth(h.handleAbort))
	})
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.withAuth(h.handleSubmitJob))
		r.Get("/{jobID}", h.withAuth(h.handleJobStatus))
		r.Post("/{jobID}/cancel", h.withAuth(h.handleCancelJob))
	})
	r.Get("/files/download", h.withAuth(h.handleDownloadURL))

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	var req upload.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	res, err := h.svc.InitUpload(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req upload.PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	parts, err := h.svc.PresignParts(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

func (h *Handler) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("uploadId")
	objectKey := r.URL.Query().Get("objectKey")
	parts, err := h.svc.UploadStatus(r.Context(), uploadID, objectKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req upload.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	res, err := h.svc.CompleteUpload(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, objectstore.ErrObjectNotFound):
			status = http.StatusNotFound
		case errors.Is(err, store.ErrDuplicateObjectKey):
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req domain.AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.svc.AbortUpload(r.Context(), req.UploadID, req.ObjectKey); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func (h *Handler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemoryBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	var chunkSize int64
	if raw := r.FormValue("chunkSize"); raw != "" {
		chunkSize, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || chunkSize < 0 {
			writeError(w, http.StatusBadRequest, "invalid chunk size")
			return
		}
	}

	tempPath, _, err := h.spool.SaveUpload(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to spool upload")
		return
	}

	jobID, objectKey, err := h.jobs.Submit(tempPath, header.Filename, header.Header.Get("Content-Type"), chunkSize)
	if err != nil {
		_ = h.spool.Remove(tempPath)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, domain.SubmitJobResponse{
		JobID:     jobID,
		ObjectKey: objectKey,
		Message:   "upload started",
	})
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	prog := h.jobs.Status(jobID)
	status := http.StatusOK
	if prog.Status == domain.JobNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, jobStatusResponse(prog))
}

func (h *Handler) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if !h.jobs.Cancel(jobID) {
		writeError(w, http.StatusNotFound, "job not found or already finished")
		return
	}
	prog := h.jobs.Status(jobID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":  jobID,
		"status": prog.Status,
	})
}

func (h *Handler) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	objectKey := r.URL.Query().Get("objectKey")
	res, err := h.svc.DownloadURL(r.Context(), objectKey)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrFileNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func jobStatusResponse(p domain.JobProgress) domain.JobStatusResponse {
	return domain.JobStatusResponse{
		JobID:         p.JobID,
		Status:        p.Status,
		Progress:      p.Progress,
		UploadedParts: p.UploadedParts,
		TotalParts:    p.TotalParts,
		UploadedBytes: p.UploadedBytes,
		TotalBytes:    p.TotalBytes,
		ObjectKey:     p.ObjectKey,
		ErrorMessage:  p.ErrorMessage,
		DownloadURL:   p.DownloadURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
