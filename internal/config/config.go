package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort                 = "8080"
	defaultPartSizeBytes  int64 = 8 * 1024 * 1024         // 8MB
	defaultMaxPartSizeBytes     = 64 * 1024 * 1024        // 64MB
	defaultMaxUploadBytes       = 10 * 1024 * 1024 * 1024 // 10GB
	defaultTempDir              = "tmp/uploads"
	defaultContentTypes         = "video/"
	defaultRegion               = "us-east-1"
	defaultMaxPresignBatch      = 100
	defaultJobWorkers           = 4
	defaultJobQueueDepth        = 16
)

// MinPartSizeBytes is the smallest part the object-store protocol accepts
// for every part except the last one.
const MinPartSizeBytes int64 = 5 * 1024 * 1024

// Config captures server runtime configuration.
type Config struct {
	Port        string
	DatabaseURL string
	APIKey      string

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	AcceptedContentTypes []string
	MaxUploadBytes       int64
	DefaultPartSizeBytes int64
	MaxPartSizeBytes     int64
	PresignExpiry        time.Duration
	DownloadExpiry       time.Duration
	MaxPresignBatch      int

	JobWorkers       int
	JobQueueDepth    int
	JobRetention     time.Duration
	JobSweepInterval time.Duration
	TempDir          string
}

// Load reads environment variables into a Config structure.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("UPLOAD_SERVER_PORT", defaultPort),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		APIKey:      os.Getenv("UPLOAD_SERVICE_API_KEY"),

		S3Endpoint:     strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		S3Region:       getEnv("S3_REGION", defaultRegion),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3UsePathStyle: parseBool("S3_USE_PATH_STYLE", true),

		AcceptedContentTypes: splitList(getEnv("UPLOAD_ACCEPTED_CONTENT_TYPES", defaultContentTypes)),
		MaxUploadBytes:       parseInt64("UPLOAD_MAX_SIZE", defaultMaxUploadBytes),
		DefaultPartSizeBytes: parseInt64("UPLOAD_PART_SIZE", defaultPartSizeBytes),
		MaxPartSizeBytes:     parseInt64("UPLOAD_MAX_PART_SIZE", defaultMaxPartSizeBytes),
		PresignExpiry:        parseDuration("UPLOAD_PRESIGN_EXPIRY", 15*time.Minute),
		DownloadExpiry:       parseDuration("UPLOAD_DOWNLOAD_EXPIRY", 15*time.Minute),
		MaxPresignBatch:      int(parseInt64("UPLOAD_MAX_PRESIGN_BATCH", defaultMaxPresignBatch)),

		JobWorkers:       int(parseInt64("UPLOAD_JOB_WORKERS", defaultJobWorkers)),
		JobQueueDepth:    int(parseInt64("UPLOAD_JOB_QUEUE_DEPTH", defaultJobQueueDepth)),
		JobRetention:     parseDuration("UPLOAD_JOB_RETENTION", 10*time.Minute),
		JobSweepInterval: parseDuration("UPLOAD_JOB_SWEEP_INTERVAL", 30*time.Second),
		TempDir:          getEnv("UPLOAD_TEMP_DIR", defaultTempDir),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("UPLOAD_SERVICE_API_KEY is required")
	}
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3_BUCKET is required")
	}
	if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return nil, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}

	if cfg.DefaultPartSizeBytes < MinPartSizeBytes {
		cfg.DefaultPartSizeBytes = defaultPartSizeBytes
	}
	if cfg.MaxPartSizeBytes < cfg.DefaultPartSizeBytes {
		cfg.MaxPartSizeBytes = cfg.DefaultPartSizeBytes
	}
	if cfg.MaxPresignBatch <= 0 {
		cfg.MaxPresignBatch = defaultMaxPresignBatch
	}
	if cfg.JobWorkers <= 0 {
		cfg.JobWorkers = defaultJobWorkers
	}
	if cfg.JobQueueDepth < 0 {
		cfg.JobQueueDepth = defaultJobQueueDepth
	}
	if cfg.JobSweepInterval <= 0 {
		cfg.JobSweepInterval = 30 * time.Second
	}
	if len(cfg.AcceptedContentTypes) == 0 {
		cfg.AcceptedContentTypes = []string{defaultContentTypes}
	}
	if cfg.TempDir == "" {
		cfg.TempDir = defaultTempDir
	}
	if !filepath.IsAbs(cfg.TempDir) {
		cfg.TempDir = filepath.Join(os.TempDir(), cfg.TempDir)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func parseInt64(key string, fallback int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return dur
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(p)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
