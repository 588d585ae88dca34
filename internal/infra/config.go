package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	DBMaxConns    int
	JWTSecret     string
	InternalToken string
	GeoIPDBPath   string
	DefaultLocale string
	CORSOrigins   []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	StorageDriver    string
	StoragePath      string
	StorageBaseURL   string
	S3Endpoint       string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	S3UseSSL         bool
	S3PublicURL      string
	BucketImages     string
	BucketVideos     string
	BucketAudios     string
	BucketTemp       string
	DownloadMaxBytes int64

	ReplicateAPIToken  string
	ReplicateBaseURL   string
	ReplicateRateLimit int
	ModelImage         string
	ModelVideo         string
	ModelAudio         string
	ModelLipSync       string
	ModelFaceSwap      string

	MaxActiveJobs     int
	PollInterval      time.Duration
	WorkerConcurrency int
	WorkerIdleWait    time.Duration
	ClaimLease        time.Duration
	StaleAfter        time.Duration
	SweepInterval     time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		InternalToken: os.Getenv("INTERNAL_TOKEN"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		CORSOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", "filesystem")),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", ""),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3Region:         os.Getenv("S3_REGION"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:         getEnvBool("S3_USE_SSL", true),
		S3PublicURL:      os.Getenv("S3_PUBLIC_URL"),
		BucketImages:     getEnv("BUCKET_IMAGES", "generated-images"),
		BucketVideos:     getEnv("BUCKET_VIDEOS", "generated-videos"),
		BucketAudios:     getEnv("BUCKET_AUDIOS", "generated-audios"),
		BucketTemp:       getEnv("BUCKET_TEMP", "temp-inputs"),
		DownloadMaxBytes: int64(getEnvInt("DOWNLOAD_MAX_MB", 200)) << 20,

		ReplicateAPIToken:  os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:   getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateRateLimit: getEnvInt("REPLICATE_RATE_LIMIT_PER_SECOND", 5),
		ModelImage:         getEnv("MODEL_IMAGE", "black-forest-labs/flux-schnell"),
		ModelVideo:         getEnv("MODEL_VIDEO", "kwaivgi/kling-v1.6-standard"),
		ModelAudio:         getEnv("MODEL_AUDIO", "meta/musicgen"),
		ModelLipSync:       getEnv("MODEL_LIP_SYNC", "kwaivgi/kling-lip-sync"),
		ModelFaceSwap:      getEnv("MODEL_FACE_SWAP", "cdingram/face-swap"),

		MaxActiveJobs:     getEnvInt("MAX_ACTIVE_JOBS", 5),
		PollInterval:      getEnvDuration("PROVIDER_POLL_INTERVAL", 10*time.Second),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerIdleWait:    getEnvDuration("WORKER_IDLE_WAIT", 2*time.Second),
		ClaimLease:        getEnvDuration("WORKER_CLAIM_LEASE", 15*time.Minute),
		StaleAfter:        getEnvDuration("STALE_JOB_THRESHOLD", 10*time.Minute),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}

	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = fmt.Sprintf("http://localhost:%s/static", port)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.StorageDriver {
	case "filesystem":
	case "s3":
		if cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT is required when STORAGE_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.MaxActiveJobs <= 0 {
		cfg.MaxActiveJobs = 5
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
