package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	CORSOrigin string
	AdminToken string

	SessionTTL       time.Duration
	SnapshotFile     string
	SnapshotInterval time.Duration

	DatabaseURL   string
	MigrationsDir string

	RedisURL string

	// MinIO artifact storage; falls back to ArtifactsDir when endpoint is empty.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	ArtifactsDir   string

	MeiliURL       string
	MeiliMasterKey string

	// Preview preparation
	RenderPreviews bool
	FetchTimeout   time.Duration
	MaxFetchBytes  int64
	PrepareWorkers int
}

func Load() Config {
	return Config{
		Addr:       getenv("API_ADDR", ":8790"),
		CORSOrigin: getenv("REVIEW_CORS_ORIGIN", "*"),
		AdminToken: getenv("REVIEW_ADMIN_TOKEN", ""),

		SessionTTL:       time.Duration(getenvInt("REVIEW_SESSION_TTL_HOURS", 24)) * time.Hour,
		SnapshotFile:     getenv("REVIEW_SNAPSHOT_FILE", "./data/sessions.json"),
		SnapshotInterval: time.Duration(getenvInt("REVIEW_SNAPSHOT_INTERVAL_SECONDS", 60)) * time.Second,

		DatabaseURL:   getenv("DATABASE_URL", ""),
		MigrationsDir: getenv("REVIEW_MIGRATIONS_DIR", "./db/migrations"),

		RedisURL: getenv("REDIS_URL", ""),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "review-previews"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		ArtifactsDir:   getenv("REVIEW_ARTIFACTS_DIR", "./data/artifacts"),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		RenderPreviews: getenvBool("REVIEW_RENDER_PREVIEWS", false),
		FetchTimeout:   time.Duration(getenvInt("REVIEW_FETCH_TIMEOUT_SECONDS", 20)) * time.Second,
		MaxFetchBytes:  int64(getenvInt("REVIEW_MAX_FETCH_BYTES", 16<<20)),
		PrepareWorkers: getenvInt("REVIEW_PREPARE_WORKERS", 8),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
