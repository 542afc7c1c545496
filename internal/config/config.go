package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Replica  ReplicaConfig
	Vector   VectorConfig
	Ai       AIConfig
	Relay    RelayConfig
	Retry    RetryConfig
	Reaper   ReaperConfig
	Worker   WorkerConfig
	Sync     SyncConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WsLogFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
	InstanceID         string
}

type DatabaseConfig struct {
	Connection       string
	LedgerConnection string // empty means the ledgers share the primary database
}

type ReplicaConfig struct {
	Enabled bool
	Path    string
}

type VectorConfig struct {
	Dimension int // 384 for short-text models, 1024 for the high-fidelity one
}

type AIConfig struct {
	EmbeddingProvider string // "ollama" or "gemini"
	OllamaBaseURL     string
	OllamaModel       string
	GeminiAPIKey      string
	MaxInputChars     int
}

type RelayConfig struct {
	BaseURL   string
	Resource  string
	Transport string // "http", "nats" or "redis"
	Timeout   time.Duration
	Port      string   // relay binary only
	Webhooks  []string // relay binary only
}

type RetryConfig struct {
	Interval       time.Duration
	BatchSize      int
	DefaultRetries int
}

type ReaperConfig struct {
	Interval  time.Duration
	Retention time.Duration
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type WorkerConfig struct {
	Size       int
	QueueDepth int
}

type SyncConfig struct {
	ReadSource string // "primary" or "replica"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			WsLogFilePath:      getEnv("WS_LOG_FILE_PATH", "logs/websocket.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			InstanceID:         getEnv("INSTANCE_ID", hostname()),
		},
		Database: DatabaseConfig{
			Connection:       getEnv("DB_CONNECTION_STRING", ""),
			LedgerConnection: getEnv("LEDGER_DB_CONNECTION_STRING", ""),
		},
		Replica: ReplicaConfig{
			Enabled: getEnvAsBool("REPLICA_ENABLED", true),
			Path:    getEnv("REPLICA_SQLITE_PATH", "data/replica.db"),
		},
		Vector: VectorConfig{
			Dimension: getEnvAsInt("VECTOR_DIMENSION", 384),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "all-minilm"),
			GeminiAPIKey:      getEnv("GOOGLE_GEMINI_API_KEY", ""),
			MaxInputChars:     getEnvAsInt("EMBEDDING_MAX_CHARS", 2000),
		},
		Relay: RelayConfig{
			BaseURL:   getEnv("RELAY_BASE_URL", "http://localhost:4000"),
			Resource:  getEnv("RELAY_RESOURCE", "records"),
			Transport: getEnv("RELAY_TRANSPORT", "http"),
			Timeout:   getEnvAsDuration("RELAY_TIMEOUT", 5*time.Second),
			Port:      getEnv("RELAY_PORT", "4000"),
			Webhooks:  getEnvAsList("RELAY_WEBHOOKS"),
		},
		Retry: RetryConfig{
			Interval:       getEnvAsDuration("RETRY_DRAIN_INTERVAL", time.Minute),
			BatchSize:      getEnvAsInt("RETRY_DRAIN_BATCH_SIZE", 50),
			DefaultRetries: getEnvAsInt("RETRY_DEFAULT_RETRIES", 3),
		},
		Reaper: ReaperConfig{
			Interval:  getEnvAsDuration("REAPER_INTERVAL", time.Hour),
			Retention: getEnvAsDuration("REAPER_RETENTION", time.Hour),
			Endpoint:  getEnv("BLOB_ENDPOINT", ""),
			Bucket:    getEnv("BLOB_BUCKET", ""),
			AccessKey: getEnv("BLOB_ACCESS_KEY", ""),
			SecretKey: getEnv("BLOB_SECRET_KEY", ""),
			Region:    getEnv("BLOB_REGION", "us-east-1"),
			UseSSL:    getEnvAsBool("BLOB_USE_SSL", true),
		},
		Worker: WorkerConfig{
			Size:       getEnvAsInt("WORKER_POOL_SIZE", 8),
			QueueDepth: getEnvAsInt("WORKER_QUEUE_DEPTH", 64),
		},
		Sync: SyncConfig{
			ReadSource: getEnv("SYNC_READ_SOURCE", "primary"),
		},
	}
}

// LedgerDSN falls back to the primary DSN when no dedicated ledger database is configured.
func (c *Config) LedgerDSN() string {
	if c.Database.LedgerConnection != "" {
		return c.Database.LedgerConnection
	}
	return c.Database.Connection
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "notesync"
}
