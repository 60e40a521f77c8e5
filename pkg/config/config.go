package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// maxVideoDuration это предел длины записи, конфиг может его только уменьшить.
const maxVideoDuration = 20 * time.Second

type Config struct {
	Server     ServerConfig
	S3         S3Config
	Upload     UploadConfig
	Capture    CaptureConfig
	Spool      SpoolConfig
	MediaStore MediaStoreConfig
	Backend    BackendConfig
	Catalog    CatalogConfig
	Redis      RedisConfig
	NATS       NATSConfig
	CloudWatch CloudWatchConfig
	Host       HostConfig
	Security   SecurityConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port        string
	ReadTimeout time.Duration
	// WriteTimeout покрывает последний шаг съемки: ответ уходит после загрузки батча.
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
	URLMode         string
	PresignedTTL    time.Duration
}

type UploadConfig struct {
	ItemTimeout  time.Duration
	SignedURLTTL time.Duration
}

type CaptureConfig struct {
	MaxVideoDuration time.Duration
	MaxSessions      int
	SessionMaxAge    time.Duration
	CleanupInterval  time.Duration
}

type SpoolConfig struct {
	Dir           string
	MaxMediaBytes int64
	MinFreeBytes  uint64
}

type MediaStoreConfig struct {
	Path string
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CatalogConfig выбирает хранилище каталога загруженных медиа.
type CatalogConfig struct {
	Driver string // "", "dynamodb" или "postgres"

	DynamoTable     string
	DynamoRegion    string
	DynamoEndpoint  string
	AccessKeyID     string
	SecretAccessKey string

	Postgres DatabaseConfig
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LoadsTTL time.Duration
}

type NATSConfig struct {
	Enabled bool
	URL     string
	Stream  string
}

type CloudWatchConfig struct {
	MetricsEnabled  bool
	LogsEnabled     bool
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Namespace       string
	LogGroup        string
	LogStream       string
	FlushInterval   time.Duration
}

type HostConfig struct {
	CollectionInterval time.Duration
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level   string
	Service string
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	p := &parser{}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "securecam"
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     p.duration("SERVER_READ_TIMEOUT", "2m"),
			WriteTimeout:    p.duration("SERVER_WRITE_TIMEOUT", "5m"),
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: p.duration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", true),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "loads"),
			URLMode:         getEnv("S3_URL_MODE", "presigned"),
			PresignedTTL:    p.duration("S3_PRESIGNED_TTL", "1h"),
		},
		Upload: UploadConfig{
			ItemTimeout:  p.duration("UPLOAD_ITEM_TIMEOUT", "2m"),
			SignedURLTTL: p.duration("UPLOAD_SIGNED_URL_TTL", "1h"),
		},
		Capture: CaptureConfig{
			MaxVideoDuration: p.duration("CAPTURE_MAX_VIDEO_DURATION", "20s"),
			MaxSessions:      p.integer("CAPTURE_MAX_SESSIONS", "100"),
			SessionMaxAge:    p.duration("CAPTURE_SESSION_MAX_AGE", "2h"),
			CleanupInterval:  p.duration("CAPTURE_CLEANUP_INTERVAL", "5m"),
		},
		Spool: SpoolConfig{
			Dir:           getEnv("SPOOL_DIR", "./data/spool"),
			MaxMediaBytes: int64(p.integer("SPOOL_MAX_MEDIA_MB", "200")) * 1024 * 1024,
			MinFreeBytes:  uint64(p.integer("SPOOL_MIN_FREE_MB", "512")) * 1024 * 1024,
		},
		MediaStore: MediaStoreConfig{
			Path: getEnv("MEDIA_STORE_PATH", "./data/media.db"),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_BASE_URL", ""),
			Timeout: p.duration("BACKEND_TIMEOUT", "10s"),
		},
		Catalog: CatalogConfig{
			Driver:          strings.ToLower(getEnv("CATALOG_DRIVER", "")),
			DynamoTable:     getEnv("DYNAMODB_TABLE", "securecam-media"),
			DynamoRegion:    getEnv("DYNAMODB_REGION", getEnv("AWS_REGION", "us-east-1")),
			DynamoEndpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Postgres: DatabaseConfig{
				Host:            getEnv("DB_HOST", "localhost"),
				Port:            getEnv("DB_PORT", "5432"),
				User:            getEnv("DB_USER", "postgres"),
				Password:        getEnv("DB_PASSWORD", "postgres"),
				Database:        getEnv("DB_NAME", "securecam"),
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 10 * time.Minute,
			},
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.integer("REDIS_DB", "0"),
			LoadsTTL: p.duration("REDIS_LOADS_TTL", "30s"),
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Stream:  getEnv("NATS_STREAM", "SECURECAM"),
		},
		CloudWatch: CloudWatchConfig{
			MetricsEnabled:  getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			LogsEnabled:     getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			Region:          getEnv("CLOUDWATCH_REGION", getEnv("AWS_REGION", "us-east-1")),
			Endpoint:        getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Namespace:       getEnv("CLOUDWATCH_NAMESPACE", "SecureCam"),
			LogGroup:        getEnv("CLOUDWATCH_LOG_GROUP", "/securecam/api"),
			LogStream:       getEnv("CLOUDWATCH_LOG_STREAM", hostname),
			FlushInterval:   p.duration("CLOUDWATCH_FLUSH_INTERVAL", "10s"),
		},
		Host: HostConfig{
			CollectionInterval: p.duration("HOST_METRICS_INTERVAL", "30s"),
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			RPS:     p.float("RATE_LIMIT_RPS", "10"),
			Burst:   p.integer("RATE_LIMIT_BURST", "20"),
		},
		Log: LogConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Service: getEnv("SERVICE_NAME", "securecam-api"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}
	switch c.Catalog.Driver {
	case "", "dynamodb", "postgres":
	default:
		return fmt.Errorf("unsupported CATALOG_DRIVER %q", c.Catalog.Driver)
	}
	if c.Capture.MaxVideoDuration <= 0 || c.Capture.MaxVideoDuration > maxVideoDuration {
		return fmt.Errorf("CAPTURE_MAX_VIDEO_DURATION must be between 1s and %s", maxVideoDuration)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// parser запоминает первую ошибку разбора, чтобы Load не проверял каждое поле отдельно.
type parser struct {
	err error
}

func (p *parser) duration(key, defaultValue string) time.Duration {
	value, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return value
}

func (p *parser) integer(key, defaultValue string) int {
	value, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return value
}

func (p *parser) float(key, defaultValue string) float64 {
	value, err := strconv.ParseFloat(getEnv(key, defaultValue), 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
