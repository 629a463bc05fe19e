package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser         string
	DBPassword     string
	DBHost         string
	DBPort         string
	DBName         string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	JWTSecret      string
	JWTExpiryHours int
	ServerPort     string
	LogLevel       string
	AppEnv         string // development/production
	KeyPrefix      string // Redis Key 前缀

	RateLimitMax      int
	RateLimitWindow   time.Duration
	RoomTTL           time.Duration
	DocFlushDebounce  time.Duration // 0 表示每次变更后立即写回
	DocFlushRetry     time.Duration
	DocLeaseTTL       time.Duration
	StoreTimeout      time.Duration
	WSMessagesPerSec  float64
	CORSAllowedOrigin string
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBUser:            getenv("DB_USER"),
		DBPassword:        getenv("DB_PASSWORD"),
		DBHost:            getenv("DB_HOST"),
		DBPort:            getenv("DB_PORT"),
		DBName:            getenv("DB_NAME"),
		RedisAddr:         getenv("REDIS_ADDR"),
		RedisPassword:     getenv("REDIS_PASSWORD"),
		JWTSecret:         getenv("JWT_SECRET"),
		ServerPort:        getenv("SERVER_PORT"),
		LogLevel:          getenv("LOG_LEVEL"),
		AppEnv:            getenv("APP_ENV"),
		KeyPrefix:         getenv("REDIS_KEY_PREFIX"),
		CORSAllowedOrigin: getenv("CORS_ALLOWED_ORIGIN"),
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ce:"
	}
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = "http://localhost:3000"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	p := envParser{getenv: getenv}
	cfg.RedisDB = p.int("REDIS_DB", 0)
	cfg.JWTExpiryHours = p.int("JWT_EXPIRY_HOURS", 24)
	cfg.RateLimitMax = p.int("RATE_LIMIT_MAX", 100)
	cfg.RateLimitWindow = time.Duration(p.int("RATE_LIMIT_WINDOW_SECONDS", 1)) * time.Second
	cfg.RoomTTL = time.Duration(p.int("ROOM_TTL_DAYS", 30)) * 24 * time.Hour
	cfg.DocFlushDebounce = time.Duration(p.int("DOC_FLUSH_DEBOUNCE_MS", 2000)) * time.Millisecond
	cfg.DocFlushRetry = time.Duration(p.int("DOC_FLUSH_RETRY_MS", 500)) * time.Millisecond
	cfg.DocLeaseTTL = time.Duration(p.int("DOC_LEASE_TTL_SECONDS", 30)) * time.Second
	cfg.StoreTimeout = time.Duration(p.int("STORE_TIMEOUT_SECONDS", 5)) * time.Second
	cfg.WSMessagesPerSec = p.float("WS_MESSAGES_PER_SECOND", 30)
	if p.err != nil {
		return nil, p.err
	}

	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if cfg.DocFlushDebounce < 0 {
		return nil, fmt.Errorf("DOC_FLUSH_DEBOUNCE_MS cannot be negative")
	}
	if cfg.DocFlushRetry <= 0 {
		return nil, fmt.Errorf("DOC_FLUSH_RETRY_MS must be positive")
	}
	if cfg.DocLeaseTTL < 3*time.Second {
		return nil, fmt.Errorf("DOC_LEASE_TTL_SECONDS must be at least 3")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// envParser 记录第一个解析错误
type envParser struct {
	getenv func(string) string
	err    error
}

func (p *envParser) int(key string, def int) int {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return v
}

func (p *envParser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("environment variable %s must be a number: %w", key, err)
	}
	return v
}
