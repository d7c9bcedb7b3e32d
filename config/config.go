package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Alipay   AlipayConfig
	Poll     PollConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// AlipayConfig holds the open-platform credentials. Keys are PEM encoded.
// When AppID or PrivateKey is empty outside production the stub gateway is used.
type AlipayConfig struct {
	AppID      string
	PrivateKey string
	PublicKey  string
	GatewayURL string
	NotifyURL  string
	Timeout    time.Duration
	StubSecret string
}

type PollConfig struct {
	Enabled     bool
	Interval    time.Duration
	TickTimeout time.Duration
	MaxDuration time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level       string
	Development bool
}

// UseStubGateway reports whether the in-process gateway should replace the real one.
func (c *Config) UseStubGateway() bool {
	if c.Server.Env == "production" {
		return false
	}
	return c.Alipay.AppID == "" || c.Alipay.PrivateKey == ""
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8099"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "storefront:storefront@tcp(localhost:3306)/storefront?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", "change-me-refresh-in-production"),
			AccessExpiry:  getEnvDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
			RefreshExpiry: getEnvDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			Issuer:        "storefront",
		},
		Alipay: AlipayConfig{
			AppID:      os.Getenv("ALIPAY_APP_ID"),
			PrivateKey: os.Getenv("ALIPAY_PRIVATE_KEY"),
			PublicKey:  os.Getenv("ALIPAY_PUBLIC_KEY"),
			GatewayURL: getEnv("ALIPAY_GATEWAY_URL", "https://openapi.alipay.com/gateway.do"),
			NotifyURL:  getEnv("ALIPAY_NOTIFY_URL", "http://localhost:8099/api/v1/payments/notify"),
			Timeout:    getEnvDuration("ALIPAY_TIMEOUT", 15*time.Second),
			StubSecret: getEnv("STUB_GATEWAY_SECRET", "dev-notify-secret"),
		},
		Poll: PollConfig{
			Enabled:     getEnv("POLL_ENABLED", "true") == "true",
			Interval:    getEnvDuration("POLL_INTERVAL", 4*time.Second),
			TickTimeout: getEnvDuration("POLL_TICK_TIMEOUT", 10*time.Second),
			MaxDuration: getEnvDuration("POLL_MAX_DURATION", 15*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_ENTITLEMENT_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_ORDER_TOPIC", "order-settled"),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "development") != "production",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
