package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	CORS          CORSConfig
	FeatureFlags  FeatureFlagsConfig
	Events        EventsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EDGEUP_APP_ENV" required:"true"`
	Port         string `envconfig:"EDGEUP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"EDGEUP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EDGEUP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	Driver string `envconfig:"EDGEUP_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"EDGEUP_DB_DSN" default:"edgeup.db"`

	MaxOpenConns    int           `envconfig:"EDGEUP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EDGEUP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EDGEUP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EDGEUP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case DBDriverSQLite, DBDriverPostgres:
	default:
		return fmt.Errorf("unsupported db driver %q", db.Driver)
	}
	if db.DSN == "" {
		return fmt.Errorf("%s is required", EnvDBDSN)
	}
	return nil
}

// NormalizedDriver returns the lowercase driver name.
func (db DBConfig) NormalizedDriver() string {
	return strings.ToLower(strings.TrimSpace(db.Driver))
}

type RedisConfig struct {
	URL          string        `envconfig:"EDGEUP_REDIS_URL"`
	Address      string        `envconfig:"EDGEUP_REDIS_ADDR"`
	Password     string        `envconfig:"EDGEUP_REDIS_PASSWORD"`
	DB           int           `envconfig:"EDGEUP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EDGEUP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EDGEUP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EDGEUP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EDGEUP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EDGEUP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"EDGEUP_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"EDGEUP_JWT_ISSUER" default:"edgeup"`
	ExpirationMinutes      int    `envconfig:"EDGEUP_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"EDGEUP_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"EDGEUP_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"EDGEUP_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"EDGEUP_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"EDGEUP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"EDGEUP_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"EDGEUP_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"EDGEUP_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"EDGEUP_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"EDGEUP_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"EDGEUP_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"EDGEUP_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"EDGEUP_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	MaxAgeSeconds  int      `envconfig:"EDGEUP_CORS_MAX_AGE_SECONDS" default:"300"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EDGEUP_AUTO_MIGRATE" default:"false"`
}

type EventsConfig struct {
	ClientBuffer      int           `envconfig:"EDGEUP_EVENTS_CLIENT_BUFFER" default:"16"`
	HeartbeatInterval time.Duration `envconfig:"EDGEUP_EVENTS_HEARTBEAT_INTERVAL" default:"25s"`
}
