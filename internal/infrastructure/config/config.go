package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Landlord  DatabaseConfig
	Router    RouterConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Fiscal    FiscalConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
	// BaseDomain is the apex under which tenant subdomains resolve,
	// e.g. "facturo.example" makes "acme.facturo.example" resolve tenant acme
	BaseDomain string
}

// DatabaseConfig holds the landlord registry database settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RouterConfig holds connection-router settings for tenant datastores
type RouterConfig struct {
	MaxHandles    int           // bound on pooled tenant handles
	IdleTTL       time.Duration // idle handle eviction
	SweepInterval time.Duration // background eviction cadence
	MaxRetries    int           // transient dial retries
	RetryBackoff  time.Duration // initial backoff, doubled per attempt
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig holds opaque-credential settings
type AuthConfig struct {
	CredentialTTL time.Duration // lifetime of issued bearer tokens, 0 = no expiry
	BcryptCost    int
}

// FiscalConfig holds fiscal engine settings
type FiscalConfig struct {
	SeriesReset string // "yearly" or "never"
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
	// PublicRoutes is the explicit allow-list of paths exempt from tenant
	// resolution (credential issuance, health checks)
	PublicRoutes []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with FACTURO_ prefix (e.g., FACTURO_LANDLORD_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("FACTURO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:       v.GetString("app.name"),
			Env:        v.GetString("app.env"),
			Port:       v.GetString("app.port"),
			BaseDomain: v.GetString("app.base_domain"),
		},
		Landlord: DatabaseConfig{
			Host:            v.GetString("landlord.host"),
			Port:            v.GetInt("landlord.port"),
			User:            v.GetString("landlord.user"),
			Password:        v.GetString("landlord.password"),
			DBName:          v.GetString("landlord.dbname"),
			SSLMode:         v.GetString("landlord.sslmode"),
			MaxOpenConns:    v.GetInt("landlord.max_open_conns"),
			MaxIdleConns:    v.GetInt("landlord.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("landlord.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("landlord.conn_max_idle_time"),
		},
		Router: RouterConfig{
			MaxHandles:    v.GetInt("router.max_handles"),
			IdleTTL:       v.GetDuration("router.idle_ttl"),
			SweepInterval: v.GetDuration("router.sweep_interval"),
			MaxRetries:    v.GetInt("router.max_retries"),
			RetryBackoff:  v.GetDuration("router.retry_backoff"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			CredentialTTL: v.GetDuration("auth.credential_ttl"),
			BcryptCost:    v.GetInt("auth.bcrypt_cost"),
		},
		Fiscal: FiscalConfig{
			SeriesReset: v.GetString("fiscal.series_reset"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			PublicRoutes:      v.GetStringSlice("http.public_routes"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "facturo-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Landlord.Host == "" {
		cfg.Landlord.Host = "localhost"
	}
	if cfg.Landlord.Port == 0 {
		cfg.Landlord.Port = 5432
	}
	if cfg.Landlord.User == "" {
		cfg.Landlord.User = "postgres"
	}
	if cfg.Landlord.DBName == "" {
		cfg.Landlord.DBName = "facturo_landlord"
	}
	if cfg.Landlord.SSLMode == "" {
		cfg.Landlord.SSLMode = "disable"
	}
	if cfg.Landlord.MaxOpenConns == 0 {
		cfg.Landlord.MaxOpenConns = 25
	}
	if cfg.Landlord.MaxIdleConns == 0 {
		cfg.Landlord.MaxIdleConns = 5
	}
	if cfg.Landlord.ConnMaxLifetime == 0 {
		cfg.Landlord.ConnMaxLifetime = 60
	}
	if cfg.Landlord.ConnMaxIdleTime == 0 {
		cfg.Landlord.ConnMaxIdleTime = 30
	}
	if cfg.Router.MaxHandles == 0 {
		cfg.Router.MaxHandles = 64
	}
	if cfg.Router.IdleTTL == 0 {
		cfg.Router.IdleTTL = 15 * time.Minute
	}
	if cfg.Router.SweepInterval == 0 {
		cfg.Router.SweepInterval = time.Minute
	}
	if cfg.Router.MaxRetries == 0 {
		cfg.Router.MaxRetries = 2
	}
	if cfg.Router.RetryBackoff == 0 {
		cfg.Router.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Auth.CredentialTTL == 0 {
		cfg.Auth.CredentialTTL = 12 * time.Hour
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 10
	}
	if cfg.Fiscal.SeriesReset == "" {
		cfg.Fiscal.SeriesReset = "yearly"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 5 << 20 // 5MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// CORS origins get no wildcard fallback: an empty list allows no
	// cross-origin requests until explicitly configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if len(cfg.HTTP.PublicRoutes) == 0 {
		cfg.HTTP.PublicRoutes = []string{"/health", "/api/v1/auth/login", "/api/v1/auth/register"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "facturo-backend"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Landlord.MaxOpenConns <= 0 {
		return fmt.Errorf("landlord.max_open_conns must be positive")
	}
	if c.Landlord.MaxIdleConns < 0 {
		return fmt.Errorf("landlord.max_idle_conns cannot be negative")
	}
	if c.Landlord.MaxIdleConns > c.Landlord.MaxOpenConns {
		return fmt.Errorf("landlord.max_idle_conns (%d) cannot exceed landlord.max_open_conns (%d)",
			c.Landlord.MaxIdleConns, c.Landlord.MaxOpenConns)
	}
	if c.Router.MaxHandles <= 0 {
		return fmt.Errorf("router.max_handles must be positive")
	}
	if c.Router.MaxRetries < 0 {
		return fmt.Errorf("router.max_retries cannot be negative")
	}
	if c.Fiscal.SeriesReset != "yearly" && c.Fiscal.SeriesReset != "never" {
		return fmt.Errorf("fiscal.series_reset must be 'yearly' or 'never', got %q", c.Fiscal.SeriesReset)
	}

	if c.App.Env == "production" {
		if c.Landlord.Password == "" {
			return fmt.Errorf("landlord.password is required in production")
		}
		if c.Landlord.SSLMode == "disable" {
			return fmt.Errorf("landlord.sslmode cannot be 'disable' in production")
		}
		if c.App.BaseDomain == "" {
			return fmt.Errorf("app.base_domain is required in production for subdomain tenant resolution")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// SeriesResetPolicy returns the configured reset policy string, validated
// at load time
func (c *Config) SeriesResetPolicy() string {
	return c.Fiscal.SeriesReset
}

// DSN returns the landlord connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the host:port address for the Redis config
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
