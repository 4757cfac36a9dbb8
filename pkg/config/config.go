package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for sentinel-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Auth       AuthConfig      `yaml:"auth"`
	Database   DatabaseConfig  `yaml:"database"`
	Redis      RedisConfig     `yaml:"redis"`
	Mail       MailConfig      `yaml:"mail"`
	MLService  MLServiceConfig `yaml:"ml_service"`
	Storage    StorageConfig   `yaml:"storage"`
	Dispatcher DispatchConfig  `yaml:"dispatcher"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// Audience, when non-empty, must be present in every token's aud claim.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:"sentinel"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"sentinel"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sentinel"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration for the realtime event channel.
// Leave Host empty to disable event publishing.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Channel  string `yaml:"channel" env:"REDIS_EVENT_CHANNEL" env-default:"sentinel:events"`
}

// MailConfig holds SMTP transport settings and the threat alert policy.
type MailConfig struct {
	Host        string `yaml:"host" env:"SMTP_HOST" env-default:"localhost"`
	Port        int    `yaml:"port" env:"SMTP_PORT" env-default:"25"`
	Username    string `yaml:"username" env:"SMTP_USERNAME" env-default:""`
	Password    string `yaml:"-" env:"SMTP_PASSWORD"` // Secret - not in YAML
	From        string `yaml:"from" env:"MAIL_FROM" env-default:"alerts@sentinelai.local"`
	RequireTLS  bool   `yaml:"require_tls" env:"SMTP_REQUIRE_TLS" env-default:"false"`
	SendTimeout int    `yaml:"send_timeout_seconds" env:"SMTP_TIMEOUT_SECONDS" env-default:"15"`

	ThreatAlert ThreatAlertConfig `yaml:"threat_alert"`
}

// ThreatAlertConfig decides which recorded threats produce an alert e-mail.
type ThreatAlertConfig struct {
	Enabled     bool   `yaml:"enabled" env:"THREAT_ALERT_ENABLED" env-default:"true"`
	MinSeverity int    `yaml:"min_severity" env:"THREAT_ALERT_MIN_SEVERITY" env-default:"7"`
	ToStr       string `yaml:"to" env:"THREAT_ALERT_EMAIL" env-default:""` // comma-separated

	// To is parsed from ToStr: trimmed, blanks dropped.
	To []string `yaml:"-"`
}

// MLServiceConfig points at the external document extraction and learning service.
type MLServiceConfig struct {
	BaseURL        string `yaml:"base_url" env:"ML_SERVICE_URL" env-default:"http://localhost:5000/api/v1"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"ML_SERVICE_TIMEOUT_SECONDS" env-default:"30"`
}

// Timeout returns the per-call timeout for the ML service.
func (c *MLServiceConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig holds where uploaded documents are written.
type StorageConfig struct {
	Root          string `yaml:"root" env:"STORAGE_ROOT" env-default:"./storage"`
	MaxUploadSize int64  `yaml:"max_upload_bytes" env:"STORAGE_MAX_UPLOAD_BYTES" env-default:"10485760"`
}

// DispatchConfig bounds the best-effort background work (alert mail, learning forwards).
type DispatchConfig struct {
	MaxConcurrent  int `yaml:"max_concurrent" env:"DISPATCH_MAX_CONCURRENT" env-default:"8"`
	TimeoutSeconds int `yaml:"timeout_seconds" env:"DISPATCH_TIMEOUT_SECONDS" env-default:"90"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: environment variables and defaults are used.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.parseComplexFields()
	cfg.resolveDockerHosts()

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.Mail.ThreatAlert.To = ParseRecipients(c.Mail.ThreatAlert.ToStr)
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ParseRecipients splits a comma-separated address list, trimming entries and dropping blanks.
func ParseRecipients(value string) []string {
	var out []string
	for _, addr := range strings.Split(value, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}
