// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN for the session, template, and audit tables.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// IssuerBaseURL is the credential provider's API base URL.
	IssuerBaseURL string `mapstructure:"ISSUER_BASE_URL"`
	// IssuerAPIKey authenticates calls to the credential provider.
	IssuerAPIKey string `mapstructure:"ISSUER_API_KEY"`
	// IssueTimeoutStr bounds one issuance call (e.g. "5s").
	IssueTimeoutStr string `mapstructure:"ISSUE_TIMEOUT"`

	// MaxPolicyBytes caps the encoded policy document size.
	MaxPolicyBytes int `mapstructure:"MAX_POLICY_BYTES"`
	// ResourcePrefix namespaces shared resources in rendered policies.
	ResourcePrefix string `mapstructure:"RESOURCE_PREFIX"`
	// AllowedIPRanges is a comma-separated CIDR allow-list for request source IPs.
	AllowedIPRanges string `mapstructure:"ALLOWED_IP_RANGES"`
	// AllowedDepartments is a comma-separated department allow-list.
	AllowedDepartments string `mapstructure:"ALLOWED_DEPARTMENTS"`
	// MFAMaxAgeStr is the ceiling on MFA age passed to the provider as a trust condition.
	MFAMaxAgeStr string `mapstructure:"MFA_MAX_AGE"`
	// TiersFile is an optional YAML file overriding the built-in tier profiles.
	TiersFile string `mapstructure:"TIERS_FILE"`

	// SweepIntervalStr is the pause between sweeps (e.g. "5m").
	SweepIntervalStr string `mapstructure:"SWEEP_INTERVAL"`
	// SweepBatchSize bounds how many due sessions one sweep touches.
	SweepBatchSize int `mapstructure:"SWEEP_BATCH_SIZE"`

	// GRPCAddr is the address the health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// BreakGlassWebhookURL receives break-glass alerts; empty disables them.
	BreakGlassWebhookURL string `mapstructure:"BREAK_GLASS_WEBHOOK_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Audit stream (optional). When Kafka brokers are set, audit events are
	// fanned out to Kafka.
	// KafkaBrokers is a comma-separated list of broker addresses.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for audit events (default tav-audit).
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the audit worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI). Env vars
// override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ISSUER_BASE_URL", "")
	v.SetDefault("ISSUER_API_KEY", "")
	v.SetDefault("ISSUE_TIMEOUT", "5s")
	v.SetDefault("MAX_POLICY_BYTES", 10240)
	v.SetDefault("RESOURCE_PREFIX", "tav")
	v.SetDefault("ALLOWED_IP_RANGES", "")
	v.SetDefault("ALLOWED_DEPARTMENTS", "")
	v.SetDefault("MFA_MAX_AGE", "1h")
	v.SetDefault("TIERS_FILE", "")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("SWEEP_BATCH_SIZE", 100)
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("BREAK_GLASS_WEBHOOK_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "tav-audit")
	v.SetDefault("KAFKA_GROUP_ID", "tav-audit-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.MaxPolicyBytes <= 0 {
		return nil, errors.New("config: MAX_POLICY_BYTES must be positive")
	}
	if cfg.SweepBatchSize <= 0 {
		return nil, errors.New("config: SWEEP_BATCH_SIZE must be positive")
	}

	return &cfg, nil
}

// IssueTimeout parses IssueTimeoutStr. Returns 5s if unset or invalid.
func (c *Config) IssueTimeout() time.Duration {
	d, err := time.ParseDuration(c.IssueTimeoutStr)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// MFAMaxAge parses MFAMaxAgeStr. Returns 1h if unset or invalid.
func (c *Config) MFAMaxAge() time.Duration {
	d, err := time.ParseDuration(c.MFAMaxAgeStr)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// SweepInterval parses SweepIntervalStr. Returns 5m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	d, err := time.ParseDuration(c.SweepIntervalStr)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// AllowedIPRangesList returns the CIDR allow-list from the comma-separated
// config. Empty means the built-in defaults apply.
func (c *Config) AllowedIPRangesList() []string {
	return splitCSV(c.AllowedIPRanges)
}

// AllowedDepartmentsList returns the department allow-list from the
// comma-separated config. Empty means the built-in defaults apply.
func (c *Config) AllowedDepartmentsList() []string {
	return splitCSV(c.AllowedDepartments)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated
// config. Used to decide if the audit stream is enabled (non-empty list) and
// to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitCSV(c.KafkaBrokers)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
