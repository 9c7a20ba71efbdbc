// Package config loads and validates the orchestrator's YAML
// configuration: server basics, provider credentials, tool-loop
// budgets, TTL store durations, dev-log settings, the sweep schedule,
// the websocket hub, and observability knobs.
//
// Parsing is strict (unknown fields reject, trailing documents reject)
// and every bounded numeric field is clamped into a sane range at
// parse time rather than left to fail downstream where a zero or
// negative value would silently disable a guardrail.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Providers     ProvidersConfig     `yaml:"providers"`
	ToolLoop      ToolLoopConfig      `yaml:"tool_loop"`
	ShortTerm     ShortTermConfig     `yaml:"short_term"`
	Pending       PendingConfig       `yaml:"pending"`
	DevLog        DevLogConfig        `yaml:"dev_log"`
	Sweep         SweepConfig         `yaml:"sweep"`
	WSHub         WSHubConfig         `yaml:"ws_hub"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig selects and configures the transcript session store
// backend (spec §4.7): "postgres" for production, "sqlite" for local
// development, so a developer can run the engine without standing up
// Postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite"

	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	SQLitePath string `yaml:"sqlite_path"`
}

// ServerConfig holds the process's own listen addresses.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// ProvidersConfig configures the chat backend adapters.
type ProvidersConfig struct {
	Default  string                   `yaml:"default"`
	Fallback []string                 `yaml:"fallback_chain"`
	Anthropic ProviderCredentialConfig `yaml:"anthropic"`
	OpenAI    ProviderCredentialConfig `yaml:"openai"`
	Bedrock   BedrockCredentialConfig  `yaml:"bedrock"`
	Gemini    ProviderCredentialConfig `yaml:"gemini"`
}

// ProviderCredentialConfig is the shape shared by the API-key backends.
type ProviderCredentialConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

// BedrockCredentialConfig configures the AWS Bedrock adapter, which
// authenticates via the SDK's default credential chain rather than a
// bare API key.
type BedrockCredentialConfig struct {
	Region       string `yaml:"region"`
	DefaultModel string `yaml:"default_model"`
}

// ToolLoopConfig bounds one turn's tool-calling loop.
type ToolLoopConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	MaxWallClock  time.Duration `yaml:"max_wall_clock"`
	MaxToolCalls  int           `yaml:"max_tool_calls"`
}

// ShortTermConfig bounds the short-term context store.
type ShortTermConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	MaxBytes int           `yaml:"max_bytes"`
}

// PendingConfig bounds the pending-confirmation store.
type PendingConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// DevLogConfig configures the JSONL developer conversation log.
type DevLogConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path"`
	RedactMode string        `yaml:"redact_mode"`
	Archive    ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig configures the S3 mirror for rotated dev-log segments.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// SweepConfig configures the TTL sweep scheduler.
type SweepConfig struct {
	Spec string `yaml:"spec"`
}

// WSHubConfig configures the websocket broadcast hub.
type WSHubConfig struct {
	Port           int           `yaml:"port"`
	HudTokenSecret string        `yaml:"hud_token_secret"`
	HudTokenExpiry time.Duration `yaml:"hud_token_expiry"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	LogLevel     string  `yaml:"log_level"`
	LogFormat    string  `yaml:"log_format"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Bound pairs used when clamping parsed values. Each matches the
// guardrail it backs: set too low and the feature is crippled, set to
// zero or negative and the guardrail is effectively off.
const (
	minToolIterations = 1
	maxToolIterations = 50
	minToolWallClock  = 1 * time.Second
	maxToolWallClock  = 10 * time.Minute
	minToolCalls      = 1
	maxToolCalls      = 200

	minShortTermTTL = 30 * time.Second
	maxShortTermTTL = 24 * time.Hour
	minPendingTTL   = 30 * time.Second
	maxPendingTTL   = 1 * time.Hour

	minHudTokenExpiry = 10 * time.Second
	maxHudTokenExpiry = 10 * time.Minute

	minSamplingRate = 0.0
	maxSamplingRate = 1.0
)

// Load reads, parses, and validates the config document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	clampBounds(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "orchestrator.db"
	}
	if cfg.Database.Driver == "postgres" {
		if cfg.Database.Host == "" {
			cfg.Database.Host = "localhost"
		}
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
		if cfg.Database.User == "" {
			cfg.Database.User = "postgres"
		}
		if cfg.Database.Name == "" {
			cfg.Database.Name = "orchestrator"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxOpenConns == 0 {
			cfg.Database.MaxOpenConns = 25
		}
		if cfg.Database.MaxIdleConns == 0 {
			cfg.Database.MaxIdleConns = 5
		}
		if cfg.Database.ConnMaxLifetime == 0 {
			cfg.Database.ConnMaxLifetime = 5 * time.Minute
		}
	}

	if cfg.ToolLoop.MaxIterations == 0 {
		cfg.ToolLoop.MaxIterations = 12
	}
	if cfg.ToolLoop.MaxWallClock == 0 {
		cfg.ToolLoop.MaxWallClock = 2 * time.Minute
	}
	if cfg.ToolLoop.MaxToolCalls == 0 {
		cfg.ToolLoop.MaxToolCalls = 40
	}

	if cfg.ShortTerm.TTL == 0 {
		cfg.ShortTerm.TTL = 15 * time.Minute
	}
	if cfg.Pending.TTL == 0 {
		cfg.Pending.TTL = 5 * time.Minute
	}

	if cfg.DevLog.RedactMode == "" {
		cfg.DevLog.RedactMode = "truncate"
	}

	if cfg.Sweep.Spec == "" {
		cfg.Sweep.Spec = "@every 1m"
	}

	if cfg.WSHub.Port == 0 {
		cfg.WSHub.Port = 8081
	}
	if cfg.WSHub.HudTokenExpiry == 0 {
		cfg.WSHub.HudTokenExpiry = 30 * time.Second
	}

	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}
}

// clampBounds pins bounded fields into their [min,max] range. Unlike
// validate, this never rejects the document — a config author typo'ing
// "0s" for a wall clock budget gets a working-but-conservative value
// instead of a crash at the first turn.
func clampBounds(cfg *Config) {
	cfg.ToolLoop.MaxIterations = clampInt(cfg.ToolLoop.MaxIterations, minToolIterations, maxToolIterations)
	cfg.ToolLoop.MaxWallClock = clampDuration(cfg.ToolLoop.MaxWallClock, minToolWallClock, maxToolWallClock)
	cfg.ToolLoop.MaxToolCalls = clampInt(cfg.ToolLoop.MaxToolCalls, minToolCalls, maxToolCalls)

	cfg.ShortTerm.TTL = clampDuration(cfg.ShortTerm.TTL, minShortTermTTL, maxShortTermTTL)
	cfg.Pending.TTL = clampDuration(cfg.Pending.TTL, minPendingTTL, maxPendingTTL)

	cfg.WSHub.HudTokenExpiry = clampDuration(cfg.WSHub.HudTokenExpiry, minHudTokenExpiry, maxHudTokenExpiry)

	cfg.Observability.SamplingRate = clampFloat(cfg.Observability.SamplingRate, minSamplingRate, maxSamplingRate)
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// applyEnvOverrides layers environment variables on top of the parsed
// document, mirroring the precedence env vars get in most deployment
// pipelines: file first, then the environment the process actually
// started in.
func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_METRICS_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}

	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		cfg.Providers.Anthropic.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" {
		cfg.Providers.OpenAI.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); value != "" {
		cfg.Providers.Gemini.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("AWS_REGION")); value != "" && cfg.Providers.Bedrock.Region == "" {
		cfg.Providers.Bedrock.Region = value
	}

	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_DATABASE_PASSWORD")); value != "" {
		cfg.Database.Password = value
	}

	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HUD_TOKEN_SECRET")); value != "" {
		cfg.WSHub.HudTokenSecret = value
	}

	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_OTLP_ENDPOINT")); value != "" {
		cfg.Observability.OTLPEndpoint = value
	}
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_LOG_LEVEL")); value != "" {
		cfg.Observability.LogLevel = value
	}
}

// ValidationError reports every problem found in one pass, rather than
// stopping at the first, so a config author can fix a whole file at once.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.Providers.Default == "" {
		issues = append(issues, "providers.default is required")
	} else if !validProviderName(cfg.Providers.Default) {
		issues = append(issues, fmt.Sprintf("providers.default %q is not a known provider", cfg.Providers.Default))
	}
	for _, name := range cfg.Providers.Fallback {
		if !validProviderName(name) {
			issues = append(issues, fmt.Sprintf("providers.fallback_chain entry %q is not a known provider", name))
		}
	}

	if !validLogLevel(cfg.Observability.LogLevel) {
		issues = append(issues, fmt.Sprintf("observability.log_level %q must be debug, info, warn, or error", cfg.Observability.LogLevel))
	}
	if !validLogFormat(cfg.Observability.LogFormat) {
		issues = append(issues, fmt.Sprintf("observability.log_format %q must be json or text", cfg.Observability.LogFormat))
	}

	if cfg.DevLog.Archive.Enabled && strings.TrimSpace(cfg.DevLog.Archive.Bucket) == "" {
		issues = append(issues, "dev_log.archive.bucket is required when dev_log.archive is enabled")
	}

	switch strings.ToLower(cfg.Database.Driver) {
	case "postgres", "sqlite":
	default:
		issues = append(issues, fmt.Sprintf("database.driver %q must be postgres or sqlite", cfg.Database.Driver))
	}

	switch strings.ToLower(cfg.DevLog.RedactMode) {
	case "none", "hash", "truncate":
	default:
		issues = append(issues, fmt.Sprintf("dev_log.redact_mode %q must be none, hash, or truncate", cfg.DevLog.RedactMode))
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validProviderName(name string) bool {
	switch strings.ToLower(name) {
	case "anthropic", "openai", "bedrock", "gemini":
		return true
	default:
		return false
	}
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "json", "text":
		return true
	default:
		return false
	}
}
