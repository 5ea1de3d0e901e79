package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider selects the auth/WebSocket host pair and the message field
// interpretation used by the session controller.
type Provider string

const (
	ProviderRealtime    Provider = "REALTIME"
	ProviderDelayedSIP  Provider = "DELAYED_SIP"
	ProviderNasdaqBasic Provider = "NASDAQ_BASIC"
	ProviderCboeOne     Provider = "CBOE_ONE"
	ProviderManual      Provider = "MANUAL"
)

// Config holds the recognized client configuration keys plus the ambient
// logging and metrics settings used by the cmd/ example program. The
// zero value is a usable default (REALTIME, trades-and-quotes, no replay).
type Config struct {
	Provider Provider `yaml:"provider"`

	// IPAddress is required when Provider is MANUAL; the plaintext
	// HTTP/WS host to dial instead of a named provider endpoint.
	IPAddress string `yaml:"ip_address"`

	// TradesOnly is the client-wide default, OR'd with the per-channel
	// and per-join-call flags.
	TradesOnly bool `yaml:"trades_only"`

	// IsPublicKey selects browser-compatible Public-key header auth over
	// API-key query auth, and suppresses signal handler registration.
	IsPublicKey bool `yaml:"is_public_key"`

	// Delayed requests the server-side delayed feed even when realtime
	// is entitled.
	Delayed bool `yaml:"delayed"`

	// ReplayDate, when non-empty, switches the client into replay mode
	// for the given trading day (YYYY-MM-DD).
	ReplayDate string `yaml:"replay_date"`

	// ReplayAsIfLive paces replay output to wall-clock using the
	// original inter-arrival gaps.
	ReplayAsIfLive bool `yaml:"replay_as_if_live"`

	// ReplayDeleteFileWhenDone unlinks downloaded tick files once the
	// replay merge has drained them.
	ReplayDeleteFileWhenDone bool `yaml:"replay_delete_file_when_done"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the ambient logger. Only the cmd/ example
// program applies it; the library itself logs through whatever the
// process has already configured.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// MetricsConfig enables best-effort CloudWatch publishing of the metrics
// logged through logger.LogMetric (in this repository, the demo program's
// total_msg_count). The session controller and replay engine emit no
// metrics. Disabled by default; never required to run the client.
type MetricsConfig struct {
	CloudWatchEnabled bool   `yaml:"cloudwatch_enabled"`
	Region            string `yaml:"region"`
	Namespace         string `yaml:"namespace"`
}

// Option mutates a Config during construction by New.
type Option func(*Config)

// Default returns the library's zero-value default configuration:
// REALTIME provider, trades and quotes both enabled, no replay.
func Default() Config {
	return Config{
		Provider: ProviderRealtime,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func WithProvider(p Provider) Option {
	return func(c *Config) { c.Provider = p }
}

func WithIPAddress(addr string) Option {
	return func(c *Config) { c.IPAddress = addr }
}

func WithTradesOnly(tradesOnly bool) Option {
	return func(c *Config) { c.TradesOnly = tradesOnly }
}

func WithPublicKey(isPublicKey bool) Option {
	return func(c *Config) { c.IsPublicKey = isPublicKey }
}

func WithDelayed(delayed bool) Option {
	return func(c *Config) { c.Delayed = delayed }
}

func WithReplay(date string, asIfLive bool, deleteWhenDone bool) Option {
	return func(c *Config) {
		c.ReplayDate = date
		c.ReplayAsIfLive = asIfLive
		c.ReplayDeleteFileWhenDone = deleteWhenDone
	}
}

// New builds a Config from Default() with the given options applied, then
// validates it.
func New(opts ...Option) (Config, error) {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a YAML configuration file for the cmd/ example program.
// It parses and validates the file on disk, and fills Metrics.Region from
// AWS_REGION when the file leaves it empty. INTRINIO_API_KEY is not read
// here; that is left to the caller.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Metrics.Region == "" {
		cfg.Metrics.Region = strings.TrimSpace(v)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Provider {
	case "":
		cfg.Provider = ProviderRealtime
	case ProviderRealtime, ProviderDelayedSIP, ProviderNasdaqBasic, ProviderCboeOne, ProviderManual:
	default:
		return fmt.Errorf("unrecognized provider %q", cfg.Provider)
	}

	if cfg.Provider == ProviderManual && cfg.IPAddress == "" {
		return fmt.Errorf("ip_address is required when provider is MANUAL")
	}

	if cfg.ReplayDate != "" && !replayDatePattern.MatchString(cfg.ReplayDate) {
		return fmt.Errorf("replay_date %q must be YYYY-MM-DD", cfg.ReplayDate)
	}

	return nil
}

var replayDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// TokenLifetime is the maximum age of a session token before it must be
// re-acquired on reconnect.
const TokenLifetime = 24 * time.Hour
