package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

var (
	ErrInvalidConfig  = errors.New("invalid config")
	ErrConfigNotFound = errors.New("config file not found")
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type AppConfig struct {
	Port            string   `json:"port"`
	Environment     string   `json:"environment"`
	GinMode         string   `json:"gin_mode,omitempty"`
	LogLevel        string   `json:"log_level"`
	APIPrefix       string   `json:"api_prefix"`
	StaticDir       string   `json:"static_dir,omitempty"`
	EnforceHTTPS    bool     `json:"enforce_https"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	// TrustedProxies lists the ips or CIDRs whose forwarding headers are
	// believed when resolving the client ip. Empty trusts none.
	TrustedProxies []string `json:"trusted_proxies,omitempty"`

	Database  DatabaseConfig  `json:"database"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// Source is the config file that was loaded, empty when none was.
	Source string `json:"-"`
}

type DatabaseConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path"`
	URL          string `json:"url,omitempty"`
	MaxOpenConns int    `json:"max_open_conns"`
	LogQueries   bool   `json:"log_queries"`
}

type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	// Routes is keyed by "METHOD /path" or "/path" relative to the api
	// prefix; "default" applies to everything else.
	Routes map[string]RateLimitRule `json:"routes"`
}

type RateLimitRule struct {
	Requests int      `json:"requests"`
	Window   Duration `json:"window"`
}

type TelemetryConfig struct {
	ServiceName    string `json:"service_name"`
	MetricsEnabled bool   `json:"metrics_enabled"`
	OTLPEndpoint   string `json:"otlp_endpoint,omitempty"`
}

// Duration reads "30s" style strings or whole seconds from JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)

		if err != nil {
			return err
		}

		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}

	return nil
}

func GetDefaultConfig() *AppConfig {
	return &AppConfig{
		Port:            "3001",
		Environment:     EnvDevelopment,
		LogLevel:        "info",
		ShutdownTimeout: Duration{10 * time.Second},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "todos.db",
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Routes: map[string]RateLimitRule{
				"GET /todos": {
					Requests: 100,
					Window:   Duration{time.Minute},
				},
				"POST /todos": {
					Requests: 20,
					Window:   Duration{time.Minute},
				},
				"default": {
					Requests: 60,
					Window:   Duration{time.Minute},
				},
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "todolist",
			MetricsEnabled: true,
		},
	}
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Load resolves the configuration with this precedence, highest wins:
// defaults, the config file (--config or TODOS_CONFIG), the environment,
// then command line flags.
func Load(args []string, env map[string]string) (*AppConfig, error) {
	fs := flag.NewFlagSet("todolist", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.StringP("config", "c", "", "path to a JSON (HuJSON) config file")
	port := fs.StringP("port", "p", "", "listen port")
	environment := fs.String("env", "", "environment: development, production or test")
	logLevel := fs.String("log-level", "", "log level")
	apiPrefix := fs.String("api-prefix", "", "prefix for the todo routes, e.g. /api")
	staticDir := fs.String("static-dir", "", "directory with a built client to serve")
	dbDriver := fs.String("db-driver", "", "database driver: sqlite or postgres")
	dbPath := fs.String("db-path", "", "sqlite database file")
	dbURL := fs.String("db-url", "", "postgres connection url")
	logQueries := fs.Bool("log-queries", false, "log every SQL statement")
	rateLimit := fs.Bool("rate-limit", false, "enable the rate limiter")
	metrics := fs.Bool("metrics", true, "expose /metrics")
	enforceHTTPS := fs.Bool("enforce-https", false, "redirect plain http requests")
	shutdownTimeout := fs.Duration("shutdown-timeout", 0, "graceful shutdown timeout")
	trustedProxies := fs.StringSlice("trusted-proxy", nil, "proxy ip or CIDR allowed to set X-Forwarded-For (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := GetDefaultConfig()

	path := *configPath

	if path == "" {
		path = env["TODOS_CONFIG"]
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	if fs.Changed("port") {
		cfg.Port = *port
	}

	if fs.Changed("env") {
		cfg.Environment = *environment
	}

	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}

	if fs.Changed("api-prefix") {
		cfg.APIPrefix = *apiPrefix
	}

	if fs.Changed("static-dir") {
		cfg.StaticDir = *staticDir
	}

	if fs.Changed("db-driver") {
		cfg.Database.Driver = *dbDriver
	}

	if fs.Changed("db-path") {
		cfg.Database.Path = *dbPath
	}

	if fs.Changed("db-url") {
		cfg.Database.URL = *dbURL
	}

	if fs.Changed("log-queries") {
		cfg.Database.LogQueries = *logQueries
	}

	if fs.Changed("rate-limit") {
		cfg.RateLimit.Enabled = *rateLimit
	}

	if fs.Changed("metrics") {
		cfg.Telemetry.MetricsEnabled = *metrics
	}

	if fs.Changed("enforce-https") {
		cfg.EnforceHTTPS = *enforceHTTPS
	}

	if fs.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = Duration{*shutdownTimeout}
	}

	if fs.Changed("trusted-proxy") {
		cfg.TrustedProxies = *trustedProxies
	}

	cfg.APIPrefix = normalizePrefix(cfg.APIPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnvMap snapshots os.Environ for Load.
func EnvMap() map[string]string {
	env := make(map[string]string)

	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}

	return env
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)

	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)

	if err != nil {
		return fmt.Errorf("%w %s: invalid JSONC: %w", ErrInvalidConfig, path, err)
	}

	// fields missing from the file keep their current value
	if err := json.Unmarshal(standardized, c); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidConfig, path, err)
	}

	c.Source = path

	return nil
}

func (c *AppConfig) applyEnv(env map[string]string) error {
	strs := map[string]*string{
		"PORT":                        &c.Port,
		"APP_ENV":                     &c.Environment,
		"GIN_MODE":                    &c.GinMode,
		"LOG_LEVEL":                   &c.LogLevel,
		"API_PREFIX":                  &c.APIPrefix,
		"STATIC_DIR":                  &c.StaticDir,
		"DATABASE_DRIVER":             &c.Database.Driver,
		"DATABASE_PATH":               &c.Database.Path,
		"DATABASE_URL":                &c.Database.URL,
		"OTEL_EXPORTER_OTLP_ENDPOINT": &c.Telemetry.OTLPEndpoint,
		"OTEL_SERVICE_NAME":           &c.Telemetry.ServiceName,
	}

	for key, dst := range strs {
		if value, ok := env[key]; ok && value != "" {
			*dst = value
		}
	}

	bools := map[string]*bool{
		"DATABASE_LOG_QUERIES": &c.Database.LogQueries,
		"ENFORCE_HTTPS":        &c.EnforceHTTPS,
		"RATE_LIMIT_ENABLED":   &c.RateLimit.Enabled,
		"METRICS_ENABLED":      &c.Telemetry.MetricsEnabled,
	}

	for key, dst := range bools {
		value, ok := env[key]

		if !ok || value == "" {
			continue
		}

		parsed, err := strconv.ParseBool(value)

		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, value)
		}

		*dst = parsed
	}

	if value := env["SHUTDOWN_TIMEOUT"]; value != "" {
		parsed, err := time.ParseDuration(value)

		if err != nil {
			return fmt.Errorf("%w: SHUTDOWN_TIMEOUT=%q: %w", ErrInvalidConfig, value, err)
		}

		c.ShutdownTimeout = Duration{parsed}
	}

	if value := env["TRUSTED_PROXIES"]; value != "" {
		c.TrustedProxies = nil

		for _, proxy := range strings.Split(value, ",") {
			if proxy = strings.TrimSpace(proxy); proxy != "" {
				c.TrustedProxies = append(c.TrustedProxies, proxy)
			}
		}
	}

	return nil
}

func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("%w: postgres driver requires DATABASE_URL", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, c.Environment)
	}

	if c.Port == "" {
		return fmt.Errorf("%w: port is empty", ErrInvalidConfig)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("%w: port %q is not a number", ErrInvalidConfig, c.Port)
	}

	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}

		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("%w: trusted proxy %q is neither an ip nor a CIDR", ErrInvalidConfig, proxy)
		}
	}

	for route, rule := range c.RateLimit.Routes {
		if rule.Requests <= 0 || rule.Window.Duration <= 0 {
			return fmt.Errorf("%w: rate limit %q needs positive requests and window", ErrInvalidConfig, route)
		}
	}

	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimRight(prefix, "/")

	if prefix == "" {
		return ""
	}

	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}

	return prefix
}
