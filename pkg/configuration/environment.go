package configuration

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/competency-hub/pkg/logging"
	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load(".env", ".env.local")
	if err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist in the working directory. When none
// do, it retries next to the nearest go.mod above the working directory.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root, ok := moduleRoot(); ok {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, envFiles []string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func moduleRoot() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for dir := wd; ; {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type ScopeAPIOptions struct {
	BaseURL string        `env:"SCOPE_API_BASE_URL" envDefault:"http://localhost:8000"`
	Token   string        `env:"SCOPE_API_TOKEN"`
	Timeout time.Duration `env:"SCOPE_API_TIMEOUT" envDefault:"15s"`
}

func (o *ScopeAPIOptions) Validate() error {
	u, err := url.Parse(strings.TrimSpace(o.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid SCOPE_API_BASE_URL=%q", o.BaseURL)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("SCOPE_API_TIMEOUT must be positive, got %s", o.Timeout)
	}
	return nil
}

type CacheOptions struct {
	Backend  string        `env:"SCOPE_CACHE_BACKEND" envDefault:"memory"` // off, memory or redis
	TTL      time.Duration `env:"SCOPE_CACHE_TTL" envDefault:"5m"`
	RedisURL string        `env:"REDIS_URL" envDefault:"localhost:6379"`
}

func (o *CacheOptions) Validate() error {
	o.Backend = strings.ToLower(strings.TrimSpace(o.Backend))
	switch o.Backend {
	case "off", "memory", "redis":
	default:
		return fmt.Errorf("invalid SCOPE_CACHE_BACKEND=%q (expected off|memory|redis)", o.Backend)
	}
	if o.Backend != "off" && o.TTL <= 0 {
		return fmt.Errorf("SCOPE_CACHE_TTL must be positive when caching is enabled, got %s", o.TTL)
	}
	if o.Backend == "redis" && strings.TrimSpace(o.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when SCOPE_CACHE_BACKEND is 'redis'")
	}
	return nil
}

// ActingScopeOptions is the statically configured role and scope of the
// acting user for this process.
type ActingScopeOptions struct {
	Role         string `env:"ACTING_ROLE" envDefault:"SUPER_ADMIN"`
	SegmentID    *int64 `env:"SCOPE_SEGMENT_ID"`
	SubSegmentID *int64 `env:"SCOPE_SUB_SEGMENT_ID"`
	ProjectID    *int64 `env:"SCOPE_PROJECT_ID"`
	TeamID       *int64 `env:"SCOPE_TEAM_ID"`
	EmployeeID   *int64 `env:"SCOPE_EMPLOYEE_ID"`
}

func (o *ActingScopeOptions) Context() (rolescope.Context, error) {
	role, err := rolescope.ParseRole(o.Role)
	if err != nil {
		return rolescope.Context{}, fmt.Errorf("invalid ACTING_ROLE: %w", err)
	}
	return rolescope.New(role, rolescope.Scope{
		SegmentID:    o.SegmentID,
		SubSegmentID: o.SubSegmentID,
		ProjectID:    o.ProjectID,
		TeamID:       o.TeamID,
		EmployeeID:   o.EmployeeID,
	}), nil
}

type AuthzOptions struct {
	Mode     string `env:"AUTHZ_MODE" envDefault:"enforce"`
	FlagPath string `env:"AUTHZ_FLAG_CONFIG" envDefault:"config/access/authz_flags.yaml"`
	// Optional casbin policy csv; the built-in role policy is used when empty.
	PolicyPath string `env:"AUTHZ_POLICY_PATH"`
}

// FormSessionOptions bounds how long an untouched employee form session
// stays in memory. A zero TTL keeps sessions until they are closed.
type FormSessionOptions struct {
	TTL           time.Duration `env:"HRM_FORM_SESSION_TTL" envDefault:"30m"`
	SweepInterval time.Duration `env:"HRM_FORM_SESSION_SWEEP_INTERVAL" envDefault:"1m"`
}

func (o *FormSessionOptions) Validate() error {
	if o.TTL < 0 {
		return fmt.Errorf("HRM_FORM_SESSION_TTL must not be negative, got %s", o.TTL)
	}
	if o.TTL > 0 && o.SweepInterval <= 0 {
		return fmt.Errorf("HRM_FORM_SESSION_SWEEP_INTERVAL must be positive, got %s", o.SweepInterval)
	}
	return nil
}

type CORSOptions struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	return nil
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"competency-hub"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	ScopeAPI      ScopeAPIOptions
	Cache         CacheOptions
	ActingScope   ActingScopeOptions
	Authz         AuthzOptions
	FormSessions  FormSessionOptions
	CORS          CORSOptions
	RateLimit     RateLimitOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions

	// bootstrap or sequential
	EditLoadStrategy string `env:"HRM_EDIT_LOAD_STRATEGY" envDefault:"bootstrap"`

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:""`
	// Outbound API calls and inbound requests carry this header; a random uuid is used when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	return logging.ParseLevel(c.LogLevel)
}

// RoleScope returns the acting role and scope. Load has already validated it.
func (c *Configuration) RoleScope() rolescope.Context {
	rc, err := c.ActingScope.Context()
	if err != nil {
		return rolescope.New(rolescope.RoleTeamMember, rolescope.Scope{})
	}
	return rc
}

func Use() *Configuration {
	return singleton()
}

// Load reads env files (when present) and the process environment into a
// validated Configuration.
func Load(envFiles ...string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.ScopeAPI.Validate(); err != nil {
		return fmt.Errorf("scope api configuration error: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration error: %w", err)
	}
	if err := c.FormSessions.Validate(); err != nil {
		return fmt.Errorf("form session configuration error: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if _, err := c.ActingScope.Context(); err != nil {
		return err
	}
	if err := c.validateEditLoadStrategy(); err != nil {
		return err
	}

	if strings.TrimSpace(c.LogPath) != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validateEditLoadStrategy() error {
	strategy := strings.ToLower(strings.TrimSpace(c.EditLoadStrategy))
	if strategy == "" {
		strategy = "bootstrap"
	}
	switch strategy {
	case "bootstrap", "sequential":
	default:
		return fmt.Errorf("invalid HRM_EDIT_LOAD_STRATEGY=%q (expected bootstrap|sequential)", c.EditLoadStrategy)
	}
	c.EditLoadStrategy = strategy
	return nil
}

// Unload releases the log file, if any.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
