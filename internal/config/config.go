// Package config loads and validates the gallerize configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/josch/gallerize/internal/retry"
)

// Config is the application configuration.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Examples ExamplesConfig `yaml:"examples"`
	Output   OutputConfig   `yaml:"output"`
	Retry    RetryConfig    `yaml:"retry"`
	Publish  *PublishConfig `yaml:"publish,omitempty"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Events   EventsConfig   `yaml:"events"`
	Weather  WeatherConfig  `yaml:"weather"`
}

// SiteConfig is the site shell.
type SiteConfig struct {
	Title   string `yaml:"title"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// ExamplesConfig locates and tunes example execution.
type ExamplesConfig struct {
	Roots       []string `yaml:"roots"`
	Required    []string `yaml:"required,omitempty"`    // slugs whose failure fails the build
	Concurrency int      `yaml:"concurrency,omitempty"` // parallel example executions
}

// OutputConfig is where the site goes.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Clean     bool   `yaml:"clean"`
	StatePath string `yaml:"state_path,omitempty"` // sqlite build state, ":memory:" allowed
}

// RetryConfig tunes the execute-stage retry policy.
type RetryConfig struct {
	Mode        string        `yaml:"mode,omitempty"` // fixed|linear|exponential
	Initial     time.Duration `yaml:"initial,omitempty"`
	Max         time.Duration `yaml:"max,omitempty"`
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
}

// Policy converts the section into a retry.Policy, defaulting to the
// seven-attempt flaky-build policy when unset.
func (r RetryConfig) Policy() retry.Policy {
	if r.Mode == "" && r.Initial == 0 && r.Max == 0 && r.MaxAttempts == 0 {
		return retry.FlakyBuildPolicy()
	}
	return retry.NewPolicy(retry.BackoffMode(r.Mode), r.Initial, r.Max, r.MaxAttempts)
}

// PublishConfig is the pages-branch publishing target.
type PublishConfig struct {
	URL    string      `yaml:"url"`
	Branch string      `yaml:"branch"`
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig is git authentication for publishing.
type AuthConfig struct {
	Type     string `yaml:"type"` // "token" or "basic"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// DaemonConfig tunes daemon mode.
type DaemonConfig struct {
	Addr             string        `yaml:"addr,omitempty"`
	ScheduleInterval time.Duration `yaml:"schedule_interval,omitempty"`
	Debounce         time.Duration `yaml:"debounce,omitempty"`
}

// EventsConfig enables publishing build events to NATS.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// WeatherConfig configures the weather example.
type WeatherConfig struct {
	Locations    []LocationConfig `yaml:"locations,omitempty"`
	PastDays     int              `yaml:"past_days,omitempty"`
	ForecastDays int              `yaml:"forecast_days,omitempty"`
	HistoryStart string           `yaml:"history_start,omitempty"` // YYYY-MM-DD
}

// LocationConfig is a place to fetch weather data for.
type LocationConfig struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Timezone  string  `yaml:"timezone,omitempty"`
}

// Load reads, expands, and validates configuration from the given path.
// A .env/.env.local file is loaded first; existing environment wins.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} references so tokens stay out of the file.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// godotenv.Load never overwrites variables already set.
		if err := godotenv.Load(path); err != nil {
			slog.Warn("Failed to load env file", "path", path, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", path)
	}
}

func (c *Config) applyDefaults() {
	if c.Site.Title == "" {
		c.Site.Title = "Example Gallery"
	}
	if len(c.Examples.Roots) == 0 {
		c.Examples.Roots = []string{"examples"}
	}
	if c.Examples.Concurrency == 0 {
		c.Examples.Concurrency = 4
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./site"
	}
	if c.Output.StatePath == "" {
		c.Output.StatePath = "gallerize.db"
	}
	if c.Publish != nil && c.Publish.Branch == "" {
		c.Publish.Branch = "gh-pages"
	}
	if c.Daemon.Addr == "" {
		c.Daemon.Addr = ":8080"
	}
	if c.Daemon.Debounce == 0 {
		c.Daemon.Debounce = 2 * time.Second
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "gallerize.builds"
	}
	if c.Weather.PastDays == 0 {
		c.Weather.PastDays = 30
	}
	if c.Weather.ForecastDays == 0 {
		c.Weather.ForecastDays = 16
	}
	if len(c.Weather.Locations) == 0 {
		c.Weather.Locations = []LocationConfig{
			{Name: "Geneva", Latitude: 46.2052193, Longitude: 6.1471942, Timezone: "Europe/Zurich"},
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Examples.Concurrency < 0 {
		return fmt.Errorf("examples.concurrency cannot be negative")
	}
	switch c.Retry.Mode {
	case "", string(retry.BackoffFixed), string(retry.BackoffLinear), string(retry.BackoffExponential):
	default:
		return fmt.Errorf("retry.mode must be fixed, linear, or exponential, got %q", c.Retry.Mode)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts cannot be negative")
	}
	if c.Publish != nil && c.Publish.URL == "" {
		return fmt.Errorf("publish.url is required when publish is configured")
	}
	if c.Weather.HistoryStart != "" {
		if _, err := time.Parse("2006-01-02", c.Weather.HistoryStart); err != nil {
			return fmt.Errorf("weather.history_start must be YYYY-MM-DD: %w", err)
		}
	}
	for _, loc := range c.Weather.Locations {
		if loc.Latitude < -90 || loc.Latitude > 90 {
			return fmt.Errorf("location %s: latitude must be in range -90 to 90", loc.Name)
		}
		if loc.Longitude < -180 || loc.Longitude > 180 {
			return fmt.Errorf("location %s: longitude must be in range -180 to 180", loc.Name)
		}
	}
	return nil
}

// starterConfig is the commented configuration written by Init.
const starterConfig = `# gallerize configuration

site:
  title: Example Gallery
  # base_url: https://example.org/gallery

examples:
  # Directories scanned recursively for example files.
  roots:
    - examples
  # Slugs whose execution failure fails the whole build.
  required:
    - linear-equation-solvers
  # Parallel example executions.
  concurrency: 4

output:
  directory: ./site
  clean: true
  # Build state database; ":memory:" disables persistence.
  state_path: gallerize.db

# Retry policy for example execution. Omitting the section uses seven
# fixed-interval attempts.
# retry:
#   mode: fixed
#   initial: 2s
#   max: 2s
#   max_attempts: 7

publish:
  url: https://github.com/example/gallery.git
  branch: gh-pages
  auth:
    type: token
    # ${VAR} references are expanded from the environment at load time.
    token: ${GALLERY_PUBLISH_TOKEN}

daemon:
  addr: ":8080"
  # schedule_interval: 1h
  debounce: 2s

# Publish build events to NATS.
# events:
#   nats_url: nats://localhost:4222
#   subject: gallerize.builds

weather:
  locations:
    - name: Geneva
      latitude: 46.2052193
      longitude: 6.1471942
      timezone: Europe/Zurich
    - name: Bern
      latitude: 46.9546812
      longitude: 7.3125359
      timezone: Europe/Zurich
  past_days: 30
  forecast_days: 16
  history_start: "2023-06-01"
`

// Init writes a commented starter configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
