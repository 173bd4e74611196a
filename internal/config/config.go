package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/garnizeh/fixbuddy/pkg/gemini"
	"github.com/garnizeh/fixbuddy/pkg/ollama"
	"github.com/garnizeh/fixbuddy/pkg/youtube"
)

const insecureJWTSecret = "supersecretkey"

// Strategy names accepted in engine.strategies.
var knownStrategies = map[string]bool{"two_stage": true, "single_call": true, "local": true}

type Config struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	DatabasePath  string        `yaml:"database_path"`
	TokenDuration time.Duration `yaml:"token_duration"`
	LogLevel      string        `yaml:"log_level"`
	Env           string        `yaml:"env"`

	Engine    EngineConfig    `yaml:"engine"`
	Gemini    gemini.Config   `yaml:"gemini"`
	Ollama    ollama.Config   `yaml:"ollama"`
	YouTube   youtube.Config  `yaml:"youtube"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	History   HistoryConfig   `yaml:"history"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

// EngineConfig drives the diagnosis pipeline.
type EngineConfig struct {
	Strategies      []string      `yaml:"strategies"`
	Timeout         time.Duration `yaml:"timeout"`
	TemplateVersion string        `yaml:"template_version"`
	StrictSafety    *bool         `yaml:"strict_safety"`
	HazardKeywords  []string      `yaml:"hazard_keywords"`
	HistoryLimit    int           `yaml:"history_limit"`
	MaxTutorials    int           `yaml:"max_tutorials"`
	DiagnosisCap    int           `yaml:"diagnosis_cap"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type HistoryConfig struct {
	Cap int `yaml:"cap"`
}

type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoadConfig builds the config from env-derived defaults, then overlays the
// YAML file at path when one is given.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("FIXBUDDY_ADDR", ":8080"),
		JWTSecret:     getEnv("FIXBUDDY_JWT_SECRET", insecureJWTSecret),
		APITimeout:    90 * time.Second,
		DatabasePath:  getEnv("FIXBUDDY_DATABASE_PATH", "fixbuddy.db"),
		TokenDuration: 24 * time.Hour,
		LogLevel:      getEnv("FIXBUDDY_LOG_LEVEL", "info"),
		Env:           os.Getenv("FIXBUDDY_ENV"),
		Engine: EngineConfig{
			Strategies:      []string{"two_stage", "single_call"},
			Timeout:         20 * time.Second,
			TemplateVersion: "v1",
		},
		Gemini: gemini.Config{
			APIKey: getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Ollama: ollama.Config{
			BaseURL: os.Getenv("OLLAMA_BASE_URL"),
			Model:   os.Getenv("OLLAMA_MODEL"),
		},
		YouTube: youtube.Config{
			APIKey: os.Getenv("YOUTUBE_API_KEY"),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Development reports whether the service runs in development mode.
func (c *Config) Development() bool {
	env := c.Env
	if env == "" {
		env = os.Getenv("FIXBUDDY_ENV")
	}
	return strings.EqualFold(env, "development")
}

// Validate fills defaults for unset fields and rejects unsafe or
// inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if c.JWTSecret == insecureJWTSecret && !c.Development() {
		errs = append(errs, errors.New("jwt_secret uses the insecure default; set FIXBUDDY_JWT_SECRET or FIXBUDDY_ENV=development"))
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 90 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 24 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	e := &c.Engine
	if len(e.Strategies) == 0 {
		e.Strategies = []string{"two_stage", "single_call"}
	}
	for _, s := range e.Strategies {
		if !knownStrategies[s] {
			errs = append(errs, fmt.Errorf("engine.strategies: unknown strategy %q", s))
		}
	}
	if e.Timeout == 0 {
		e.Timeout = 20 * time.Second
	}
	if e.Timeout < 15*time.Second || e.Timeout > 30*time.Second {
		errs = append(errs, fmt.Errorf("engine.timeout must be between 15s and 30s, got %s", e.Timeout))
	}
	if e.TemplateVersion == "" {
		e.TemplateVersion = "v1"
	}
	if e.StrictSafety == nil {
		strict := true
		e.StrictSafety = &strict
	}
	if e.HistoryLimit <= 0 {
		e.HistoryLimit = 8
	}
	if e.MaxTutorials <= 0 || e.MaxTutorials > 3 {
		e.MaxTutorials = 3
	}
	if e.DiagnosisCap <= 0 {
		e.DiagnosisCap = 10
	}

	gd := gemini.DefaultConfig()
	if c.Gemini.Model == "" {
		c.Gemini.Model = gd.Model
	}
	if c.Gemini.Retries == 0 {
		c.Gemini.Retries = gd.Retries
	}
	if c.Gemini.Backoff <= 0 {
		c.Gemini.Backoff = gd.Backoff
	}
	if c.Gemini.Timeout <= 0 {
		c.Gemini.Timeout = attemptTimeout(e.Timeout, c.Gemini.Retries, c.Gemini.Backoff)
	}
	if c.Gemini.Timeout >= e.Timeout && c.Gemini.Retries > 0 {
		errs = append(errs, fmt.Errorf("gemini.timeout %s leaves no room for a retry inside engine.timeout %s", c.Gemini.Timeout, e.Timeout))
	}
	if c.Gemini.CircuitFailureThreshold == 0 {
		c.Gemini.CircuitFailureThreshold = gd.CircuitFailureThreshold
	}
	if c.Gemini.CircuitReset <= 0 {
		c.Gemini.CircuitReset = gd.CircuitReset
	}

	od := ollama.DefaultConfig()
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = od.BaseURL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = od.Model
	}
	if c.Ollama.Retries == 0 {
		c.Ollama.Retries = od.Retries
	}
	if c.Ollama.Backoff <= 0 {
		c.Ollama.Backoff = od.Backoff
	}
	if c.Ollama.Timeout <= 0 {
		c.Ollama.Timeout = min(od.Timeout, attemptTimeout(e.Timeout, c.Ollama.Retries, c.Ollama.Backoff))
	}
	if c.Ollama.CircuitFailureThreshold == 0 {
		c.Ollama.CircuitFailureThreshold = od.CircuitFailureThreshold
	}
	if c.Ollama.CircuitReset <= 0 {
		c.Ollama.CircuitReset = od.CircuitReset
	}

	if c.YouTube.Timeout <= 0 {
		c.YouTube.Timeout = 10 * time.Second
	}

	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = 10
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.History.Cap <= 0 {
		c.History.Cap = 20
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.PollInterval <= 0 {
		c.Jobs.PollInterval = time.Second
	}

	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

// attemptTimeout splits a strategy budget across the first attempt, its
// retries and the linear backoff between them.
func attemptTimeout(budget time.Duration, retries int, backoff time.Duration) time.Duration {
	if retries < 0 {
		retries = 0
	}
	waits := backoff * time.Duration(retries*(retries+1)/2)
	per := (budget - waits) / time.Duration(retries+1)
	if per < time.Second {
		per = time.Second
	}
	return per
}
