package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath names the variable holding the config file location.
	EnvConfigPath = "COURTSIM_CONFIG"
	// EnvDatabase selects the database entry used by the hearing store.
	EnvDatabase = "COURTSIM_DB"

	defaultConfigFile = "config.json"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Generation  GenerationConfig          `json:"generation" yaml:"generation"`
	Log         LogConfig                 `json:"log" yaml:"log"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address" yaml:"server_address"`
	ScenarioFile      string `json:"scenario_file" yaml:"scenario_file"`
	MaxConcurrentRuns int    `json:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	MaxTurns          int    `json:"max_turns" yaml:"max_turns"`
	// Durations below are expressed in minutes.
	WorkerIdleTimeout int `json:"worker_idle_timeout" yaml:"worker_idle_timeout"`
	HearingTTL        int `json:"hearing_ttl" yaml:"hearing_ttl"`
	CleanInterval     int `json:"clean_interval" yaml:"clean_interval"`
	RunTimeout        int `json:"run_timeout" yaml:"run_timeout"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

// RedisConfig is optional; an empty Host disables the snapshot cache.
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// RoleGeneration holds the model settings for one kind of turn.
// An empty Model falls back to the provider's default model.
type RoleGeneration struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
}

// GenerationConfig holds per-turn settings. Model names are those of
// ModelProvider; hearings on any other provider ignore them.
type GenerationConfig struct {
	ModelProvider string         `json:"model_provider" yaml:"model_provider"`
	Counsel       RoleGeneration `json:"counsel" yaml:"counsel"`
	Defendant     RoleGeneration `json:"defendant" yaml:"defendant"`
	Court         RoleGeneration `json:"court" yaml:"court"`
	Costs         RoleGeneration `json:"costs" yaml:"costs"`
	Coaching      RoleGeneration `json:"coaching" yaml:"coaching"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:     ":8090",
			MaxConcurrentRuns: 8,
			MaxTurns:          40,
			WorkerIdleTimeout: 10,
			HearingTTL:        120,
			CleanInterval:     10,
			RunTimeout:        5,
		},
		Providers: map[string]ProviderConfig{
			"openai": {Model: "gpt-3.5-turbo"},
			"claude": {Model: "claude-3-5-haiku-latest"},
			"gemini": {Model: "gemini-2.0-flash"},
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "file:courtsim.db?cache=shared"},
		},
		Generation: GenerationConfig{
			ModelProvider: "openai",
			Counsel:       RoleGeneration{Temperature: 0.6},
			Defendant:     RoleGeneration{Temperature: 0.6},
			Court:         RoleGeneration{Temperature: 0.4},
			Costs:         RoleGeneration{Model: "gpt-4", Temperature: 0.2},
			Coaching:      RoleGeneration{Model: "gpt-4", Temperature: 0.2},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A .env file in the working directory is loaded first when present. When no
// path is given and config.json does not exist, Default is returned.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if f := cfg.BasicConfig.ScenarioFile; f != "" && !filepath.IsAbs(f) {
		cfg.BasicConfig.ScenarioFile = filepath.Join(filepath.Dir(absPath), f)
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}
	for name := range c.Providers {
		switch name {
		case "openai", "claude", "gemini":
		default:
			return fmt.Errorf("unsupported provider %q", name)
		}
	}
	if c.BasicConfig.MaxConcurrentRuns < 0 {
		return errors.New("max_concurrent_runs cannot be negative")
	}
	return nil
}

// Provider returns the named provider entry.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("provider %s not configured", name)
	}
	return p, nil
}

// For returns the settings a hearing on provider generates with.
func (g GenerationConfig) For(provider string) GenerationConfig {
	if g.ModelProvider == "" || g.ModelProvider == provider {
		return g
	}
	for _, r := range []*RoleGeneration{&g.Counsel, &g.Defendant, &g.Court, &g.Costs, &g.Coaching} {
		r.Model = ""
	}
	return g
}
