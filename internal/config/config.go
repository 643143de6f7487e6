package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"perk-quiz-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL     string                  `yaml:"ttl"`
		Catalog []domain.QuizDefinition `yaml:"catalog"`
	} `yaml:"quiz"`
	Session struct {
		TTL string `yaml:"ttl"`
	} `yaml:"session"`
	Rewards struct {
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		ActionSource string `yaml:"action_source"`
		Timeout      string `yaml:"timeout"`
		MaxAttempts  int    `yaml:"max_attempts"`
	} `yaml:"rewards"`
	RateLimit struct {
		MaxRequests int    `yaml:"max_requests"`
		Window      string `yaml:"window"`
	} `yaml:"rate_limit"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets deployments inject secrets and endpoints without editing the file.
func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"PERK_API_KEY":  &c.Rewards.APIKey,
		"PERK_BASE_URL": &c.Rewards.BaseURL,
		"REDIS_ADDR":    &c.Redis.Addr,
		"DATABASE_URL":  &c.Postgres.URL,
		"SERVER_MODE":   &c.Server.Mode,
	}
	for key, field := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*field = v
		}
	}
}

// Quizzes returns the configured catalog, or the built-in one when none is configured.
func (c Config) Quizzes() (map[string]domain.QuizDefinition, error) {
	if len(c.Quiz.Catalog) == 0 {
		return domain.DefaultQuizzes(), nil
	}
	return domain.CatalogFromList(c.Quiz.Catalog)
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
