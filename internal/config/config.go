package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lantern-quiz-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Participants struct {
		TTL string `yaml:"ttl"`
	} `yaml:"participants"`
	Engine struct {
		ClaimRetries *int `yaml:"claim_retries"`
	} `yaml:"engine"`
	Activity struct {
		Name  string `yaml:"name"`
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"activity"`
}

// Load reads YAML config from path. A missing file yields the zero config so
// the service can start on in-memory stores.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// ClaimRetries returns engine.claim_retries, or fallback when unset.
func (c Config) ClaimRetries(fallback int) int {
	if c.Engine.ClaimRetries == nil {
		return fallback
	}
	return *c.Engine.ClaimRetries
}

// Window builds the activity window from the activity section.
func (c Config) Window() (domain.Window, error) {
	start, err := ParseTime(c.Activity.Start)
	if err != nil {
		return domain.Window{}, fmt.Errorf("activity.start: %w", err)
	}
	end, err := ParseTime(c.Activity.End)
	if err != nil {
		return domain.Window{}, fmt.Errorf("activity.end: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return domain.Window{}, fmt.Errorf("activity ends before it starts")
	}
	return domain.Window{Name: c.Activity.Name, Start: start, End: end}, nil
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05"}

// ParseTime accepts RFC3339 or "2006-01-02 15:04:05" (local time). Empty is the zero time.
func ParseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
